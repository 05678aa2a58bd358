// Package citymodel holds the entity/geometry/appearance data model (C1,
// C2, C5): a deduplicated vertex buffer, indexed polygon/line/point
// collections, the object tree, and the shared appearance store that
// parcels carry through the pipeline.
package citymodel

import "math"

// Vertex is a single 3D point in the store's coordinate reference system.
type Vertex [3]float64

// bits is the bit-pattern key used for dedup; two vertices compare equal
// here iff their raw float64 encodings match exactly, per spec.
type bits [3]uint64

func vertexBits(v Vertex) bits {
	return bits{
		math.Float64bits(v[0]),
		math.Float64bits(v[1]),
		math.Float64bits(v[2]),
	}
}

// VertexBuffer is an ordered, deduplicated sequence of vertices. Insert
// returns a stable index; indices are never invalidated once issued.
type VertexBuffer struct {
	verts []Vertex
	index map[bits]uint32
}

// NewVertexBuffer returns an empty buffer ready for inserts.
func NewVertexBuffer() *VertexBuffer {
	return &VertexBuffer{
		index: make(map[bits]uint32),
	}
}

// Insert returns the stable index of v, reusing an existing slot when a
// bit-pattern-identical vertex was already inserted.
func (b *VertexBuffer) Insert(v Vertex) uint32 {
	key := vertexBits(v)
	if idx, ok := b.index[key]; ok {
		return idx
	}
	idx := uint32(len(b.verts))
	b.verts = append(b.verts, v)
	b.index[key] = idx
	return idx
}

// At returns the vertex at idx. Panics on out-of-range idx; callers that
// walk GeometryRef slices are expected to have already validated bounds.
func (b *VertexBuffer) At(idx uint32) Vertex {
	return b.verts[idx]
}

// Set overwrites the vertex at idx in place — used by reprojection, which
// rewrites coordinates without touching the index or the dedup table.
func (b *VertexBuffer) Set(idx uint32, v Vertex) {
	b.verts[idx] = v
}

// Len returns the number of distinct vertices currently stored.
func (b *VertexBuffer) Len() int {
	return len(b.verts)
}

// Each calls fn for every vertex in insertion order.
func (b *VertexBuffer) Each(fn func(idx uint32, v Vertex)) {
	for i, v := range b.verts {
		fn(uint32(i), v)
	}
}
