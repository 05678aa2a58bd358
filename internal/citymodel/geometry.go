package citymodel

import (
	"errors"
	"sync"
)

// GeometryKind identifies which indexed collection a GeometryRef targets.
type GeometryKind int

const (
	KindPolygon GeometryKind = iota
	KindLineString
	KindPoint
)

// LoD is the level of detail (1..4) a geometry was parsed at.
type LoD int

// PolygonKind distinguishes an ordinary polygon ring set from one emitted
// by triangulating a Tin/TriangulatedSurface.
type PolygonKind int

const (
	PolygonOrdinary PolygonKind = iota
	PolygonTriangle
)

// Ring is a closed sequence of vertex-buffer indices.
type Ring []uint32

// Polygon is an exterior ring followed by zero or more interior rings.
type Polygon struct {
	Exterior Ring
	Interior []Ring
	Kind     PolygonKind
	// LocalID is an optional per-ring identifier carried from the source
	// document (e.g. gml:id on the ring element).
	LocalID string
}

// IndexedMultiPolygon is an ordered sequence of polygons.
type IndexedMultiPolygon struct {
	polys []Polygon
}

func (m *IndexedMultiPolygon) Append(p Polygon) int {
	m.polys = append(m.polys, p)
	return len(m.polys) - 1
}

func (m *IndexedMultiPolygon) Len() int { return len(m.polys) }

// Range returns the polygons in [start, start+length).
func (m *IndexedMultiPolygon) Range(start, length int) []Polygon {
	return m.polys[start : start+length]
}

func (m *IndexedMultiPolygon) At(i int) Polygon { return m.polys[i] }

// Truncate discards all polygons from position i onward — used by the LoD
// filter's optional compaction path.
func (m *IndexedMultiPolygon) Truncate(i int) { m.polys = m.polys[:i] }

// IndexedMultiLineString is an ordered sequence of polylines, each a
// sequence of vertex-buffer indices.
type IndexedMultiLineString struct {
	lines [][]uint32
}

func (m *IndexedMultiLineString) Append(l []uint32) int {
	m.lines = append(m.lines, l)
	return len(m.lines) - 1
}
func (m *IndexedMultiLineString) Len() int                  { return len(m.lines) }
func (m *IndexedMultiLineString) Range(s, l int) [][]uint32 { return m.lines[s : s+l] }

// IndexedMultiPoint is an ordered sequence of single vertex-buffer indices.
type IndexedMultiPoint struct {
	points []uint32
}

func (m *IndexedMultiPoint) Append(idx uint32) int {
	m.points = append(m.points, idx)
	return len(m.points) - 1
}
func (m *IndexedMultiPoint) Len() int              { return len(m.points) }
func (m *IndexedMultiPoint) Range(s, l int) []uint32 { return m.points[s : s+l] }

// SurfaceSpan associates a source surface id with a contiguous run of
// polygons in the store's multi-polygon collection. Overlapping spans
// across different surface ids are preserved, never coalesced.
type SurfaceSpan struct {
	SurfaceID string
	Start     int
	Length    int
}

// GeometryRef is the per-entity slice descriptor into a GeometryStore.
type GeometryRef struct {
	Kind   GeometryKind
	LoD    LoD
	Start  int
	Length int
}

var ErrGeometryRange = errors.New("citymodel: geometry ref out of range")

// GeometryStore is the per-top-level-feature container of shared vertices
// and indexed collections (C1). It is safe for concurrent use: readers
// (slicing, tessellation, serialization) take the read lock, writers
// (reprojection, appearance-apply) take the write lock.
type GeometryStore struct {
	mu sync.RWMutex

	Vertices *VertexBuffer
	Polygons *IndexedMultiPolygon
	Lines    *IndexedMultiLineString
	Points   *IndexedMultiPoint

	EPSG    int
	Spans   []SurfaceSpan
}

// NewGeometryStore returns an empty store tagged with the given source
// EPSG code.
func NewGeometryStore(epsg int) *GeometryStore {
	return &GeometryStore{
		Vertices: NewVertexBuffer(),
		Polygons: &IndexedMultiPolygon{},
		Lines:    &IndexedMultiLineString{},
		Points:   &IndexedMultiPoint{},
		EPSG:     epsg,
	}
}

// Lock/Unlock/RLock/RUnlock expose the single-writer/many-reader contract
// directly so transforms and sinks can scope their hold time precisely.
func (s *GeometryStore) Lock()    { s.mu.Lock() }
func (s *GeometryStore) Unlock()  { s.mu.Unlock() }
func (s *GeometryStore) RLock()   { s.mu.RLock() }
func (s *GeometryStore) RUnlock() { s.mu.RUnlock() }

// CollectionLen returns the number of elements in the collection targeted
// by kind, used to validate GeometryRef bounds.
func (s *GeometryStore) CollectionLen(kind GeometryKind) int {
	switch kind {
	case KindPolygon:
		return s.Polygons.Len()
	case KindLineString:
		return s.Lines.Len()
	case KindPoint:
		return s.Points.Len()
	default:
		return 0
	}
}

// Resolve validates ref against the store and returns it unchanged, or
// ErrGeometryRange if start+length exceeds the targeted collection.
func (s *GeometryStore) Resolve(ref GeometryRef) (GeometryRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ref.Start < 0 || ref.Length < 0 || ref.Start+ref.Length > s.CollectionLen(ref.Kind) {
		return GeometryRef{}, ErrGeometryRange
	}
	return ref, nil
}

// PolygonsFor returns the polygons referenced by ref (Kind must be
// KindPolygon); callers are expected to have validated ref via Resolve.
func (s *GeometryStore) PolygonsFor(ref GeometryRef) []Polygon {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Polygons.Range(ref.Start, ref.Length)
}
