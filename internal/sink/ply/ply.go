// Package ply writes the tessellated triangle mesh of every feature's
// geometry as a single binary-little-endian PLY file (one mesh per run;
// every triangulated polygon appends its own vertices, so vertices are
// not deduplicated across polygons or features). PLY carries no attribute schema beyond vertex/face
// lists, so scalar attributes are not written — a minimal but real
// writer per §1's explicit scope note for this format.
package ply

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/tobilg/citystream/internal/citymodel"
	"github.com/tobilg/citystream/internal/pipeline"
	"github.com/tobilg/citystream/internal/schema"
	"github.com/tobilg/citystream/internal/sink"
	"github.com/tobilg/citystream/internal/tiling"
)

type Sink struct {
	path string
}

func New(params map[string]string) (sink.Sink, error) {
	path := sink.StringParam(params, "path", "")
	if path == "" {
		return nil, fmt.Errorf("ply: missing required parameter %q", "path")
	}
	return &Sink{path: path}, nil
}

func (s *Sink) Info() sink.Info {
	return sink.Info{Name: "ply", Description: "binary PLY triangle mesh"}
}

func (s *Sink) Parameters() []sink.ParamDef {
	return []sink.ParamDef{{Name: "path", Kind: sink.ParamFileSystemPath, Required: true}}
}

func (s *Sink) Requirements() sink.Requirements {
	return sink.Requirements{}
}

type face [3]uint32

func (s *Sink) Run(ctx context.Context, in <-chan pipeline.Parcel, feedback chan<- pipeline.FeedbackMessage, sch *schema.Schema) error {
	var vertices []citymodel.Vertex
	var faces []face
	featureCount := 0

	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case p, ok := <-in:
			if !ok {
				return s.write(vertices, faces, featureCount)
			}
			obj, ok := p.Entity.RootObject()
			if !ok {
				continue
			}
			feature, ok := obj.Stereotype.(citymodel.Feature)
			if !ok {
				continue
			}
			for _, ref := range feature.Geometries {
				if ref.Kind != citymodel.KindPolygon {
					continue
				}
				for _, poly := range p.Entity.Geometry.PolygonsFor(ref) {
					exterior := ringVecs(p.Entity.Geometry, poly.Exterior)
					var holes [][]tiling.Vec3
					for _, h := range poly.Interior {
						holes = append(holes, ringVecs(p.Entity.Geometry, h))
					}
					pts, tris, ok := tiling.TriangulateOrWarn(exterior, holes, feature.ID)
					if !ok {
						continue
					}
					base := uint32(len(vertices))
					for _, pt := range pts {
						vertices = append(vertices, citymodel.Vertex(pt))
					}
					for _, t := range tris {
						faces = append(faces, face{base + uint32(t[0]), base + uint32(t[1]), base + uint32(t[2])})
					}
				}
			}
			featureCount++
		}
	}
}

func ringVecs(store *citymodel.GeometryStore, ring citymodel.Ring) []tiling.Vec3 {
	out := make([]tiling.Vec3, len(ring))
	for i, idx := range ring {
		out[i] = tiling.Vec3(store.Vertices.At(idx))
	}
	return out
}

func (s *Sink) write(vertices []citymodel.Vertex, faces []face, featureCount int) error {
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("ply: creating %s: %w", s.path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	fmt.Fprintf(w, "ply\nformat binary_little_endian 1.0\n")
	fmt.Fprintf(w, "element vertex %d\n", len(vertices))
	fmt.Fprintf(w, "property float x\nproperty float y\nproperty float z\n")
	fmt.Fprintf(w, "element face %d\n", len(faces))
	fmt.Fprintf(w, "property list uchar int vertex_indices\nend_header\n")

	for _, v := range vertices {
		if err := binary.Write(w, binary.LittleEndian, float32(v[0])); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, float32(v[1])); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, float32(v[2])); err != nil {
			return err
		}
	}
	for _, fc := range faces {
		if err := w.WriteByte(3); err != nil {
			return err
		}
		for _, idx := range fc {
			if err := binary.Write(w, binary.LittleEndian, int32(idx)); err != nil {
				return err
			}
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	log.Infof("ply: wrote %d vertices, %d faces from %d features to %s", len(vertices), len(faces), featureCount, s.path)
	return nil
}

var _ sink.Sink = (*Sink)(nil)
