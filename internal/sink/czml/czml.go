// Package czml writes entities as a CZML document (a JSON array of
// packets): one packet per feature with a "polygon" property carrying
// its positions and a "properties" bag carrying its scalar attributes.
// CZML's full animation/clock/billboard vocabulary is out of scope per
// §1 — this writer implements the static-polygon packet subset.
package czml

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	json "github.com/goccy/go-json"

	"github.com/tobilg/citystream/internal/citymodel"
	"github.com/tobilg/citystream/internal/pipeline"
	"github.com/tobilg/citystream/internal/schema"
	"github.com/tobilg/citystream/internal/sink"
)

type packet struct {
	ID         string         `json:"id"`
	Name       string         `json:"name,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Polygon    *polygonProp   `json:"polygon,omitempty"`
}

type polygonProp struct {
	Positions positionsProp `json:"positions"`
}

type positionsProp struct {
	CartographicDegrees []float64 `json:"cartographicDegrees"`
}

type Sink struct {
	path string
}

func New(params map[string]string) (sink.Sink, error) {
	path := sink.StringParam(params, "path", "")
	if path == "" {
		return nil, fmt.Errorf("czml: missing required parameter %q", "path")
	}
	return &Sink{path: path}, nil
}

func (s *Sink) Info() sink.Info {
	return sink.Info{Name: "czml", Description: "CZML document of static polygon packets"}
}

func (s *Sink) Parameters() []sink.ParamDef {
	return []sink.ParamDef{{Name: "path", Kind: sink.ParamFileSystemPath, Required: true}}
}

func (s *Sink) Requirements() sink.Requirements {
	return sink.Requirements{RequiredProjectionEPSG: 4326}
}

func (s *Sink) Run(ctx context.Context, in <-chan pipeline.Parcel, feedback chan<- pipeline.FeedbackMessage, sch *schema.Schema) error {
	packets := []packet{{ID: "document", Name: "citystream"}}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case p, ok := <-in:
			if !ok {
				return s.write(packets, count)
			}
			obj, ok := p.Entity.RootObject()
			if !ok {
				continue
			}
			feature, ok := obj.Stereotype.(citymodel.Feature)
			if !ok {
				continue
			}

			var coords []float64
			for _, ref := range feature.Geometries {
				if ref.Kind != citymodel.KindPolygon {
					continue
				}
				polys := p.Entity.Geometry.PolygonsFor(ref)
				if len(polys) == 0 {
					continue
				}
				for _, idx := range polys[0].Exterior {
					v := p.Entity.Geometry.Vertices.At(idx)
					coords = append(coords, v[0], v[1], v[2])
				}
				break
			}
			if len(coords) == 0 {
				continue
			}

			pk := packet{
				ID:         feature.ID,
				Properties: sink.Properties(obj),
				Polygon:    &polygonProp{Positions: positionsProp{CartographicDegrees: coords}},
			}
			packets = append(packets, pk)
			count++
		}
	}
}

func (s *Sink) write(packets []packet, count int) error {
	data, err := json.MarshalIndent(packets, "", "  ")
	if err != nil {
		return fmt.Errorf("czml: marshaling %d packets: %w", count, err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("czml: writing %s: %w", s.path, err)
	}
	log.Infof("czml: wrote %d packets to %s", count, s.path)
	return nil
}

var _ sink.Sink = (*Sink)(nil)
