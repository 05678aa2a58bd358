// Package geojson writes entities as a GeoJSON FeatureCollection, one
// orb/geojson.Feature per top-level Feature-stereotyped entity, its
// geometry the union of every surviving GeometryRef's polygons.
package geojson

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/tobilg/citystream/internal/citymodel"
	"github.com/tobilg/citystream/internal/pipeline"
	"github.com/tobilg/citystream/internal/schema"
	"github.com/tobilg/citystream/internal/sink"
)

type Sink struct {
	path string
}

// New constructs a geojson.Sink from its `-o` parameters. The only
// parameter is "path", the output file to write.
func New(params map[string]string) (sink.Sink, error) {
	path := sink.StringParam(params, "path", "")
	if path == "" {
		return nil, fmt.Errorf("geojson: missing required parameter \"path\"")
	}
	return &Sink{path: path}, nil
}

func (s *Sink) Info() sink.Info {
	return sink.Info{Name: "geojson", Description: "GeoJSON FeatureCollection (orb/geojson)"}
}

func (s *Sink) Parameters() []sink.ParamDef {
	return []sink.ParamDef{
		{Name: "path", Kind: sink.ParamFileSystemPath, Required: true},
	}
}

func (s *Sink) Requirements() sink.Requirements {
	return sink.Requirements{RequiredProjectionEPSG: 4326}
}

func (s *Sink) Run(ctx context.Context, in <-chan pipeline.Parcel, feedback chan<- pipeline.FeedbackMessage, sch *schema.Schema) error {
	fc := geojson.NewFeatureCollection()
	count := 0

	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case p, ok := <-in:
			if !ok {
				return s.write(fc, count)
			}
			obj, ok := p.Entity.RootObject()
			if !ok {
				continue
			}
			feature, ok := obj.Stereotype.(citymodel.Feature)
			if !ok || len(feature.Geometries) == 0 {
				continue
			}

			var mp orb.MultiPolygon
			for _, ref := range feature.Geometries {
				if ref.Kind != citymodel.KindPolygon {
					continue
				}
				mp = append(mp, sink.ToOrbMultiPolygon(p.Entity.Geometry, ref)...)
			}
			if len(mp) == 0 {
				continue
			}

			gf := geojson.NewFeature(mp)
			gf.ID = feature.ID
			gf.Properties = geojson.Properties(sink.Properties(obj))
			fc.Append(gf)
			count++

			if count%10000 == 0 {
				feedback <- pipeline.FeedbackMessage{Severity: pipeline.SeverityInfo, Message: fmt.Sprintf("geojson: buffered %d features", count)}
			}
		}
	}
}

func (s *Sink) write(fc *geojson.FeatureCollection, count int) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("geojson: marshaling %d features: %w", count, err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("geojson: writing %s: %w", s.path, err)
	}
	log.Infof("geojson: wrote %d features to %s", count, s.path)
	return nil
}

var _ sink.Sink = (*Sink)(nil)
