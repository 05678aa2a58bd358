// Package mvt writes entities as zoom-tiled Mapbox Vector Tiles, driven
// through the full C8/C9 sub-pipeline: every Feature's polygons are
// sliced per tile by internal/tiling, spilled to disk in TileID order by
// internal/extsort, then merged and encoded one .mvt file per tile via
// paulmach/orb/encoding/mvt.
package mvt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/tobilg/citystream/internal/citymodel"
	"github.com/tobilg/citystream/internal/extsort"
	"github.com/tobilg/citystream/internal/pipeline"
	"github.com/tobilg/citystream/internal/schema"
	"github.com/tobilg/citystream/internal/sink"
	"github.com/tobilg/citystream/internal/tiling"
)

type Sink struct {
	dir       string
	minZ      int
	maxZ      int
	layerName string
}

func New(params map[string]string) (sink.Sink, error) {
	dir := sink.StringParam(params, "dir", "")
	if dir == "" {
		return nil, fmt.Errorf("mvt: missing required parameter %q", "dir")
	}
	minZ, err := sink.IntParam(params, "min-zoom", 0)
	if err != nil {
		return nil, err
	}
	maxZ, err := sink.IntParam(params, "max-zoom", 14)
	if err != nil {
		return nil, err
	}
	return &Sink{
		dir:       dir,
		minZ:      minZ,
		maxZ:      maxZ,
		layerName: sink.StringParam(params, "layer", "features"),
	}, nil
}

func (s *Sink) Info() sink.Info {
	return sink.Info{Name: "mvt", Description: "Mapbox Vector Tiles (orb/encoding/mvt), tiled and externally sorted"}
}

func (s *Sink) Parameters() []sink.ParamDef {
	return []sink.ParamDef{
		{Name: "dir", Kind: sink.ParamFileSystemPath, Required: true},
		{Name: "min-zoom", Kind: sink.ParamInteger, Default: "0"},
		{Name: "max-zoom", Kind: sink.ParamInteger, Default: "14"},
		{Name: "layer", Kind: sink.ParamString, Default: "features"},
	}
}

func (s *Sink) Requirements() sink.Requirements {
	return sink.Requirements{RequiredProjectionEPSG: 4326}
}

// encodeTileRecord builds the payload spilled to extsort runs: a single
// geojson Feature geometry + its flattened properties, gob-free by
// riding on geojson's own compact JSON encoding.
func encodeTileRecord(geom orb.Geometry, props map[string]any) ([]byte, error) {
	f := geojson.NewFeature(geom)
	f.Properties = geojson.Properties(props)
	return f.MarshalJSON()
}

func decodeTileRecord(b []byte) (*geojson.Feature, error) {
	return geojson.UnmarshalFeature(b)
}

func (s *Sink) Run(ctx context.Context, in <-chan pipeline.Parcel, feedback chan<- pipeline.FeedbackMessage, sch *schema.Schema) error {
	builder := extsort.NewRunBuilder(extsort.Config{})

	count := 0
	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case p, ok := <-in:
			if !ok {
				return s.finish(ctx, builder, count, feedback)
			}
			obj, ok := p.Entity.RootObject()
			if !ok {
				continue
			}
			feature, ok := obj.Stereotype.(citymodel.Feature)
			if !ok || len(feature.Geometries) == 0 {
				continue
			}
			props := sink.Properties(obj)

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

			for tileID, clipped := range tiling.SliceFeature(mp, s.minZ, s.maxZ) {
				payload, err := encodeTileRecord(clipped, props)
				if err != nil {
					feedback <- pipeline.FeedbackMessage{Severity: pipeline.SeverityWarn, Message: fmt.Sprintf("mvt: skipping feature %s: %v", feature.ID, err)}
					continue
				}
				if err := builder.Add(tileID, payload); err != nil {
					return fmt.Errorf("mvt: spilling feature %s: %w", feature.ID, err)
				}
			}
			count++
		}
	}
}

func (s *Sink) finish(ctx context.Context, builder *extsort.RunBuilder, count int, feedback chan<- pipeline.FeedbackMessage) error {
	runs, err := builder.Finish()
	if err != nil {
		return fmt.Errorf("mvt: finishing spill runs: %w", err)
	}
	defer func() {
		for _, f := range runs {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("mvt: creating output dir %s: %w", s.dir, err)
	}

	var (
		currentTile   tiling.TileID
		currentFC     *geojson.FeatureCollection
		haveTile      bool
		tilesWritten  int
		featuresGone  int
	)

	flush := func() error {
		if !haveTile || currentFC == nil || len(currentFC.Features) == 0 {
			return nil
		}
		zoom, x, y := currentTile.Decode()
		layers := mvt.NewLayers(map[string]*geojson.FeatureCollection{s.layerName: currentFC})
		layers.ProjectToTile(maptile.New(uint32(x), uint32(y), maptile.Zoom(zoom)))
		data, err := mvt.MarshalGzipped(layers)
		if err != nil {
			return fmt.Errorf("mvt: encoding tile z%d/%d/%d: %w", zoom, x, y, err)
		}
		path := filepath.Join(s.dir, fmt.Sprintf("%d", zoom), fmt.Sprintf("%d", x), fmt.Sprintf("%d.mvt", y))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		tilesWritten++
		return nil
	}

	for rec, err := range extsort.Merge(ctx, runs) {
		if err != nil {
			return fmt.Errorf("mvt: merging spill runs: %w", err)
		}
		if !haveTile || rec.ID != currentTile {
			if err := flush(); err != nil {
				return err
			}
			currentTile = rec.ID
			currentFC = geojson.NewFeatureCollection()
			haveTile = true
		}
		f, err := decodeTileRecord(rec.Payload)
		if err != nil {
			featuresGone++
			continue
		}
		currentFC.Append(f)
	}
	if err := flush(); err != nil {
		return err
	}
	if featuresGone > 0 {
		feedback <- pipeline.FeedbackMessage{Severity: pipeline.SeverityWarn, Message: fmt.Sprintf("mvt: dropped %d malformed tile records", featuresGone)}
	}
	log.Infof("mvt: wrote %d tiles from %d source features", tilesWritten, count)
	return nil
}

var _ sink.Sink = (*Sink)(nil)
