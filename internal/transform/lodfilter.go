package transform

import (
	"github.com/tobilg/citystream/internal/citymodel"
	"github.com/tobilg/citystream/internal/schema"
)

// LoDMode selects which level-of-detail geometries survive per role.
type LoDMode int

const (
	LoDHighest LoDMode = iota
	LoDLowest
	LoDAll
	LoDSpecific
)

// LoDFilter keeps only the geometries matching Mode for each distinct LoD
// value present on an entity's Feature stereotype. Roles are not tracked
// past the parser (GeometryRef no longer carries one), so the filter
// groups purely by LoD value across the whole feature.
type LoDFilter struct {
	Mode    LoDMode
	Lod     citymodel.LoD // used when Mode == LoDSpecific
	Compact bool
}

func NewLoDFilter(mode LoDMode, lod citymodel.LoD, compact bool) *LoDFilter {
	return &LoDFilter{Mode: mode, Lod: lod, Compact: compact}
}

func (f *LoDFilter) TransformSchema(s *schema.Schema) (*schema.Schema, error) {
	return s.Clone(), nil
}

func (f *LoDFilter) TransformEntity(e *citymodel.Entity) ([]*citymodel.Entity, error) {
	obj, ok := e.RootObject()
	if !ok {
		return []*citymodel.Entity{e}, nil
	}
	feature, ok := obj.Stereotype.(citymodel.Feature)
	if !ok || len(feature.Geometries) == 0 {
		return []*citymodel.Entity{e}, nil
	}

	keep := f.selectLoD(feature.Geometries)
	var kept []citymodel.GeometryRef
	for _, g := range feature.Geometries {
		if g.LoD == keep || f.Mode == LoDAll {
			kept = append(kept, g)
		}
	}
	feature.Geometries = kept
	obj.Stereotype = feature

	if f.Compact {
		f.compact(e.Geometry, obj)
	}

	return []*citymodel.Entity{e}, nil
}

func (f *LoDFilter) selectLoD(refs []citymodel.GeometryRef) citymodel.LoD {
	switch f.Mode {
	case LoDSpecific:
		return f.Lod
	case LoDLowest:
		lowest := refs[0].LoD
		for _, r := range refs[1:] {
			if r.LoD < lowest {
				lowest = r.LoD
			}
		}
		return lowest
	default: // LoDHighest, LoDAll (value unused when All)
		highest := refs[0].LoD
		for _, r := range refs[1:] {
			if r.LoD > highest {
				highest = r.LoD
			}
		}
		return highest
	}
}

// compact rewrites obj's surviving GeometryRefs to point at a freshly
// packed range at the tail of the store's polygon collection, so a sink
// that walks the whole store sequentially never sees discarded geometry.
// This is opt-in (LoDFilter.Compact) since it is an O(store size) copy.
func (f *LoDFilter) compact(store *citymodel.GeometryStore, obj *citymodel.Object) {
	feature, ok := obj.Stereotype.(citymodel.Feature)
	if !ok {
		return
	}
	store.Lock()
	defer store.Unlock()

	for i, ref := range feature.Geometries {
		if ref.Kind != citymodel.KindPolygon {
			continue
		}
		polys := store.Polygons.Range(ref.Start, ref.Length)
		newStart := store.Polygons.Len()
		for _, p := range polys {
			store.Polygons.Append(p)
		}
		feature.Geometries[i].Start = newStart
	}
	obj.Stereotype = feature
}
