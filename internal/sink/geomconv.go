package sink

import (
	"github.com/paulmach/orb"

	"github.com/tobilg/citystream/internal/citymodel"
)

// ToOrbMultiPolygon converts the polygons referenced by ref (which must
// target the polygon collection) into an orb.MultiPolygon, for sinks
// built on paulmach/orb (geojson, mvt, tiles3d's clip stage). Vertex
// height is dropped for every caller, tiles3d included: tiles3d goes
// through this conversion too, so its output carries no original heights.
func ToOrbMultiPolygon(store *citymodel.GeometryStore, ref citymodel.GeometryRef) orb.MultiPolygon {
	polys := store.PolygonsFor(ref)
	mp := make(orb.MultiPolygon, 0, len(polys))
	for _, p := range polys {
		poly := make(orb.Polygon, 0, 1+len(p.Interior))
		poly = append(poly, ringToOrb(store, p.Exterior))
		for _, interior := range p.Interior {
			poly = append(poly, ringToOrb(store, interior))
		}
		mp = append(mp, poly)
	}
	return mp
}

func ringToOrb(store *citymodel.GeometryStore, ring citymodel.Ring) orb.Ring {
	out := make(orb.Ring, len(ring))
	for i, idx := range ring {
		v := store.Vertices.At(idx)
		out[i] = orb.Point{v[0], v[1]}
	}
	return out
}
