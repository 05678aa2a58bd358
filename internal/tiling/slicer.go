package tiling

import (
	"iter"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/maptile"
)

// SliceFeature clips poly against every tile it touches from minZ to maxZ
// inclusive, yielding (TileID, clipped polygon) pairs. Grounded on
// joeblew999-plat-geo/internal/tiler/gotiler.go's tilesInBounds row/column
// scan (orb/maptile has no bounds-to-tile-range helper in the pack's
// reference usage, so the scan is hand-rolled the same way) and its use of
// orb/clip for per-tile clipping. Empty clips (a ring with no points left
// after Sutherland-Hodgman) are dropped from the output polygon; a polygon
// reduced to zero rings is not yielded at all.
func SliceFeature(poly orb.MultiPolygon, minZ, maxZ int) iter.Seq2[TileID, orb.MultiPolygon] {
	return func(yield func(TileID, orb.MultiPolygon) bool) {
		bound := poly.Bound()
		for z := minZ; z <= maxZ; z++ {
			for _, t := range tilesInBound(bound, maptile.Zoom(z)) {
				clipped := clipMultiPolygon(poly, t.Bound())
				if len(clipped) == 0 {
					continue
				}
				id := NewTileID(uint32(z), uint32(t.X), uint32(t.Y))
				if !yield(id, clipped) {
					return
				}
			}
		}
	}
}

// tilesInBound enumerates every tile at zoom touching bound, scanning the
// corner tiles' row/column range (the bound is assumed normalized to
// [-180,180) by the caller; antimeridian-straddling bounds are not split
// here, matching the pack reference implementation's scope).
func tilesInBound(bound orb.Bound, zoom maptile.Zoom) []maptile.Tile {
	minTile := maptile.At(bound.Min, zoom)
	maxTile := maptile.At(bound.Max, zoom)

	minX, maxX := minTile.X, maxTile.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := minTile.Y, maxTile.Y
	if minY > maxY {
		minY, maxY = maxY, minY
	}

	var tiles []maptile.Tile
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			tiles = append(tiles, maptile.New(x, y, zoom))
		}
	}
	return tiles
}

// clipMultiPolygon clips every polygon of mp against bound, dropping rings
// (and whole polygons) left empty by the clip.
func clipMultiPolygon(mp orb.MultiPolygon, bound orb.Bound) orb.MultiPolygon {
	var out orb.MultiPolygon
	for _, poly := range mp {
		clipped := clip.Polygon(bound, poly)
		if len(clipped) == 0 || len(clipped[0]) == 0 {
			continue
		}
		var kept orb.Polygon
		for _, ring := range clipped {
			if len(ring) == 0 {
				continue
			}
			kept = append(kept, ring)
		}
		if len(kept) > 0 {
			out = append(out, kept)
		}
	}
	return out
}
