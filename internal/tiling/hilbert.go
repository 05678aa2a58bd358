// Package tiling implements the tile slicer (C8): web-mercator tile
// enumeration over a bounding box, Sutherland-Hodgman polygon clipping per
// tile, and ear-cut tessellation for the tile writer.
package tiling

// TileID is a 64-bit encoding of (zoom, x, y) ordered by Hilbert-curve
// distance within its zoom level, used as the external sort's key so
// spatially nearby tiles land near each other in the sorted output. No
// pack library implements Hilbert tile ordering (orb/maptile.Tile gives
// XYZ coordinates but no curve-distance encoding), so this is a direct
// d2xy/xy2d implementation — justified stdlib-only.
type TileID uint64

const zoomBits = 5 // ids are exact for zoom 0..29; from zoom 30 the 2*zoom distance bits reach the zoom field

// NewTileID encodes (zoom, x, y) as zoom in the top zoomBits bits and the
// Hilbert distance of (x, y) within a 2^zoom x 2^zoom grid in the rest.
func NewTileID(zoom, x, y uint32) TileID {
	d := xy2d(uint64(1)<<zoom, uint64(x), uint64(y))
	return TileID(uint64(zoom)<<(64-zoomBits) | d)
}

// Decode recovers (zoom, x, y) from a TileID.
func (id TileID) Decode() (zoom, x, y uint32) {
	zoom = uint32(uint64(id) >> (64 - zoomBits))
	d := uint64(id) &^ (uint64(0x1F) << (64 - zoomBits))
	xi, yi := d2xy(uint64(1)<<zoom, d)
	return zoom, uint32(xi), uint32(yi)
}

// xy2d converts (x, y) grid coordinates within an n x n grid to their
// distance along the Hilbert curve, per the standard bit-rotation
// algorithm.
func xy2d(n, x, y uint64) uint64 {
	var d uint64
	for s := n / 2; s > 0; s /= 2 {
		var rx, ry uint64
		if (x & s) > 0 {
			rx = 1
		}
		if (y & s) > 0 {
			ry = 1
		}
		d += s * s * ((3 * rx) ^ ry)
		x, y = rot(n, x, y, rx, ry)
	}
	return d
}

// d2xy is the inverse of xy2d.
func d2xy(n, d uint64) (x, y uint64) {
	t := d
	for s := uint64(1); s < n; s *= 2 {
		rx := 1 & (t / 2)
		ry := 1 & (t ^ rx)
		x, y = rot(s, x, y, rx, ry)
		x += s * rx
		y += s * ry
		t /= 4
	}
	return x, y
}

func rot(n, x, y, rx, ry uint64) (uint64, uint64) {
	if ry == 0 {
		if rx == 1 {
			x = n - 1 - x
			y = n - 1 - y
		}
		x, y = y, x
	}
	return x, y
}
