package tiling

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSliceFeatureAtZoom7 is scenario 3: a single triangle (0,0), (10,0),
// (5,10) sliced at z=7 must produce >=2 tiles, every tile id decoding
// back into z=7, x in [64,72], y in [56,64], and the summed clipped area
// equal to the input area to within 1e-9 of it (relative tolerance used
// here since the input area is O(10) square degrees, not O(1)).
func TestSliceFeatureAtZoom7(t *testing.T) {
	triangle := orb.Polygon{orb.Ring{
		{0, 0}, {10, 0}, {5, 10}, {0, 0},
	}}
	mp := orb.MultiPolygon{triangle}

	var tiles []TileID
	var totalArea float64
	for id, clipped := range SliceFeature(mp, 7, 7) {
		tiles = append(tiles, id)
		totalArea += polygonArea(clipped)

		zoom, x, y := id.Decode()
		assert.Equal(t, uint32(7), zoom)
		assert.GreaterOrEqual(t, x, uint32(64))
		assert.LessOrEqual(t, x, uint32(72))
		assert.GreaterOrEqual(t, y, uint32(56))
		assert.LessOrEqual(t, y, uint32(64))
	}

	require.GreaterOrEqual(t, len(tiles), 2)

	inputArea := polygonArea(mp)
	assert.InDelta(t, inputArea, totalArea, inputArea*1e-9)
}

func polygonArea(mp orb.MultiPolygon) float64 {
	var total float64
	for _, poly := range mp {
		for _, ring := range poly {
			total += ringArea(ring)
		}
	}
	return total
}

// ringArea is the absolute value of the shoelace formula; holes are not
// subtracted since this fixture has none.
func ringArea(ring orb.Ring) float64 {
	var sum float64
	for i := 0; i < len(ring); i++ {
		a := ring[i]
		b := ring[(i+1)%len(ring)]
		sum += a[0]*b[1] - b[0]*a[1]
	}
	if sum < 0 {
		sum = -sum
	}
	return sum / 2
}

func TestTilesInBoundCoversSingleTileWhenBoundIsSmall(t *testing.T) {
	bound := orb.Bound{Min: orb.Point{139.76, 35.68}, Max: orb.Point{139.77, 35.69}}
	tiles := tilesInBound(bound, maptile.Zoom(10))
	assert.NotEmpty(t, tiles)
}
