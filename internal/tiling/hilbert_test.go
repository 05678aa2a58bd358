package tiling

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTileIDRoundTrips(t *testing.T) {
	cases := []struct{ zoom, x, y uint32 }{
		{0, 0, 0},
		{1, 0, 0},
		{1, 1, 1},
		{7, 64, 56},
		{7, 71, 63},
		{14, 12345, 6789},
	}
	for _, c := range cases {
		id := NewTileID(c.zoom, c.x, c.y)
		zoom, x, y := id.Decode()
		assert.Equal(t, c.zoom, zoom)
		assert.Equal(t, c.x, x)
		assert.Equal(t, c.y, y)
	}
}

func TestTileIDOrdersNearbyTilesCloseTogether(t *testing.T) {
	// Adjacent tiles on the Hilbert curve should differ by a small id
	// delta far more often than distant tiles do; spot-check one
	// known-adjacent pair against one known-distant pair at the same zoom.
	near1 := NewTileID(7, 64, 56)
	near2 := NewTileID(7, 64, 57)
	far := NewTileID(7, 64, 56+64)

	nearDelta := int64(near2) - int64(near1)
	if nearDelta < 0 {
		nearDelta = -nearDelta
	}
	farDelta := int64(far) - int64(near1)
	if farDelta < 0 {
		farDelta = -farDelta
	}
	assert.Less(t, nearDelta, farDelta)
}
