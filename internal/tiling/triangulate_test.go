package tiling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriangulateSquareProducesTwoTriangles(t *testing.T) {
	square := []Vec3{
		{0, 0, 0}, {10, 0, 0}, {10, 10, 0}, {0, 10, 0},
	}
	points, tris, err := Triangulate(square, nil)
	require.NoError(t, err)
	assert.Len(t, points, 4)
	assert.Len(t, tris, 2)
}

func TestTriangulateWithHoleBridgesAndClips(t *testing.T) {
	exterior := []Vec3{
		{0, 0, 0}, {10, 0, 0}, {10, 10, 0}, {0, 10, 0},
	}
	hole := []Vec3{
		{3, 3, 0}, {3, 7, 0}, {7, 7, 0}, {7, 3, 0},
	}
	points, tris, err := Triangulate(exterior, [][]Vec3{hole})
	require.NoError(t, err)
	assert.Len(t, points, 8)
	// A bridged quad-with-quad-hole ear-clips to 8 triangles (4 exterior
	// edges, 4 hole edges and the two bridge edges make an n=10-vertex
	// simple polygon, which yields n-2 triangles).
	assert.Len(t, tris, 8)
}

func TestTriangulateVerticalPolygonUsesDominantAxis(t *testing.T) {
	// A wall standing in the X-Z plane (constant Y): the dominant axis
	// to drop is Y, not Z, or the ear-clip would operate on a degenerate
	// (zero-area) XY projection.
	wall := []Vec3{
		{0, 5, 0}, {10, 5, 0}, {10, 5, 3}, {0, 5, 3},
	}
	_, tris, err := Triangulate(wall, nil)
	require.NoError(t, err)
	assert.Len(t, tris, 2)
}

func TestTriangulateRejectsDegenerateRing(t *testing.T) {
	_, _, err := Triangulate([]Vec3{{0, 0, 0}, {1, 1, 1}}, nil)
	assert.Error(t, err)
}

func TestTriangulateOrWarnFalseOnError(t *testing.T) {
	_, _, ok := TriangulateOrWarn([]Vec3{{0, 0, 0}}, nil, "surface-1")
	assert.False(t, ok)
}
