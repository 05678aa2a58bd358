package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobilg/citystream/internal/citymodel"
)

func TestAppearanceResolvesAssignedRingsOnce(t *testing.T) {
	store := citymodel.NewAppearanceStore(16)
	store.AddMaterial(citymodel.Material{Diffuse: [3]float64{1, 0, 0}})
	ring := citymodel.RingKey{PolygonIndex: 0, RingIndex: -1}
	store.AssignTheme("rgbTexture", ring)

	e := &citymodel.Entity{
		Root:       citymodel.NewObject("bldg:WallSurface", citymodel.Feature{ID: "wall-1"}),
		Appearance: store,
	}

	a := NewAppearance("rgbTexture")
	out, err := a.TransformEntity(e)
	require.NoError(t, err)
	require.Len(t, out, 1)

	mid, ok := store.ResolvedMaterial(ring)
	require.True(t, ok)
	assert.Equal(t, citymodel.MaterialID(0), mid)
}

func TestAppearanceNoAppearanceStoreIsNoop(t *testing.T) {
	a := NewAppearance("rgbTexture")
	e := &citymodel.Entity{Root: citymodel.NewObject("bldg:WallSurface", citymodel.Feature{ID: "wall-1"})}

	out, err := a.TransformEntity(e)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}
