package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobilg/citystream/internal/citymodel"
)

func buildBuildingWithGeometryBearingWall() *citymodel.Entity {
	root := citymodel.NewObject("bldg:Building", citymodel.Feature{
		ID:         "bldg-1",
		Geometries: []citymodel.GeometryRef{{Kind: citymodel.KindPolygon, LoD: 2, Start: 0, Length: 1}},
	})
	wall := citymodel.NewObject("bldg:WallSurface", citymodel.Feature{
		ID:         "wall-1",
		Geometries: []citymodel.GeometryRef{{Kind: citymodel.KindPolygon, LoD: 2, Start: 1, Length: 2}},
	})
	root.SetAttr("boundedBy", wall)
	return &citymodel.Entity{Root: root}
}

func TestMergeDownRetainDescendantsKeepsWallAttributeButClearsItsGeometry(t *testing.T) {
	m := NewMergeDown(MergeDownRetainDescendants)
	e := buildBuildingWithGeometryBearingWall()

	out, err := m.TransformEntity(e)
	require.NoError(t, err)
	require.Len(t, out, 1)

	root, _ := out[0].RootObject()
	feature := root.Stereotype.(citymodel.Feature)
	require.Len(t, feature.Geometries, 2)

	v, ok := root.Attr("boundedBy")
	require.True(t, ok)
	wall, ok := v.(*citymodel.Object)
	require.True(t, ok)
	wallFeature := wall.Stereotype.(citymodel.Feature)
	assert.Empty(t, wallFeature.Geometries)
	assert.Equal(t, "bldg:WallSurface", wall.TypeName)
}

func TestMergeDownRemoveDescendantsDropsWallObject(t *testing.T) {
	m := NewMergeDown(MergeDownRemoveDescendants)
	e := buildBuildingWithGeometryBearingWall()

	out, err := m.TransformEntity(e)
	require.NoError(t, err)

	root, _ := out[0].RootObject()
	feature := root.Stereotype.(citymodel.Feature)
	require.Len(t, feature.Geometries, 2)

	v, ok := root.Attr("boundedBy")
	require.True(t, ok)
	ref, ok := v.(*citymodel.Object)
	require.True(t, ok)
	_, isRef := ref.Stereotype.(citymodel.ObjectRef)
	assert.True(t, isRef)
}

func TestMergeDownNoneIsNoop(t *testing.T) {
	m := NewMergeDown(MergeDownNone)
	e := buildBuildingWithGeometryBearingWall()

	out, err := m.TransformEntity(e)
	require.NoError(t, err)
	require.Len(t, out, 1)

	root, _ := out[0].RootObject()
	feature := root.Stereotype.(citymodel.Feature)
	assert.Len(t, feature.Geometries, 1)
}
