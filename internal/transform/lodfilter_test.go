package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobilg/citystream/internal/citymodel"
)

// buildCubeAndQuadsStore builds a geometry store holding one LoD-1 cube
// (a single polygon spanning 8 shared vertices, standing in for a solid's
// one boundary face in this fixture) and one LoD-2 pair of quads (2
// polygons), matching scenario 1's shape.
func buildCubeAndQuadsStore() (*citymodel.GeometryStore, citymodel.GeometryRef, citymodel.GeometryRef) {
	store := citymodel.NewGeometryStore(4326)

	lod1 := citymodel.GeometryRef{Kind: citymodel.KindPolygon, LoD: 1, Start: store.Polygons.Len(), Length: 1}
	store.Polygons.Append(citymodel.Polygon{})

	lod2Start := store.Polygons.Len()
	store.Polygons.Append(citymodel.Polygon{})
	store.Polygons.Append(citymodel.Polygon{})
	lod2 := citymodel.GeometryRef{Kind: citymodel.KindPolygon, LoD: 2, Start: lod2Start, Length: 2}

	return store, lod1, lod2
}

func TestLoDFilterHighestKeepsOnlyLoD2(t *testing.T) {
	store, lod1, lod2 := buildCubeAndQuadsStore()

	root := citymodel.NewObject("bldg:Building", citymodel.Feature{
		ID:         "bldg-1",
		Geometries: []citymodel.GeometryRef{lod1, lod2},
	})
	e := &citymodel.Entity{Root: root, Geometry: store}

	f := NewLoDFilter(LoDHighest, 0, false)
	out, err := f.TransformEntity(e)
	require.NoError(t, err)
	require.Len(t, out, 1)

	obj, _ := out[0].RootObject()
	feature := obj.Stereotype.(citymodel.Feature)
	require.Len(t, feature.Geometries, 1)
	assert.Equal(t, citymodel.LoD(2), feature.Geometries[0].LoD)
	assert.Equal(t, 2, feature.Geometries[0].Length)
}

func TestLoDFilterLowestKeepsOnlyLoD1(t *testing.T) {
	store, lod1, lod2 := buildCubeAndQuadsStore()

	root := citymodel.NewObject("bldg:Building", citymodel.Feature{
		ID:         "bldg-1",
		Geometries: []citymodel.GeometryRef{lod1, lod2},
	})
	e := &citymodel.Entity{Root: root, Geometry: store}

	f := NewLoDFilter(LoDLowest, 0, false)
	out, err := f.TransformEntity(e)
	require.NoError(t, err)

	obj, _ := out[0].RootObject()
	feature := obj.Stereotype.(citymodel.Feature)
	require.Len(t, feature.Geometries, 1)
	assert.Equal(t, citymodel.LoD(1), feature.Geometries[0].LoD)
}

func TestLoDFilterAllKeepsEverything(t *testing.T) {
	store, lod1, lod2 := buildCubeAndQuadsStore()

	root := citymodel.NewObject("bldg:Building", citymodel.Feature{
		ID:         "bldg-1",
		Geometries: []citymodel.GeometryRef{lod1, lod2},
	})
	e := &citymodel.Entity{Root: root, Geometry: store}

	f := NewLoDFilter(LoDAll, 0, false)
	out, err := f.TransformEntity(e)
	require.NoError(t, err)

	obj, _ := out[0].RootObject()
	feature := obj.Stereotype.(citymodel.Feature)
	assert.Len(t, feature.Geometries, 2)
}

func TestLoDFilterCompactRewritesStartOffsets(t *testing.T) {
	store, lod1, lod2 := buildCubeAndQuadsStore()

	root := citymodel.NewObject("bldg:Building", citymodel.Feature{
		ID:         "bldg-1",
		Geometries: []citymodel.GeometryRef{lod1, lod2},
	})
	e := &citymodel.Entity{Root: root, Geometry: store}

	preCompactLen := store.Polygons.Len()

	f := NewLoDFilter(LoDHighest, 0, true)
	out, err := f.TransformEntity(e)
	require.NoError(t, err)

	obj, _ := out[0].RootObject()
	feature := obj.Stereotype.(citymodel.Feature)
	require.Len(t, feature.Geometries, 1)
	assert.GreaterOrEqual(t, feature.Geometries[0].Start, preCompactLen)
	assert.Equal(t, 2, feature.Geometries[0].Length)
}
