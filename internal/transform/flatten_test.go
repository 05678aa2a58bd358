package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobilg/citystream/internal/citymodel"
)

// buildBuildingWithWallsAndNestedBuilding constructs the fixture from
// scenario 2: a Building with two WallSurface children and one nested
// Building child.
func buildBuildingWithWallsAndNestedBuilding() *citymodel.Entity {
	root := citymodel.NewObject("bldg:Building", citymodel.Feature{ID: "bldg-1"})

	wall1 := citymodel.NewObject("bldg:WallSurface", citymodel.Feature{ID: "wall-1"})
	wall2 := citymodel.NewObject("bldg:WallSurface", citymodel.Feature{ID: "wall-2"})
	nested := citymodel.NewObject("bldg:Building", citymodel.Feature{ID: "bldg-2"})

	root.SetAttr("boundedBy1", wall1)
	root.SetAttr("boundedBy2", wall2)
	root.SetAttr("consistsOfBuildingPart", nested)

	return &citymodel.Entity{Root: root}
}

func TestFlattenAllExceptThematicSurfacesKeepsWallsPromotesBuilding(t *testing.T) {
	f := NewFlatten(FlattenAllExceptThematicSurfaces)
	e := buildBuildingWithWallsAndNestedBuilding()

	out, err := f.TransformEntity(e)
	require.NoError(t, err)
	require.Len(t, out, 2, "expected root Building plus one promoted nested Building")

	root, ok := out[0].RootObject()
	require.True(t, ok)
	assert.Equal(t, "bldg:Building", root.TypeName)

	// Walls stay nested as attributes of their parent.
	for _, name := range []string{"boundedBy1", "boundedBy2"} {
		v, ok := root.Attr(name)
		require.True(t, ok)
		wall, ok := v.(*citymodel.Object)
		require.True(t, ok)
		assert.Equal(t, "bldg:WallSurface", wall.TypeName)
		_, isFeature := wall.Stereotype.(citymodel.Feature)
		assert.True(t, isFeature)
	}

	promoted, ok := out[1].RootObject()
	require.True(t, ok)
	assert.Equal(t, "bldg:Building", promoted.TypeName)
	parentID, ok := promoted.Attr(parentIDAttr)
	require.True(t, ok)
	assert.Equal(t, citymodel.String("bldg-1"), parentID)
	parentType, ok := promoted.Attr(parentTypeAttr)
	require.True(t, ok)
	assert.Equal(t, citymodel.String("bldg:Building"), parentType)

	// The root's reference to the nested building is now a bare ObjectRef.
	v, ok := root.Attr("consistsOfBuildingPart")
	require.True(t, ok)
	ref, ok := v.(*citymodel.Object)
	require.True(t, ok)
	_, isRef := ref.Stereotype.(citymodel.ObjectRef)
	assert.True(t, isRef)
}

func TestFlattenAllPromotesThematicSurfacesToo(t *testing.T) {
	f := NewFlatten(FlattenAll)
	e := buildBuildingWithWallsAndNestedBuilding()

	out, err := f.TransformEntity(e)
	require.NoError(t, err)
	assert.Len(t, out, 4, "root Building + 2 walls + nested Building")
}

func TestFlattenNoneIsNoop(t *testing.T) {
	f := NewFlatten(FlattenNone)
	e := buildBuildingWithWallsAndNestedBuilding()

	out, err := f.TransformEntity(e)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestIsThematicSurfaceType(t *testing.T) {
	cases := map[string]bool{
		"bldg:WallSurface":  true,
		"bldg:RoofSurface":  true,
		"bldg:Window":       true,
		"bldg:Door":         true,
		"tran:TrafficArea":  true,
		"bldg:Building":     false,
		"veg:PlantCover":     false,
	}
	for typeName, want := range cases {
		assert.Equal(t, want, IsThematicSurfaceType(typeName), typeName)
	}
}
