package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobilg/citystream/internal/citygml"
	"github.com/tobilg/citystream/internal/citymodel"
	"github.com/tobilg/citystream/internal/schema"
)

func TestProjectionReprojectsEveryVertex(t *testing.T) {
	store := citymodel.NewGeometryStore(4326)
	idx := store.Vertices.Insert(citymodel.Vertex{139.767, 35.681, 10})

	root := citymodel.NewObject("bldg:Building", citymodel.Feature{ID: "b-1"})
	e := &citymodel.Entity{Root: root, Geometry: store}

	p := NewProjection(3857)
	out, err := p.TransformEntity(e)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, 3857, store.EPSG)
	v := store.Vertices.At(idx)
	assert.NotEqual(t, 139.767, v[0])
	assert.NotEqual(t, 35.681, v[1])
	assert.Equal(t, float64(10), v[2])
}

func TestProjectionSameEPSGIsNoop(t *testing.T) {
	store := citymodel.NewGeometryStore(4326)
	idx := store.Vertices.Insert(citymodel.Vertex{139.767, 35.681, 10})

	e := &citymodel.Entity{Root: citymodel.NewObject("bldg:Building", citymodel.Feature{ID: "b-1"}), Geometry: store}

	p := NewProjection(4326)
	_, err := p.TransformEntity(e)
	require.NoError(t, err)

	v := store.Vertices.At(idx)
	assert.Equal(t, citymodel.Vertex{139.767, 35.681, 10}, v)
}

func TestProjectionUnsupportedCRSReturnsTaggedError(t *testing.T) {
	store := citymodel.NewGeometryStore(1234) // unregistered source CRS
	e := &citymodel.Entity{Root: citymodel.NewObject("bldg:Building", citymodel.Feature{ID: "b-1"}), Geometry: store}

	p := NewProjection(4326)
	_, err := p.TransformEntity(e)
	require.Error(t, err)

	var cgErr *citygml.Error
	require.ErrorAs(t, err, &cgErr)
	assert.Equal(t, citygml.KindUnsupportedCRS, cgErr.Kind)
}

func TestProjectionTransformSchemaSetsOutputEPSG(t *testing.T) {
	p := NewProjection(3857)
	out, err := p.TransformSchema(schema.New())
	require.NoError(t, err)
	require.NotNil(t, out.OutputEPSG)
	assert.Equal(t, 3857, *out.OutputEPSG)
}
