package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobilg/citystream/internal/citymodel"
)

func TestNewJsonifyRejectsBothModes(t *testing.T) {
	_, err := NewJsonify(true, true)
	assert.Error(t, err)
}

func buildRiskArrayEntity() *citymodel.Entity {
	root := citymodel.NewObject("bldg:Building", citymodel.Feature{ID: "b-1"})
	rank1 := citymodel.NewObject("", citymodel.Data{})
	rank1.SetAttr("rank", citymodel.Integer(1))
	rank2 := citymodel.NewObject("", citymodel.Data{})
	rank2.SetAttr("rank", citymodel.Integer(2))
	root.SetAttr("risk", citymodel.Array{Items: []citymodel.Value{rank1, rank2}})
	root.SetAttr("name", citymodel.String("plain"))
	return &citymodel.Entity{Root: root}
}

func TestJsonifyEncodesNestedArrayAsJSONString(t *testing.T) {
	j, err := NewJsonify(true, false)
	require.NoError(t, err)

	e := buildRiskArrayEntity()
	out, err := j.TransformEntity(e)
	require.NoError(t, err)
	require.Len(t, out, 1)

	root, _ := out[0].RootObject()
	v, ok := root.Attr("risk")
	require.True(t, ok)
	s, ok := v.(citymodel.String)
	require.True(t, ok)
	assert.Contains(t, string(s), `"rank":1`)

	// Scalar attributes are left untouched.
	name, _ := root.Attr("name")
	assert.Equal(t, citymodel.String("plain"), name)
}

func TestJsonifyDotNotationFlattensToIndexedKeys(t *testing.T) {
	j, err := NewJsonify(false, true)
	require.NoError(t, err)

	e := buildRiskArrayEntity()
	out, err := j.TransformEntity(e)
	require.NoError(t, err)

	root, _ := out[0].RootObject()
	v, ok := root.Attr("risk.0.rank")
	require.True(t, ok)
	assert.Equal(t, citymodel.Integer(1), v)

	v, ok = root.Attr("risk.1.rank")
	require.True(t, ok)
	assert.Equal(t, citymodel.Integer(2), v)
}
