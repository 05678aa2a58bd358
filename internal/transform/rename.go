package transform

import (
	"github.com/tobilg/citystream/internal/citymodel"
	"github.com/tobilg/citystream/internal/schema"
)

// shapefilePreset is the built-in attribute-name rewrite for the shp sink's
// 10-byte DBF field-name limit: a handful of common CityGML attribute
// names, truncated/abbreviated to stay unique within 10 bytes.
var shapefilePreset = map[string]string{
	"measuredHeight":      "HEIGHT",
	"storeysAboveGround":  "STOREYS_AG",
	"storeysBelowGround":  "STOREYS_BG",
	"yearOfConstruction":  "YEAR_BUILT",
	"function":            "FUNCTION",
	"usage":               "USAGE",
	"class":               "CLASS",
}

// Rename rewrites attribute keys recursively through every Object in an
// entity's tree. User-supplied mappings take precedence over Preset on
// conflict.
type Rename struct {
	Preset map[string]string
	User   map[string]string
}

// NewRename builds a Rename transform. usePreset selects the built-in
// shapefilePreset; user overrides/extends it.
func NewRename(usePreset bool, user map[string]string) *Rename {
	r := &Rename{User: user}
	if usePreset {
		r.Preset = shapefilePreset
	}
	return r
}

func (r *Rename) resolve(name string) (string, bool) {
	if to, ok := r.User[name]; ok {
		return to, true
	}
	if to, ok := r.Preset[name]; ok {
		return to, true
	}
	return "", false
}

func (r *Rename) TransformSchema(s *schema.Schema) (*schema.Schema, error) {
	out := s.Clone()
	for typeName, td := range out.Types {
		for i, attr := range td.Attributes {
			if to, ok := r.resolve(attr.Name); ok {
				td.Attributes[i].Name = to
			}
		}
		out.Types[typeName] = td
	}
	return out, nil
}

func (r *Rename) TransformEntity(e *citymodel.Entity) ([]*citymodel.Entity, error) {
	if obj, ok := e.RootObject(); ok {
		r.renameObject(obj)
	}
	return []*citymodel.Entity{e}, nil
}

func (r *Rename) renameObject(obj *citymodel.Object) {
	for _, name := range obj.AttrNames() {
		if to, ok := r.resolve(name); ok {
			obj.RenameAttr(name, to)
		}
	}
	obj.Each(func(_ string, v citymodel.Value) {
		r.renameValue(v)
	})
}

func (r *Rename) renameValue(v citymodel.Value) {
	switch val := v.(type) {
	case *citymodel.Object:
		r.renameObject(val)
	case citymodel.Array:
		for _, item := range val.Items {
			r.renameValue(item)
		}
	}
}
