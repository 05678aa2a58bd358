package transform

import (
	"strings"

	"github.com/tobilg/citystream/internal/citymodel"
	"github.com/tobilg/citystream/internal/schema"
)

// FlattenPolicy selects which nested features get promoted to top-level
// siblings of their parent.
type FlattenPolicy int

const (
	FlattenNone FlattenPolicy = iota
	FlattenAllExceptThematicSurfaces
	FlattenAll
)

const (
	parentIDAttr   = "parentId"
	parentTypeAttr = "parentType"
)

// Flatten promotes nested Feature-stereotyped Objects found anywhere in an
// entity's attribute tree to their own top-level Entity, tagging each
// promoted child with parentId/parentType so the relationship survives
// the flattening. Thematic surfaces (boundary surfaces and their
// openings) are exempt under FlattenAllExceptThematicSurfaces: they stay
// nested, since most sinks expect them attached to their parent solid.
type Flatten struct {
	Policy FlattenPolicy
}

func NewFlatten(policy FlattenPolicy) *Flatten {
	return &Flatten{Policy: policy}
}

// IsThematicSurfaceType reports whether typeName names a CityGML thematic
// boundary surface or opening: the suffixes Surface/Window/Door, or the
// TrafficArea substring used by the transportation module's surfaces.
func IsThematicSurfaceType(typeName string) bool {
	_, local, _ := splitTypeName(typeName)
	if strings.HasSuffix(local, "Surface") || strings.HasSuffix(local, "Window") || strings.HasSuffix(local, "Door") {
		return true
	}
	return strings.Contains(local, "TrafficArea")
}

func splitTypeName(typeName string) (prefix, local string, ok bool) {
	if i := strings.IndexByte(typeName, ':'); i >= 0 {
		return typeName[:i], typeName[i+1:], true
	}
	return "", typeName, false
}

func (f *Flatten) TransformSchema(s *schema.Schema) (*schema.Schema, error) {
	if f.Policy == FlattenNone {
		return s.Clone(), nil
	}
	out := s.Clone()
	for name, td := range out.Types {
		if td.Kind != schema.DefFeature {
			continue
		}
		out.AddAttribute(name, schema.AttrDef{Name: parentIDAttr, Type: schema.TypeRef{Kind: schema.RefString}})
		out.AddAttribute(name, schema.AttrDef{Name: parentTypeAttr, Type: schema.TypeRef{Kind: schema.RefString}})
	}
	return out, nil
}

func (f *Flatten) TransformEntity(e *citymodel.Entity) ([]*citymodel.Entity, error) {
	if f.Policy == FlattenNone {
		return []*citymodel.Entity{e}, nil
	}
	root, ok := e.RootObject()
	if !ok {
		return []*citymodel.Entity{e}, nil
	}

	rootID, _ := e.FeatureID()
	var promoted []*citymodel.Entity
	f.flattenChildren(root, rootID, root.TypeName, e, &promoted)

	return append([]*citymodel.Entity{e}, promoted...), nil
}

// flattenChildren walks obj's attribute tree looking for nested Feature
// Objects to promote. Promotion happens in place: the attribute slot that
// held the nested Object is left as an ObjectRef pointing at its id, and
// the Object itself becomes a new top-level Entity in *out.
func (f *Flatten) flattenChildren(obj *citymodel.Object, parentID, parentType string, e *citymodel.Entity, out *[]*citymodel.Entity) {
	for _, name := range obj.AttrNames() {
		v, _ := obj.Attr(name)
		child, ok := v.(*citymodel.Object)
		if !ok {
			continue
		}
		childFeature, isFeature := child.Stereotype.(citymodel.Feature)
		if !isFeature {
			f.flattenChildren(child, parentID, parentType, e, out)
			continue
		}

		exempt := f.Policy == FlattenAllExceptThematicSurfaces && IsThematicSurfaceType(child.TypeName)
		if exempt {
			f.flattenChildren(child, parentID, parentType, e, out)
			continue
		}

		child.ReplaceAttr(parentIDAttr, citymodel.String(parentID))
		child.ReplaceAttr(parentTypeAttr, citymodel.String(parentType))
		*out = append(*out, e.Clone(child))

		ref := citymodel.NewObject(child.TypeName, citymodel.ObjectRef{ID: childFeature.ID})
		obj.ReplaceAttr(name, ref)

		f.flattenChildren(child, childFeature.ID, child.TypeName, e, out)
	}
}
