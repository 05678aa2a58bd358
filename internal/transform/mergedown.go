package transform

import (
	"github.com/tobilg/citystream/internal/citymodel"
	"github.com/tobilg/citystream/internal/schema"
)

// MergeDownMode selects what happens to a nested Feature's own attribute
// subtree once its geometry has been merged into the root feature.
type MergeDownMode int

const (
	MergeDownNone MergeDownMode = iota
	MergeDownRetainDescendants
	MergeDownRemoveDescendants
)

// MergeDown folds every descendant Feature's geometry references into the
// root feature's Geometries list, so a sink that only looks at the root
// entity still sees every surface. Unlike Flatten, nothing is promoted to
// a sibling top-level entity; RemoveDescendants additionally replaces each
// now geometry-less descendant Object in the attribute tree with a bare
// ObjectRef to it, while
// RetainDescendants leaves them in place (attributes intact, geometry
// references cleared to avoid double emission).
type MergeDown struct {
	Mode MergeDownMode
}

func NewMergeDown(mode MergeDownMode) *MergeDown {
	return &MergeDown{Mode: mode}
}

func (m *MergeDown) TransformSchema(s *schema.Schema) (*schema.Schema, error) {
	return s.Clone(), nil
}

func (m *MergeDown) TransformEntity(e *citymodel.Entity) ([]*citymodel.Entity, error) {
	if m.Mode == MergeDownNone {
		return []*citymodel.Entity{e}, nil
	}
	root, ok := e.RootObject()
	if !ok {
		return []*citymodel.Entity{e}, nil
	}
	feature, ok := root.Stereotype.(citymodel.Feature)
	if !ok {
		return []*citymodel.Entity{e}, nil
	}

	merged := m.mergeChildren(root)
	feature.Geometries = append(feature.Geometries, merged...)
	root.Stereotype = feature

	return []*citymodel.Entity{e}, nil
}

// mergeChildren walks obj's attribute tree, collecting every descendant
// Feature's geometry references and clearing them from the descendant so
// the geometry is attributed to the root exactly once. Under
// RemoveDescendants the descendant Object itself is replaced by a bare
// ObjectRef once its geometry and children have been absorbed.
func (m *MergeDown) mergeChildren(obj *citymodel.Object) []citymodel.GeometryRef {
	var refs []citymodel.GeometryRef
	for _, name := range obj.AttrNames() {
		v, _ := obj.Attr(name)
		child, ok := v.(*citymodel.Object)
		if !ok {
			continue
		}
		childFeature, isFeature := child.Stereotype.(citymodel.Feature)
		if !isFeature {
			refs = append(refs, m.mergeChildren(child)...)
			continue
		}

		refs = append(refs, childFeature.Geometries...)
		refs = append(refs, m.mergeChildren(child)...)

		childFeature.Geometries = nil
		child.Stereotype = childFeature

		if m.Mode == MergeDownRemoveDescendants {
			obj.ReplaceAttr(name, citymodel.NewObject(child.TypeName, citymodel.ObjectRef{ID: childFeature.ID}))
		}
	}
	return refs
}
