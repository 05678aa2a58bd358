package citymodel

// Entity is one city-object instance traveling through the pipeline: a
// root value, the base URL it was parsed relative to, and shared handles
// to the geometry and appearance stores it (and any sibling entities from
// the same top-level feature) refers into. Entities never hold a
// back-reference into the stores; the stores never reference entities.
type Entity struct {
	Root       Value
	BaseURL    string
	Geometry   *GeometryStore
	Appearance *AppearanceStore
}

// RootObject returns Root as *Object, if it is one (the common case for
// every feature/data/object-stereotyped entity).
func (e *Entity) RootObject() (*Object, bool) {
	o, ok := e.Root.(*Object)
	return o, ok
}

// FeatureID returns the id of the root object when it is a Feature, and
// whether it had one.
func (e *Entity) FeatureID() (string, bool) {
	o, ok := e.RootObject()
	if !ok {
		return "", false
	}
	f, ok := o.Stereotype.(Feature)
	if !ok {
		return "", false
	}
	return f.ID, true
}

// Clone returns a shallow copy of e with a new Root, reusing the same
// store handles. Transforms that split one entity into several (flatten)
// use this to produce promoted children sharing the parent's stores.
func (e *Entity) Clone(newRoot Value) *Entity {
	return &Entity{
		Root:       newRoot,
		BaseURL:    e.BaseURL,
		Geometry:   e.Geometry,
		Appearance: e.Appearance,
	}
}
