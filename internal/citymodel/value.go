package citymodel

import "time"

// Value is the closed sum type an Entity's attribute tree is built from.
// It is modeled as an interface with an unexported marker method rather
// than a tagged enum, the idiomatic Go shape for a small closed set of
// concrete implementations.
type Value interface {
	isValue()
}

type (
	// String is a plain text leaf.
	String string
	// Integer is a signed integer leaf.
	Integer int64
	// Double is a floating point leaf.
	Double float64
	// Boolean is a true/false leaf.
	Boolean bool
	// Point is an inline 3D point value (as opposed to a geometry ref).
	Point [3]float64
	// Measure is a numeric value with a unit string, e.g. gml:measure.
	Measure struct {
		Value float64
		Unit  string
	}
	// URI is a leaf holding a resolvable reference.
	URI string
	// Date is a calendar date with no time-of-day component.
	Date struct{ time.Time }
	// DateTime is a full timestamp.
	DateTime struct{ time.Time }
	// Null is the absence of a value, distinct from an empty String.
	Null struct{}
)

func (String) isValue()   {}
func (Integer) isValue()  {}
func (Double) isValue()   {}
func (Boolean) isValue()  {}
func (Point) isValue()    {}
func (Measure) isValue()  {}
func (URI) isValue()      {}
func (Date) isValue()     {}
func (DateTime) isValue() {}
func (Null) isValue()     {}

// Code is a coded value with its code-space and, once resolved by the
// codelist collaborator, a human-readable label. CodeValue is always the
// canonical key; Label is presentation-only.
type Code struct {
	CodeValue string
	CodeSpace string
	Label     string
}

func (Code) isValue() {}

// Array is an ordered, homogeneous-or-not list of values.
type Array struct {
	Items []Value
}

func (Array) isValue() {}

// Stereotype is the role an Object plays in the model (C2): feature, data,
// or a bare object reference.
type Stereotype interface {
	isStereotype()
}

// Feature is a top-level-or-nested city object with an id and zero or
// more geometry references.
type Feature struct {
	ID         string
	Geometries []GeometryRef
}

// Data is a plain attribute bag with no id and no geometry.
type Data struct{}

// ObjectRef is an id-only reference without its own geometry or nested
// attributes (e.g. a cross-reference by gml:id).
type ObjectRef struct {
	ID string
}

func (Feature) isStereotype()   {}
func (Data) isStereotype()      {}
func (ObjectRef) isStereotype() {}

// Object is a Value carrying a stereotype, a type name, and an ordered
// attribute map. Attribute names within one Object are unique; SetAttr
// enforces this by returning false on a duplicate key instead of
// silently overwriting, so callers can surface a SchemaViolation.
type Object struct {
	TypeName   string
	Stereotype Stereotype
	attrOrder  []string
	attrs      map[string]Value
}

func (Object) isValue() {}

// NewObject returns an empty Object of the given type and stereotype.
func NewObject(typeName string, stereotype Stereotype) *Object {
	return &Object{
		TypeName:   typeName,
		Stereotype: stereotype,
		attrs:      make(map[string]Value),
	}
}

// SetAttr adds name=value, returning false if name is already set.
func (o *Object) SetAttr(name string, v Value) bool {
	if _, exists := o.attrs[name]; exists {
		return false
	}
	o.attrs[name] = v
	o.attrOrder = append(o.attrOrder, name)
	return true
}

// ReplaceAttr overwrites name=value unconditionally, used by transforms
// (rename, jsonify) that legitimately rewrite existing attributes.
func (o *Object) ReplaceAttr(name string, v Value) {
	if _, exists := o.attrs[name]; !exists {
		o.attrOrder = append(o.attrOrder, name)
	}
	o.attrs[name] = v
}

// RenameAttr moves the value at oldName to newName, preserving position.
// No-op if oldName is absent; returns false if newName already exists
// under a different key.
func (o *Object) RenameAttr(oldName, newName string) bool {
	if oldName == newName {
		return true
	}
	v, ok := o.attrs[oldName]
	if !ok {
		return true
	}
	if _, clash := o.attrs[newName]; clash {
		return false
	}
	delete(o.attrs, oldName)
	o.attrs[newName] = v
	for i, n := range o.attrOrder {
		if n == oldName {
			o.attrOrder[i] = newName
			break
		}
	}
	return true
}

// Attr returns the value stored under name, if any.
func (o *Object) Attr(name string) (Value, bool) {
	v, ok := o.attrs[name]
	return v, ok
}

// AttrNames returns attribute names in insertion order.
func (o *Object) AttrNames() []string {
	return append([]string(nil), o.attrOrder...)
}

// Each calls fn for every attribute in insertion order.
func (o *Object) Each(fn func(name string, v Value)) {
	for _, n := range o.attrOrder {
		fn(n, o.attrs[n])
	}
}
