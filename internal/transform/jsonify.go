package transform

import (
	"fmt"
	"sort"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/tobilg/citystream/internal/citymodel"
	"github.com/tobilg/citystream/internal/schema"
)

// JSONMode selects how nested Array/Object attribute values are collapsed
// to flat, tabular-sink-friendly leaves. Exactly one of Jsonify/DotNotation
// may be active; NewJsonify rejects configuring both.
type JSONMode int

const (
	JSONNone JSONMode = iota
	Jsonify
	DotNotation
)

// Jsonify collapses every nested Array/Object attribute value on an
// entity's root object to a single leaf: either a JSON-encoded String, or
// a set of dot-separated flat keys (risk.0.rank). It does not recurse into
// children reached through a Feature/Data nested Object reference chain
// beyond the attributes it flattens — those remain Objects, to be handled
// by flatten/mergedown earlier in the chain.
type Jsonify struct {
	Mode JSONMode
}

// NewJsonify validates that at most one of jsonify/dotNotation is true and
// returns the configured transform.
func NewJsonify(jsonify, dotNotation bool) (*Jsonify, error) {
	if jsonify && dotNotation {
		return nil, fmt.Errorf("transform: jsonify and dotNotation are mutually exclusive")
	}
	mode := JSONNone
	switch {
	case jsonify:
		mode = Jsonify
	case dotNotation:
		mode = DotNotation
	}
	return &Jsonify{Mode: mode}, nil
}

func (j *Jsonify) TransformSchema(s *schema.Schema) (*schema.Schema, error) {
	out := s.Clone()
	if j.Mode == JSONNone {
		return out, nil
	}
	for name, td := range out.Types {
		if td.Kind != schema.DefFeature && td.Kind != schema.DefData {
			continue
		}
		for i, attr := range td.Attributes {
			if j.Mode == Jsonify {
				td.Attributes[i] = schema.AttrDef{Name: attr.Name, Type: schema.TypeRef{Kind: schema.RefJSONString}}
			}
			// DotNotation expands one attribute into many keys only known
			// at entity time, so the declared schema keeps the original
			// name as an advisory parent key; sinks that honor dot
			// notation discover the expanded leaves per-record.
		}
		out.Types[name] = td
	}
	return out, nil
}

func (j *Jsonify) TransformEntity(e *citymodel.Entity) ([]*citymodel.Entity, error) {
	if j.Mode == JSONNone {
		return []*citymodel.Entity{e}, nil
	}
	obj, ok := e.RootObject()
	if !ok {
		return []*citymodel.Entity{e}, nil
	}

	for _, name := range obj.AttrNames() {
		v, _ := obj.Attr(name)
		if !needsCollapse(v) {
			continue
		}
		switch j.Mode {
		case Jsonify:
			encoded, err := json.Marshal(toPlain(v))
			if err != nil {
				return nil, fmt.Errorf("transform: jsonify %q: %w", name, err)
			}
			obj.ReplaceAttr(name, citymodel.String(encoded))
		case DotNotation:
			flat := map[string]citymodel.Value{}
			flattenDot(name, v, flat)
			keys := make([]string, 0, len(flat))
			for k := range flat {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			// The original attribute slot becomes the first dot-leaf's
			// value is never reused: it is neutralized, and every leaf
			// (including any top-level scalar, which flattenDot leaves
			// keyed under name itself) is written as its own attribute.
			obj.ReplaceAttr(name, citymodel.Null{})
			for _, k := range keys {
				if k == name {
					obj.ReplaceAttr(k, flat[k])
					continue
				}
				obj.SetAttr(k, flat[k])
			}
		}
	}
	return []*citymodel.Entity{e}, nil
}

func needsCollapse(v citymodel.Value) bool {
	switch v.(type) {
	case *citymodel.Object, citymodel.Array:
		return true
	default:
		return false
	}
}

// toPlain converts a citymodel.Value tree into plain Go values the JSON
// encoder understands, dropping Stereotype/type-name bookkeeping.
func toPlain(v citymodel.Value) any {
	switch val := v.(type) {
	case citymodel.String:
		return string(val)
	case citymodel.Integer:
		return int64(val)
	case citymodel.Double:
		return float64(val)
	case citymodel.Boolean:
		return bool(val)
	case citymodel.URI:
		return string(val)
	case citymodel.Measure:
		return map[string]any{"value": val.Value, "unit": val.Unit}
	case citymodel.Code:
		return map[string]any{"code": val.CodeValue, "codeSpace": val.CodeSpace, "label": val.Label}
	case citymodel.Point:
		return []float64{val[0], val[1], val[2]}
	case citymodel.Null:
		return nil
	case citymodel.Array:
		items := make([]any, len(val.Items))
		for i, item := range val.Items {
			items[i] = toPlain(item)
		}
		return items
	case *citymodel.Object:
		out := map[string]any{}
		val.Each(func(name string, attr citymodel.Value) {
			out[name] = toPlain(attr)
		})
		return out
	default:
		return nil
	}
}

// flattenDot recursively writes prefix.key / prefix.idx leaves for v into
// out, matching the risk.0.rank shape from the spec's worked example.
func flattenDot(prefix string, v citymodel.Value, out map[string]citymodel.Value) {
	switch val := v.(type) {
	case citymodel.Array:
		for i, item := range val.Items {
			flattenDot(prefix+"."+strconv.Itoa(i), item, out)
		}
	case *citymodel.Object:
		val.Each(func(name string, attr citymodel.Value) {
			flattenDot(prefix+"."+name, attr, out)
		})
	default:
		out[prefix] = v
	}
}
