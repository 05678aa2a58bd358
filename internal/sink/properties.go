package sink

import "github.com/tobilg/citystream/internal/citymodel"

// Properties flattens obj's scalar (non-Object, non-Array) attributes
// into a plain map, the shape every tabular/property-bag sink format
// (GeoJSON properties, MVT tags, GeoPackage columns) needs. Nested
// Object/Array values are skipped — a sink wanting those flattened first
// runs the jsonify transform, which is exactly what it exists for.
func Properties(obj *citymodel.Object) map[string]any {
	out := make(map[string]any)
	obj.Each(func(name string, v citymodel.Value) {
		switch val := v.(type) {
		case citymodel.String:
			out[name] = string(val)
		case citymodel.Integer:
			out[name] = int64(val)
		case citymodel.Double:
			out[name] = float64(val)
		case citymodel.Boolean:
			out[name] = bool(val)
		case citymodel.URI:
			out[name] = string(val)
		case citymodel.Code:
			if val.Label != "" {
				out[name] = val.Label
			} else {
				out[name] = val.CodeValue
			}
		case citymodel.Measure:
			out[name] = val.Value
		}
	})
	return out
}
