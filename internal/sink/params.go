package sink

import (
	"fmt"
	"strconv"
)

// StringParam returns params[name], or def if absent.
func StringParam(params map[string]string, name, def string) string {
	if v, ok := params[name]; ok {
		return v
	}
	return def
}

// IntParam parses params[name] as an int, or returns def if absent.
func IntParam(params map[string]string, name string, def int) (int, error) {
	v, ok := params[name]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("sink: parameter %q must be an integer: %w", name, err)
	}
	return n, nil
}

// BoolParam parses params[name] as a bool, or returns def if absent.
func BoolParam(params map[string]string, name string, def bool) (bool, error) {
	v, ok := params[name]
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("sink: parameter %q must be a boolean: %w", name, err)
	}
	return b, nil
}
