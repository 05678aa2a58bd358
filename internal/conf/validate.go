package conf

import (
	"fmt"
	"strconv"

	"github.com/tobilg/citystream/internal/sink"
)

// ValidateParams type-checks kv against sk's declared Parameters() schema
// before pipeline.Run is ever called, mirroring the teacher's
// flag-then-config validation order in main(): required parameters must
// be present, and every value must parse as its declared ParamKind.
func ValidateParams(sk sink.Sink, kv map[string]string) error {
	defs := sk.Parameters()
	byName := make(map[string]sink.ParamDef, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}

	for _, d := range defs {
		if !d.Required {
			continue
		}
		if _, ok := kv[d.Name]; !ok {
			return fmt.Errorf("conf: sink %q missing required parameter %q", sk.Info().Name, d.Name)
		}
	}

	for name, value := range kv {
		d, ok := byName[name]
		if !ok {
			return fmt.Errorf("conf: sink %q has no parameter %q", sk.Info().Name, name)
		}
		if err := checkParamKind(d, value); err != nil {
			return fmt.Errorf("conf: sink %q parameter %q: %w", sk.Info().Name, name, err)
		}
	}
	return nil
}

func checkParamKind(d sink.ParamDef, value string) error {
	switch d.Kind {
	case sink.ParamInteger:
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("expected an integer, got %q", value)
		}
	case sink.ParamDouble:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("expected a number, got %q", value)
		}
	case sink.ParamBoolean:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("expected a boolean, got %q", value)
		}
	case sink.ParamEnum:
		for _, allowed := range d.Enum {
			if value == allowed {
				return nil
			}
		}
		return fmt.Errorf("expected one of %v, got %q", d.Enum, value)
	case sink.ParamString, sink.ParamFileSystemPath:
		// any string is acceptable
	}
	return nil
}
