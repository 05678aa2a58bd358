// Package registry assembles the immutable, built-in source catalog,
// mirroring internal/sink/registry: the only package importing both the
// internal/source façade and every concrete source subpackage.
package registry

import (
	"fmt"
	"sort"

	"github.com/tobilg/citystream/internal/source"
	"github.com/tobilg/citystream/internal/source/citygml"
)

var builtins = map[string]source.Factory{
	"citygml": citygml.New,
}

// Names returns every registered source name, sorted, for --list-sources.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New constructs the named source over paths and its `-i key=value`
// parameters.
func New(name string, paths []string, params map[string]string) (source.Source, error) {
	factory, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("source: unknown source %q (available: %v)", name, Names())
	}
	return factory(paths, params)
}
