// Package registry assembles the immutable, built-in sink catalog. It is
// the only package that imports every concrete sink subpackage alongside
// the internal/sink façade, so neither the façade nor any concrete sink
// needs to know about the others — "no late registration" per spec.md
// §9's design note, adapted from the teacher's single data.Catalog
// singleton (internal/data/catalog_db.go's CatDBInstance).
package registry

import (
	"fmt"
	"sort"

	"github.com/tobilg/citystream/internal/sink"
	"github.com/tobilg/citystream/internal/sink/czml"
	"github.com/tobilg/citystream/internal/sink/geojson"
	"github.com/tobilg/citystream/internal/sink/gpkg"
	"github.com/tobilg/citystream/internal/sink/kml"
	"github.com/tobilg/citystream/internal/sink/mvt"
	"github.com/tobilg/citystream/internal/sink/ply"
	"github.com/tobilg/citystream/internal/sink/shp"
	"github.com/tobilg/citystream/internal/sink/tiles3d"
)

var builtins = map[string]sink.Factory{
	"mvt":     mvt.New,
	"tiles3d": tiles3d.New,
	"gpkg":    gpkg.New,
	"geojson": geojson.New,
	"kml":     kml.New,
	"ply":     ply.New,
	"shp":     shp.New,
	"czml":    czml.New,
}

// Names returns every registered sink name, sorted, for --list-sinks.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New constructs the named sink with the given `-o key=value` parameters.
func New(name string, params map[string]string) (sink.Sink, error) {
	factory, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("sink: unknown sink %q (available: %v)", name, Names())
	}
	return factory(params)
}
