// Package source declares the source façade, mirroring internal/sink:
// the contract every built-in reader satisfies, independent of any one
// source format. internal/source/citygml is the only built-in source;
// internal/source/registry assembles it (and any future source) into
// the immutable registry, keeping this package free of any concrete
// source import.
package source

import (
	"context"

	"github.com/tobilg/citystream/internal/pipeline"
	"github.com/tobilg/citystream/internal/schema"
)

// ParamKind mirrors sink.ParamKind for a source's own `-i key=value`
// parameters (e.g. citygml's source EPSG, codelist cache size).
type ParamKind int

const (
	ParamString ParamKind = iota
	ParamInteger
	ParamDouble
	ParamBoolean
	ParamFileSystemPath
	ParamEnum
)

// ParamDef declares one `-i key=value` parameter a source accepts.
type ParamDef struct {
	Name     string
	Kind     ParamKind
	Enum     []string
	Required bool
	Default  string
}

// Info identifies a source for the CLI's --list-sources output.
type Info struct {
	Name        string
	Description string
}

// Source produces parcels onto out until every input is exhausted or ctx
// is cancelled, declaring the schema it has accumulated so far via
// Schema. Any Source also satisfies pipeline.Source, since their method
// sets match exactly.
type Source interface {
	Schema() *schema.Schema
	Run(ctx context.Context, out chan<- pipeline.Parcel, feedback chan<- pipeline.FeedbackMessage) error
}

// Factory constructs a Source from its already-glob-expanded input file
// paths and its `-i key=value` parameters. conf.ValidateParams checks
// sink parameters only; a source parses and checks its own.
type Factory func(paths []string, params map[string]string) (Source, error)

// Params is implemented by sources that want to advertise their
// `-i key=value` schema; optional, since a source with no configurable
// parameters need not implement it.
type Params interface {
	Parameters() []ParamDef
}
