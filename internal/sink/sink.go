// Package sink declares the sink façade (C10): the contract every
// built-in writer satisfies, independent of any one sink's storage
// format. Concrete sinks live in subpackages (mvt, tiles3d, gpkg,
// geojson, kml, ply, shp, czml); internal/sink/registry assembles them
// into the immutable registry so this package itself never imports a
// concrete sink (which would cycle back here for the façade types).
package sink

import (
	"context"

	"github.com/tobilg/citystream/internal/pipeline"
	"github.com/tobilg/citystream/internal/schema"
)

// ParamKind is the closed set of value kinds a sink parameter can take.
type ParamKind int

const (
	ParamString ParamKind = iota
	ParamInteger
	ParamDouble
	ParamBoolean
	ParamFileSystemPath
	ParamEnum
)

// ParamDef declares one `-o key=value` parameter a sink accepts.
type ParamDef struct {
	Name     string
	Kind     ParamKind
	Enum     []string // valid values when Kind == ParamEnum
	Required bool
	Default  string
}

// Info identifies a sink for the CLI's --list-sinks output and error
// messages.
type Info struct {
	Name        string
	Description string
}

// Requirements declares preconditions on the transform chain a sink
// needs before it can run correctly. The CLI checks RequiresRenamedFields
// once the transform chain is built and refuses to start the run without
// a Rename transform; RequiredProjectionEPSG makes the CLI append a
// Projection transform to the chain.
type Requirements struct {
	// RequiredProjectionEPSG is the EPSG code the geometry store must
	// already be projected to, or 0 if the sink accepts any CRS.
	RequiredProjectionEPSG int
	// RequiresRenamedFields is true for sinks whose storage format
	// constrains attribute names (e.g. Shapefile's 10-byte DBF limit),
	// requiring a Rename transform earlier in the chain.
	RequiresRenamedFields bool
}

// Sink is one output format writer. Run consumes parcels from in until
// the channel closes or ctx is cancelled; sch is the final, frozen
// schema after every transform has run. Any Sink also satisfies
// pipeline.Sink, since their Run signatures match exactly — the pipeline
// runtime never imports this package, only the narrower interface it
// declares itself.
type Sink interface {
	Info() Info
	Parameters() []ParamDef
	Requirements() Requirements
	Run(ctx context.Context, in <-chan pipeline.Parcel, feedback chan<- pipeline.FeedbackMessage, sch *schema.Schema) error
}

// Factory constructs a Sink from its `-o key=value` parameters. The CLI
// calls it before conf.ValidateParams checks those parameters against
// the constructed sink's Parameters().
type Factory func(params map[string]string) (Sink, error)
