// Package citygml wraps internal/citygml.Parser as a pipeline source: it
// opens each already-glob-expanded input path in turn, decoding one
// CityGML document per file and forwarding every completed top-level
// feature as a parcel. It is the only built-in source.
package citygml

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/tobilg/citystream/internal/citygml"
	"github.com/tobilg/citystream/internal/citymodel"
	"github.com/tobilg/citystream/internal/codelist"
	"github.com/tobilg/citystream/internal/pipeline"
	"github.com/tobilg/citystream/internal/schema"
	"github.com/tobilg/citystream/internal/source"
)

// DefaultTable is the type table New uses when no schema override was
// applied. The CLI overwrites this package variable (before constructing
// any source, never concurrently with a running one) when --schema
// names a file, merging it over citygml.DefaultTable.
var DefaultTable = citygml.DefaultTable

type Source struct {
	paths      []string
	sourceEPSG int
	cacheSize  int
	table      citygml.TypeTable
	parser     *citygml.Parser
}

// New constructs the citygml source over paths, already expanded from
// the CLI's glob patterns. Recognized parameters: "srs-epsg" (default
// 6697, JGD2011 geographic longitude/latitude with ellipsoidal height)
// and "codelist-cache-size" (default 256).
func New(paths []string, params map[string]string) (source.Source, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("citygml: no input files")
	}
	srsEPSG, err := source.IntParam(params, "srs-epsg", 6697)
	if err != nil {
		return nil, err
	}
	cacheSize, err := source.IntParam(params, "codelist-cache-size", 256)
	if err != nil {
		return nil, err
	}
	return &Source{
		paths:      paths,
		sourceEPSG: srsEPSG,
		cacheSize:  cacheSize,
		table:      DefaultTable,
	}, nil
}

func (s *Source) Info() source.Info {
	return source.Info{Name: "citygml", Description: "CityGML/CityJSON-family streaming XML source"}
}

func (s *Source) Parameters() []source.ParamDef {
	return []source.ParamDef{
		{Name: "srs-epsg", Kind: source.ParamInteger, Default: "6697"},
		{Name: "codelist-cache-size", Kind: source.ParamInteger, Default: "256"},
	}
}

// Schema returns the schema accumulated by the underlying parser so far;
// callers must have started Run (or let it complete) for this to be
// non-empty, matching citygml.Parser's own lazy accumulation.
func (s *Source) Schema() *schema.Schema {
	if s.parser == nil {
		return schema.New()
	}
	return s.parser.Schema()
}

func (s *Source) Run(ctx context.Context, out chan<- pipeline.Parcel, feedback chan<- pipeline.FeedbackMessage) error {
	entityCount := 0
	s.parser = citygml.NewParser(s.table, func(e *citymodel.Entity) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- pipeline.Parcel{Entity: e}:
			entityCount++
			return nil
		}
	})
	s.parser.SourceEPSG = s.sourceEPSG
	s.parser.CacheSize = s.cacheSize
	resolver, err := codelist.NewCachingResolver(codelist.NoopResolver{}, s.cacheSize)
	if err != nil {
		return fmt.Errorf("citygml: constructing codelist cache: %w", err)
	}
	s.parser.Codelist = resolver
	s.parser.OnError = func(err error) bool {
		feedback <- pipeline.FeedbackMessage{Severity: pipeline.SeverityWarn, Message: err.Error(), Err: err}
		return true
	}

	for _, path := range s.paths {
		if err := s.parseFile(path); err != nil {
			feedback <- pipeline.FeedbackMessage{Severity: pipeline.SeverityFatal, Message: fmt.Sprintf("citygml: parsing %s", path), Err: err}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	log.Infof("citygml: parsed %d features from %d files", entityCount, len(s.paths))
	return nil
}

func (s *Source) parseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("citygml: opening %s: %w", path, err)
	}
	defer f.Close()
	s.parser.BaseURL = path
	return s.parser.Parse(f)
}

var _ source.Source = (*Source)(nil)
