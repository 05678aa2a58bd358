// Command citystream streams a CityGML-family document through a chain
// of transforms into one of several output formats, per spec.md §6:
//
//	citystream --sink <id> --output <path> [--rules <rules.json>] \
//	  [--schema <schema.json>] [-o key=value]... [-i key=value]... \
//	  <input-file-pattern>...
//
// Exit code 0 on success, 1 on validation or fatal pipeline error, 130 on
// SIGINT after cooperative cancellation.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/pborman/getopt/v2"
	log "github.com/sirupsen/logrus"

	"github.com/tobilg/citystream/internal/citygml"
	"github.com/tobilg/citystream/internal/citymodel"
	"github.com/tobilg/citystream/internal/conf"
	"github.com/tobilg/citystream/internal/pipeline"
	"github.com/tobilg/citystream/internal/sink"
	sinkregistry "github.com/tobilg/citystream/internal/sink/registry"
	"github.com/tobilg/citystream/internal/source"
	citygmlsource "github.com/tobilg/citystream/internal/source/citygml"
	sourceregistry "github.com/tobilg/citystream/internal/source/registry"
	"github.com/tobilg/citystream/internal/status"
	"github.com/tobilg/citystream/internal/transform"
)

var (
	flagHelp           bool
	flagVersion        bool
	flagDebugOn        bool
	flagConfigFilename string
	flagSinkName       string
	flagSourceName     string
	flagOutput         string
	flagRulesFile      string
	flagSchemaFile     string
	flagStatusAddr     string
	flagSinkParams     = keyValueList{}
	flagSourceParams   = keyValueList{}
	flagListSinks      bool
	flagListSources    bool
)

// keyValueList accumulates repeated `-o key=value` / `-i key=value`
// flags into an ordered key=value pair list, parsed into a map once
// flags are fully read.
type keyValueList []string

func (k *keyValueList) String() string { return strings.Join(*k, ",") }
func (k *keyValueList) Set(value string, _ getopt.Option) error {
	*k = append(*k, value)
	return nil
}

func toParamMap(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		idx := strings.IndexByte(p, '=')
		if idx < 0 {
			return nil, fmt.Errorf("malformed key=value parameter: %q", p)
		}
		out[p[:idx]] = p[idx+1:]
	}
	return out, nil
}

func init() {
	initCommandOptions()
}

func initCommandOptions() {
	getopt.FlagLong(&flagHelp, "help", '?', "Show command usage")
	getopt.FlagLong(&flagVersion, "version", 'v', "Output the version information")
	getopt.FlagLong(&flagConfigFilename, "config", 'c', "", "config file name")
	getopt.FlagLong(&flagDebugOn, "debug", 'd', "Set logging level to TRACE")
	getopt.FlagLong(&flagSinkName, "sink", 0, "", "output sink name (see --list-sinks)")
	getopt.FlagLong(&flagSourceName, "source", 0, "citygml", "input source name (see --list-sources)")
	getopt.FlagLong(&flagOutput, "output", 0, "", "output path (assigned to the sink's required path parameter)")
	getopt.FlagLong(&flagRulesFile, "rules", 0, "", "rules file (rename/transform-order overrides)")
	getopt.FlagLong(&flagSchemaFile, "schema", 0, "", "schema override file")
	getopt.FlagLong(&flagStatusAddr, "status-addr", 0, "", "address to serve /health and /stats on (disabled if empty)")
	getopt.FlagLong(&flagSinkParams, "option", 'o', "sink parameter as key=value (repeatable)")
	getopt.FlagLong(&flagSourceParams, "input-option", 'i', "source parameter as key=value (repeatable)")
	getopt.FlagLong(&flagListSinks, "list-sinks", 0, "List available sinks and exit")
	getopt.FlagLong(&flagListSources, "list-sources", 0, "List available sources and exit")
}

func main() {
	os.Exit(run())
}

func run() int {
	getopt.Parse()

	if flagHelp {
		getopt.Usage()
		return 1
	}
	if flagVersion {
		fmt.Printf("%s %s\n", conf.AppConfig.Name, conf.AppConfig.Version)
		return 0
	}
	if flagListSinks {
		for _, n := range sinkregistry.Names() {
			fmt.Println(n)
		}
		return 0
	}
	if flagListSources {
		for _, n := range sourceregistry.Names() {
			fmt.Println(n)
		}
		return 0
	}

	conf.InitConfig(flagConfigFilename, flagDebugOn)
	if flagDebugOn || conf.Configuration.Debug {
		log.SetLevel(log.TraceLevel)
	}
	conf.DumpConfig()

	if flagSinkName == "" {
		log.Error("citystream: --sink is required")
		return 1
	}

	if err := applySchemaOverride(flagSchemaFile); err != nil {
		log.Errorf("citystream: %v", err)
		return 1
	}

	patterns := getopt.Args()
	if len(patterns) == 0 {
		log.Error("citystream: at least one <input-file-pattern> is required")
		return 1
	}
	paths, err := expandPatterns(patterns)
	if err != nil {
		log.Errorf("citystream: %v", err)
		return 1
	}

	sinkParams, err := toParamMap(flagSinkParams)
	if err != nil {
		log.Errorf("citystream: %v", err)
		return 1
	}
	sourceParams, err := toParamMap(flagSourceParams)
	if err != nil {
		log.Errorf("citystream: %v", err)
		return 1
	}

	sk, err := sinkregistry.New(flagSinkName, sinkParams)
	if err != nil {
		log.Errorf("citystream: %v", err)
		return 1
	}

	if flagOutput != "" {
		assignOutputPath(sk, sinkParams, flagOutput)
		// Rebuild with the output path now present, since sinks read their
		// parameters only at construction time.
		sk, err = sinkregistry.New(flagSinkName, sinkParams)
		if err != nil {
			log.Errorf("citystream: %v", err)
			return 1
		}
	}

	if err := conf.ValidateParams(sk, sinkParams); err != nil {
		log.Errorf("citystream: %v", err)
		return 1
	}

	chain, err := buildTransformChain(sk)
	if err != nil {
		log.Errorf("citystream: %v", err)
		return 1
	}

	if sk.Requirements().RequiresRenamedFields {
		hasRename := false
		for _, t := range chain {
			if _, ok := t.(*transform.Rename); ok {
				hasRename = true
			}
		}
		if !hasRename {
			log.Errorf("citystream: sink %q requires renamed fields; add \"rename\" to the rules file's transforms", flagSinkName)
			return 1
		}
	}

	src, err := sourceregistry.New(flagSourceName, paths, sourceParams)
	if err != nil {
		log.Errorf("citystream: %v", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	interrupted := false
	go func() {
		<-sigCh
		interrupted = true
		log.Warn("citystream: received interrupt, cancelling run")
		cancel()
	}()

	var statusServer *status.Server
	if flagStatusAddr != "" {
		statusServer = status.New(flagStatusAddr)
		go func() {
			if err := statusServer.ListenAndServe(ctx); err != nil {
				log.Warnf("citystream: status server: %v", err)
			}
		}()
	}

	pipelineCfg := pipeline.Config{
		Parallelism:     conf.Configuration.Pipeline.Parallelism,
		ChannelCapacity: conf.Configuration.Pipeline.ChannelCapacity,
	}

	runErr := runPipeline(ctx, pipelineCfg, src, chain, sk)
	if runErr != nil {
		log.Errorf("citystream: %v", runErr)
		if interrupted {
			return 130
		}
		return 1
	}
	return 0
}

// runPipeline hands src and sk straight to pipeline.Run: both façades'
// Run signatures already match pipeline.Source/pipeline.Sink exactly, so
// no adapter type is needed.
func runPipeline(ctx context.Context, cfg pipeline.Config, src source.Source, chain []transform.Transform, sk sink.Sink) error {
	return pipeline.Run(ctx, cfg, src, chain, sk)
}

// buildTransformChain reads the rules file (if any) to determine which
// transforms run and in what order, falling back to a sensible default
// chain otherwise, and appends a Projection transform targeting the
// sink's required EPSG if it declares one.
func buildTransformChain(sk sink.Sink) ([]transform.Transform, error) {
	rules, err := conf.LoadRules(flagRulesFile)
	if err != nil {
		return nil, err
	}

	names := rules.Transforms
	if len(names) == 0 {
		names = []string{"rename", "lodFilter", "flatten"}
	}

	chain := make([]transform.Transform, 0, len(names)+1)
	for _, name := range names {
		t, err := transformByName(name)
		if err != nil {
			return nil, err
		}
		if r, ok := t.(*transform.Rename); ok {
			if raw, ok := rules.Params["rename"]; ok {
				if err := json.Unmarshal(raw, &r.User); err != nil {
					return nil, fmt.Errorf("rules file: params.rename: %w", err)
				}
			}
		}
		chain = append(chain, t)
	}

	if epsg := sk.Requirements().RequiredProjectionEPSG; epsg != 0 {
		chain = append(chain, transform.NewProjection(epsg))
	}
	return chain, nil
}

func transformByName(name string) (transform.Transform, error) {
	switch name {
	case "rename":
		return transform.NewRename(true, nil), nil
	case "flatten":
		return transform.NewFlatten(transform.FlattenAllExceptThematicSurfaces), nil
	case "lodFilter":
		return transform.NewLoDFilter(transform.LoDHighest, citymodel.LoD(2), false), nil
	case "mergeDown":
		return transform.NewMergeDown(transform.MergeDownNone), nil
	case "jsonify":
		return transform.NewJsonify(true, false)
	case "appearance":
		return transform.NewAppearance(""), nil
	default:
		return nil, fmt.Errorf("unknown transform %q in rules file", name)
	}
}

// assignOutputPath sets --output into whichever required
// ParamFileSystemPath parameter the sink declares (sinks name it "path"
// or "dir" depending on whether they write one file or a pyramid of
// them), unless -o already supplied a value for it.
func assignOutputPath(sk sink.Sink, params map[string]string, output string) {
	for _, d := range sk.Parameters() {
		if d.Kind != sink.ParamFileSystemPath || !d.Required {
			continue
		}
		if _, ok := params[d.Name]; !ok {
			params[d.Name] = output
		}
	}
}

// applySchemaOverride merges --schema's field overrides onto
// citygmlsource.DefaultTable in place, converting each field's raw JSON
// FieldRule the same way citygml.DefaultTable's literal entries are
// shaped.
func applySchemaOverride(path string) error {
	if path == "" {
		return nil
	}
	override, err := conf.LoadSchemaOverride(path)
	if err != nil {
		return err
	}
	merged := make(citygml.TypeTable, len(citygmlsource.DefaultTable))
	for typeName, fields := range citygmlsource.DefaultTable {
		merged[typeName] = fields
	}
	for typeName, fields := range override {
		fieldRules := make(map[string]citygml.FieldRule, len(merged[typeName])+len(fields))
		for fieldName, rule := range merged[typeName] {
			fieldRules[fieldName] = rule
		}
		for fieldName, raw := range fields {
			var rule citygml.FieldRule
			if err := json.Unmarshal(raw, &rule); err != nil {
				return fmt.Errorf("schema override: type %q field %q: %w", typeName, fieldName, err)
			}
			fieldRules[fieldName] = rule
		}
		merged[typeName] = fieldRules
	}
	citygmlsource.DefaultTable = merged
	return nil
}

func expandPatterns(patterns []string) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid input pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("input pattern %q matched no files", pattern)
		}
		for _, m := range matches {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out, nil
}
