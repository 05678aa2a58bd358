package conf

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// PipelineConfig mirrors internal/pipeline.Config's tunables so they can be
// set from a config file or environment, not only flags.
type PipelineConfig struct {
	Parallelism     int
	ChannelCapacity int
}

// SourceConfig holds the parameters passed to the chosen source.
type SourceConfig struct {
	Name       string
	Params     map[string]string
	CRS        int
}

// SinkConfig holds the parameters passed to the chosen sink.
type SinkConfig struct {
	Name       string
	Params     map[string]string
	OutputPath string
}

// CacheConfig sizes the LRU caches shared across the run (codelist
// resolution, appearance/material lookups).
type CacheConfig struct {
	CodelistSize   int
	AppearanceSize int
}

// Config is the top-level, package-level configuration struct-of-structs,
// unmarshaled by viper from (in increasing precedence) defaults, a config
// file, and CITYSTREAM_-prefixed environment variables.
type Config struct {
	Pipeline PipelineConfig
	Source   SourceConfig
	Sink     SinkConfig
	Cache    CacheConfig
	Debug    bool
	RulesFile  string
	SchemaFile string
	StatusAddr string
}

// Configuration is the process-wide configuration value, populated by
// InitConfig before pipeline.Run is called.
var Configuration = Config{}

// InitConfig loads defaults, then a config file at filename (if non-empty),
// then CITYSTREAM_-prefixed environment variables, into Configuration.
// env values always win, matching the teacher's override order.
func InitConfig(filename string, debug bool) {
	v := viper.New()

	v.SetDefault("Pipeline.Parallelism", 0) // 0 means runtime.NumCPU()
	v.SetDefault("Pipeline.ChannelCapacity", 10000)
	v.SetDefault("Cache.CodelistSize", 4096)
	v.SetDefault("Cache.AppearanceSize", 4096)

	if filename != "" {
		v.SetConfigFile(filename)
		if err := v.ReadInConfig(); err != nil {
			log.Warnf("conf: could not read config file %s: %v", filename, err)
		}
	}

	v.SetEnvPrefix(AppConfig.EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.Unmarshal(&Configuration); err != nil {
		log.Warnf("conf: could not unmarshal configuration: %v", err)
	}

	if debug {
		Configuration.Debug = true
	}
}

// DumpConfig logs the effective configuration at Debug level, matching the
// teacher's startup diagnostics.
func DumpConfig() {
	log.Debugf("Configuration: %+v", Configuration)
}

// LoadRules reads a JSON rules file into an ordered transform-name list
// plus per-transform parameter blobs, the shape recovered from the
// original Rust implementation's rules file ("transforms" key).
type Rules struct {
	Transforms []string                   `json:"transforms"`
	Params     map[string]json.RawMessage `json:"params"`
}

func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return &Rules{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("conf: reading rules file: %w", err)
	}
	var r Rules
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("conf: parsing rules file: %w", err)
	}
	return &r, nil
}

// LoadSchemaOverride reads a JSON schema-override file into a citygml
// TypeTable fragment merged over DefaultTable by the caller.
func LoadSchemaOverride(path string) (map[string]map[string]json.RawMessage, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("conf: reading schema override file: %w", err)
	}
	var out map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("conf: parsing schema override file: %w", err)
	}
	return out, nil
}
