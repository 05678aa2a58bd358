package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func clearConfigEnvVars() {
	envVars := []string{
		"CITYSTREAM_PIPELINE_PARALLELISM",
		"CITYSTREAM_PIPELINE_CHANNELCAPACITY",
		"CITYSTREAM_CACHE_CODELISTSIZE",
		"CITYSTREAM_CACHE_APPEARANCESIZE",
		"CITYSTREAM_SOURCE_CRS",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
	Configuration = Config{}
}

func TestInitConfigDefaults(t *testing.T) {
	clearConfigEnvVars()
	defer clearConfigEnvVars()

	viper.Reset()
	InitConfig("", false)

	require.Equal(t, 0, Configuration.Pipeline.Parallelism)
	require.Equal(t, 10000, Configuration.Pipeline.ChannelCapacity)
	require.Equal(t, 4096, Configuration.Cache.CodelistSize)
	require.Equal(t, 4096, Configuration.Cache.AppearanceSize)
	require.False(t, Configuration.Debug)
}

func TestInitConfigEnvironmentOverridesDefault(t *testing.T) {
	clearConfigEnvVars()
	defer clearConfigEnvVars()

	os.Setenv("CITYSTREAM_PIPELINE_PARALLELISM", "8")
	os.Setenv("CITYSTREAM_CACHE_CODELISTSIZE", "64")

	viper.Reset()
	InitConfig("", false)

	require.Equal(t, 8, Configuration.Pipeline.Parallelism)
	require.Equal(t, 64, Configuration.Cache.CodelistSize)
}

func TestInitConfigFileOverriddenByEnvironment(t *testing.T) {
	clearConfigEnvVars()
	defer clearConfigEnvVars()

	configContent := `
[Pipeline]
Parallelism = 2
ChannelCapacity = 500
`
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.toml")
	require.NoError(t, os.WriteFile(configFile, []byte(configContent), 0o644))

	os.Setenv("CITYSTREAM_PIPELINE_PARALLELISM", "16")

	viper.Reset()
	InitConfig(configFile, false)

	require.Equal(t, 16, Configuration.Pipeline.Parallelism, "env var wins over config file")
	require.Equal(t, 500, Configuration.Pipeline.ChannelCapacity, "config file wins over default")
}

func TestInitConfigDebugFlagForcesTrue(t *testing.T) {
	clearConfigEnvVars()
	defer clearConfigEnvVars()

	viper.Reset()
	InitConfig("", true)

	require.True(t, Configuration.Debug)
}

func TestLoadRulesEmptyPathReturnsEmptyRules(t *testing.T) {
	r, err := LoadRules("")
	require.NoError(t, err)
	require.Empty(t, r.Transforms)
}

func TestLoadRulesParsesTransformsOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")
	content := `{
		"transforms": ["rename", "flatten", "lodFilter"],
		"params": {
			"rename": {"building.measuredHeight": "height"}
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	r, err := LoadRules(path)
	require.NoError(t, err)
	require.Equal(t, []string{"rename", "flatten", "lodFilter"}, r.Transforms)
	require.Contains(t, r.Params, "rename")
}

func TestLoadRulesMissingFileIsError(t *testing.T) {
	_, err := LoadRules("/nonexistent/rules.json")
	require.Error(t, err)
}
