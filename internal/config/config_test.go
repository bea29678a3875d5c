package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 16, cfg.Engine.MaxConcurrentRuns)
	assert.True(t, cfg.Engine.EnableScheduler)
	assert.Equal(t, "CIQ_SECRET_", cfg.Secrets.EnvPrefix)
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: ":9000"
  read_timeout: 10s
engine:
  pipelines_dir: /etc/ciq/pipelines
  max_concurrent_runs: 4
logging:
  level: debug
  format: console
`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "/etc/ciq/pipelines", cfg.Engine.PipelinesDir)
	assert.Equal(t, 4, cfg.Engine.MaxConcurrentRuns)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched sections keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.Engine.ShutdownGrace)
}

func TestMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  address: \":9000\"\n"), 0o644))

	t.Setenv("CIQ_SERVER_ADDRESS", ":7777")
	t.Setenv("CIQ_ENGINE_MAX_CONCURRENT_RUNS", "2")
	t.Setenv("CIQ_ENGINE_SHUTDOWN_GRACE", "1m")
	t.Setenv("CIQ_REPORTING_VERBOSE", "true")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":7777", cfg.Server.Address)
	assert.Equal(t, 2, cfg.Engine.MaxConcurrentRuns)
	assert.Equal(t, time.Minute, cfg.Engine.ShutdownGrace)
	assert.True(t, cfg.Reporting.Verbose)
}

func TestOverridesBeatEnv(t *testing.T) {
	t.Setenv("CIQ_SERVER_ADDRESS", ":7777")

	cfg, err := NewLoader().
		WithOverrides(map[string]string{
			"server.address":             ":6000",
			"engine.enable_scheduler":    "false",
			"logging.level":              "warn",
			"engine.max_concurrent_runs": "8",
		}).
		Load()
	require.NoError(t, err)

	assert.Equal(t, ":6000", cfg.Server.Address)
	assert.False(t, cfg.Engine.EnableScheduler)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 8, cfg.Engine.MaxConcurrentRuns)
}

func TestUnknownOverridePath(t *testing.T) {
	_, err := NewLoader().
		WithOverrides(map[string]string{"server.nope": "x"}).
		Load()
	assert.ErrorContains(t, err, "unknown configuration path")
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.MaxConcurrentRuns = 0
	assert.ErrorContains(t, cfg.Validate(), "max_concurrent_runs")

	cfg = DefaultConfig()
	cfg.Logging.Format = "xml"
	assert.ErrorContains(t, cfg.Validate(), "logging.format")
}

func TestSerializeRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Address = ":1234"

	data, err := cfg.Serialize()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Server.Address, loaded.Server.Address)
}
