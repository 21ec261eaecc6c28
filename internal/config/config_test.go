package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, 2*time.Second, cfg.Server.TickInterval)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Empty(t, cfg.External.SolarURL)
	assert.Equal(t, 500.0, cfg.Grid.AvailableSolarPotential)
	assert.Equal(t, 300.0, cfg.Grid.DefaultSolarPotential)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("TEST_EIA_KEY", "secret-key")

	path := filepath.Join(t.TempDir(), "gridsim.yaml")
	content := `
server:
  addr: ":9000"
  tick_interval: 500ms
logging:
  level: debug
  format: json
external:
  solar_url: https://re.jrc.ec.europa.eu/api/PVcalc
  eia_api_key: ${TEST_EIA_KEY}
  max_retries: 5
grid:
  seed: 42
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 500*time.Millisecond, cfg.Server.TickInterval)
	assert.Equal(t, ":9090", cfg.Server.MetricsAddr, "unset keys keep defaults")
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "secret-key", cfg.External.EIAAPIKey)
	assert.Equal(t, uint64(5), cfg.External.MaxRetries)
	assert.Equal(t, uint64(42), cfg.Grid.Seed)
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))
	_, err = LoadFromFile(path)
	require.Error(t, err)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("GRIDSIM_ADDR", ":7000")
	t.Setenv("GRIDSIM_TICK_INTERVAL", "250ms")
	t.Setenv("GRIDSIM_TRACING_ENABLED", "1")
	t.Setenv("GRIDSIM_TRACING_SAMPLE_RATIO", "0.25")
	t.Setenv("SOLAR_API_URL", "http://solar.local/api")
	t.Setenv("EIA_API_KEY", "k")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.Server.TickInterval)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, 0.25, cfg.Tracing.SampleRatio)
	assert.Equal(t, "http://solar.local/api", cfg.External.SolarURL)
	assert.Equal(t, "k", cfg.External.EIAAPIKey)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"zero tick", func(c *Config) { c.Server.TickInterval = 0 }},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
		{"bad ratio", func(c *Config) { c.Tracing.SampleRatio = 1.5 }},
		{"bad exporter", func(c *Config) { c.Tracing.Exporter = "zipkin" }},
		{"negative potential", func(c *Config) { c.Grid.DefaultSolarPotential = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gridsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  tick_interval: -1s\n"), 0o644))

	_, err := Load(path)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestOptionMappings(t *testing.T) {
	cfg := Default()
	cfg.Logging.Format = "json"
	cfg.Tracing.Enabled = true
	cfg.External.MaxRetries = 5

	assert.Equal(t, "json", cfg.LoggerOptions().Format)
	assert.True(t, cfg.TracingOptions().Enabled)

	ext := cfg.ExternalOptions(nil)
	assert.Equal(t, 10*time.Second, ext.Timeout)
	assert.Equal(t, uint64(5), ext.MaxRetries)
	assert.Equal(t, "https://api.openchargemap.io/v3/poi/", cfg.External.ChargerURL)
}
