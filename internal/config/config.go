// Package config provides configuration loading for the grid simulator.
// Values come from defaults, an optional YAML file, then environment
// variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/gridsim/internal/external"
	"github.com/signalsfoundry/gridsim/internal/grid"
	"github.com/signalsfoundry/gridsim/internal/logging"
	"github.com/signalsfoundry/gridsim/internal/observability"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config contains all simulator settings.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
	Tracing  TracingConfig  `json:"tracing" yaml:"tracing"`
	External ExternalConfig `json:"external" yaml:"external"`
	Grid     GridConfig     `json:"grid" yaml:"grid"`
}

// ServerConfig configures the HTTP API and the shared tick loop.
type ServerConfig struct {
	// Addr is the API listen address.
	Addr string `json:"addr" yaml:"addr"`

	// MetricsAddr serves Prometheus /metrics. Empty disables it.
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr"`

	// TickInterval is the period of the streaming tick loop.
	TickInterval time.Duration `json:"tick_interval" yaml:"tick_interval"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text or json
}

type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	ServiceName string  `json:"service_name" yaml:"service_name"`
	Exporter    string  `json:"exporter" yaml:"exporter"`
	Endpoint    string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	SampleRatio float64 `json:"sample_ratio" yaml:"sample_ratio"`
}

// ExternalConfig points at the third-party data providers.
type ExternalConfig struct {
	// SolarURL is the PVGIS PVcalc endpoint. Empty disables the lookup and
	// the engine runs on the default solar potential.
	SolarURL string `json:"solar_url" yaml:"solar_url"`

	ChargerURL string `json:"charger_url" yaml:"charger_url"`

	EIAURL string `json:"eia_url" yaml:"eia_url"`

	// EIAAPIKey supports ${VAR} expansion when read from a file.
	EIAAPIKey string `json:"eia_api_key,omitempty" yaml:"eia_api_key,omitempty"`

	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
	MaxRetries uint64        `json:"max_retries" yaml:"max_retries"`
}

// GridConfig tunes engine construction.
type GridConfig struct {
	AvailableSolarPotential float64 `json:"available_solar_potential" yaml:"available_solar_potential"`
	DefaultSolarPotential   float64 `json:"default_solar_potential" yaml:"default_solar_potential"`

	// Seed fixes the engine's random source; 0 means unseeded.
	Seed uint64 `json:"seed" yaml:"seed"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			MetricsAddr:     ":9090",
			TickInterval:    2 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			ServiceName: "gridsim",
			Exporter:    "stdout",
			SampleRatio: 1,
		},
		External: ExternalConfig{
			ChargerURL: external.DefaultChargerURL,
			EIAURL:     external.DefaultEIAURL,
			Timeout:    10 * time.Second,
			MaxRetries: 2,
		},
		Grid: GridConfig{
			AvailableSolarPotential: grid.AvailableSolarPotential,
			DefaultSolarPotential:   grid.DefaultSolarPotential,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty) and environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		cfg = fileCfg
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific YAML file on top of the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.External.EIAAPIKey = expandEnvVars(cfg.External.EIAAPIKey)
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr must be set", ErrInvalid)
	}
	if c.Server.TickInterval <= 0 {
		return fmt.Errorf("%w: server.tick_interval must be positive, got %v", ErrInvalid, c.Server.TickInterval)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: server.shutdown_timeout must be non-negative, got %v", ErrInvalid, c.Server.ShutdownTimeout)
	}

	validLevels := map[string]bool{"": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("%w: invalid log level %q (valid: debug, info, warn, error)", ErrInvalid, c.Logging.Level)
	}
	validFormats := map[string]bool{"": true, "text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("%w: invalid log format %q (valid: text, json)", ErrInvalid, c.Logging.Format)
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("%w: tracing.sample_ratio must be between 0 and 1, got %f", ErrInvalid, c.Tracing.SampleRatio)
	}
	validExporters := map[string]bool{"": true, "stdout": true, "otlp": true, "otlpgrpc": true}
	if !validExporters[strings.ToLower(c.Tracing.Exporter)] {
		return fmt.Errorf("%w: invalid tracing exporter %q (valid: stdout, otlp)", ErrInvalid, c.Tracing.Exporter)
	}

	if c.External.Timeout < 0 {
		return fmt.Errorf("%w: external.timeout must be non-negative, got %v", ErrInvalid, c.External.Timeout)
	}
	if c.Grid.AvailableSolarPotential < 0 || c.Grid.DefaultSolarPotential < 0 {
		return fmt.Errorf("%w: solar potentials must be non-negative", ErrInvalid)
	}
	return nil
}

// LoggerOptions maps the logging section onto logging.Config.
func (c *Config) LoggerOptions() logging.Config {
	return logging.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
	}
}

// ExternalOptions maps the external section onto external.Config.
func (c *Config) ExternalOptions(log logging.Logger) external.Config {
	return external.Config{
		Timeout:    c.External.Timeout,
		MaxRetries: c.External.MaxRetries,
		Logger:     log,
	}
}

// TracingOptions maps the tracing section onto observability.TracingConfig.
func (c *Config) TracingOptions() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		ServiceName: c.Tracing.ServiceName,
		Exporter:    c.Tracing.Exporter,
		Endpoint:    c.Tracing.Endpoint,
		SampleRatio: c.Tracing.SampleRatio,
	}
}

// applyEnvOverrides applies GRIDSIM_* (and a few conventional) environment
// variables on top of cfg.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRIDSIM_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("GRIDSIM_METRICS_ADDR"); v != "" {
		cfg.Server.MetricsAddr = v
	}
	if v := os.Getenv("GRIDSIM_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.TickInterval = d
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("GRIDSIM_TRACING_ENABLED"); v != "" {
		cfg.Tracing.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("GRIDSIM_TRACING_EXPORTER"); v != "" {
		cfg.Tracing.Exporter = strings.ToLower(v)
	}
	if v := os.Getenv("GRIDSIM_OTLP_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
	}
	if v := os.Getenv("GRIDSIM_TRACING_SAMPLE_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Tracing.SampleRatio = f
		}
	}

	if v := os.Getenv("SOLAR_API_URL"); v != "" {
		cfg.External.SolarURL = v
	}
	if v := os.Getenv("GRIDSIM_CHARGER_URL"); v != "" {
		cfg.External.ChargerURL = v
	}
	if v := os.Getenv("EIA_API_KEY"); v != "" {
		cfg.External.EIAAPIKey = v
	}

	if v := os.Getenv("GRIDSIM_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Grid.Seed = n
		}
	}
}

// expandEnvVars expands ${VAR} patterns with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
