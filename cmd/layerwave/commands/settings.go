package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/layerwave/layerwave/pkg/telemetry"
)

// =============================================================================
// Settings Types
// =============================================================================

// Settings holds runtime configuration shared by all commands.
type Settings struct {
	// Catalog is the default catalog document path.
	Catalog string `mapstructure:"catalog"`

	// Target is the fallback target version when neither the layers
	// document nor the catalog names one.
	Target string `mapstructure:"target"`

	// Policies are extra policy files or directories loaded by every command.
	Policies []string `mapstructure:"policies"`

	// Environment is attached to traces (e.g. "production").
	Environment string `mapstructure:"environment"`

	Server   ServerSettings   `mapstructure:"server"`
	Database DatabaseSettings `mapstructure:"database"`
	Log      LogSettings      `mapstructure:"log"`
	Metrics  MetricsSettings  `mapstructure:"metrics"`
	Tracing  TracingSettings  `mapstructure:"tracing"`
}

// ServerSettings holds HTTP server configuration.
type ServerSettings struct {
	Addr            string        `mapstructure:"addr"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Watch           bool          `mapstructure:"watch"`
	EnforcePolicies bool          `mapstructure:"enforce_policies"`
}

// DatabaseSettings holds the report archive location.
type DatabaseSettings struct {
	Path string `mapstructure:"path"`
}

// LogSettings holds logging configuration.
type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
	Caller bool   `mapstructure:"caller"`
}

// MetricsSettings toggles Prometheus metrics.
type MetricsSettings struct {
	Enabled bool `mapstructure:"enabled"`
}

// TracingSettings holds OpenTelemetry exporter configuration.
type TracingSettings struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter"`
	Endpoint     string  `mapstructure:"endpoint"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
	Insecure     bool    `mapstructure:"insecure"`
}

// =============================================================================
// Settings Loading
// =============================================================================

// LoadSettings loads settings from an optional file and LAYERWAVE_*
// environment variables.
func LoadSettings(path string) (*Settings, error) {
	v := viper.New()

	v.SetDefault("catalog", "")
	v.SetDefault("target", "")
	v.SetDefault("policies", []string{})
	v.SetDefault("environment", "development")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cache_ttl", "10m")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.watch", true)
	v.SetDefault("server.enforce_policies", false)
	v.SetDefault("database.path", "./data/layerwave.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.caller", false)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sampling_rate", 1.0)
	v.SetDefault("tracing.insecure", true)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings file: %w", err)
		}
	}

	v.SetEnvPrefix("LAYERWAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return &s, nil
}

// TelemetryConfig converts the settings into a telemetry configuration.
func (s *Settings) TelemetryConfig(version string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.Environment = s.Environment
	cfg.Logging.Level = s.Log.Level
	cfg.Logging.Format = s.Log.Format
	cfg.Logging.Output = s.Log.Output
	cfg.Logging.EnableCaller = s.Log.Caller
	cfg.Metrics.Enabled = s.Metrics.Enabled
	cfg.Tracing.Enabled = s.Tracing.Enabled
	cfg.Tracing.Exporter = s.Tracing.Exporter
	cfg.Tracing.Endpoint = s.Tracing.Endpoint
	cfg.Tracing.SamplingRate = s.Tracing.SamplingRate
	cfg.Tracing.Insecure = s.Tracing.Insecure
	return cfg
}
