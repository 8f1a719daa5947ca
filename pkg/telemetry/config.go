package telemetry

import (
	"fmt"
	"slices"
	"time"
)

// Exporter names accepted by TracingConfig.Exporter.
const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

// Config groups logging, tracing and metrics settings for one process.
type Config struct {
	// ServiceName identifies the process in traces and logs.
	ServiceName    string
	ServiceVersion string

	// Environment is attached to every span (e.g. "production").
	Environment string

	Logging LoggingConfig
	Tracing TracingConfig
	Metrics MetricsConfig
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error or fatal.
	Level string

	// Format is "console" for humans or "json" for collectors.
	Format string

	// Output is stdout, stderr or a file path opened for append.
	Output string

	// EnableCaller adds file:line to every entry.
	EnableCaller bool
}

// TracingConfig configures the OpenTelemetry tracer.
type TracingConfig struct {
	Enabled bool

	// Exporter is otlp, stdout or none.
	Exporter string

	// Endpoint is the OTLP gRPC collector address, e.g. "localhost:4317".
	Endpoint string

	// SamplingRate is the ratio of root spans kept, between 0 and 1.
	SamplingRate float64

	ExportTimeout time.Duration

	// Insecure dials the collector without TLS.
	Insecure bool
}

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	Enabled bool

	// Namespace prefixes every metric name.
	Namespace string

	// DefaultHistogramBuckets are the plan latency buckets in seconds.
	// Planning a fleet is CPU bound and usually finishes well under a second.
	DefaultHistogramBuckets []float64
}

// DefaultConfig returns console logging at info, metrics on and tracing off.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "layerwave",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Tracing: TracingConfig{
			Exporter:      ExporterNone,
			SamplingRate:  1.0,
			ExportTimeout: 30 * time.Second,
			Insecure:      true,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "layerwave",
			DefaultHistogramBuckets: []float64{
				0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5,
			},
		},
	}
}

var logLevels = []string{"trace", "debug", "info", "warn", "error", "fatal"}

// Validate reports the first setting that cannot be honoured.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	if !slices.Contains(logLevels, c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Logging.Format)
	}

	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case ExporterOTLP:
			if c.Tracing.Endpoint == "" {
				return fmt.Errorf("otlp exporter requires an endpoint")
			}
		case ExporterStdout, ExporterNone:
		default:
			return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
		}
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0 and 1, got: %f", c.Tracing.SamplingRate)
	}

	if c.Metrics.Enabled && !slices.IsSorted(c.Metrics.DefaultHistogramBuckets) {
		return fmt.Errorf("histogram buckets must be in increasing order")
	}

	return nil
}
