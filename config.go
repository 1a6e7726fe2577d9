package conductor

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Default timing values applied wherever the config leaves a field zero.
const (
	DefaultStartTimeout    = 5 * time.Minute
	DefaultStopTimeout     = 1 * time.Minute
	DefaultHealthInterval  = 30 * time.Second
	DefaultHealthTimeout   = 5 * time.Second
	DefaultMetricsInterval = 10 * time.Second
	DefaultMetricsTimeout  = 5 * time.Second
)

// Duration wraps time.Duration so config files can express values as
// human-readable strings ("30s", "5m") in both YAML and TOML.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String returns the standard duration formatting.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler, used by the TOML decoder.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds the orchestrator's operational settings. Timeouts are
// process-wide and per-operation: StartTimeout bounds every component start
// hook, StopTimeout every stop hook. The health and metrics intervals are
// deliberately independent so a slow health probe never delays lightweight
// metrics polling.
type Config struct {
	// StartTimeout bounds each component start hook. A start that exceeds
	// it is a hard failure and triggers rollback.
	StartTimeout Duration `yaml:"start_timeout" toml:"start_timeout" env:"START_TIMEOUT"`

	// StopTimeout bounds each component stop hook. A stop that exceeds it
	// is logged as a warning; shutdown proceeds to the next component.
	StopTimeout Duration `yaml:"stop_timeout" toml:"stop_timeout" env:"STOP_TIMEOUT"`

	// HealthInterval is the cadence of the periodic health monitor.
	HealthInterval Duration `yaml:"health_interval" toml:"health_interval" env:"HEALTH_INTERVAL"`

	// HealthTimeout bounds each individual component health probe.
	HealthTimeout Duration `yaml:"health_timeout" toml:"health_timeout" env:"HEALTH_TIMEOUT"`

	// MetricsInterval is the cadence of the periodic metrics collector.
	MetricsInterval Duration `yaml:"metrics_interval" toml:"metrics_interval" env:"METRICS_INTERVAL"`

	// MetricsTimeout bounds each individual component metrics poll.
	MetricsTimeout Duration `yaml:"metrics_timeout" toml:"metrics_timeout" env:"METRICS_TIMEOUT"`

	// HTTPAddr is the listen address for the operational HTTP server.
	HTTPAddr string `yaml:"http_addr" toml:"http_addr" env:"HTTP_ADDR"`
}

// DefaultConfig returns a Config populated with the default timings.
func DefaultConfig() *Config {
	return &Config{
		StartTimeout:    Duration(DefaultStartTimeout),
		StopTimeout:     Duration(DefaultStopTimeout),
		HealthInterval:  Duration(DefaultHealthInterval),
		HealthTimeout:   Duration(DefaultHealthTimeout),
		MetricsInterval: Duration(DefaultMetricsInterval),
		MetricsTimeout:  Duration(DefaultMetricsTimeout),
		HTTPAddr:        ":8360",
	}
}

// normalize fills zero-valued timing fields with defaults so a partially
// specified config file still yields a usable configuration.
func (c *Config) normalize() {
	if c.StartTimeout <= 0 {
		c.StartTimeout = Duration(DefaultStartTimeout)
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = Duration(DefaultStopTimeout)
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = Duration(DefaultHealthInterval)
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = Duration(DefaultHealthTimeout)
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = Duration(DefaultMetricsInterval)
	}
	if c.MetricsTimeout <= 0 {
		c.MetricsTimeout = Duration(DefaultMetricsTimeout)
	}
}
