// Package config loads appkiller settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every variable name, e.g. APPKILLER_DATA_DIR.
const EnvPrefix = "APPKILLER"

// Prefs backends.
const (
	PrefsBackendFile      = "file"
	PrefsBackendEncrypted = "encrypted"
)

// Config holds all application configuration.
type Config struct {
	// DataDir holds preferences, the metrics trace and daemon logs.
	// Empty means "pick by execution mode" (see infra.ResolveDataDir).
	DataDir      string `envconfig:"DATA_DIR"`
	PrefsBackend string `envconfig:"PREFS_BACKEND" default:"file"`

	// SelfPackage is the package id appkiller refuses to terminate.
	SelfPackage string `envconfig:"SELF_PACKAGE" default:"appkiller"`

	Detection DetectionConfig `envconfig:"DETECTION"`
	Sampling  SamplingConfig  `envconfig:"SAMPLING"`
	KillLog   KillLogConfig   `envconfig:"KILL_LOG"`
	Logging   LogConfig       `envconfig:"LOG"`

	// ManualOpenCommand is launched in manual kill mode; "{package}" is replaced
	// by the package id.
	ManualOpenCommand string `envconfig:"MANUAL_OPEN_COMMAND"`

	// MetricsAddr serves Prometheus metrics from the monitor daemon when set.
	MetricsAddr string `envconfig:"METRICS_ADDR"`
}

// DetectionConfig tunes the liveness detector.
type DetectionConfig struct {
	Window             time.Duration `envconfig:"WINDOW" default:"30s"`
	MinProcessPackages int           `envconfig:"MIN_PACKAGES" default:"3"`
}

// SamplingConfig tunes the periodic sampler and the metrics trace.
type SamplingConfig struct {
	Interval      time.Duration `envconfig:"INTERVAL" default:"30s"`
	HistoryWindow time.Duration `envconfig:"HISTORY_WINDOW" default:"30m"`
	MaxTraceBytes int64         `envconfig:"MAX_TRACE_BYTES" default:"1048576"`
}

// KillLogConfig holds the two kill-log caps.
type KillLogConfig struct {
	WriteCap   int `envconfig:"WRITE_CAP" default:"100"`
	CompactCap int `envconfig:"COMPACT_CAP" default:"128"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LEVEL" default:"info"`
	Development bool   `envconfig:"DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		PrefsBackend: PrefsBackendFile,
		SelfPackage:  "appkiller",
		Detection: DetectionConfig{
			Window:             30 * time.Second,
			MinProcessPackages: 3,
		},
		Sampling: SamplingConfig{
			Interval:      30 * time.Second,
			HistoryWindow: 30 * time.Minute,
			MaxTraceBytes: 1024 * 1024,
		},
		KillLog: KillLogConfig{
			WriteCap:   100,
			CompactCap: 128,
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}

// Validate rejects values the core cannot work with.
func (c *Config) Validate() error {
	switch c.PrefsBackend {
	case PrefsBackendFile, PrefsBackendEncrypted:
	default:
		return fmt.Errorf("unknown prefs backend %q (want %q or %q)",
			c.PrefsBackend, PrefsBackendFile, PrefsBackendEncrypted)
	}
	if c.Detection.Window <= 0 {
		return fmt.Errorf("detection window must be positive, got %s", c.Detection.Window)
	}
	if c.Detection.MinProcessPackages < 1 {
		return fmt.Errorf("min process packages must be at least 1, got %d", c.Detection.MinProcessPackages)
	}
	if c.Sampling.Interval <= 0 {
		return fmt.Errorf("sample interval must be positive, got %s", c.Sampling.Interval)
	}
	if c.Sampling.MaxTraceBytes <= 0 {
		return fmt.Errorf("max trace bytes must be positive, got %d", c.Sampling.MaxTraceBytes)
	}
	if c.KillLog.WriteCap < 1 || c.KillLog.CompactCap < 1 {
		return fmt.Errorf("kill log caps must be positive, got %d/%d", c.KillLog.WriteCap, c.KillLog.CompactCap)
	}
	return nil
}
