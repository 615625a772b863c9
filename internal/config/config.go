// Package config loads logproc's runtime configuration from a TOML file,
// in the teacher's CycloneConfig/readConfigFile idiom, with flag overrides
// layered on top.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is logproc's full runtime configuration.
type Config struct {
	// LogLevel is a logrus level name: "debug", "info", "warn", "error".
	LogLevel string `toml:"log_level"`

	// ReportIntervalMs is how often the reporter redraws the terminal.
	ReportIntervalMs int64 `toml:"report_interval_ms"`

	// InitialWindowMs seeds stats.Core's window before any adaptation.
	InitialWindowMs int64 `toml:"initial_window_ms"`

	Alert AlertConfig `toml:"alert"`
}

// AlertConfig configures the optional trend-alert webhook dispatcher.
type AlertConfig struct {
	Enabled       bool    `toml:"enabled"`
	URL           string  `toml:"url"`
	RateThreshold float64 `toml:"rate_threshold"`
	RetryCount    int     `toml:"retry_count"`
}

// Default returns the configuration logproc runs with absent a config file.
func Default() Config {
	return Config{
		LogLevel:         `info`,
		ReportIntervalMs: 1000,
		InitialWindowMs:  60_000,
		Alert: AlertConfig{
			Enabled:       false,
			RateThreshold: 2.0,
			RetryCount:    3,
		},
	}
}

// Load reads path as TOML over the defaults; missing fields keep their
// default value. An empty path is not an error and yields the defaults
// outright; a non-empty path that can't be read or parsed is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == `` {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf(`config: reading %s: %w`, path, err)
	}
	return cfg, nil
}

// ReportInterval is ReportIntervalMs as a time.Duration.
func (c Config) ReportInterval() time.Duration {
	return time.Duration(c.ReportIntervalMs) * time.Millisecond
}
