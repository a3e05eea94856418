package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file, expands environment variables and applies
// the environment overrides. An empty path starts from an empty file.
func Load(path string) (*MonitorConfig, error) {
	var cfg MonitorConfig

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &ConfigError{Message: "read config file", Err: err}
		}

		// Expand ${VAR} environment variables
		expanded := os.ExpandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, &ConfigError{Message: "parse config yaml", Err: err}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadWithDefaults loads config and applies default values.
func LoadWithDefaults(path string) (*MonitorConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*MonitorConfig, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays the monitor's environment variables.
func (c *MonitorConfig) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Field: "PORT", Message: "must be an integer", Err: err}
		}
		c.Metrics.Port = port
	}
	if v, ok := lookup("POLL_INTERVAL"); ok && v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return &ConfigError{Field: "POLL_INTERVAL", Message: "must be a number of seconds", Err: err}
		}
		c.Poller.Interval = time.Duration(secs * float64(time.Second))
	}
	if v, ok := lookup("AGORIC_NET"); ok && v != "" {
		c.Network.Name = v
	}
	if v, ok := lookup("AGORIC_RPC"); ok && v != "" {
		c.Network.RPC = v
	}
	if v, ok := lookup("STATE_FILE"); ok && v != "" {
		c.Checkpoint.File = v
	}
	if v, ok := lookup("ORACLE_FILE"); ok && v != "" {
		c.Oracles.File = v
	}
	return nil
}
