package config

import (
	"slices"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
// Every failure is a *ConfigError.
func (c *MonitorConfig) Validate() error {
	if c.Network.Name == "" {
		return required("network.name")
	}
	if c.Network.Name == DefaultNetwork && c.Network.RPC == "" {
		return required("network.rpc")
	}
	if c.Network.MaxRetries < 0 {
		return invalid("network.max_retries", "must be >= 0")
	}

	if c.Oracles.File == "" && len(c.Oracles.List) == 0 {
		return invalid("oracles", "needs a file or an inline list")
	}
	for i, o := range c.Oracles.List {
		if o.Address == "" {
			return invalid("oracles.list", "entry %d has no address", i)
		}
	}

	if c.Poller.Interval <= 0 {
		return invalid("poller.interval", "must be positive")
	}
	if c.Poller.Concurrency < 1 {
		return invalid("poller.concurrency", "must be >= 1")
	}
	if c.Poller.Timeout < 0 {
		return invalid("poller.timeout", "must be >= 0")
	}

	if err := c.Checkpoint.validate(); err != nil {
		return err
	}

	for _, b := range c.Balances.Brands {
		if strings.TrimSpace(b) == "" {
			return invalid("balances.brands", "contains an empty brand")
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return invalid("metrics.port", "must be between 1 and 65535, got %d", c.Metrics.Port)
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return invalid("metrics.path", "must start with /")
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Logging.Level)) {
		return invalid("logging.level", "must be one of debug, info, warn, error")
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return invalid("logging.format", "must be text or json")
	}

	return nil
}

func (c *CheckpointConfig) validate() error {
	switch c.Backend {
	case "file":
		if c.File == "" {
			return required("checkpoint.file")
		}
	case "bolt":
		if c.Bolt.Path == "" {
			return required("checkpoint.bolt.path")
		}
		if c.Bolt.Bucket == "" {
			return required("checkpoint.bolt.bucket")
		}
	case "redis":
		if c.Redis.Addr == "" {
			return required("checkpoint.redis.addr")
		}
		if c.Redis.Key == "" {
			return required("checkpoint.redis.key")
		}
	case "postgres":
		return c.Postgres.validate("checkpoint.postgres")
	default:
		return invalid("checkpoint.backend", "must be one of file, bolt, redis, postgres, got %q", c.Backend)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return required(prefix + ".host")
	}
	if db.Name == "" {
		return required(prefix + ".name")
	}
	if db.User == "" {
		return required(prefix + ".user")
	}
	if db.MaxConns < 1 {
		return invalid(prefix+".max_conns", "must be >= 1")
	}
	if db.MinConns < 0 {
		return invalid(prefix+".min_conns", "must be >= 0")
	}
	if db.MinConns > db.MaxConns {
		return invalid(prefix+".min_conns", "(%d) cannot exceed max_conns (%d)", db.MinConns, db.MaxConns)
	}
	return nil
}
