package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultNetwork           = "local"
	DefaultRPC               = "http://0.0.0.0:26657"
	DefaultNetworkTimeout    = 30 * time.Second
	DefaultMaxRetries        = 3
	DefaultOracleFile        = "config/oracles.json"
	DefaultPollInterval      = 10 * time.Second
	DefaultPollConcurrency   = 1
	DefaultCheckpointBackend = "file"
	DefaultStateFile         = "data/monitoring_state.json"
	DefaultBoltPath          = "data/monitoring_state.db"
	DefaultBoltBucket        = "oracle_monitor"
	DefaultRedisKey          = "oracle-monitor:state"
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 4
	DefaultMinConns          = 1
	DefaultMetricsPort       = 3001
	DefaultMetricsPath       = "/metrics"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultLogMaxSizeMB      = 100
	DefaultLogMaxBackups     = 5
	DefaultLogMaxAgeDays     = 28
)

// DefaultBalanceBrands are the brands whose balances are exported.
var DefaultBalanceBrands = []string{"BLD", "IST"}

func (c *MonitorConfig) applyDefaults() {
	// Network defaults
	if c.Network.Name == "" {
		c.Network.Name = DefaultNetwork
	}
	if c.Network.RPC == "" {
		c.Network.RPC = DefaultRPC
	}
	if c.Network.Timeout == 0 {
		c.Network.Timeout = DefaultNetworkTimeout
	}
	if c.Network.MaxRetries == 0 {
		c.Network.MaxRetries = DefaultMaxRetries
	}

	// Oracle defaults
	if c.Oracles.File == "" && len(c.Oracles.List) == 0 {
		c.Oracles.File = DefaultOracleFile
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Concurrency == 0 {
		c.Poller.Concurrency = DefaultPollConcurrency
	}

	// Checkpoint defaults
	if c.Checkpoint.Backend == "" {
		c.Checkpoint.Backend = DefaultCheckpointBackend
	}
	if c.Checkpoint.File == "" {
		c.Checkpoint.File = DefaultStateFile
	}
	if c.Checkpoint.Bolt.Path == "" {
		c.Checkpoint.Bolt.Path = DefaultBoltPath
	}
	if c.Checkpoint.Bolt.Bucket == "" {
		c.Checkpoint.Bolt.Bucket = DefaultBoltBucket
	}
	if c.Checkpoint.Redis.Key == "" {
		c.Checkpoint.Redis.Key = DefaultRedisKey
	}
	applyDBDefaults(&c.Checkpoint.Postgres)

	// Balance defaults
	if len(c.Balances.Brands) == 0 {
		c.Balances.Brands = append([]string(nil), DefaultBalanceBrands...)
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = DefaultLogMaxAgeDays
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
