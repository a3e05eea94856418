package config

import "time"

// MonitorConfig is the root configuration.
type MonitorConfig struct {
	Network    NetworkConfig    `yaml:"network"`
	Oracles    OraclesConfig    `yaml:"oracles"`
	Poller     PollerConfig     `yaml:"poller"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Balances   BalancesConfig   `yaml:"balances"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// NetworkConfig selects the chain to read from.
type NetworkConfig struct {
	Name       string        `yaml:"name"`       // "local" or a public network (e.g., "main", "emerynet")
	RPC        string        `yaml:"rpc"`        // RPC endpoint for the local network
	ConfigURL  string        `yaml:"config_url"` // Override for the network-config location
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	WatchHead  *bool         `yaml:"watch_head"` // Subscribe to NewBlock events (default true)
}

// OraclesConfig lists the monitored oracles.
type OraclesConfig struct {
	File string        `yaml:"file"` // JSON file: {"<address>": {"oracleName": "..."}}
	List []OracleEntry `yaml:"list"`
}

// OracleEntry is one inline oracle.
type OracleEntry struct {
	Address string `yaml:"address"`
	Name    string `yaml:"name"`
}

// PollerConfig holds poll scheduler settings.
type PollerConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"` // Per-cycle deadline, 0 for none
}

// CheckpointConfig selects where reconciliation progress is stored.
type CheckpointConfig struct {
	Backend  string      `yaml:"backend"` // file, bolt, redis or postgres
	File     string      `yaml:"file"`
	Bolt     BoltConfig  `yaml:"bolt"`
	Redis    RedisConfig `yaml:"redis"`
	Postgres DBConfig    `yaml:"postgres"`
}

// BoltConfig configures the embedded bbolt backend.
type BoltConfig struct {
	Path   string `yaml:"path"`
	Bucket string `yaml:"bucket"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// BalancesConfig controls which wallet balances are exported.
type BalancesConfig struct {
	Brands []string `yaml:"brands"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // text or json
	File       string `yaml:"file"`   // Rotated log file; stderr when empty
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// HeadWatchEnabled reports whether the chain head subscription should run.
func (n NetworkConfig) HeadWatchEnabled() bool {
	return n.WatchHead == nil || *n.WatchHead
}
