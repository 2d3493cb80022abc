package config

import (
	"time"

	"github.com/vietddude/chainsub/internal/core/domain"
	redisclient "github.com/vietddude/chainsub/internal/infra/redis"
	"github.com/vietddude/chainsub/internal/infra/storage/postgres"
)

// Journal backends.
const (
	JournalNone     = "none"
	JournalMemory   = "memory"
	JournalRedis    = "redis"
	JournalPostgres = "postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server       ServerConfig       `yaml:"server"`
	Network      NetworkConfig      `yaml:"network"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	Journal      JournalConfig      `yaml:"journal"`
	Redis        redisclient.Config `yaml:"redis"`
	Database     postgres.Config    `yaml:"database"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP server settings. Port 0 disables the server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// NetworkConfig selects the node and tunes block polling.
type NetworkConfig struct {
	Name           domain.ChainName `yaml:"name"`
	RPCURL         string           `yaml:"rpc_url"`
	ChainID        domain.ChainID   `yaml:"chain_id"`
	PollInterval   time.Duration    `yaml:"poll_interval"`
	RequestTimeout time.Duration    `yaml:"request_timeout"`
	MaxCatchup     uint64           `yaml:"max_catchup"`
}

// SubscriptionConfig holds defaults for transaction subscriptions.
type SubscriptionConfig struct {
	TimeoutMillis          int64 `yaml:"timeout"`
	CancelTimeoutOnConfirm bool  `yaml:"cancel_timeout_on_confirm"`
}

// Timeout returns the confirmation timeout as a duration.
func (c SubscriptionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

// JournalConfig selects where outcomes are persisted.
type JournalConfig struct {
	Backend string `yaml:"backend"` // none, memory, redis, postgres

	// Retention prunes outcomes older than this. Zero keeps everything.
	Retention time.Duration `yaml:"retention"`
}
