package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/chainsub/internal/core/domain"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content, expanding environment variables first.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset values.
func (c *AppConfig) ApplyDefaults() {
	if c.Network.PollInterval == 0 {
		c.Network.PollInterval = 4 * time.Second
	}
	if c.Network.RequestTimeout == 0 {
		c.Network.RequestTimeout = 10 * time.Second
	}
	if c.Network.MaxCatchup == 0 {
		c.Network.MaxCatchup = 64
	}
	if c.Network.ChainID == 0 && c.Network.Name != "" {
		c.Network.ChainID = domain.ChainNameToID[c.Network.Name]
	}
	if c.Subscription.TimeoutMillis == 0 {
		c.Subscription.TimeoutMillis = 120000
	}
	if c.Journal.Backend == "" {
		c.Journal.Backend = JournalNone
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "pgx"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate reports configuration that cannot work.
func (c *AppConfig) Validate() error {
	if c.Network.RPCURL == "" {
		return fmt.Errorf("network.rpc_url is required")
	}
	if c.Journal.Retention < 0 {
		return fmt.Errorf("journal.retention must not be negative, got %s", c.Journal.Retention)
	}
	if c.Subscription.TimeoutMillis < 0 {
		return fmt.Errorf("subscription.timeout must be positive, got %d", c.Subscription.TimeoutMillis)
	}

	switch c.Journal.Backend {
	case JournalNone, JournalMemory:
	case JournalRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url is required for the redis journal")
		}
	case JournalPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres journal")
		}
	default:
		return fmt.Errorf("unknown journal backend %q", c.Journal.Backend)
	}
	return nil
}
