package config

import (
	"fmt"
	"strings"
	"time"
)

// StoreMode represents the credential store implementation to use.
type StoreMode string

const (
	// StoreModeFile persists credentials to a local JSON file.
	StoreModeFile StoreMode = "file"
	// StoreModeRedis persists credentials to redis with a TTL.
	StoreModeRedis StoreMode = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler for StoreMode.
func (m *StoreMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "file", "redis":
		*m = StoreMode(v)
		return nil
	default:
		return fmt.Errorf("invalid StoreMode: %q (valid options: file, redis)", v)
	}
}

// FileStoreConfig configures the file-backed credential store.
type FileStoreConfig struct {
	// Path is the credential file location. Empty means a file named
	// credentials.json under the user config directory.
	Path string `env:"PATH"`
}

// RedisConfig configures the redis-backed credential store.
type RedisConfig struct {
	Addr     string `env:"ADDR"     envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB"       envDefault:"0"`

	// OwnerKey namespaces the credential record, typically per installation.
	OwnerKey string `env:"OWNER_KEY" envDefault:"default"`

	// RefreshGrace extends the record TTL past token expiry so a stale
	// access token can still be refreshed after a long shutdown.
	RefreshGrace time.Duration `env:"REFRESH_GRACE" envDefault:"720h"`
}

// StoreConfig groups credential store configuration.
type StoreConfig struct {
	// Mode determines which store implementation to use.
	Mode StoreMode `env:"STORE_MODE" envDefault:"file"`

	// File configuration (used when Mode=file).
	File FileStoreConfig `envPrefix:"STORE_FILE_"`

	// Redis configuration (used when Mode=redis).
	Redis RedisConfig `envPrefix:"STORE_REDIS_"`
}

// Sanitize applies guardrails to store configuration.
func (c *StoreConfig) Sanitize() {
	c.File.Path = strings.TrimSpace(c.File.Path)
	c.Redis.Addr = strings.TrimSpace(c.Redis.Addr)
	if c.Redis.OwnerKey == "" {
		c.Redis.OwnerKey = "default"
	}
	if c.Redis.RefreshGrace <= 0 {
		c.Redis.RefreshGrace = 720 * time.Hour
	}
}
