package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds every daemon-level option for the cache host.
type Config struct {
	Server ServerConfig `koanf:"server"`
	Cache  CacheConfig  `koanf:"cache"`
}

// ServerConfig collects the listener and logging knobs owned by the lifecycle agent.
type ServerConfig struct {
	Listen  ListenConfig  `koanf:"listen"`
	Logging LoggingConfig `koanf:"logging"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level and format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CacheConfig groups storage selection, freshness tiers and label rendering.
type CacheConfig struct {
	Storage StorageConfig `koanf:"storage"`
	TTL     TTLConfig     `koanf:"ttl"`
	Label   LabelConfig   `koanf:"label"`
}

// StorageConfig picks the durable backend behind the cache.
type StorageConfig struct {
	Backend string              `koanf:"backend"`
	File    FileStorageConfig   `koanf:"file"`
	SQLite  SQLiteStorageConfig `koanf:"sqlite"`
	Redis   RedisStorageConfig  `koanf:"redis"`
}

type FileStorageConfig struct {
	Dir string `koanf:"dir"`
}

type SQLiteStorageConfig struct {
	Path string `koanf:"path"`
}

type RedisStorageConfig struct {
	Address  string         `koanf:"address"`
	Username string         `koanf:"username"`
	Password string         `koanf:"password"`
	DB       int            `koanf:"db"`
	TLS      RedisTLSConfig `koanf:"tls"`
}

type RedisTLSConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// TTLConfig holds the duration strings ("1m", "5m", ...) for each freshness tier.
type TTLConfig struct {
	Short  string `koanf:"short"`
	Medium string `koanf:"medium"`
	Long   string `koanf:"long"`
}

// LabelConfig drives the "last synced" label. Template is a text/template
// evaluated with sprig functions against {At, Zone}.
type LabelConfig struct {
	Template string `koanf:"template"`
	Zone     string `koanf:"zone"`
}

// Validate enforces invariants that keep the daemon predictable before serving traffic.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}
	if c.Server.Listen.Port < 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: listen.port invalid: %d", c.Server.Listen.Port)
	}

	storage := c.Cache.Storage
	switch strings.TrimSpace(strings.ToLower(storage.Backend)) {
	case "", "memory":
	case "file":
		if strings.TrimSpace(storage.File.Dir) == "" {
			return errors.New("config: cache.storage.file.dir required for file backend")
		}
	case "sqlite":
		if strings.TrimSpace(storage.SQLite.Path) == "" {
			return errors.New("config: cache.storage.sqlite.path required for sqlite backend")
		}
	case "redis":
		if strings.TrimSpace(storage.Redis.Address) == "" {
			return errors.New("config: cache.storage.redis.address required for redis backend")
		}
	default:
		return fmt.Errorf("config: cache.storage.backend unsupported: %s", storage.Backend)
	}

	tiers := []struct {
		name  string
		value string
	}{
		{"short", c.Cache.TTL.Short},
		{"medium", c.Cache.TTL.Medium},
		{"long", c.Cache.TTL.Long},
	}
	for _, tier := range tiers {
		d, err := time.ParseDuration(tier.value)
		if err != nil {
			return fmt.Errorf("config: cache.ttl.%s invalid: %w", tier.name, err)
		}
		if d <= 0 {
			return fmt.Errorf("config: cache.ttl.%s must be positive: %s", tier.name, tier.value)
		}
	}

	if zone := strings.TrimSpace(c.Cache.Label.Zone); zone != "" {
		if _, err := time.LoadLocation(zone); err != nil {
			return fmt.Errorf("config: cache.label.zone invalid: %w", err)
		}
	}
	return nil
}

// DefaultConfig returns the baseline values.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen: ListenConfig{
				Address: "127.0.0.1",
				Port:    8080,
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
			},
		},
		Cache: CacheConfig{
			Storage: StorageConfig{
				Backend: "memory",
			},
			TTL: TTLConfig{
				Short:  "1m",
				Medium: "5m",
				Long:   "30m",
			},
			Label: LabelConfig{
				Zone: "Local",
			},
		},
	}
}
