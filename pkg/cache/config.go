package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/TFMV/fedquery/pkg/infrastructure/pool"
)

// DefaultTTL is how long a resolved question is served from cache.
const DefaultTTL = 300 * time.Second

// Backend kinds accepted by Config.Backend.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds the configuration for the cache
type Config struct {
	// Backend selects the storage: sqlite, memory or redis.
	Backend string `mapstructure:"backend"`
	// Path is the SQLite database file.
	Path string `mapstructure:"path"`
	// TTL is the time-to-live for cache entries
	TTL time.Duration `mapstructure:"ttl"`
	// ClearOnStart empties the cache when the CLI starts.
	ClearOnStart bool `mapstructure:"clear_on_start"`
	// MaxEntries bounds the memory backend. Zero means unbounded.
	MaxEntries int `mapstructure:"max_entries"`
	// Redis configures the redis backend.
	Redis RedisConfig `mapstructure:"redis"`
}

// DefaultConfig returns a default cache configuration
func DefaultConfig() *Config {
	return &Config{
		Backend:      BackendSQLite,
		Path:         "cache.db",
		TTL:          DefaultTTL,
		ClearOnStart: true,
		MaxEntries:   10000,
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "fedquery:cache:",
		},
	}
}

// WithBackend sets the storage backend kind
func (c *Config) WithBackend(kind string) *Config {
	c.Backend = kind
	return c
}

// WithPath sets the SQLite database path
func (c *Config) WithPath(path string) *Config {
	c.Path = path
	return c
}

// WithTTL sets the time-to-live for cache entries
func (c *Config) WithTTL(ttl time.Duration) *Config {
	c.TTL = ttl
	return c
}

// WithMaxEntries bounds the memory backend
func (c *Config) WithMaxEntries(n int) *Config {
	c.MaxEntries = n
	return c
}

// WithRedis sets the redis connection settings
func (c *Config) WithRedis(rc RedisConfig) *Config {
	c.Redis = rc
	return c
}

// Open builds the configured backend and wraps it in a QueryCache.
func Open(ctx context.Context, cfg *Config, logger zerolog.Logger) (*QueryCache, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	stats := NewStatsCollector()

	var (
		backend Backend
		err     error
	)
	switch cfg.Backend {
	case "", BackendSQLite:
		var p pool.ConnectionPool
		p, err = pool.New(pool.Config{
			Driver:             pool.DriverSQLite,
			DSN:                cfg.Path,
			MaxOpenConnections: 1,
			MaxIdleConnections: 1,
		}, logger)
		if err != nil {
			return nil, err
		}
		backend, err = NewSQLiteBackend(ctx, p, logger)
		if err != nil {
			p.Close()
		}
	case BackendMemory:
		backend = NewMemoryBackend(cfg.MaxEntries, stats)
	case BackendRedis:
		backend, err = NewRedisBackend(ctx, cfg.Redis, logger)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	return NewQueryCache(backend, cfg, stats, logger), nil
}
