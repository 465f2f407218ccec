package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/TFMV/fedquery/pkg/models"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
	Prefix   string `mapstructure:"prefix"`
}

// RedisBackend shares entries between coordinator processes. Keys carry no
// Redis expiry; QueryCache decides staleness from CreatedAt.
type RedisBackend struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

// NewRedisBackend connects and pings the server.
func NewRedisBackend(ctx context.Context, cfg RedisConfig, logger zerolog.Logger) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "fedquery:cache:"
	}

	return &RedisBackend{
		client: client,
		prefix: prefix,
		logger: logger.With().Str("component", "redis_cache").Logger(),
	}, nil
}

// Load reads the entry for fp.
func (r *RedisBackend) Load(ctx context.Context, fp models.Fingerprint) (*models.CacheEntry, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+string(fp)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(val, &entry); err != nil {
		r.logger.Warn().Err(err).Str("fingerprint", string(fp)).Int("bytes", len(val)).Msg("Undecodable cache entry")
		return nil, false, fmt.Errorf("decode cache entry: %w", err)
	}
	return &entry, true, nil
}

// Save upserts entry.
func (r *RedisBackend) Save(ctx context.Context, entry *models.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+string(entry.Fingerprint), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Clear removes all keys under the prefix.
func (r *RedisBackend) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			r.logger.Error().Err(err).Int("deleted", deleted).Msg("Cache clear interrupted")
			return fmt.Errorf("redis delete: %w", err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		r.logger.Error().Err(err).Int("deleted", deleted).Msg("Cache scan failed")
		return fmt.Errorf("redis scan: %w", err)
	}
	r.logger.Debug().Int("deleted", deleted).Str("prefix", r.prefix).Msg("Cleared cache keys")
	return nil
}

// Close closes the Redis connection.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
