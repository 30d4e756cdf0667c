// Package cache provides an optional Redis-backed read-through cache for
// conversation summaries and session state, so a second process can see a
// conversation's latest summary without sharing the in-memory Store.
// Grounded on internal/cache/manager.go's Manager, trimmed to the
// operations the conversation store actually needs.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrMiss is returned by GetJSON when the key isn't present.
var ErrMiss = errors.New("cache: miss")

// Config tunes a Cache's Redis client.
type Config struct {
	Addr       string
	Password   string
	DB         int
	DefaultTTL time.Duration
	MaxRetries int
	PoolSize   int
}

func DefaultConfig() Config {
	return Config{Addr: "localhost:6379", DefaultTTL: 10 * time.Minute, MaxRetries: 3, PoolSize: 10}
}

// Cache wraps a redis.Client behind the narrow surface the conversation
// store needs.
type Cache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New dials cfg.Addr and pings it before returning, so a misconfigured
// cache fails fast at startup rather than on the first conversation.
func New(cfg Config, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		MaxRetries: cfg.MaxRetries,
		PoolSize:   cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("conversation cache: connect: %w", err)
	}

	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &Cache{redis: client, ttl: ttl, logger: logger.With(zap.String("component", "conversation_cache"))}, nil
}

// GetJSON unmarshals the cached value at key into dest. Returns ErrMiss if
// the key is absent.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) error {
	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("conversation cache: get %q: %w", key, err)
	}
	return json.Unmarshal([]byte(val), dest)
}

// SetJSON marshals value and stores it at key with the cache's default
// TTL (or ttlOverride if non-zero).
func (c *Cache) SetJSON(ctx context.Context, key string, value any, ttlOverride time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("conversation cache: marshal %q: %w", key, err)
	}
	ttl := c.ttl
	if ttlOverride > 0 {
		ttl = ttlOverride
	}
	if err := c.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("conversation cache: set %q: %w", key, err)
	}
	return nil
}

// Delete removes keys, ignoring keys that don't exist.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...).Err()
}

// Close shuts down the underlying Redis client.
func (c *Cache) Close() error {
	return c.redis.Close()
}

// SummaryKey is the cache key holding conv's most recent summary.
func SummaryKey(convID string) string { return "conversation:" + convID + ":summary:latest" }

// SessionEndedKey is the cache key marking sessionID as ended.
func SessionEndedKey(sessionID string) string { return "session:" + sessionID + ":ended" }
