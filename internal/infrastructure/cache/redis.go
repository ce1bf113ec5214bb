// Package cache holds the dashboard metrics cache backends
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/coop-approvals/internal/application/port"
)

// RedisOptions configures the redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// ClientConstructor allows tests to swap the redis client
type ClientConstructor func(opt *redis.Options) *redis.Client

// Connect opens a redis client and pings it
func Connect(ctx context.Context, opts RedisOptions, newClient ClientConstructor, logger *zap.Logger) (*redis.Client, error) {
	logger.Info("Connecting to Redis", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))

	if newClient == nil {
		newClient = redis.NewClient
	}
	client := newClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("Redis ping failed", zap.String("addr", opts.Addr), zap.Error(err))
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("Connected to Redis", zap.String("addr", opts.Addr))
	return client, nil
}

// RedisCache stores JSON count maps under prefix+key with a TTL
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache creates a redis backed metrics cache. A zero ttl keeps
// entries until they are invalidated.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) (map[string]int, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read metrics cache: %w", err)
	}

	var counts map[string]int
	if err := json.Unmarshal(raw, &counts); err != nil {
		// a corrupt entry is a miss; the next Set overwrites it
		c.logger.Error("Discarding unreadable metrics cache entry", zap.String("key", key), zap.Error(err))
		return nil, false, nil
	}
	return counts, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, counts map[string]int) error {
	raw, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write metrics cache: %w", err)
	}
	return nil
}

// Invalidate deletes every key under the prefix
func (c *RedisCache) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan metrics cache: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate metrics cache: %w", err)
	}
	c.logger.Info("Metrics cache invalidated", zap.Int("keys", len(keys)))
	return nil
}

var _ port.MetricsCache = (*RedisCache)(nil)
