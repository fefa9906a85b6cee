// ContentCache optionally shares fetched source-map original-source
// content across sessions (spec §3 "optional cached original source
// contents", §4.4). Grounded on the teacher's internal/cache.Cache: a
// Config{Host, Port, Password, DB, Enabled} shape with graceful fallback
// to a disabled instance when Redis is unreachable or not configured,
// here specialized to a single Get/Set content cache rather than a
// generic JSON cache.
package sourcemap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// contentTTL bounds how long cached source content is trusted; scripts
// can reload with different content at the same URL (spec §3 Script
// record), so entries are not cached indefinitely.
const contentTTL = 10 * time.Minute

// ContentCache is the interface the engine uses to optionally keep
// fetched original-source content beyond one lookup. NoopCache keeps
// nothing; RedisCache keeps each entry in Redis for contentTTL. Session
// state itself is never stored here.
type ContentCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key string, content string)
}

// NoopCache is the zero-dependency default: every Get misses, every Set
// is dropped. Used when Redis is disabled or unreachable.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (string, bool) { return "", false }
func (NoopCache) Set(context.Context, string, string)        {}

// RedisConfig mirrors the teacher's cache.Config shape.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// RedisCache is a Redis-backed ContentCache for multi-instance brokers.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis per cfg. If cfg.Enabled is false, it
// returns a cache that behaves like NoopCache without dialing anything.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	if !cfg.Enabled {
		return &RedisCache{client: nil}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	if c.client == nil {
		return "", false
	}
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key string, content string) {
	if c.client == nil {
		return
	}
	_ = c.client.Set(ctx, key, content, contentTTL).Err()
}

// Close releases the underlying connection, if any.
func (c *RedisCache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
