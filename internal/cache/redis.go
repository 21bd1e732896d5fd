package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tinylink/tinylink/internal/config"
)

// ErrMiss is returned by Get when the key is absent. Callers treat any other
// error as a degraded cache, never as a request failure.
var ErrMiss = errors.New("cache miss")

// URLKey builds the cache key holding the original URL for a short code.
func URLKey(shortCode string) string {
	return "url:" + shortCode
}

// RateLimitKey builds the counter key for a rate-limiter scope and client.
func RateLimitKey(scope, clientID string) string {
	return fmt.Sprintf("ratelimit:%s:%s", scope, clientID)
}

// Redis is a thin wrapper around a Redis client. It is a disposable derived
// view: entries may vanish at any time and the store always wins on a miss.
type Redis struct {
	client *redis.Client
	prefix string
}

// New creates the Redis cache client. Connection failures are reported but
// the client is still returned; the service keeps running with every cache
// operation degrading to an error the callers absorb.
func New(ctx context.Context, cfg config.Redis) (*Redis, error) {
	const op = "cache.New"

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	r := &Redis{
		client: client,
		prefix: cfg.KeyPrefix,
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return r, fmt.Errorf("%s: failed to ping redis: %w", op, err)
	}

	return r, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) key(k string) string {
	return r.prefix + k
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	const op = "cache.Redis.Get"

	val, err := r.client.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("%s: %w", op, ErrMiss)
		}

		return "", fmt.Errorf("%s: failed to get key: %w", op, err)
	}

	return val, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	const op = "cache.Redis.Set"

	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("%s: failed to set key: %w", op, err)
	}

	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	const op = "cache.Redis.Delete"

	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("%s: failed to delete key: %w", op, err)
	}

	return nil
}

// Incr atomically increments a counter key and returns the new value.
func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	const op = "cache.Redis.Incr"

	val, err := r.client.Incr(ctx, r.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to increment key: %w", op, err)
	}

	return val, nil
}

// Expire sets the TTL on an existing key.
func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	const op = "cache.Redis.Expire"

	if err := r.client.Expire(ctx, r.key(key), ttl).Err(); err != nil {
		return fmt.Errorf("%s: failed to expire key: %w", op, err)
	}

	return nil
}

// DeletePattern removes every key matching the glob pattern. Used by the
// admin surface to flush key families.
func (r *Redis) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	const op = "cache.Redis.DeletePattern"

	keys, err := r.client.Keys(ctx, r.key(pattern)).Result()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to scan keys: %w", op, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to delete keys: %w", op, err)
	}

	return deleted, nil
}

// Stats reports a coarse snapshot of the cache backend for the admin surface.
type Stats struct {
	Status    string `json:"status"`
	TotalKeys int64  `json:"total_keys"`
}

func (r *Redis) Stats(ctx context.Context) Stats {
	keys, err := r.client.Keys(ctx, r.key("*")).Result()
	if err != nil {
		return Stats{Status: "disconnected"}
	}

	return Stats{
		Status:    "connected",
		TotalKeys: int64(len(keys)),
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	const op = "cache.Redis.Ping"

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%s: failed to ping redis: %w", op, err)
	}

	return nil
}
