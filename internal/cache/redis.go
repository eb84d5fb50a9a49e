package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	gateway "github.com/mediagate/mediagate/internal"
)

// Redis is a KeyValueCache backed by a redis server. The underlying client
// pools connections and is safe for concurrent use.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis store from client options.
func NewRedis(opt *redis.Options) *Redis {
	return &Redis{client: redis.NewClient(opt)}
}

// Get returns the stored value or gateway.ErrCacheMiss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, gateway.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}
	return b, nil
}

// Set stores a value with no expiration.
func (r *Redis) Set(ctx context.Context, key string, val []byte) error {
	if err := r.client.Set(ctx, key, val, 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Expire sets the key's TTL. Non-positive durations delete the key, which is
// what EXPIRE itself does with a negative argument.
func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("redis del %q: %w", key, err)
		}
		return nil
	}
	if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("redis expire %q: %w", key, err)
	}
	return nil
}

// TTL returns the remaining time to live. Redis answers -2 for a missing key
// and -1 for a key without expiry; both are reported as a miss.
func (r *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ttl %q: %w", key, err)
	}
	if d < 0 {
		return 0, gateway.ErrCacheMiss
	}
	return d, nil
}

// Ping checks connectivity to the redis server.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
