// Package cache provides the key-value stores backing media lookups.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	gateway "github.com/mediagate/mediagate/internal"
)

var (
	_ Store = (*Redis)(nil)
	_ Store = (*Memory)(nil)
)

// Backend names accepted by Open.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Options selects and tunes a cache backend.
type Options struct {
	Backend string
	URL     string        // redis only, e.g. redis://localhost:6379/0
	Timeout time.Duration // redis dial/read/write timeout
	MaxSize int           // memory only
	MaxTTL  time.Duration // memory only: hard upper bound on entry lifetime
}

// Store is a gateway.KeyValueCache that can also report its own health.
type Store interface {
	gateway.KeyValueCache
	Ping(ctx context.Context) error
	Close() error
}

// Open builds the configured backend. Unknown backends fall back to memory.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case BackendRedis:
		ropts, err := redis.ParseURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		if opts.Timeout > 0 {
			ropts.DialTimeout = opts.Timeout
			ropts.ReadTimeout = opts.Timeout
			ropts.WriteTimeout = opts.Timeout
		}
		slog.Info("cache backend", "backend", BackendRedis, "addr", ropts.Addr, "db", ropts.DB)
		return NewRedis(ropts), nil
	case BackendMemory:
	default:
		slog.Warn("unknown cache backend, falling back to memory", "backend", opts.Backend)
	}
	slog.Info("cache backend", "backend", BackendMemory, "max_size", opts.MaxSize)
	return NewMemory(opts.MaxSize, opts.MaxTTL)
}
