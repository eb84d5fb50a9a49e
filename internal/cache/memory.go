package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter/v2"

	gateway "github.com/mediagate/mediagate/internal"
)

const (
	defaultMaxSize = 10_000
	defaultMaxTTL  = 7 * 24 * time.Hour
)

// entry wraps a cached value with its expiration time.
// A zero expiresAt means the entry has no TTL yet.
type entry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is an in-memory W-TinyLFU cache backed by otter. Per-key TTLs are
// tracked on the entry; otter's own write expiry caps every entry at maxTTL,
// so Expire clamps to maxTTL and TTL never reports more than otter will keep.
type Memory struct {
	cache  *otter.Cache[string, entry]
	maxTTL time.Duration
	now    func() time.Time
}

// NewMemory creates an in-memory cache with the given max entry count and
// upper bound on entry lifetime.
func NewMemory(maxSize int, maxTTL time.Duration) (*Memory, error) {
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	if maxTTL <= 0 {
		maxTTL = defaultMaxTTL
	}
	c, err := otter.New[string, entry](&otter.Options[string, entry]{
		MaximumSize:      maxSize,
		ExpiryCalculator: otter.ExpiryWriting[string, entry](maxTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &Memory{cache: c, maxTTL: maxTTL, now: time.Now}, nil
}

// lookup returns the live entry for key, dropping it if its TTL has passed.
func (m *Memory) lookup(key string) (entry, bool) {
	e, ok := m.cache.GetIfPresent(key)
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		m.cache.Invalidate(key)
		return entry{}, false
	}
	return e, true
}

// Get retrieves a value if present and not expired.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	e, ok := m.lookup(key)
	if !ok {
		return nil, gateway.ErrCacheMiss
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, nil
}

// Set stores a value with no TTL, replacing any previous entry.
func (m *Memory) Set(_ context.Context, key string, val []byte) error {
	data := make([]byte, len(val))
	copy(data, val)
	m.cache.Set(key, entry{data: data})
	return nil
}

// Expire sets a TTL on an existing key, capped at the store's maxTTL.
// Missing keys are ignored and non-positive TTLs remove the key.
func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		m.cache.Invalidate(key)
		return nil
	}
	e, ok := m.lookup(key)
	if !ok {
		return nil
	}
	ttl = min(ttl, m.maxTTL)
	e.expiresAt = m.now().Add(ttl)
	m.cache.Set(key, e)
	return nil
}

// TTL returns the remaining lifetime of key.
func (m *Memory) TTL(_ context.Context, key string) (time.Duration, error) {
	e, ok := m.lookup(key)
	if !ok || e.expiresAt.IsZero() {
		return 0, gateway.ErrCacheMiss
	}
	return e.expiresAt.Sub(m.now()), nil
}

// Ping always succeeds for the in-process store.
func (m *Memory) Ping(context.Context) error { return nil }

// Close drops every entry.
func (m *Memory) Close() error {
	m.cache.InvalidateAll()
	return nil
}
