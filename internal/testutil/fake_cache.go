package testutil

import (
	"context"
	"sync"
	"time"

	gateway "github.com/mediagate/mediagate/internal"
)

type fakeEntry struct {
	data      []byte
	expiresAt time.Time
}

// FakeCache is an in-memory gateway.KeyValueCache with a manual clock and
// per-operation error injection.
type FakeCache struct {
	GetErr    error
	SetErr    error
	ExpireErr error
	TTLErr    error

	mu      sync.Mutex
	now     time.Time
	entries map[string]fakeEntry
	written map[string]time.Duration
	sets    int
}

// NewFakeCache returns an empty FakeCache whose clock starts at a fixed instant.
func NewFakeCache() *FakeCache {
	return &FakeCache{
		now:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		entries: make(map[string]fakeEntry),
		written: make(map[string]time.Duration),
	}
}

// Advance moves the fake clock forward.
func (c *FakeCache) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *FakeCache) live(key string) (fakeEntry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return fakeEntry{}, false
	}
	if !e.expiresAt.IsZero() && !c.now.Before(e.expiresAt) {
		delete(c.entries, key)
		return fakeEntry{}, false
	}
	return e, true
}

// Get returns the live value or gateway.ErrCacheMiss.
func (c *FakeCache) Get(_ context.Context, key string) ([]byte, error) {
	if c.GetErr != nil {
		return nil, c.GetErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(key)
	if !ok {
		return nil, gateway.ErrCacheMiss
	}
	return e.data, nil
}

// Set stores val without expiry.
func (c *FakeCache) Set(_ context.Context, key string, val []byte) error {
	if c.SetErr != nil {
		return c.SetErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = fakeEntry{data: append([]byte(nil), val...)}
	c.sets++
	return nil
}

// Expire sets a TTL; non-positive values delete the key.
func (c *FakeCache) Expire(_ context.Context, key string, ttl time.Duration) error {
	if c.ExpireErr != nil {
		return c.ExpireErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written[key] = ttl
	if ttl <= 0 {
		delete(c.entries, key)
		return nil
	}
	e, ok := c.live(key)
	if !ok {
		return nil
	}
	e.expiresAt = c.now.Add(ttl)
	c.entries[key] = e
	return nil
}

// TTL returns the remaining lifetime of key.
func (c *FakeCache) TTL(_ context.Context, key string) (time.Duration, error) {
	if c.TTLErr != nil {
		return 0, c.TTLErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(key)
	if !ok || e.expiresAt.IsZero() {
		return 0, gateway.ErrCacheMiss
	}
	return e.expiresAt.Sub(c.now), nil
}

// Has reports whether key currently holds a live value.
func (c *FakeCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.live(key)
	return ok
}

// WrittenTTL returns the last TTL passed to Expire for key.
func (c *FakeCache) WrittenTTL(key string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.written[key]
	return d, ok
}

// SetCount returns the number of successful Set calls.
func (c *FakeCache) SetCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

// Put seeds key with raw data expiring after ttl (zero means no expiry).
func (c *FakeCache) Put(key string, data []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := fakeEntry{data: data}
	if ttl > 0 {
		e.expiresAt = c.now.Add(ttl)
	}
	c.entries[key] = e
}
