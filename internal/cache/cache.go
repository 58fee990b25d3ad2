// Package cache provides a small time-bounded memoization cache used to
// avoid re-querying slow administrative APIs on every request.
package cache

import (
	"sync"
	"time"
)

// Clock abstracts time operations for testability.
type Clock interface {
	Now() time.Time
}

// realClock implements Clock using the standard time package.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// entry pairs a cached value with the time it was fetched.
type entry[V any] struct {
	value     V
	fetchedAt time.Time
}

// Cache is a string-keyed cache whose entries expire after a fixed TTL.
// There is no eviction beyond expiry; the key spaces it serves are tiny
// (one entry per group, one for the whole-domain list) so unbounded growth
// is acceptable.
//
// Two callers observing the same miss may both repopulate the entry; the
// last writer wins. Both values would have been equally valid at read time,
// so the race is benign and deliberately left in place.
type Cache[V any] struct {
	mu      sync.Mutex
	clock   Clock
	ttl     time.Duration
	entries map[string]entry[V]
}

// New creates a cache with the given TTL.
func New[V any](ttl time.Duration) *Cache[V] {
	return NewWithClock[V](realClock{}, ttl)
}

// NewWithClock creates a cache with the given clock and TTL.
// Panics if clk is nil.
func NewWithClock[V any](clk Clock, ttl time.Duration) *Cache[V] {
	if clk == nil {
		panic("cache: Cache requires a non-nil Clock")
	}
	return &Cache[V]{
		clock:   clk,
		ttl:     ttl,
		entries: make(map[string]entry[V]),
	}
}

// Get returns the cached value for key. The second return value is false
// when no entry exists or the entry has outlived the TTL; the caller must
// repopulate with Set.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.clock.Now().Sub(e.fetchedAt) >= c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, stamping it with the current time.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, fetchedAt: c.clock.Now()}
}
