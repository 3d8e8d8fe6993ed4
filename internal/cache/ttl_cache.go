// Package cache provides a snapshot cache whose entries expire together.
// It suits small lookup tables that are refreshed as a unit, such as the
// weekly reading calendar.
package cache

import (
	"sync"
	"time"
)

// TTLCache is a thread-safe cache with a single timestamp for the whole
// cache. When the TTL since the last write elapses, every entry is stale.
type TTLCache[K comparable, V any] struct {
	mu        sync.RWMutex
	data      map[K]V
	timestamp time.Time
	ttl       time.Duration
	now       func() time.Time
}

// New creates an empty, expired TTLCache.
func New[K comparable, V any](ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		data: make(map[K]V),
		ttl:  ttl,
		now:  time.Now,
	}
}

// WithClock replaces the cache's clock and returns the cache.
func (c *TTLCache[K, V]) WithClock(now func() time.Time) *TTLCache[K, V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

// Get returns the value for key if present and the cache is fresh.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.expiredLocked() {
		var zero V
		return zero, false
	}
	value, ok := c.data[key]
	return value, ok
}

// Set stores a value and restarts the TTL for the whole cache. Stale
// entries are dropped first so they cannot be revived.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data == nil || c.expiredLocked() {
		c.data = make(map[K]V)
	}
	c.data[key] = value
	c.timestamp = c.now()
}

// expiredLocked must be called with at least a read lock held.
func (c *TTLCache[K, V]) expiredLocked() bool {
	return c.timestamp.IsZero() || c.now().Sub(c.timestamp) >= c.ttl
}

// Len returns the number of stored entries, fresh or not.
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
