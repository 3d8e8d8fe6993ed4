// Package cache provides in-memory LRU caching for fetched verse text.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/FocuswithJustin/ParashaDeck/core/ir"
)

// Cache is a generic LRU cache interface.
type Cache[K comparable, V any] interface {
	// Get retrieves a value from the cache.
	Get(key K) (V, bool)

	// Put stores a value in the cache.
	Put(key K, value V)

	// Remove removes a value from the cache.
	Remove(key K)

	// Clear removes all entries from the cache.
	Clear()

	// Len returns the number of entries in the cache.
	Len() int

	// Stats returns cache statistics.
	Stats() Stats
}

// Stats contains cache statistics.
type Stats struct {
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Evictions  int64 `json:"evictions"`
	Size       int   `json:"size"`
	MaxSize    int   `json:"max_size"`
	TotalBytes int64 `json:"total_bytes,omitempty"`
}

// Config contains cache configuration options.
type Config struct {
	// MaxSize is the maximum number of entries (0 = unlimited).
	MaxSize int

	// TTL is the time-to-live for entries (0 = no expiration).
	TTL time.Duration

	// OnEvict is called with the cache lock held whenever an entry leaves
	// the cache, whether by eviction, expiry or removal.
	OnEvict func(key, value any)

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// DefaultConfig returns a default cache configuration.
func DefaultConfig() Config {
	return Config{
		MaxSize: 256,
		TTL:     6 * time.Hour,
	}
}

// entry represents a cache entry.
type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// lruCache is a thread-safe LRU cache implementation.
type lruCache[K comparable, V any] struct {
	mu        sync.Mutex
	config    Config
	entries   map[K]*list.Element
	evictList *list.List
	stats     Stats
}

// NewLRUCache creates a new LRU cache with the given configuration.
func NewLRUCache[K comparable, V any](config Config) Cache[K, V] {
	if config.MaxSize < 0 {
		config.MaxSize = 0
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &lruCache[K, V]{
		config:    config,
		entries:   make(map[K]*list.Element),
		evictList: list.New(),
	}
}

func (c *lruCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	ent, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}

	e := ent.Value.(*entry[K, V])
	if c.expired(e) {
		c.removeElement(ent)
		c.stats.Misses++
		return zero, false
	}

	c.evictList.MoveToFront(ent)
	c.stats.Hits++
	return e.value, true
}

func (c *lruCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.entries[key]; ok {
		// Replacing counts as removal of the old value for OnEvict.
		e := ent.Value.(*entry[K, V])
		if c.config.OnEvict != nil {
			c.config.OnEvict(e.key, e.value)
		}
		e.value = value
		e.expiresAt = c.deadline()
		c.evictList.MoveToFront(ent)
		return
	}

	e := &entry[K, V]{key: key, value: value, expiresAt: c.deadline()}
	c.entries[key] = c.evictList.PushFront(e)

	if c.config.MaxSize > 0 && c.evictList.Len() > c.config.MaxSize {
		c.removeOldest()
	}
}

func (c *lruCache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.entries[key]; ok {
		c.removeElement(ent)
	}
}

func (c *lruCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.evictList.Len() > 0 {
		c.removeElement(c.evictList.Back())
	}
}

func (c *lruCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

func (c *lruCache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Size = c.evictList.Len()
	s.MaxSize = c.config.MaxSize
	return s
}

func (c *lruCache[K, V]) deadline() time.Time {
	if c.config.TTL <= 0 {
		return time.Time{}
	}
	return c.config.Now().Add(c.config.TTL)
}

func (c *lruCache[K, V]) expired(e *entry[K, V]) bool {
	return !e.expiresAt.IsZero() && c.config.Now().After(e.expiresAt)
}

// removeOldest removes the least recently used entry.
func (c *lruCache[K, V]) removeOldest() {
	if ent := c.evictList.Back(); ent != nil {
		c.removeElement(ent)
		c.stats.Evictions++
	}
}

func (c *lruCache[K, V]) removeElement(ent *list.Element) {
	c.evictList.Remove(ent)
	e := ent.Value.(*entry[K, V])
	delete(c.entries, e.key)

	if c.config.OnEvict != nil {
		c.config.OnEvict(e.key, e.value)
	}
}

// BoundedCache is an LRU cache that also bounds the total estimated byte
// size of its values.
type BoundedCache[K comparable, V any] struct {
	mu       sync.Mutex
	cache    Cache[K, V]
	maxBytes int64
	size     int64
	sizeFunc func(V) int64
}

// NewBoundedCache creates a cache with both entry count and byte size limits.
// maxBytes <= 0 disables the byte limit.
func NewBoundedCache[K comparable, V any](config Config, maxBytes int64, sizeFunc func(V) int64) *BoundedCache[K, V] {
	b := &BoundedCache[K, V]{maxBytes: maxBytes, sizeFunc: sizeFunc}

	onEvict := config.OnEvict
	config.OnEvict = func(key, value any) {
		// Runs under the inner cache lock, which is always taken after b.mu.
		b.size -= sizeFunc(value.(V))
		if onEvict != nil {
			onEvict(key, value)
		}
	}
	b.cache = NewLRUCache[K, V](config)
	return b
}

// Get retrieves a value from the cache.
func (b *BoundedCache[K, V]) Get(key K) (V, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cache.Get(key)
}

// Put stores a value, evicting least recently used entries until the byte
// budget fits. Values larger than the whole budget are not cached.
func (b *BoundedCache[K, V]) Put(key K, value V) {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := b.sizeFunc(value)
	if b.maxBytes > 0 && size > b.maxBytes {
		return
	}

	b.cache.Put(key, value)
	b.size += size

	if b.maxBytes <= 0 {
		return
	}
	lru := b.cache.(*lruCache[K, V])
	for b.size > b.maxBytes && b.cache.Len() > 1 {
		lru.mu.Lock()
		lru.removeOldest()
		lru.mu.Unlock()
	}
}

// Remove removes a value from the cache.
func (b *BoundedCache[K, V]) Remove(key K) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.Remove(key)
}

// Clear removes all entries from the cache.
func (b *BoundedCache[K, V]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.Clear()
}

// Len returns the number of entries in the cache.
func (b *BoundedCache[K, V]) Len() int {
	return b.cache.Len()
}

// Stats returns cache statistics including the tracked byte size.
func (b *BoundedCache[K, V]) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := b.cache.Stats()
	stats.TotalBytes = b.size
	return stats
}

// TextCache holds fetched chapter data keyed by request URL.
type TextCache struct {
	*BoundedCache[string, *ir.RawChapterData]
}

// NewTextCache creates a text cache bounded by entry count and bytes.
func NewTextCache(config Config, maxBytes int64) *TextCache {
	return &TextCache{NewBoundedCache[string, *ir.RawChapterData](config, maxBytes, EstimateBytes)}
}

// EstimateBytes approximates the memory held by the verse strings of raw.
func EstimateBytes(raw *ir.RawChapterData) int64 {
	if raw == nil {
		return 0
	}
	var n int64
	for _, blocks := range [][][]string{raw.Chapters, raw.TranslatedChapters} {
		for _, block := range blocks {
			for _, s := range block {
				n += int64(len(s))
			}
		}
	}
	for _, s := range raw.VerseStartHints {
		n += int64(len(s))
	}
	return n + int64(8*len(raw.ChapterNumberHints))
}
