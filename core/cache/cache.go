// Package cache provides LRU caching for compiled mapping tables.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/FocuswithJustin/versemap/core/mapping"
)

// Cache is a generic LRU cache interface.
type Cache[K comparable, V any] interface {
	// Get retrieves a value from the cache.
	Get(key K) (V, bool)

	// Contains reports whether a value is cached without promoting it.
	Contains(key K) bool

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
	Hits       int64
	Misses     int64
	Evictions  int64
	Size       int
	MaxSize    int
	TotalBytes int64
}

// Config contains cache configuration options.
type Config[K comparable, V any] struct {
	// MaxSize is the maximum number of entries (0 = unlimited).
	MaxSize int

	// TTL is the time-to-live for entries (0 = no expiration).
	TTL time.Duration

	// OnEvict is called when an entry leaves the cache for any reason
	// other than Clear.
	OnEvict func(key K, value V)
}

// entry represents a cache entry.
type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// LRU is a thread-safe LRU cache.
type LRU[K comparable, V any] struct {
	mu        sync.Mutex
	config    Config[K, V]
	entries   map[K]*list.Element
	evictList *list.List
	stats     Stats
	now       func() time.Time
}

// NewLRU creates a new LRU cache with the given configuration.
func NewLRU[K comparable, V any](config Config[K, V]) *LRU[K, V] {
	if config.MaxSize < 0 {
		config.MaxSize = 0
	}
	return &LRU[K, V]{
		config:    config,
		entries:   make(map[K]*list.Element),
		evictList: list.New(),
		now:       time.Now,
	}
}

// Get retrieves a value from the cache.
func (c *LRU[K, V]) Get(key K) (V, bool) {
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

	// Move to front (most recently used)
	c.evictList.MoveToFront(ent)
	c.stats.Hits++
	return e.value, true
}

// Contains reports whether key holds an unexpired value. Unlike Get it
// neither changes the eviction order nor counts a hit or miss.
func (c *LRU[K, V]) Contains(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries[key]
	return ok && !c.expired(ent.Value.(*entry[K, V]))
}

// Put stores a value in the cache.
func (c *LRU[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, value)
}

func (c *LRU[K, V]) put(key K, value V) {
	if ent, ok := c.entries[key]; ok {
		c.evictList.MoveToFront(ent)
		e := ent.Value.(*entry[K, V])
		e.value = value
		e.expiresAt = c.deadline()
		return
	}

	e := &entry[K, V]{key: key, value: value, expiresAt: c.deadline()}
	c.entries[key] = c.evictList.PushFront(e)

	if c.config.MaxSize > 0 && c.evictList.Len() > c.config.MaxSize {
		c.removeOldest()
	}
}

// Remove removes a value from the cache.
func (c *LRU[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.entries[key]; ok {
		c.removeElement(ent)
	}
}

// Clear removes all entries from the cache without calling OnEvict.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clear()
}

func (c *LRU[K, V]) clear() {
	c.entries = make(map[K]*list.Element)
	c.evictList.Init()
}

// Len returns the number of entries in the cache.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Stats returns cache statistics.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Size = c.evictList.Len()
	s.MaxSize = c.config.MaxSize
	return s
}

// removeOldest evicts the least recently used entry.
func (c *LRU[K, V]) removeOldest() bool {
	ent := c.evictList.Back()
	if ent == nil {
		return false
	}
	c.removeElement(ent)
	c.stats.Evictions++
	return true
}

func (c *LRU[K, V]) deadline() time.Time {
	if c.config.TTL <= 0 {
		return time.Time{}
	}
	return c.now().Add(c.config.TTL)
}

func (c *LRU[K, V]) expired(e *entry[K, V]) bool {
	return c.config.TTL > 0 && c.now().After(e.expiresAt)
}

// removeElement removes an element from the cache.
func (c *LRU[K, V]) removeElement(ent *list.Element) {
	c.evictList.Remove(ent)
	e := ent.Value.(*entry[K, V])
	delete(c.entries, e.key)

	if c.config.OnEvict != nil {
		c.config.OnEvict(e.key, e.value)
	}
}

// TableCache holds compiled tables by direction, bounded by entry count and
// by the encoded size of the tables it holds.
type TableCache struct {
	lru      *LRU[mapping.Pair, *mapping.Table]
	maxBytes int64
	bytes    int64
	sizes    map[mapping.Pair]int64
}

// NewTableCache creates a table cache. maxBytes of 0 means no byte limit.
func NewTableCache(maxTables int, maxBytes int64) *TableCache {
	c := &TableCache{
		maxBytes: maxBytes,
		sizes:    make(map[mapping.Pair]int64),
	}
	c.lru = NewLRU(Config[mapping.Pair, *mapping.Table]{
		MaxSize: maxTables,
		OnEvict: func(p mapping.Pair, _ *mapping.Table) {
			c.bytes -= c.sizes[p]
			delete(c.sizes, p)
		},
	})
	return c
}

// Get returns the cached table for a direction.
func (c *TableCache) Get(p mapping.Pair) (*mapping.Table, bool) {
	return c.lru.Get(p)
}

// Contains reports whether the table for p is cached without touching its
// recency.
func (c *TableCache) Contains(p mapping.Pair) bool {
	return c.lru.Contains(p)
}

// Put caches a table under its own direction. A table larger than the
// byte limit is not cached.
func (c *TableCache) Put(t *mapping.Table) {
	size := EstimateTableBytes(t)
	if c.maxBytes > 0 && size > c.maxBytes {
		c.Remove(t.Pair())
		return
	}
	p := t.Pair()

	c.lru.mu.Lock()
	defer c.lru.mu.Unlock()
	c.lru.put(p, t)
	c.bytes += size - c.sizes[p]
	c.sizes[p] = size
	for c.maxBytes > 0 && c.bytes > c.maxBytes && c.lru.evictList.Len() > 1 {
		c.lru.removeOldest()
	}
}

// Remove drops a direction from the cache.
func (c *TableCache) Remove(p mapping.Pair) {
	c.lru.Remove(p)
}

// Clear drops every table.
func (c *TableCache) Clear() {
	c.lru.mu.Lock()
	defer c.lru.mu.Unlock()
	c.lru.clear()
	c.bytes = 0
	clear(c.sizes)
}

// Len returns the number of cached tables.
func (c *TableCache) Len() int {
	return c.lru.Len()
}

// Stats returns cache statistics including byte size information.
func (c *TableCache) Stats() Stats {
	s := c.lru.Stats()
	c.lru.mu.Lock()
	s.TotalBytes = c.bytes
	c.lru.mu.Unlock()
	return s
}

// EstimateTableBytes returns the encoded size of a table, or 0 if it
// cannot be encoded.
func EstimateTableBytes(t *mapping.Table) int64 {
	if t == nil {
		return 0
	}
	data, err := t.MarshalBinary()
	if err != nil {
		return 0
	}
	return int64(len(data))
}
