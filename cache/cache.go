// Package cache provides a small thread-safe LRU cache used to memoize
// decoded asset payloads between loads.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 256

// Stats is a snapshot of cache counters.
type Stats struct {
	Len       int
	Capacity  int
	Hits      uint64
	Misses    uint64
	HitRate   float64
	Evictions uint64
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// Cache is a mutex-guarded LRU cache. The zero value is not usable;
// construct with New.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	entries  map[K]*list.Element
	order    *list.List // front = most recently used
	capacity int

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates a cache holding at most capacity entries. A non-positive
// capacity selects DefaultCapacity.
func New[K comparable, V any](capacity int) *Cache[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache[K, V]{
		entries:  make(map[K]*list.Element),
		order:    list.New(),
		capacity: capacity,
	}
}

// Get retrieves a cached value, marking it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	c.hits.Add(1)
	return el.Value.(*entry[K, V]).value, true
}

// Set stores a value, evicting the least recently used entries when the
// cache is full. The value is stored as-is, not copied.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, value)
}

func (c *Cache[K, V]) set(key K, value V) {
	if el, ok := c.entries[key]; ok {
		el.Value.(*entry[K, V]).value = value
		c.order.MoveToFront(el)
		return
	}
	for c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry[K, V]).key)
		c.evictions.Add(1)
	}
	c.entries[key] = c.order.PushFront(&entry[K, V]{key: key, value: value})
}

// GetOrCreate returns the cached value for key, calling create to fill
// the slot on a miss. create runs with the cache lock held so
// concurrent callers never compute the same key twice; keep it fast.
func (c *Cache[K, V]) GetOrCreate(key K, create func() V) V {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		c.hits.Add(1)
		return el.Value.(*entry[K, V]).value
	}
	c.misses.Add(1)
	value := create()
	c.set(key, value)
	return value
}

// Delete removes an entry, reporting whether it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return false
	}
	c.order.Remove(el)
	delete(c.entries, key)
	return true
}

// Clear removes all entries. Counters are kept.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]*list.Element)
	c.order.Init()
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Capacity returns the maximum number of entries.
func (c *Cache[K, V]) Capacity() int { return c.capacity }

// Stats returns a snapshot of the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return Stats{
		Len:       c.Len(),
		Capacity:  c.capacity,
		Hits:      hits,
		Misses:    misses,
		HitRate:   hitRate,
		Evictions: c.evictions.Load(),
	}
}
