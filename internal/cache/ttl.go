// Package cache provides a small TTL cache used for recall memoization and
// other short-lived lookups. Entries expire a fixed duration after insertion
// and the oldest entry is evicted when the cache is full.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Stats reports cache effectiveness counters.
type Stats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"maxsize"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

type entry[K comparable, V any] struct {
	key      K
	value    V
	deadline time.Time
}

// TTLCache is a bounded cache with per-entry expiry measured from insertion.
// All methods are safe for concurrent use. A lookup never fails; a missing
// or expired key simply reports ok=false.
type TTLCache[K comparable, V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	items   map[K]*list.Element
	order   *list.List // front = oldest insertion
	hits    int64
	misses  int64

	// now is swappable in tests
	now func() time.Time
}

// NewTTL creates a cache holding at most maxSize entries for ttl each.
func NewTTL[K comparable, V any](ttl time.Duration, maxSize int) *TTLCache[K, V] {
	if maxSize <= 0 {
		maxSize = 128
	}
	return &TTLCache[K, V]{
		ttl:     ttl,
		maxSize: maxSize,
		items:   make(map[K]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// Get returns the cached value for key if present and unexpired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}
	ent := el.Value.(*entry[K, V])
	if c.now().After(ent.deadline) {
		c.order.Remove(el)
		delete(c.items, key)
		c.misses++
		return zero, false
	}
	c.hits++
	return ent.value, true
}

// Set stores value under key, evicting the oldest entry at capacity.
// Re-setting an existing key refreshes its value and deadline but keeps
// its insertion position.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry[K, V])
		ent.value = value
		ent.deadline = c.now().Add(c.ttl)
		return
	}

	if c.order.Len() >= c.maxSize {
		oldest := c.order.Front()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*entry[K, V]).key)
		}
	}

	ent := &entry[K, V]{key: key, value: value, deadline: c.now().Add(c.ttl)}
	c.items[key] = c.order.PushBack(ent)
}

// Invalidate removes key, reporting whether it was present.
func (c *TTLCache[K, V]) Invalidate(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.order.Remove(el)
	delete(c.items, key)
	return true
}

// Clear removes every entry and returns how many were dropped.
func (c *TTLCache[K, V]) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.items)
	c.items = make(map[K]*list.Element)
	c.order.Init()
	return n
}

// Len returns the number of entries, including any not yet lazily expired.
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns a snapshot of the cache counters.
func (c *TTLCache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Size:    len(c.items),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: rate,
	}
}
