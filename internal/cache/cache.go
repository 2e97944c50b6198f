// Package cache implements an in-memory key/value cache bounded by both a
// per-entry TTL and a hard capacity.
package cache

import (
	"sync"
	"time"
)

// DefaultCleanupInterval is how often the background sweep removes expired
// entries independent of reads.
const DefaultCleanupInterval = 5 * time.Minute

type entry[V any] struct {
	value      V
	expiresAt  time.Time
	lastAccess time.Time
	seq        uint64
}

type orderKey struct {
	key string
	seq uint64
}

// Cache is a capacity- and TTL-bounded cache. Eviction at capacity removes
// the oldest-inserted entry (FIFO), not the least recently used one: the
// access timestamp is tracked for observability but does not influence
// eviction order.
type Cache[V any] struct {
	mu         sync.Mutex
	entries    map[string]*entry[V]
	order      []orderKey
	seq        uint64
	maxSize    int
	defaultTTL time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

// Stats is a point-in-time snapshot of a cache instance. Keys is meant for
// debugging surfaces, not hot paths.
type Stats struct {
	Size    int      `json:"size"`
	MaxSize int      `json:"max_size"`
	Keys    []string `json:"keys"`
}

// New builds a cache holding at most maxSize entries, each expiring after
// defaultTTL unless overridden per call. A background sweep runs every
// cleanupInterval until Destroy is called; pass 0 to use the default.
func New[V any](maxSize int, defaultTTL, cleanupInterval time.Duration) *Cache[V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}

	c := &Cache[V]{
		entries:    make(map[string]*entry[V], maxSize),
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		done:       make(chan struct{}),
	}

	go c.janitor(cleanupInterval)

	return c
}

// Set stores value under key with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetTTL(key, value, c.defaultTTL)
}

// SetTTL stores value under key, expiring after ttl. When the cache is at
// capacity and key is not already present, the oldest-inserted entry is
// evicted first.
func (c *Cache[V]) SetTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		existing.value = value
		existing.expiresAt = now.Add(ttl)
		existing.lastAccess = now
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}

	c.seq++
	c.entries[key] = &entry[V]{
		value:      value,
		expiresAt:  now.Add(ttl),
		lastAccess: now,
		seq:        c.seq,
	}
	c.order = append(c.order, orderKey{key: key, seq: c.seq})
}

// Get returns the value stored under key. Expired entries are removed on
// access and reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries[key]
	if !ok {
		return zero, false
	}

	if now.After(ent.expiresAt) {
		delete(c.entries, key)
		return zero, false
	}

	ent.lastAccess = now
	return ent.value, true
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[V], c.maxSize)
	c.order = c.order[:0]
}

// Len reports the number of live entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats snapshots the current size and keys.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}

	return Stats{
		Size:    len(c.entries),
		MaxSize: c.maxSize,
		Keys:    keys,
	}
}

// Cleanup sweeps expired entries. It runs periodically from the janitor but
// may also be invoked directly.
func (c *Cache[V]) Cleanup() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, ent := range c.entries {
		if now.After(ent.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Destroy stops the janitor and drops all entries. The cache must not be
// used afterwards; call this on shutdown so the sweep goroutine does not
// outlive the owner.
func (c *Cache[V]) Destroy() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
	c.Clear()
}

func (c *Cache[V]) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}

// evictOldestLocked pops insertion-order records until it finds one that
// still names a live entry, then removes it. Records go stale when their
// entry was deleted or expired; those are skipped.
func (c *Cache[V]) evictOldestLocked() {
	for len(c.order) > 0 {
		head := c.order[0]
		c.order = c.order[1:]

		ent, ok := c.entries[head.key]
		if !ok || ent.seq != head.seq {
			continue
		}

		delete(c.entries, head.key)
		return
	}
}
