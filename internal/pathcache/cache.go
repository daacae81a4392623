// Package pathcache implements the path-keyed, time-expiring cache tables
// shared by the attribute, directory and file caches: a mapping from a
// mount-relative path to a value, stamped with an insertion time, swept
// lazily by the caller rather than by a background goroutine.
package pathcache

import (
	"sync"
	"time"
)

// entry pairs a cached value with the instant it was inserted.
type entry[V any] struct {
	value     V
	timestamp time.Time
}

// Cache is a path-keyed table with a fixed lifetime. Entries older than
// lifetime are never served; removal happens when Expire, Contains, Get
// or Lookup is called, and there is no timer or background goroutine.
type Cache[V any] struct {
	mu       sync.Mutex
	lifetime time.Duration
	entries  map[string]entry[V]
}

// New builds an empty Cache with the given entry lifetime.
func New[V any](lifetime time.Duration) *Cache[V] {
	return &Cache[V]{
		lifetime: lifetime,
		entries:  make(map[string]entry[V]),
	}
}

// Add replaces any prior entry at path and stamps it with the current time.
func (c *Cache[V]) Add(path string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = entry[V]{value: value, timestamp: time.Now()}
}

// Expire removes entries whose lifetime has elapsed. Contains, Get and
// Lookup perform the same sweep themselves before answering.
func (c *Cache[V]) Expire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked()
}

func (c *Cache[V]) expireLocked() {
	now := time.Now()
	for path, e := range c.entries {
		if now.Sub(e.timestamp) >= c.lifetime {
			delete(c.entries, path)
		}
	}
}

// Contains reports whether path has an entry, after sweeping expired
// entries so the answer reflects only fresh ones.
func (c *Cache[V]) Contains(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked()
	_, ok := c.entries[path]
	return ok
}

// Get returns the entry at path, after sweeping expired entries, or
// def if absent.
func (c *Cache[V]) Get(path string, def V) V {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked()
	if e, ok := c.entries[path]; ok {
		return e.value
	}
	return def
}

// Lookup is like Get but also reports whether the entry was present.
func (c *Cache[V]) Lookup(path string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked()
	e, ok := c.entries[path]
	return e.value, ok
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

// Len reports the number of entries without sweeping, for tests and
// diagnostics only.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
