// ABOUTME: TTL cache of recently seen keys, used to swallow double-submits.
// ABOUTME: Pruning is lazy on writes; there is no background goroutine to stop.

package dedupe

import (
	"sync"
	"time"
)

// Cache is a thread-safe, TTL-based, size-limited set of recently seen keys.
// Entries expire after the TTL; when the cache is full the stalest entry is
// evicted on the next write.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	ttl     time.Duration
	maxSize int

	// now is swappable for tests.
	now func() time.Time
}

// New creates a cache with the given TTL and maximum entry count.
func New(ttl time.Duration, maxSize int) *Cache {
	return &Cache{
		seen:    make(map[string]time.Time),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Seen reports whether key was marked within the TTL window.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.seen[key]
	return ok && c.now().Sub(at) < c.ttl
}

// Mark records key as seen now, evicting expired or stalest entries if the
// cache is at capacity.
func (c *Cache) Mark(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(key)
}

// SeenOrMark atomically checks and marks: it returns true if key was already
// seen within the TTL, otherwise marks it and returns false.
func (c *Cache) SeenOrMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if at, ok := c.seen[key]; ok && c.now().Sub(at) < c.ttl {
		return true
	}
	c.markLocked(key)
	return false
}

func (c *Cache) markLocked(key string) {
	if _, exists := c.seen[key]; !exists && len(c.seen) >= c.maxSize {
		c.pruneLocked()
	}
	c.seen[key] = c.now()
}

// pruneLocked drops expired entries, then the stalest entry if the cache is
// still full. Linear scan; the cache is small by construction.
func (c *Cache) pruneLocked() {
	now := c.now()
	for k, at := range c.seen {
		if now.Sub(at) >= c.ttl {
			delete(c.seen, k)
		}
	}
	if len(c.seen) < c.maxSize {
		return
	}
	var stalest string
	var stalestAt time.Time
	for k, at := range c.seen {
		if stalest == "" || at.Before(stalestAt) {
			stalest = k
			stalestAt = at
		}
	}
	if stalest != "" {
		delete(c.seen, stalest)
	}
}

// Len returns the current entry count, including not-yet-pruned expired keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
