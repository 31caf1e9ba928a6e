// Package cache provides the in-memory TTL store for raw upstream payloads.
package cache

import (
	"sync"
	"time"
)

const defaultCleanupEvery = time.Minute

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache maps fingerprints to values until their TTL passes. Expired entries are
// never returned; they are dropped on the next lookup or by the janitor.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	maxEntries int

	cleanupEvery time.Duration
	now          func() time.Time

	stopCh  chan struct{}
	started bool
	stopped bool
}

type Option func(*Cache)

// WithMaxEntries bounds the number of stored entries. Zero means unbounded.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		c.maxEntries = n
	}
}

func WithCleanupInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.cleanupEvery = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

func New(opts ...Option) *Cache {
	c := &Cache{
		entries:      make(map[string]entry),
		cleanupEvery: defaultCleanupEvery,
		now:          time.Now,
		stopCh:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Get returns the value stored under key if it has not expired.
func (c *Cache) Get(key string) (any, bool) {
	now := c.now()

	c.mu.RLock()
	ent, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if !now.Before(ent.expiresAt) {
		c.mu.Lock()
		// Re-check: a concurrent Put may have refreshed the entry.
		if cur, exists := c.entries[key]; exists && !now.Before(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()

		return nil, false
	}

	return ent.value, true
}

// Put stores value under key for ttl. Non-positive TTLs are ignored.
func (c *Cache) Put(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}

	c.entries[key] = entry{
		value:     value,
		expiresAt: now.Add(ttl),
	}
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Start runs the janitor that sweeps expired entries in the background.
func (c *Cache) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started || c.stopped {
		return nil
	}

	c.started = true

	go func() {
		ticker := time.NewTicker(c.cleanupEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.cleanup()
			case <-c.stopCh:
				return
			}
		}
	}()

	return nil
}

func (c *Cache) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil
	}

	close(c.stopCh)
	c.stopped = true

	return nil
}

func (c *Cache) cleanup() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweepLocked(now)
}

func (c *Cache) sweepLocked(now time.Time) int {
	removed := 0

	for key, ent := range c.entries {
		if !now.Before(ent.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}

	return removed
}

// evictLocked makes room for one entry: expired entries go first, otherwise
// the entry closest to expiry is dropped.
func (c *Cache) evictLocked(now time.Time) {
	if c.sweepLocked(now) > 0 {
		return
	}

	var (
		victim string
		oldest time.Time
		found  bool
	)

	for key, ent := range c.entries {
		if !found || ent.expiresAt.Before(oldest) {
			victim, oldest, found = key, ent.expiresAt, true
		}
	}

	if found {
		delete(c.entries, victim)
	}
}
