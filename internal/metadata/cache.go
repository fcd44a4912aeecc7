package metadata

import (
	"strings"
	"sync"
	"time"
)

type cacheEntry struct {
	value      Metadata
	expiration time.Time
}

// Cache keeps successful lookups for a fixed time. Expired entries are
// dropped when read or when the cache is swept on insert.
type Cache struct {
	mu    sync.Mutex
	items map[string]cacheEntry
	ttl   time.Duration
	now   func() time.Time
}

// NewCache creates a cache holding entries for ttl.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		items: make(map[string]cacheEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

func cacheKey(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// Get returns the cached result for query.
func (c *Cache) Get(query string) (Metadata, bool) {
	key := cacheKey(query)
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return Metadata{}, false
	}
	if c.now().After(e.expiration) {
		delete(c.items, key)
		return Metadata{}, false
	}
	return e.value, true
}

// Set stores m for query.
func (c *Cache) Set(query string, m Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.items {
		if now.After(e.expiration) {
			delete(c.items, k)
		}
	}
	c.items[cacheKey(query)] = cacheEntry{value: m, expiration: now.Add(c.ttl)}
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
