package cache

import (
	"sync"
	"time"
)

// entry is a cached item with an expiration deadline.
type entry struct {
	value      any
	expiration time.Time
}

func (e *entry) expired() bool {
	return time.Now().After(e.expiration)
}

// MemoryCache is a simple TTL in-memory cache. It backs the metadata
// resolver so repeated scans of the same albums do not hammer the
// rate-limited upstream API.
type MemoryCache struct {
	items map[string]*entry
	mutex sync.RWMutex
	ttl   time.Duration
}

// NewMemoryCache creates a memory cache whose entries expire after ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	c := &MemoryCache{
		items: make(map[string]*entry),
		ttl:   ttl,
	}
	go c.cleanupExpired()
	return c
}

// Set stores a value in the cache
func (c *MemoryCache) Set(key string, value any) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items[key] = &entry{
		value:      value,
		expiration: time.Now().Add(c.ttl),
	}
}

// Get retrieves a value from the cache
func (c *MemoryCache) Get(key string) (any, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	e, exists := c.items[key]
	if !exists || e.expired() {
		return nil, false
	}
	return e.value, true
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.items, key)
}

// Clear removes all items from the cache
func (c *MemoryCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items = make(map[string]*entry)
}

// cleanupExpired periodically drops expired entries so the map does
// not grow without bound between hits.
func (c *MemoryCache) cleanupExpired() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for range ticker.C {
		c.mutex.Lock()
		for key, e := range c.items {
			if e.expired() {
				delete(c.items, key)
			}
		}
		c.mutex.Unlock()
	}
}
