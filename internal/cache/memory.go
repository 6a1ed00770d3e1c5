package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is a process-local TTL cache. It is safe for concurrent use.
type MemoryCache struct {
	c   *gocache.Cache
	ttl time.Duration
}

// NewMemoryCache returns a cache whose entries expire after ttl. Expired
// entries are swept every cleanup interval.
func NewMemoryCache(ttl time.Duration, cleanup time.Duration) *MemoryCache {
	return &MemoryCache{c: gocache.New(ttl, cleanup), ttl: ttl}
}

// Get returns the value stored under key.
func (m *MemoryCache) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	return m.c.Get(key)
}

// Set stores value under key with the default TTL.
func (m *MemoryCache) Set(key string, value any) {
	if m == nil {
		return
	}
	m.c.Set(key, value, gocache.DefaultExpiration)
}

// Len reports the number of unexpired entries.
func (m *MemoryCache) Len() int {
	if m == nil {
		return 0
	}
	return m.c.ItemCount()
}

// Flush drops every entry.
func (m *MemoryCache) Flush() {
	if m != nil {
		m.c.Flush()
	}
}
