// Package cache remembers geocoder answers so repeated searches for the same
// place do not hit the upstream geocoder.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// Backend names, used in config and as metric labels.
const (
	BackendInMemory  = "in_memory"
	BackendMemcached = "memcached"
)

// Cache stores resolved locations by normalized query. Get returns
// (zero, false, nil) on a miss; Set stores with TTL.
type Cache interface {
	Get(ctx context.Context, key string) (models.Location, bool, error)
	Set(ctx context.Context, key string, value models.Location, ttl time.Duration) error
}

// Key normalizes a free-text query into a cache key: lower case, single
// underscores between words. Memcached rejects keys with spaces.
func Key(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), "_")
}

// InMemoryCache implements Cache using a map with TTL-based expiration.
// Expired entries are removed on access. Safe for concurrent use.
type InMemoryCache struct {
	mu    sync.Mutex
	data  map[string]cacheEntry
	clock clockwork.Clock
}

type cacheEntry struct {
	value     models.Location
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return NewInMemoryCacheWithClock(clockwork.NewRealClock())
}

// NewInMemoryCacheWithClock is NewInMemoryCache with an injectable clock for tests.
func NewInMemoryCacheWithClock(clock clockwork.Clock) *InMemoryCache {
	return &InMemoryCache{
		data:  make(map[string]cacheEntry),
		clock: clock,
	}
}

// Get returns the cached location for key if present and not expired.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.Location, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return models.Location{}, false, nil
	}
	if c.clock.Now().After(entry.expiresAt) {
		delete(c.data, key)
		return models.Location{}, false, nil
	}
	return entry.value, true, nil
}

// Set stores a location for ttl.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.Location, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = cacheEntry{
		value:     value,
		expiresAt: c.clock.Now().Add(ttl),
	}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
