package services

import (
	"fmt"
	"time"

	"deskbridge/internal/models"

	"github.com/dgraph-io/ristretto"
)

const (
	factsKey         = "host-facts"
	factsNumCounters = 1e3
	factsMaxCost     = 1 << 20
	factsBufferItems = 64
)

// FactsCache holds the static host facts for a fixed TTL. A nil or disabled
// cache always misses.
type FactsCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewFactsCache creates a cache keeping facts for ttl. ttl <= 0 disables it.
func NewFactsCache(ttl time.Duration) (*FactsCache, error) {
	if ttl <= 0 {
		return &FactsCache{}, nil
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: factsNumCounters,
		MaxCost:     factsMaxCost,
		BufferItems: factsBufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize facts cache: %w", err)
	}

	return &FactsCache{cache: cache, ttl: ttl}, nil
}

// Get returns the cached facts if they are still valid
func (c *FactsCache) Get() (models.HostFacts, bool) {
	if c == nil || c.cache == nil {
		return models.HostFacts{}, false
	}
	if val, found := c.cache.Get(factsKey); found {
		if facts, ok := val.(models.HostFacts); ok {
			return facts, true
		}
	}
	return models.HostFacts{}, false
}

// Set stores facts and waits until they are visible to Get
func (c *FactsCache) Set(facts models.HostFacts) {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.SetWithTTL(factsKey, facts, 1, c.ttl)
	c.cache.Wait()
}

// Clear drops the cached facts
func (c *FactsCache) Clear() {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Del(factsKey)
}

// Close releases the cache's background goroutines
func (c *FactsCache) Close() {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Close()
}
