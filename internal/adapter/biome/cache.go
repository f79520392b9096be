package biome

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/couchcryptid/hotspot-etl/internal/domain"
	"github.com/couchcryptid/hotspot-etl/internal/observability"
)

type point struct {
	lat, lon float64
}

// CachedLocator wraps a BiomeLocator with an in-memory LRU cache. Detections
// repeat across overlapping slots, so most lookups in a refresh are hits.
type CachedLocator struct {
	inner   domain.BiomeLocator
	cache   *lru.Cache[point, string]
	metrics *observability.Metrics
}

// NewCachedLocator creates a cache decorator around a locator. metrics may be nil.
func NewCachedLocator(inner domain.BiomeLocator, maxEntries int, metrics *observability.Metrics) (*CachedLocator, error) {
	cache, err := lru.New[point, string](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("biome cache: %w", err)
	}
	return &CachedLocator{inner: inner, cache: cache, metrics: metrics}, nil
}

func (c *CachedLocator) Lookup(lat, lon float64) string {
	key := point{lat: lat, lon: lon}
	if name, ok := c.cache.Get(key); ok {
		c.observe("hit")
		return name
	}
	c.observe("miss")
	name := c.inner.Lookup(lat, lon)
	c.cache.Add(key, name)
	return name
}

// Len returns the number of cached coordinates.
func (c *CachedLocator) Len() int {
	return c.cache.Len()
}

func (c *CachedLocator) observe(result string) {
	if c.metrics != nil {
		c.metrics.BiomeCache.WithLabelValues(result).Inc()
	}
}
