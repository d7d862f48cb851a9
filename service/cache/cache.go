// Package cache holds the short-lived snapshot of the home page listing.
package cache

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/zzstop/hw05-final/cmd/models"
)

// IndexKey names the single slot used by the home page.
const IndexKey = "index_page"

const DefaultIndexTTL = 20 * time.Second

// Cache is the subset of a TTL cache the server depends on.
type Cache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration)
}

// NewMemory returns a process-local cache; expired entries are purged every cleanup interval.
func NewMemory(cleanup time.Duration) Cache {
	return gocache.New(gocache.NoExpiration, cleanup)
}

// IndexCache is a read-through cache of the full, unpaginated home listing.
// Writes never invalidate it: a new post shows up once the slot expires.
type IndexCache struct {
	store Cache
	ttl   time.Duration
}

func NewIndexCache(store Cache, ttl time.Duration) *IndexCache {
	if ttl <= 0 {
		ttl = DefaultIndexTTL
	}
	return &IndexCache{store: store, ttl: ttl}
}

// Posts returns the cached listing, calling load and storing its result on a miss.
// Concurrent misses may each call load; the last one wins.
func (c *IndexCache) Posts(load func() ([]models.Post, error)) ([]models.Post, error) {
	if cached, ok := c.store.Get(IndexKey); ok {
		if posts, ok := cached.([]models.Post); ok {
			return posts, nil
		}
	}

	posts, err := load()
	if err != nil {
		return nil, fmt.Errorf("loading index posts: %w", err)
	}
	c.store.Set(IndexKey, posts, c.ttl)
	return posts, nil
}
