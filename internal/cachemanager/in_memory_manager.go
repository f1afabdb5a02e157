package cachemanager

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/zjrosen/procview/internal/log"
)

// NoExpiration keeps an item until it is deleted.
const NoExpiration = gocache.NoExpiration

const DefaultCleanupInterval = time.Minute

// NewInMemoryCacheManager creates a cache. A cleanupInterval <= 0 disables the
// background janitor; expired items then go only on DeleteExpired.
func NewInMemoryCacheManager[K ~string, V any](useCase string, defaultExpiration, cleanupInterval time.Duration) *InMemoryCacheManager[K, V] {
	return &InMemoryCacheManager[K, V]{
		useCase: useCase,
		cache:   gocache.New(defaultExpiration, cleanupInterval),
	}
}

// InMemoryCacheManager is the go-cache implementation of ExpiringCache.
type InMemoryCacheManager[K ~string, V any] struct {
	useCase string
	cache   *gocache.Cache
}

var _ ExpiringCache[string, int] = (*InMemoryCacheManager[string, int])(nil)

// Get retrieves an unexpired item by key.
func (c *InMemoryCacheManager[K, V]) Get(_ context.Context, key K) (V, bool) {
	var zeroValue V

	value, found := c.cache.Get(string(key))
	if !found {
		return zeroValue, false
	}

	v, ok := value.(V)
	if !ok {
		log.Error(log.CatCache, "wrong type assertion when getting value", "cache", c.useCase, "key", key)
		return zeroValue, false
	}

	log.Debug(log.CatCache, "cache hit", "cache", c.useCase, "key", key)
	return v, true
}

// Set stores value under key for ttl, replacing any previous item.
func (c *InMemoryCacheManager[K, V]) Set(_ context.Context, key K, value V, ttl time.Duration) {
	c.cache.Set(string(key), value, ttl)
}

// Delete removes keys. The expiry callback fires for each removed item.
func (c *InMemoryCacheManager[K, V]) Delete(_ context.Context, keys ...K) error {
	for _, key := range keys {
		c.cache.Delete(string(key))
	}
	return nil
}

// Flush drops every item without firing the expiry callback.
func (c *InMemoryCacheManager[K, V]) Flush(context.Context) error {
	c.cache.Flush()
	return nil
}

// Len returns the item count, expired-but-unswept items included.
func (c *InMemoryCacheManager[K, V]) Len() int {
	return c.cache.ItemCount()
}

func (c *InMemoryCacheManager[K, V]) OnExpired(fn func(key K, value V)) {
	if fn == nil {
		c.cache.OnEvicted(nil)
		return
	}
	c.cache.OnEvicted(func(key string, value any) {
		v, ok := value.(V)
		if !ok {
			log.Error(log.CatCache, "wrong type assertion on eviction", "cache", c.useCase, "key", key)
			return
		}
		log.Debug(log.CatCache, "cache eviction", "cache", c.useCase, "key", key)
		fn(K(key), v)
	})
}

func (c *InMemoryCacheManager[K, V]) DeleteExpired() {
	c.cache.DeleteExpired()
}
