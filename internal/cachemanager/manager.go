// Package cachemanager wraps go-cache with typed keys and values.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager is a typed TTL cache.
type CacheManager[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
	Flush(ctx context.Context) error
	Len() int
}

// ExpiringCache is a CacheManager that reports expirations.
type ExpiringCache[K comparable, V any] interface {
	CacheManager[K, V]
	// OnExpired registers fn to run for every entry removed by expiry or Delete.
	OnExpired(fn func(key K, value V))
	// DeleteExpired removes expired entries now instead of waiting for the janitor.
	DeleteExpired()
}
