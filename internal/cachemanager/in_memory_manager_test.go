package cachemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type processKey string

func TestNewInMemoryCacheManager(t *testing.T) {
	require.NotPanics(t, func() {
		NewInMemoryCacheManager[string, string]("test", NoExpiration, 0)
	})
}

func TestInMemoryCacheManager_GetExistingValue(t *testing.T) {
	cache := NewInMemoryCacheManager[processKey, uint64]("detached", NoExpiration, 0)
	cache.Set(context.Background(), "1", 1, NoExpiration)

	got, ok := cache.Get(context.Background(), "1")
	require.True(t, ok)
	require.Equal(t, uint64(1), got)
	require.Equal(t, 1, cache.Len())
}

func TestInMemoryCacheManager_GetMissing(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("detached", NoExpiration, 0)

	got, ok := cache.Get(context.Background(), "nope")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemoryCacheManager_GetWrongType(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("detached", NoExpiration, 0)
	cache.cache.Set("1", 123, NoExpiration)

	got, ok := cache.Get(context.Background(), "1")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemoryCacheManager_DeleteExpiredFiresCallback(t *testing.T) {
	cache := NewInMemoryCacheManager[processKey, int]("detached", NoExpiration, 0)

	var expired []processKey
	cache.OnExpired(func(key processKey, _ int) { expired = append(expired, key) })

	cache.Set(context.Background(), "short", 1, time.Millisecond)
	cache.Set(context.Background(), "long", 2, time.Hour)
	time.Sleep(5 * time.Millisecond)

	cache.DeleteExpired()

	require.Equal(t, []processKey{"short"}, expired)
	require.Equal(t, 1, cache.Len())
}

func TestInMemoryCacheManager_DeleteFiresCallback(t *testing.T) {
	cache := NewInMemoryCacheManager[string, int]("detached", NoExpiration, 0)

	fired := 0
	cache.OnExpired(func(string, int) { fired++ })
	cache.Set(context.Background(), "a", 1, NoExpiration)

	require.NoError(t, cache.Delete(context.Background(), "a", "missing"))
	require.Equal(t, 1, fired)
}

func TestInMemoryCacheManager_FlushIsSilent(t *testing.T) {
	cache := NewInMemoryCacheManager[string, int]("detached", NoExpiration, 0)

	fired := 0
	cache.OnExpired(func(string, int) { fired++ })
	cache.Set(context.Background(), "a", 1, NoExpiration)

	require.NoError(t, cache.Flush(context.Background()))
	require.Zero(t, fired)
	require.Zero(t, cache.Len())
}
