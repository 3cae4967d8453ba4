package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceCacheKeyStringUppercasesSymbol(t *testing.T) {
	key := PriceCacheKey{Symbol: "eth", Hour: 1700000000}
	assert.Equal(t, "price:ETH:1700000000", key.String())
}

func TestMemoryCacheGetMissReturnsErrCacheMiss(t *testing.T) {
	mc := &MemoryCache{data: make(map[string]cacheItem)}
	_, err := mc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheSetThenGetRoundTrips(t *testing.T) {
	mc := &MemoryCache{data: make(map[string]cacheItem)}
	require.NoError(t, mc.Set(context.Background(), "k", []byte("v"), time.Minute))

	got, err := mc.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestMemoryCacheGetExpiredEntryReturnsErrCacheMiss(t *testing.T) {
	mc := &MemoryCache{data: make(map[string]cacheItem)}
	require.NoError(t, mc.Set(context.Background(), "k", []byte("v"), -time.Second))

	_, err := mc.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestProtectedCacheSetEmptyThenGetReturnsErrCacheMiss(t *testing.T) {
	mc := &MemoryCache{data: make(map[string]cacheItem)}
	pc := NewProtectedCache(mc, DefaultCacheProtection)
	ctx := context.Background()

	require.NoError(t, pc.SetEmpty(ctx, "price:ETH:1700000000"))
	_, err := pc.Get(ctx, "price:ETH:1700000000")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

// TestProtectedCacheInvalidateEmptyMarkerClearsMissOnly covers the
// (symbol, hour)-specific invalidation Store.InsertPriceCacheEntry relies
// on: once a provider resolves a price the store previously recorded as
// missing, the marker goes away and the real value written afterward is
// readable again.
func TestProtectedCacheInvalidateEmptyMarkerClearsMissOnly(t *testing.T) {
	mc := &MemoryCache{data: make(map[string]cacheItem)}
	pc := NewProtectedCache(mc, DefaultCacheProtection)
	ctx := context.Background()
	key := PriceCacheKey{Symbol: "ETH", Hour: 1700000000}.String()

	require.NoError(t, pc.SetEmpty(ctx, key))
	require.NoError(t, pc.InvalidateEmptyMarker(ctx, key))

	_, err := pc.Get(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss, "marker cleared, no real value written yet")

	require.NoError(t, pc.Set(ctx, key, []byte("3000.50"), time.Hour))
	got, err := pc.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("3000.50"), got)
}

func TestProtectedCacheInvalidateEmptyMarkerNoopWhenPenetrationGuardDisabled(t *testing.T) {
	mc := &MemoryCache{data: make(map[string]cacheItem)}
	protection := DefaultCacheProtection
	protection.PreventPenetration = false
	pc := NewProtectedCache(mc, protection)
	ctx := context.Background()

	assert.NoError(t, pc.InvalidateEmptyMarker(ctx, "price:ETH:1700000000"))
}
