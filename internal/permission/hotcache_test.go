package permission

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestHotCache(t *testing.T, ttl time.Duration) (*HotCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewHotCache(client, ttl), mr
}

func TestHotCachePutGet(t *testing.T) {
	cache, _ := newTestHotCache(t, time.Minute)
	ctx := context.Background()

	decision := Decision{Level: Read | Write, Source: SourceDirect, SourceNode: doc100}
	require.NoError(t, cache.Put(ctx, doc100, 7, decision))

	got, err := cache.Get(ctx, doc100, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, Read|Write, got.Level)
	require.Equal(t, SourceDirect, got.Source)
	require.Equal(t, doc100, got.SourceNode)

	// Other users and other nodes stay cold.
	miss, err := cache.Get(ctx, doc100, 8)
	require.NoError(t, err)
	require.Nil(t, miss)
	miss, err = cache.Get(ctx, folder10, 7)
	require.NoError(t, err)
	require.Nil(t, miss)
}

func TestHotCacheBumpRetiresEntries(t *testing.T) {
	cache, _ := newTestHotCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, doc100, 7, Decision{Level: Read, Source: SourceDirect}))
	require.NoError(t, cache.Bump(ctx))

	got, err := cache.Get(ctx, doc100, 7)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestHotCacheSkipsExpiredDecision(t *testing.T) {
	cache, _ := newTestHotCache(t, time.Minute)
	ctx := context.Background()

	// A decision already past its expiry is never stored.
	past := time.Now().Add(-time.Minute)
	require.NoError(t, cache.Put(ctx, doc100, 7, Decision{Level: Read, ExpiresAt: &past}))
	got, err := cache.Get(ctx, doc100, 7)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestHotCacheTTLCappedByDecisionExpiry(t *testing.T) {
	cache, mr := newTestHotCache(t, time.Hour)
	ctx := context.Background()

	soon := time.Now().Add(2 * time.Second)
	require.NoError(t, cache.Put(ctx, doc100, 7, Decision{Level: Read, ExpiresAt: &soon}))

	mr.FastForward(3 * time.Second)
	got, err := cache.Get(ctx, doc100, 7)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestHotCacheNilClientIsNoop(t *testing.T) {
	cache := NewHotCache(nil, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, doc100, 7, Decision{Level: Read}))
	got, err := cache.Get(ctx, doc100, 7)
	require.NoError(t, err)
	require.Nil(t, got)
	require.NoError(t, cache.Bump(ctx))

	var nilCache *HotCache
	require.NoError(t, nilCache.Put(ctx, doc100, 7, Decision{Level: Read}))
	got, err = nilCache.Get(ctx, doc100, 7)
	require.NoError(t, err)
	require.Nil(t, got)
}
