package backend

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/longbridgeapp/assert"
	"github.com/redis/go-redis/v9"

	"github.com/magickw/tiercache/pkg/cache"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewRedis(WithRedisClient(client))
	assert.Nil(t, err)

	return store, server
}

func TestRedis_RequiresClient(t *testing.T) {
	_, err := NewRedis()
	assert.NotNil(t, err)
}

func TestRedis_SetGetRoundTrip(t *testing.T) {
	store, _ := newTestRedis(t)
	ctx := context.Background()

	entry := cache.NewEntry("asset:logo", []byte("png-bytes"),
		cache.WithHeaders(map[string]string{"content-type": "image/png"}),
	)
	assert.Nil(t, store.Set(ctx, entry))

	got, ok := store.Get(ctx, "asset:logo")
	assert.True(t, ok)
	assert.Equal(t, []byte("png-bytes"), got.Value)
	assert.Equal(t, "image/png", got.Headers["content-type"])
	assert.Equal(t, 1, store.Count(ctx))
}

func TestRedis_ServerExpiryPrunesKeySet(t *testing.T) {
	store, server := newTestRedis(t)
	ctx := context.Background()

	entry := cache.NewEntry("short", []byte("v"), cache.WithTTL(time.Second))
	assert.Nil(t, store.Set(ctx, entry))

	// miniredis only expires on explicit clock advance.
	server.FastForward(2 * time.Second)

	_, ok := store.Get(ctx, "short")
	assert.False(t, ok)

	// The stale key-set member was pruned on the miss.
	assert.Equal(t, 0, store.Count(ctx))
}

func TestRedis_RemoveAndClear(t *testing.T) {
	store, _ := newTestRedis(t)
	ctx := context.Background()

	assert.Nil(t, store.Set(ctx, cache.NewEntry("a", []byte("1"))))
	assert.Nil(t, store.Set(ctx, cache.NewEntry("b", []byte("2"))))

	assert.Nil(t, store.Remove(ctx, "a"))

	keys, err := store.Keys(ctx)
	assert.Nil(t, err)
	assert.Equal(t, []string{"b"}, keys)

	assert.Nil(t, store.Clear(ctx))
	assert.Equal(t, 0, store.Count(ctx))
}

func TestRedis_GetReturnsPrivateCopy(t *testing.T) {
	store, _ := newTestRedis(t)
	ctx := context.Background()

	assert.Nil(t, store.Set(ctx, cache.NewEntry("k", []byte("v"))))

	first, ok := store.Get(ctx, "k")
	assert.True(t, ok)

	first.Value = []byte("mutated locally")

	second, ok := store.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), second.Value)
}
