package tiercache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/longbridgeapp/assert"
	"github.com/redis/go-redis/v9"

	"github.com/magickw/tiercache/pkg/cache"
)

func mustEntry(t *testing.T, key string) *cache.Entry {
	t.Helper()

	return cache.NewEntry(key, []byte("x"), cache.WithTTL(time.Minute))
}

func newBroadcastPeer(t *testing.T, addr string) *TierCache {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr})

	cfg := DefaultConfig()
	cfg.FileDir = t.TempDir()

	tc, err := New(WithConfig(cfg), WithRedisClient(client))
	assert.Nil(t, err)
	assert.Nil(t, tc.Initialize(context.Background()))

	t.Cleanup(func() {
		_ = tc.Stop(context.Background())
		_ = client.Close()
	})

	return tc
}

// Two caches share a blob store; an invalidation on one evicts the other's
// in-memory copy even though the shared tiers already dropped the entry.
func TestBroadcast_InvalidationReachesPeers(t *testing.T) {
	ctx := context.Background()
	server := miniredis.RunT(t)

	publisher := newBroadcastPeer(t, server.Addr())
	subscriber := newBroadcastPeer(t, server.Addr())

	assert.True(t, publisher.Capabilities().Broadcast)
	assert.NotNil(t, subscriber.broadcast)

	// Write through the publisher, then warm the subscriber's memory tier
	// by reading through it.
	assert.Nil(t, publisher.Cache(ctx, "shared", "value", time.Minute))

	_, ok := subscriber.Get(ctx, "shared")
	assert.True(t, ok)
	assert.Nil(t, subscriber.memory.Set(ctx, mustEntry(t, "shared")))

	assert.Nil(t, publisher.Invalidate(ctx, "shared"))

	// The subscriber's transient copy disappears once the message lands.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, found := subscriber.memory.Get(ctx, "shared"); !found {
			break
		}

		if time.Now().After(deadline) {
			t.Fatal("invalidation never reached the peer")
		}

		time.Sleep(10 * time.Millisecond)
	}
}

func TestBroadcast_FlushClearsPeerMemory(t *testing.T) {
	ctx := context.Background()
	server := miniredis.RunT(t)

	publisher := newBroadcastPeer(t, server.Addr())
	subscriber := newBroadcastPeer(t, server.Addr())

	assert.Nil(t, subscriber.memory.Set(ctx, mustEntry(t, "local-only")))

	assert.Nil(t, publisher.Clear(ctx))

	deadline := time.Now().Add(2 * time.Second)
	for {
		if subscriber.memory.Count(ctx) == 0 {
			break
		}

		if time.Now().After(deadline) {
			t.Fatal("flush never reached the peer")
		}

		time.Sleep(10 * time.Millisecond)
	}
}
