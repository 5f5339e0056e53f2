package backend

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/longbridgeapp/assert"

	"github.com/magickw/tiercache/internal/sentinel"
	"github.com/magickw/tiercache/pkg/cache"
	"github.com/magickw/tiercache/pkg/stats"
)

func TestInMemory_SetGet(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		value       []byte
		expectedErr error
	}{
		{name: "valid entry", key: "key1", value: []byte("value1"), expectedErr: nil},
		{name: "empty key", key: "", value: []byte("value"), expectedErr: sentinel.ErrInvalidKey},
		{name: "nil value", key: "key2", value: nil, expectedErr: sentinel.ErrNilValue},
	}

	cacheBackend, err := NewInMemory(WithCapacity(10))
	assert.Nil(t, err)

	defer cacheBackend.Stop()

	ctx := context.Background()

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := cacheBackend.Set(ctx, cache.NewEntry(test.key, test.value))
			assert.Equal(t, test.expectedErr, err)

			if test.expectedErr == nil {
				entry, ok := cacheBackend.Get(ctx, test.key)
				assert.True(t, ok)
				assert.Equal(t, test.value, entry.Value)
			}
		})
	}
}

func TestInMemory_ExpiredEntryIsAMiss(t *testing.T) {
	cacheBackend, err := NewInMemory(WithCapacity(10), WithSweepInterval(time.Hour))
	assert.Nil(t, err)

	defer cacheBackend.Stop()

	ctx := context.Background()

	entry := cache.NewEntry("short", []byte("v"), cache.WithTTL(30*time.Millisecond))
	assert.Nil(t, cacheBackend.Set(ctx, entry))

	_, ok := cacheBackend.Get(ctx, "short")
	assert.True(t, ok)

	time.Sleep(60 * time.Millisecond)

	_, ok = cacheBackend.Get(ctx, "short")
	assert.False(t, ok)
	// Lazy expiry removed it entirely.
	assert.Equal(t, 0, cacheBackend.Count(ctx))
}

func TestInMemory_CapacityEvictsLRU(t *testing.T) {
	collector := stats.NewCollector()

	cacheBackend, err := NewInMemory(WithCapacity(3))
	assert.Nil(t, err)

	cacheBackend.SetCollector(collector)

	defer cacheBackend.Stop()

	ctx := context.Background()

	for i := range 3 {
		key := fmt.Sprintf("k%d", i)
		assert.Nil(t, cacheBackend.Set(ctx, cache.NewEntry(key, []byte("v"))))
	}

	// k0 becomes hot, so k1 is the eviction victim.
	_, ok := cacheBackend.Get(ctx, "k0")
	assert.True(t, ok)

	assert.Nil(t, cacheBackend.Set(ctx, cache.NewEntry("k3", []byte("v"))))
	assert.Equal(t, 3, cacheBackend.Count(ctx))

	_, ok = cacheBackend.Get(ctx, "k1")
	assert.False(t, ok)

	snapshot := collector.GetStats()
	assert.Equal(t, uint64(1), snapshot.Evictions)
}

func TestInMemory_SweepRemovesExpired(t *testing.T) {
	cacheBackend, err := NewInMemory(WithCapacity(10), WithSweepInterval(20*time.Millisecond))
	assert.Nil(t, err)

	defer cacheBackend.Stop()

	ctx := context.Background()

	assert.Nil(t, cacheBackend.Set(ctx, cache.NewEntry("gone", []byte("v"), cache.WithTTL(10*time.Millisecond))))
	assert.Nil(t, cacheBackend.Set(ctx, cache.NewEntry("kept", []byte("v"))))

	time.Sleep(80 * time.Millisecond)

	// The sweep removed the expired entry without any read touching it.
	assert.Equal(t, 1, cacheBackend.Count(ctx))

	keys, err := cacheBackend.Keys(ctx)
	assert.Nil(t, err)
	assert.Equal(t, []string{"kept"}, keys)
}

func TestInMemory_RemoveAndClear(t *testing.T) {
	cacheBackend, err := NewInMemory(WithCapacity(10))
	assert.Nil(t, err)

	defer cacheBackend.Stop()

	ctx := context.Background()

	assert.Nil(t, cacheBackend.Set(ctx, cache.NewEntry("a", []byte("1"))))
	assert.Nil(t, cacheBackend.Set(ctx, cache.NewEntry("b", []byte("2"))))

	assert.Nil(t, cacheBackend.Remove(ctx, "a", "missing"))
	assert.Equal(t, 1, cacheBackend.Count(ctx))

	assert.Nil(t, cacheBackend.Clear(ctx))
	assert.Equal(t, 0, cacheBackend.Count(ctx))
}
