package eviction

import (
	"errors"
	"testing"

	"github.com/longbridgeapp/assert"

	"github.com/magickw/tiercache/internal/sentinel"
)

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	lru, err := NewLRU(3)
	assert.Nil(t, err)

	lru.Set("a")
	lru.Set("b")
	lru.Set("c")

	// a becomes the most recent, so b is the coldest.
	lru.Touch("a")

	victim, ok := lru.Evict()
	assert.True(t, ok)
	assert.Equal(t, "b", victim)
}

func TestLRU_DeleteRemovesFromOrder(t *testing.T) {
	lru, err := NewLRU(2)
	assert.Nil(t, err)

	lru.Set("a")
	lru.Set("b")
	lru.Delete("a")

	victim, ok := lru.Evict()
	assert.True(t, ok)
	assert.Equal(t, "b", victim)

	_, ok = lru.Evict()
	assert.False(t, ok)
	assert.Equal(t, 0, lru.Len())
}

func TestLRU_SetExistingKeyRefreshes(t *testing.T) {
	lru, err := NewLRU(2)
	assert.Nil(t, err)

	lru.Set("a")
	lru.Set("b")
	lru.Set("a")

	victim, ok := lru.Evict()
	assert.True(t, ok)
	assert.Equal(t, "b", victim)
}

func TestNew_UnknownAlgorithm(t *testing.T) {
	_, err := New("clock", 10)
	assert.NotNil(t, err)
}

func TestNew_DefaultsToLRU(t *testing.T) {
	algorithm, err := New("", 4)
	assert.Nil(t, err)

	algorithm.Set("x")
	assert.Equal(t, 1, algorithm.Len())
}

func TestNewLRU_InvalidCapacity(t *testing.T) {
	_, err := NewLRU(-1)
	assert.True(t, errors.Is(err, sentinel.ErrInvalidCapacity))
}
