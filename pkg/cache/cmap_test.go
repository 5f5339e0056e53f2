package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/longbridgeapp/assert"
)

func TestConcurrentMap_Basic(t *testing.T) {
	cmap := NewConcurrentMap()

	cmap.Set("a", NewEntry("a", []byte("1")))
	cmap.Set("b", NewEntry("b", []byte("2")))

	entry, ok := cmap.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "a", entry.Key)

	assert.Equal(t, 2, cmap.Count())

	cmap.Remove("a")

	_, ok = cmap.Get("a")
	assert.False(t, ok)

	cmap.Clear()
	assert.Equal(t, 0, cmap.Count())
}

func TestConcurrentMap_ConcurrentWriters(t *testing.T) {
	cmap := NewConcurrentMap()

	var wg sync.WaitGroup

	for worker := range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range 100 {
				key := fmt.Sprintf("w%d-k%d", worker, i)
				cmap.Set(key, NewEntry(key, []byte("v")))
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 800, cmap.Count())
}

func TestConcurrentMap_RangeAllowsMutation(t *testing.T) {
	cmap := NewConcurrentMap()

	for i := range 10 {
		key := fmt.Sprintf("k%d", i)
		cmap.Set(key, NewEntry(key, []byte("v")))
	}

	// Removing inside Range must not deadlock.
	cmap.Range(func(key string, _ *Entry) bool {
		cmap.Remove(key)

		return true
	})

	assert.Equal(t, 0, cmap.Count())
}
