package backend

import (
	"context"
	"sync"
	"time"

	"github.com/magickw/tiercache/internal/constants"
	"github.com/magickw/tiercache/internal/sentinel"
	"github.com/magickw/tiercache/pkg/cache"
	"github.com/magickw/tiercache/pkg/eviction"
	"github.com/magickw/tiercache/pkg/stats"
)

// InMemory is the terminal fallback adapter. It stores entries in a sharded
// concurrent map, enforces a configurable entry cap with least-recently-used
// eviction, and removes expired entries lazily on access and periodically on
// a timer. It must never reject a well-formed write.
type InMemory struct {
	entries       cache.ConcurrentMap // sharded map holding the entries
	algorithm     eviction.IAlgorithm // key-recency tracker nominating eviction victims
	algorithmName string              // name of the eviction algorithm
	capacity      int                 // entry cap; zero means unbounded
	sweepInterval time.Duration       // interval of the expired-entry sweep
	collector     stats.ICollector    // optional eviction/expiration counters
	stop          chan struct{}       // signals the sweep loop to stop
	once          sync.Once           // ensures the sweep loop starts once
	stopOnce      sync.Once           // ensures the stop channel closes once
}

// NewInMemory creates a new in-memory adapter with the given options and
// starts its sweep loop.
func NewInMemory(opts ...Option[InMemory]) (*InMemory, error) {
	backendInstance := &InMemory{
		entries:       cache.NewConcurrentMap(),
		capacity:      constants.DefaultMemoryCapacity,
		sweepInterval: constants.DefaultSweepInterval,
		stop:          make(chan struct{}),
	}

	ApplyOptions(backendInstance, opts...)

	if backendInstance.capacity < 0 {
		return nil, sentinel.ErrInvalidCapacity
	}

	algorithm, err := eviction.New(backendInstance.algorithmName, backendInstance.capacity)
	if err != nil {
		return nil, err
	}

	backendInstance.algorithm = algorithm

	if backendInstance.sweepInterval > 0 {
		backendInstance.once.Do(func() {
			go backendInstance.sweepLoop()
		})
	}

	return backendInstance, nil
}

// SetCollector wires an optional stats collector for eviction and expiration counters.
func (cacheBackend *InMemory) SetCollector(collector stats.ICollector) {
	cacheBackend.collector = collector
}

// Name returns the adapter's backend name.
func (cacheBackend *InMemory) Name() string {
	return constants.InMemoryBackend
}

// Capacity returns the entry cap of the adapter.
func (cacheBackend *InMemory) Capacity() int {
	return cacheBackend.capacity
}

// Count returns the number of entries in the adapter.
func (cacheBackend *InMemory) Count(_ context.Context) int {
	return cacheBackend.entries.Count()
}

// Get retrieves the entry with the given key. Expired entries are removed
// lazily and reported as a miss.
func (cacheBackend *InMemory) Get(_ context.Context, key string) (*cache.Entry, bool) {
	entry, ok := cacheBackend.entries.Get(key)
	if !ok {
		return nil, false
	}

	if entry.Expired() {
		cacheBackend.entries.Remove(key)
		cacheBackend.algorithm.Delete(key)

		if cacheBackend.collector != nil {
			cacheBackend.collector.Incr(stats.StatExpirations, 1)
		}

		return nil, false
	}

	entry.Touch()
	cacheBackend.algorithm.Touch(key)

	return entry, true
}

// Set stores the entry, evicting least-recently-used entries while over capacity.
func (cacheBackend *InMemory) Set(_ context.Context, entry *cache.Entry) error {
	if err := entry.Valid(); err != nil {
		return err
	}

	entry.Backend = constants.InMemoryBackend

	cacheBackend.entries.Set(entry.Key, entry)
	cacheBackend.algorithm.Set(entry.Key)

	if cacheBackend.capacity > 0 {
		for cacheBackend.entries.Count() > cacheBackend.capacity {
			victim, ok := cacheBackend.algorithm.Evict()
			if !ok {
				break
			}

			cacheBackend.entries.Remove(victim)

			if cacheBackend.collector != nil {
				cacheBackend.collector.Incr(stats.StatEvictions, 1)
			}
		}
	}

	return nil
}

// Remove removes the entries with the given keys. Missing keys are not an error.
func (cacheBackend *InMemory) Remove(_ context.Context, keys ...string) error {
	for _, key := range keys {
		cacheBackend.entries.Remove(key)
		cacheBackend.algorithm.Delete(key)
	}

	return nil
}

// Keys returns the keys currently stored by the adapter.
func (cacheBackend *InMemory) Keys(_ context.Context) ([]string, error) {
	return cacheBackend.entries.Keys(), nil
}

// Clear removes all entries from the adapter.
func (cacheBackend *InMemory) Clear(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		defer close(done)

		for _, key := range cacheBackend.entries.Keys() {
			cacheBackend.algorithm.Delete(key)
		}

		cacheBackend.entries.Clear()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return sentinel.ErrTimeoutOrCanceled
	}
}

// Stop halts the sweep loop. Safe to call more than once.
func (cacheBackend *InMemory) Stop() {
	cacheBackend.stopOnce.Do(func() {
		close(cacheBackend.stop)
	})
}

// sweepLoop runs the periodic expired-entry sweep until Stop is called.
func (cacheBackend *InMemory) sweepLoop() {
	ticker := time.NewTicker(cacheBackend.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cacheBackend.sweepExpired()
		case <-cacheBackend.stop:
			return
		}
	}
}

// sweepExpired removes every expired entry. Safe to interleave with
// concurrent gets and puts.
func (cacheBackend *InMemory) sweepExpired() {
	cacheBackend.entries.Range(func(key string, entry *cache.Entry) bool {
		if entry.Expired() {
			cacheBackend.entries.Remove(key)
			cacheBackend.algorithm.Delete(key)

			if cacheBackend.collector != nil {
				cacheBackend.collector.Incr(stats.StatExpirations, 1)
			}
		}

		return true
	})
}
