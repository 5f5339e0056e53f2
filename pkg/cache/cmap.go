package cache

import (
	"sync"
)

// ShardCount is the number of shards of the concurrent map.
const (
	ShardCount        = 32
	prime32    uint32 = 16777619
	offset32   uint32 = 2166136261
)

// ConcurrentMap is a "thread" safe map of type string:*Entry.
// To avoid lock bottlenecks this map is divided into several (ShardCount) map shards.
type ConcurrentMap struct {
	shards []*concurrentMapShard
}

type concurrentMapShard struct {
	sync.RWMutex // guards access to the internal map

	entries map[string]*Entry
}

// NewConcurrentMap creates a new concurrent map.
func NewConcurrentMap() ConcurrentMap {
	cmap := ConcurrentMap{
		shards: make([]*concurrentMapShard, ShardCount),
	}
	for i := range ShardCount {
		cmap.shards[i] = &concurrentMapShard{entries: make(map[string]*Entry)}
	}

	return cmap
}

// getShard returns the shard under the given key.
func (m ConcurrentMap) getShard(key string) *concurrentMapShard {
	return m.shards[uint(fnv32(key))%uint(ShardCount)]
}

// Set stores the given entry under the specified key.
func (m ConcurrentMap) Set(key string, entry *Entry) {
	shard := m.getShard(key)
	shard.Lock()
	shard.entries[key] = entry
	shard.Unlock()
}

// Get retrieves an entry from the map under the given key.
func (m ConcurrentMap) Get(key string) (*Entry, bool) {
	shard := m.getShard(key)
	shard.RLock()
	entry, ok := shard.entries[key]
	shard.RUnlock()

	return entry, ok
}

// Count returns the number of entries in the map.
func (m ConcurrentMap) Count() int {
	count := 0

	for i := range ShardCount {
		shard := m.shards[i]
		shard.RLock()
		count += len(shard.entries)
		shard.RUnlock()
	}

	return count
}

// Remove removes an entry from the map.
func (m ConcurrentMap) Remove(key string) {
	shard := m.getShard(key)
	shard.Lock()
	delete(shard.entries, key)
	shard.Unlock()
}

// Clear removes all entries from the map.
func (m ConcurrentMap) Clear() {
	for i := range ShardCount {
		shard := m.shards[i]
		shard.Lock()
		shard.entries = make(map[string]*Entry)
		shard.Unlock()
	}
}

// Keys returns all keys present in the map.
func (m ConcurrentMap) Keys() []string {
	keys := make([]string, 0, m.Count())

	for i := range ShardCount {
		shard := m.shards[i]
		shard.RLock()

		for key := range shard.entries {
			keys = append(keys, key)
		}

		shard.RUnlock()
	}

	return keys
}

// Range calls fn for every key/entry pair. It snapshots each shard under its
// read lock before invoking fn, so fn may safely mutate the map.
func (m ConcurrentMap) Range(fn func(key string, entry *Entry) bool) {
	for i := range ShardCount {
		shard := m.shards[i]
		shard.RLock()

		snapshot := make(map[string]*Entry, len(shard.entries))
		for key, entry := range shard.entries {
			snapshot[key] = entry
		}

		shard.RUnlock()

		for key, entry := range snapshot {
			if !fn(key, entry) {
				return
			}
		}
	}
}

func fnv32(key string) uint32 {
	hash := offset32
	for i := range len(key) {
		hash *= prime32
		hash ^= uint32(key[i])
	}

	return hash
}
