package eviction

// The Least Recently Used (LRU) eviction algorithm discards the least recently
// used keys first. It maintains a doubly linked list of keys with the most
// recently used key at the front; the key at the back is always the next
// eviction victim.

import (
	"sync"

	"github.com/magickw/tiercache/internal/sentinel"
)

// lruNode represents a tracked key in the LRU list.
type lruNode struct {
	key  string
	prev *lruNode
	next *lruNode
}

// lruNodePool is a pool of lruNode values.
//
//nolint:gochecknoglobals
var lruNodePool = sync.Pool{
	New: func() any {
		return &lruNode{}
	},
}

// LRU tracks key recency for the in-memory backend.
type LRU struct {
	capacity int                 // soft capacity hint, used to presize the map
	nodes    map[string]*lruNode // tracked keys
	head     *lruNode            // most recently used
	tail     *lruNode            // least recently used
	mutex    sync.Mutex          // protects the list and the map
}

// NewLRU creates a new LRU tracker with the given capacity hint.
func NewLRU(capacity int) (*LRU, error) {
	if capacity < 0 {
		return nil, sentinel.ErrInvalidCapacity
	}

	return &LRU{
		capacity: capacity,
		nodes:    make(map[string]*lruNode, capacity),
	}, nil
}

// Set records a write of the given key, moving it to the front.
func (lru *LRU) Set(key string) {
	lru.mutex.Lock()
	defer lru.mutex.Unlock()

	if node, ok := lru.nodes[key]; ok {
		lru.moveToFront(node)

		return
	}

	node, ok := lruNodePool.Get().(*lruNode)
	if !ok {
		node = &lruNode{}
	}

	node.key = key
	lru.nodes[key] = node
	lru.addToFront(node)
}

// Touch records an access of the given key, moving it to the front.
func (lru *LRU) Touch(key string) {
	lru.mutex.Lock()
	defer lru.mutex.Unlock()

	if node, ok := lru.nodes[key]; ok {
		lru.moveToFront(node)
	}
}

// Evict removes the least recently used key from the tracker and returns it.
func (lru *LRU) Evict() (string, bool) {
	lru.mutex.Lock()
	defer lru.mutex.Unlock()

	if lru.tail == nil {
		return "", false
	}

	victim := lru.tail
	key := victim.key
	lru.removeFromList(victim)
	delete(lru.nodes, key)
	lruNodePool.Put(victim)

	return key, true
}

// Delete removes the given key from the tracker.
func (lru *LRU) Delete(key string) {
	lru.mutex.Lock()
	defer lru.mutex.Unlock()

	node, ok := lru.nodes[key]
	if !ok {
		return
	}

	lru.removeFromList(node)
	delete(lru.nodes, key)
	lruNodePool.Put(node)
}

// Len returns the number of tracked keys.
func (lru *LRU) Len() int {
	lru.mutex.Lock()
	defer lru.mutex.Unlock()

	return len(lru.nodes)
}

// moveToFront moves the given node to the front of the list.
func (lru *LRU) moveToFront(node *lruNode) {
	if node == lru.head {
		return
	}

	lru.removeFromList(node)
	lru.addToFront(node)
}

// removeFromList removes the given node from the list.
func (lru *LRU) removeFromList(node *lruNode) {
	if node == lru.head {
		lru.head = node.next
	} else if node.prev != nil {
		node.prev.next = node.next
	}

	if node == lru.tail {
		lru.tail = node.prev
	} else if node.next != nil {
		node.next.prev = node.prev
	}

	node.prev = nil
	node.next = nil
}

// addToFront adds the given node to the front of the list.
func (lru *LRU) addToFront(node *lruNode) {
	if lru.head == nil {
		lru.head = node
		lru.tail = node

		return
	}

	node.next = lru.head
	lru.head.prev = node
	lru.head = node
}
