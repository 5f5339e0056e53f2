package cache

import "sync"

// EntryPoolManager manages Entry object pools for memory efficiency.
type EntryPoolManager struct {
	pool sync.Pool
}

// NewEntryPoolManager creates a new EntryPoolManager with default configuration.
func NewEntryPoolManager() *EntryPoolManager {
	return &EntryPoolManager{
		pool: sync.Pool{New: func() any { return &Entry{} }},
	}
}

// Get retrieves an Entry from the pool.
func (m *EntryPoolManager) Get() *Entry {
	if v, ok := m.pool.Get().(*Entry); ok {
		return v
	}

	return &Entry{}
}

// Put returns an Entry to the pool.
func (m *EntryPoolManager) Put(e *Entry) {
	if e == nil {
		return
	}
	// Zero to avoid retaining references across pool reuses
	*e = Entry{}
	m.pool.Put(e)
}
