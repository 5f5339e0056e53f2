// Package eviction provides the eviction algorithms used by the in-memory
// backend to enforce its size cap.
package eviction

import (
	"github.com/hyp3rd/ewrap"

	"github.com/magickw/tiercache/internal/sentinel"
)

// IAlgorithm tracks key usage and nominates victims when the owning backend
// is over capacity. Implementations track keys only; the entries themselves
// live in the backend's map.
type IAlgorithm interface {
	// Set records a write of the given key.
	Set(key string)
	// Touch records an access of the given key.
	Touch(key string)
	// Evict nominates the next victim and removes it from the tracker.
	Evict() (string, bool)
	// Delete removes the given key from the tracker.
	Delete(key string)
	// Len returns the number of tracked keys.
	Len() int
}

// New creates the eviction algorithm with the given name.
func New(name string, capacity int) (IAlgorithm, error) {
	switch name {
	case "lru", "":
		return NewLRU(capacity)
	default:
		return nil, ewrap.Wrapf(sentinel.ErrParamCannotBeEmpty, "unknown eviction algorithm %q", name)
	}
}
