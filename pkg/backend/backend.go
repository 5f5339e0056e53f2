// Package backend provides the storage adapters of the fallback chain. Each
// adapter wraps one physical storage tier behind an identical contract and
// converts every driver-specific failure into a uniform operation-failed
// signal at its boundary; nothing backend-specific propagates upward.
//
// Adapters are ranked by durability and performance:
// structured store (SQLite) > blob store (Redis) > string store (file) > in-memory.
package backend

import (
	"context"

	"github.com/magickw/tiercache/pkg/cache"
)

// IBackend is the contract every storage adapter must implement. The fallback
// router iterates a heterogeneous ordered list of adapters, so the contract is
// a plain interface rather than a generic constraint.
//
// All methods accept a context.Context for cancellation and timeout control.
type IBackend interface {
	// Name returns the adapter's backend name.
	Name() string
	// Get retrieves the entry with the given key, or reports a miss.
	Get(ctx context.Context, key string) (entry *cache.Entry, ok bool)
	// Set stores the entry. Driver failures surface as a wrapped
	// sentinel.ErrBackendOperationFailed.
	Set(ctx context.Context, entry *cache.Entry) error
	// Remove deletes the entries with the given keys. Missing keys are not an error.
	Remove(ctx context.Context, keys ...string) error
	// Keys returns the keys currently stored by the adapter.
	Keys(ctx context.Context) ([]string, error)
	// Count returns the number of entries currently stored.
	Count(ctx context.Context) int
	// Clear removes all entries from the adapter.
	Clear(ctx context.Context) error
}
