package tiercache

import (
	"context"
	"sync"
	"time"

	"github.com/magickw/tiercache/internal/sentinel"
	"github.com/magickw/tiercache/pkg/backend"
	"github.com/magickw/tiercache/pkg/cache"
	"github.com/magickw/tiercache/pkg/stats"
)

// FailureRecord is one routed operation that had to skip a tier.
type FailureRecord struct {
	Backend   string
	Operation string
	Key       string
	Err       string
	Timestamp time.Time
}

// router walks an ordered backend chain. Writes land on the first tier that
// accepts them; reads return the first hit without falling through, since a
// miss on the primary tier means the entry was never written there.
type router struct {
	chain     []backend.IBackend
	collector stats.ICollector
	logger    Logger

	mu       sync.Mutex
	failures []FailureRecord
	next     int
	ringSize int
}

func newRouter(chain []backend.IBackend, collector stats.ICollector, logger Logger, ringSize int) *router {
	if ringSize <= 0 {
		ringSize = 1
	}

	return &router{
		chain:     chain,
		collector: collector,
		logger:    logger,
		failures:  make([]FailureRecord, 0, ringSize),
		ringSize:  ringSize,
	}
}

// set writes the entry to the first backend in the chain that accepts it.
// Every tier failing yields ErrAllBackendsFailed.
func (r *router) set(ctx context.Context, entry *cache.Entry) (string, error) {
	for _, tier := range r.chain {
		entry.Backend = tier.Name()

		if err := tier.Set(ctx, entry); err != nil {
			r.recordFailure(tier.Name(), "set", entry.Key, err)

			continue
		}

		return tier.Name(), nil
	}

	entry.Backend = ""

	return "", sentinel.ErrAllBackendsFailed
}

// get returns the first hit along the chain.
func (r *router) get(ctx context.Context, key string) (*cache.Entry, string, bool) {
	for _, tier := range r.chain {
		if entry, ok := tier.Get(ctx, key); ok {
			return entry, tier.Name(), true
		}
	}

	return nil, "", false
}

// remove deletes the key from every tier. Individual failures are recorded
// and the removal continues; a key left behind on a broken tier surfaces in
// diagnostics, not as an error to the caller.
func (r *router) remove(ctx context.Context, key string) error {
	var lastErr error

	for _, tier := range r.chain {
		if err := tier.Remove(ctx, key); err != nil {
			r.recordFailure(tier.Name(), "remove", key, err)
			lastErr = err
		}
	}

	return lastErr
}

// removeByTag deletes from every tier the entries that carry the given
// invalidation tag. Like remove, individual tier failures are recorded and
// the sweep continues.
func (r *router) removeByTag(ctx context.Context, tag string) error {
	var lastErr error

	for _, tier := range r.chain {
		if err := removeTagged(ctx, tier, tag); err != nil {
			r.recordFailure(tier.Name(), "remove-tag", tag, err)
			lastErr = err
		}
	}

	return lastErr
}

// removeTagged scans one tier and removes the entries carrying the tag.
func removeTagged(ctx context.Context, tier backend.IBackend, tag string) error {
	keys, err := tier.Keys(ctx)
	if err != nil {
		return err
	}

	var tagged []string

	for _, key := range keys {
		entry, ok := tier.Get(ctx, key)
		if !ok {
			continue
		}

		if entry.HasTag(tag) {
			tagged = append(tagged, key)
		}
	}

	if len(tagged) == 0 {
		return nil
	}

	return tier.Remove(ctx, tagged...)
}

// clear empties every tier.
func (r *router) clear(ctx context.Context) error {
	var lastErr error

	for _, tier := range r.chain {
		if err := tier.Clear(ctx); err != nil {
			r.recordFailure(tier.Name(), "clear", "", err)
			lastErr = err
		}
	}

	return lastErr
}

func (r *router) recordFailure(backendName, op, key string, err error) {
	if r.collector != nil {
		r.collector.Incr(stats.StatFallbacks, 1)
	}

	if r.logger != nil {
		r.logger.Printf("%s %s failed for %q, falling back: %v", backendName, op, key, err)
	}

	record := FailureRecord{
		Backend:   backendName,
		Operation: op,
		Key:       key,
		Err:       err.Error(),
		Timestamp: time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.failures) < r.ringSize {
		r.failures = append(r.failures, record)

		return
	}

	// Ring is full, overwrite the oldest slot.
	r.failures[r.next] = record
	r.next = (r.next + 1) % r.ringSize
}

// recentFailures returns a copy of the bounded failure buffer.
func (r *router) recentFailures() []FailureRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]FailureRecord, len(r.failures))
	copy(out, r.failures)

	return out
}
