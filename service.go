package tiercache

import (
	"context"
	"time"

	"github.com/magickw/tiercache/pkg/capability"
	"github.com/magickw/tiercache/pkg/stats"
)

// Service is the public cache surface. TierCache implements it directly;
// middleware wraps it to layer logging, metrics, and tracing without
// touching the core.
type Service interface {
	// Cache stores a value under key, routed to the best available tier.
	Cache(ctx context.Context, key string, value any, ttl time.Duration) error
	// Get retrieves the value stored under key.
	Get(ctx context.Context, key string) (any, bool)
	// Invalidate removes the entry stored under tagOrKey, and any entries
	// carrying it as an invalidation tag, from every tier.
	Invalidate(ctx context.Context, tagOrKey string) error
	// Clear removes all entries from every tier.
	Clear(ctx context.Context) error
	// GetStats returns a point-in-time snapshot of cache statistics.
	GetStats() stats.Stats
	// Capabilities returns the capability report resolved at initialization.
	Capabilities() capability.Report
	// IsEnhancedModeAvailable reports whether the structured tier is active.
	IsEnhancedModeAvailable() bool
	// RunDiagnostics exercises every configured tier and reports per-tier health.
	RunDiagnostics(ctx context.Context) Diagnostics
	// ExportCacheData serializes the full cache contents for transfer.
	ExportCacheData(ctx context.Context) ([]byte, error)
	// ImportCacheData merges previously exported contents into the cache.
	ImportCacheData(ctx context.Context, data []byte) error
	// Stop releases every resource held by the cache.
	Stop(ctx context.Context) error
}

// Middleware decorates a Service.
type Middleware func(Service) Service

// ApplyMiddleware wraps svc with the given middleware, outermost last.
func ApplyMiddleware(svc Service, mw ...Middleware) Service {
	for _, m := range mw {
		svc = m(svc)
	}

	return svc
}
