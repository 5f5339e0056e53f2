package middleware

import (
	"context"
	"time"

	"github.com/magickw/tiercache"
	"github.com/magickw/tiercache/pkg/capability"
	"github.com/magickw/tiercache/pkg/stats"
)

// StatsCollectorMiddleware collects per-method call counts and timings. It
// can and should re-use the same stats collector as the cache itself.
type StatsCollectorMiddleware struct {
	next           tiercache.Service
	statsCollector stats.ICollector
}

// NewStatsCollectorMiddleware returns a new StatsCollectorMiddleware.
func NewStatsCollectorMiddleware(next tiercache.Service, statsCollector stats.ICollector) tiercache.Service {
	return &StatsCollectorMiddleware{next: next, statsCollector: statsCollector}
}

// Cache collects stats for the Cache method.
func (mw StatsCollectorMiddleware) Cache(ctx context.Context, key string, value any, ttl time.Duration) error {
	start := time.Now()

	defer func() {
		mw.statsCollector.Timing("tiercache_cache_duration", time.Since(start).Nanoseconds())
		mw.statsCollector.Incr("tiercache_cache_count", 1)
	}()

	return mw.next.Cache(ctx, key, value, ttl)
}

// Get collects stats for the Get method.
func (mw StatsCollectorMiddleware) Get(ctx context.Context, key string) (any, bool) {
	start := time.Now()

	defer func() {
		mw.statsCollector.Timing("tiercache_get_duration", time.Since(start).Nanoseconds())
		mw.statsCollector.Incr("tiercache_get_count", 1)
	}()

	return mw.next.Get(ctx, key)
}

// Invalidate collects stats for the Invalidate method.
func (mw StatsCollectorMiddleware) Invalidate(ctx context.Context, key string) error {
	start := time.Now()

	defer func() {
		mw.statsCollector.Timing("tiercache_invalidate_duration", time.Since(start).Nanoseconds())
		mw.statsCollector.Incr("tiercache_invalidate_count", 1)
	}()

	return mw.next.Invalidate(ctx, key)
}

// Clear collects stats for the Clear method.
func (mw StatsCollectorMiddleware) Clear(ctx context.Context) error {
	start := time.Now()

	defer func() {
		mw.statsCollector.Timing("tiercache_clear_duration", time.Since(start).Nanoseconds())
		mw.statsCollector.Incr("tiercache_clear_count", 1)
	}()

	return mw.next.Clear(ctx)
}

// GetStats returns the stats of the cache.
func (mw StatsCollectorMiddleware) GetStats() stats.Stats {
	return mw.next.GetStats()
}

// Capabilities returns the capability report of the cache.
func (mw StatsCollectorMiddleware) Capabilities() capability.Report {
	return mw.next.Capabilities()
}

// IsEnhancedModeAvailable reports whether the structured tier is active.
func (mw StatsCollectorMiddleware) IsEnhancedModeAvailable() bool {
	return mw.next.IsEnhancedModeAvailable()
}

// RunDiagnostics collects stats for the RunDiagnostics method.
func (mw StatsCollectorMiddleware) RunDiagnostics(ctx context.Context) tiercache.Diagnostics {
	start := time.Now()

	defer func() {
		mw.statsCollector.Timing("tiercache_diagnostics_duration", time.Since(start).Nanoseconds())
		mw.statsCollector.Incr("tiercache_diagnostics_count", 1)
	}()

	return mw.next.RunDiagnostics(ctx)
}

// ExportCacheData collects stats for the ExportCacheData method.
func (mw StatsCollectorMiddleware) ExportCacheData(ctx context.Context) ([]byte, error) {
	start := time.Now()

	defer func() {
		mw.statsCollector.Timing("tiercache_export_duration", time.Since(start).Nanoseconds())
		mw.statsCollector.Incr("tiercache_export_count", 1)
	}()

	return mw.next.ExportCacheData(ctx)
}

// ImportCacheData collects stats for the ImportCacheData method.
func (mw StatsCollectorMiddleware) ImportCacheData(ctx context.Context, data []byte) error {
	start := time.Now()

	defer func() {
		mw.statsCollector.Timing("tiercache_import_duration", time.Since(start).Nanoseconds())
		mw.statsCollector.Incr("tiercache_import_count", 1)
	}()

	return mw.next.ImportCacheData(ctx, data)
}

// Stop collects stats for the Stop method.
func (mw StatsCollectorMiddleware) Stop(ctx context.Context) error {
	start := time.Now()

	defer func() {
		mw.statsCollector.Timing("tiercache_stop_duration", time.Since(start).Nanoseconds())
		mw.statsCollector.Incr("tiercache_stop_count", 1)
	}()

	return mw.next.Stop(ctx)
}
