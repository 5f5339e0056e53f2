package middleware

import (
	"context"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/magickw/tiercache"
	"github.com/magickw/tiercache/pkg/capability"
	"github.com/magickw/tiercache/pkg/stats"
)

// OTelMetricsMiddleware emits OpenTelemetry metrics for service methods.
type OTelMetricsMiddleware struct {
	next  tiercache.Service
	meter metric.Meter

	// instruments
	calls     metric.Int64Counter
	durations metric.Float64Histogram
}

// NewOTelMetricsMiddleware constructs a metrics middleware using the provided meter.
func NewOTelMetricsMiddleware(next tiercache.Service, meter metric.Meter) (tiercache.Service, error) {
	calls, err := meter.Int64Counter("tiercache.calls")
	if err != nil {
		return nil, ewrap.Wrap(err, "create counter")
	}

	durations, err := meter.Float64Histogram("tiercache.duration.ms")
	if err != nil {
		return nil, ewrap.Wrap(err, "create histogram")
	}

	return &OTelMetricsMiddleware{next: next, meter: meter, calls: calls, durations: durations}, nil
}

func (mw *OTelMetricsMiddleware) rec(ctx context.Context, method string, start time.Time, extra ...attribute.KeyValue) {
	attrs := append([]attribute.KeyValue{attribute.String("method", method)}, extra...)

	mw.calls.Add(ctx, 1, metric.WithAttributes(attrs...))
	mw.durations.Record(ctx, float64(time.Since(start).Microseconds())/1000.0, metric.WithAttributes(attrs...))
}

// Cache implements Service.Cache with metrics.
func (mw *OTelMetricsMiddleware) Cache(ctx context.Context, key string, value any, ttl time.Duration) error {
	start := time.Now()
	err := mw.next.Cache(ctx, key, value, ttl)
	mw.rec(ctx, "Cache", start, attribute.Int("key.len", len(key)), attribute.Bool("error", err != nil))

	return err
}

// Get implements Service.Get with metrics.
func (mw *OTelMetricsMiddleware) Get(ctx context.Context, key string) (any, bool) {
	start := time.Now()
	v, ok := mw.next.Get(ctx, key)
	mw.rec(ctx, "Get", start, attribute.Int("key.len", len(key)), attribute.Bool("hit", ok))

	return v, ok
}

// Invalidate implements Service.Invalidate with metrics.
func (mw *OTelMetricsMiddleware) Invalidate(ctx context.Context, key string) error {
	start := time.Now()
	err := mw.next.Invalidate(ctx, key)
	mw.rec(ctx, "Invalidate", start, attribute.Int("key.len", len(key)))

	return err
}

// Clear implements Service.Clear with metrics.
func (mw *OTelMetricsMiddleware) Clear(ctx context.Context) error {
	start := time.Now()
	err := mw.next.Clear(ctx)
	mw.rec(ctx, "Clear", start)

	return err
}

// GetStats returns the stats of the cache.
func (mw *OTelMetricsMiddleware) GetStats() stats.Stats {
	return mw.next.GetStats()
}

// Capabilities returns the capability report of the cache.
func (mw *OTelMetricsMiddleware) Capabilities() capability.Report {
	return mw.next.Capabilities()
}

// IsEnhancedModeAvailable reports whether the structured tier is active.
func (mw *OTelMetricsMiddleware) IsEnhancedModeAvailable() bool {
	return mw.next.IsEnhancedModeAvailable()
}

// RunDiagnostics implements Service.RunDiagnostics with metrics.
func (mw *OTelMetricsMiddleware) RunDiagnostics(ctx context.Context) tiercache.Diagnostics {
	start := time.Now()
	diag := mw.next.RunDiagnostics(ctx)
	mw.rec(ctx, "RunDiagnostics", start, attribute.Int("backends.count", len(diag.Backends)))

	return diag
}

// ExportCacheData implements Service.ExportCacheData with metrics.
func (mw *OTelMetricsMiddleware) ExportCacheData(ctx context.Context) ([]byte, error) {
	start := time.Now()
	data, err := mw.next.ExportCacheData(ctx)
	mw.rec(ctx, "ExportCacheData", start, attribute.Int("payload.bytes", len(data)))

	return data, err
}

// ImportCacheData implements Service.ImportCacheData with metrics.
func (mw *OTelMetricsMiddleware) ImportCacheData(ctx context.Context, data []byte) error {
	start := time.Now()
	err := mw.next.ImportCacheData(ctx, data)
	mw.rec(ctx, "ImportCacheData", start, attribute.Int("payload.bytes", len(data)))

	return err
}

// Stop implements Service.Stop with metrics.
func (mw *OTelMetricsMiddleware) Stop(ctx context.Context) error {
	start := time.Now()
	err := mw.next.Stop(ctx)
	mw.rec(ctx, "Stop", start)

	return err
}
