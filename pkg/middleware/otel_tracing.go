package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/magickw/tiercache"
	"github.com/magickw/tiercache/pkg/capability"
	"github.com/magickw/tiercache/pkg/stats"
)

// OTelTracingMiddleware wraps tiercache.Service methods with OpenTelemetry spans.
type OTelTracingMiddleware struct {
	next   tiercache.Service
	tracer trace.Tracer
	// static attributes applied to all spans
	commonAttrs []attribute.KeyValue
}

// OTelTracingOption allows configuring the tracing middleware.
type OTelTracingOption func(*OTelTracingMiddleware)

// WithCommonAttributes sets attributes applied to all spans.
func WithCommonAttributes(attributes ...attribute.KeyValue) OTelTracingOption {
	return func(m *OTelTracingMiddleware) { m.commonAttrs = append(m.commonAttrs, attributes...) }
}

// NewOTelTracingMiddleware creates a tracing middleware.
func NewOTelTracingMiddleware(next tiercache.Service, tracer trace.Tracer, opts ...OTelTracingOption) tiercache.Service {
	mw := &OTelTracingMiddleware{next: next, tracer: tracer}
	for _, o := range opts {
		o(mw)
	}

	return mw
}

func (mw OTelTracingMiddleware) startSpan(ctx context.Context, name string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := mw.tracer.Start(ctx, name)

	if len(mw.commonAttrs) > 0 {
		span.SetAttributes(mw.commonAttrs...)
	}

	if len(attributes) > 0 {
		span.SetAttributes(attributes...)
	}

	return ctx, span
}

// Cache implements Service.Cache with tracing.
func (mw OTelTracingMiddleware) Cache(ctx context.Context, key string, value any, ttl time.Duration) error {
	ctx, span := mw.startSpan(ctx, "tiercache.Cache",
		attribute.Int("key.len", len(key)),
		attribute.Int64("ttl.ms", ttl.Milliseconds()))
	defer span.End()

	err := mw.next.Cache(ctx, key, value, ttl)
	if err != nil {
		span.RecordError(err)
	}

	return err
}

// Get implements Service.Get with tracing.
func (mw OTelTracingMiddleware) Get(ctx context.Context, key string) (any, bool) {
	ctx, span := mw.startSpan(ctx, "tiercache.Get", attribute.Int("key.len", len(key)))
	defer span.End()

	v, ok := mw.next.Get(ctx, key)
	span.SetAttributes(attribute.Bool("hit", ok))

	return v, ok
}

// Invalidate implements Service.Invalidate with tracing.
func (mw OTelTracingMiddleware) Invalidate(ctx context.Context, key string) error {
	ctx, span := mw.startSpan(ctx, "tiercache.Invalidate", attribute.Int("key.len", len(key)))
	defer span.End()

	err := mw.next.Invalidate(ctx, key)
	if err != nil {
		span.RecordError(err)
	}

	return err
}

// Clear implements Service.Clear with tracing.
func (mw OTelTracingMiddleware) Clear(ctx context.Context) error {
	ctx, span := mw.startSpan(ctx, "tiercache.Clear")
	defer span.End()

	err := mw.next.Clear(ctx)
	if err != nil {
		span.RecordError(err)
	}

	return err
}

// GetStats returns the stats of the cache.
func (mw OTelTracingMiddleware) GetStats() stats.Stats {
	return mw.next.GetStats()
}

// Capabilities returns the capability report of the cache.
func (mw OTelTracingMiddleware) Capabilities() capability.Report {
	return mw.next.Capabilities()
}

// IsEnhancedModeAvailable reports whether the structured tier is active.
func (mw OTelTracingMiddleware) IsEnhancedModeAvailable() bool {
	return mw.next.IsEnhancedModeAvailable()
}

// RunDiagnostics implements Service.RunDiagnostics with tracing.
func (mw OTelTracingMiddleware) RunDiagnostics(ctx context.Context) tiercache.Diagnostics {
	ctx, span := mw.startSpan(ctx, "tiercache.RunDiagnostics")
	defer span.End()

	diag := mw.next.RunDiagnostics(ctx)
	span.SetAttributes(attribute.String("tier", diag.Tier.String()))

	return diag
}

// ExportCacheData implements Service.ExportCacheData with tracing.
func (mw OTelTracingMiddleware) ExportCacheData(ctx context.Context) ([]byte, error) {
	ctx, span := mw.startSpan(ctx, "tiercache.ExportCacheData")
	defer span.End()

	data, err := mw.next.ExportCacheData(ctx)
	if err != nil {
		span.RecordError(err)
	}

	span.SetAttributes(attribute.Int("payload.bytes", len(data)))

	return data, err
}

// ImportCacheData implements Service.ImportCacheData with tracing.
func (mw OTelTracingMiddleware) ImportCacheData(ctx context.Context, data []byte) error {
	ctx, span := mw.startSpan(ctx, "tiercache.ImportCacheData", attribute.Int("payload.bytes", len(data)))
	defer span.End()

	err := mw.next.ImportCacheData(ctx, data)
	if err != nil {
		span.RecordError(err)
	}

	return err
}

// Stop implements Service.Stop with tracing.
func (mw OTelTracingMiddleware) Stop(ctx context.Context) error {
	ctx, span := mw.startSpan(ctx, "tiercache.Stop")
	defer span.End()

	err := mw.next.Stop(ctx)
	if err != nil {
		span.RecordError(err)
	}

	return err
}
