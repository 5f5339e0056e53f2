// Package middleware provides service middlewares for tiercache. Each
// middleware wraps the tiercache.Service interface, so they can be stacked in
// any order with tiercache.ApplyMiddleware.
package middleware

import (
	"context"
	"time"

	"github.com/magickw/tiercache"
	"github.com/magickw/tiercache/pkg/capability"
	"github.com/magickw/tiercache/pkg/stats"
)

// Logger describes a logging interface allowing to implement different
// external, or custom loggers. Works with the standard library's log.Logger,
// logrus, and Zap's sugared logger.
type Logger interface {
	Printf(format string, v ...any)
}

// LoggingMiddleware logs each service call and the time it took.
type LoggingMiddleware struct {
	next   tiercache.Service
	logger Logger
}

// NewLoggingMiddleware returns a new LoggingMiddleware.
func NewLoggingMiddleware(next tiercache.Service, logger Logger) tiercache.Service {
	return &LoggingMiddleware{next: next, logger: logger}
}

// Cache logs the time it takes to execute the next middleware.
func (mw LoggingMiddleware) Cache(ctx context.Context, key string, value any, ttl time.Duration) error {
	defer func(begin time.Time) {
		mw.logger.Printf("method Cache took: %s", time.Since(begin))
	}(time.Now())

	mw.logger.Printf("Cache method called with key: %s ttl: %s", key, ttl)

	return mw.next.Cache(ctx, key, value, ttl)
}

// Get logs the time it takes to execute the next middleware.
func (mw LoggingMiddleware) Get(ctx context.Context, key string) (any, bool) {
	defer func(begin time.Time) {
		mw.logger.Printf("method Get took: %s", time.Since(begin))
	}(time.Now())

	mw.logger.Printf("Get method called with key: %s", key)

	return mw.next.Get(ctx, key)
}

// Invalidate logs the time it takes to execute the next middleware.
func (mw LoggingMiddleware) Invalidate(ctx context.Context, key string) error {
	defer func(begin time.Time) {
		mw.logger.Printf("method Invalidate took: %s", time.Since(begin))
	}(time.Now())

	mw.logger.Printf("Invalidate method called with key: %s", key)

	return mw.next.Invalidate(ctx, key)
}

// Clear logs the time it takes to execute the next middleware.
func (mw LoggingMiddleware) Clear(ctx context.Context) error {
	defer func(begin time.Time) {
		mw.logger.Printf("method Clear took: %s", time.Since(begin))
	}(time.Now())

	mw.logger.Printf("Clear method invoked")

	return mw.next.Clear(ctx)
}

// GetStats passes through to the next middleware.
func (mw LoggingMiddleware) GetStats() stats.Stats {
	return mw.next.GetStats()
}

// Capabilities passes through to the next middleware.
func (mw LoggingMiddleware) Capabilities() capability.Report {
	return mw.next.Capabilities()
}

// IsEnhancedModeAvailable passes through to the next middleware.
func (mw LoggingMiddleware) IsEnhancedModeAvailable() bool {
	return mw.next.IsEnhancedModeAvailable()
}

// RunDiagnostics logs the time it takes to execute the next middleware.
func (mw LoggingMiddleware) RunDiagnostics(ctx context.Context) tiercache.Diagnostics {
	defer func(begin time.Time) {
		mw.logger.Printf("method RunDiagnostics took: %s", time.Since(begin))
	}(time.Now())

	return mw.next.RunDiagnostics(ctx)
}

// ExportCacheData logs the time it takes to execute the next middleware.
func (mw LoggingMiddleware) ExportCacheData(ctx context.Context) ([]byte, error) {
	defer func(begin time.Time) {
		mw.logger.Printf("method ExportCacheData took: %s", time.Since(begin))
	}(time.Now())

	return mw.next.ExportCacheData(ctx)
}

// ImportCacheData logs the time it takes to execute the next middleware.
func (mw LoggingMiddleware) ImportCacheData(ctx context.Context, data []byte) error {
	defer func(begin time.Time) {
		mw.logger.Printf("method ImportCacheData took: %s", time.Since(begin))
	}(time.Now())

	mw.logger.Printf("ImportCacheData method invoked with %d bytes", len(data))

	return mw.next.ImportCacheData(ctx, data)
}

// Stop logs the time it takes to execute the next middleware.
func (mw LoggingMiddleware) Stop(ctx context.Context) error {
	defer func(begin time.Time) {
		mw.logger.Printf("method Stop took: %s", time.Since(begin))
	}(time.Now())

	mw.logger.Printf("Stop method invoked")

	return mw.next.Stop(ctx)
}
