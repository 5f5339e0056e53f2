package tiercache

import (
	"context"
	"time"

	"github.com/magickw/tiercache/pkg/stats"
)

// LegacySurface exposes the method names older callers were written
// against. Each field is bound directly to the current method, not wrapped,
// so behavior through an alias is identical to the modern call, including
// middleware wrapping applied above the facade.
type LegacySurface struct {
	// Put is the old name for Cache.
	Put func(ctx context.Context, key string, value any, ttl time.Duration) error
	// Retrieve is the old name for Get.
	Retrieve func(ctx context.Context, key string) (any, bool)
	// Remove is the old name for Invalidate.
	Remove func(ctx context.Context, key string) error
	// Flush is the old name for Clear.
	Flush func(ctx context.Context) error
	// Status is the old name for GetStats.
	Status func() stats.Stats
}

// Legacy returns the alias surface for callers that predate the current API.
func (tc *TierCache) Legacy() LegacySurface {
	return LegacySurface{
		Put:      tc.Cache,
		Retrieve: tc.Get,
		Remove:   tc.Invalidate,
		Flush:    tc.Clear,
		Status:   tc.GetStats,
	}
}
