package tiercache

import (
	"context"
	"fmt"
	"time"

	"github.com/magickw/tiercache/internal/constants"
	"github.com/magickw/tiercache/pkg/backend"
	"github.com/magickw/tiercache/pkg/cache"
	"github.com/magickw/tiercache/pkg/capability"
)

// BackendDiagnostic is the health verdict for one tier.
type BackendDiagnostic struct {
	Backend string        `json:"backend"`
	Healthy bool          `json:"healthy"`
	Entries int           `json:"entries"`
	Latency time.Duration `json:"latency"`
	Err     string        `json:"error,omitempty"`
}

// Diagnostics is the full health report of the cache.
type Diagnostics struct {
	Tier            capability.Tier     `json:"tier"`
	Features        map[string]bool     `json:"features"`
	EnhancedMode    bool                `json:"enhancedMode"`
	Backends        []BackendDiagnostic `json:"backends"`
	RecentFailures  []FailureRecord     `json:"recentFailures,omitempty"`
	Recommendations []string            `json:"recommendations,omitempty"`
	CollectedAt     time.Time           `json:"collectedAt"`
}

// diagProbeKey never collides with user keys; user keys come from callers
// who have no reason to start them with a dot.
const diagProbeKey = ".tiercache-diagnostic"

// RunDiagnostics exercises every tier with a write-read-remove round trip
// and reports per-tier health, entry counts, and the recent failure buffer.
func (tc *TierCache) RunDiagnostics(ctx context.Context) Diagnostics {
	report := Diagnostics{
		Tier:         tc.report.Tier,
		Features:     tc.report.FeatureMap(),
		EnhancedMode: tc.IsEnhancedModeAvailable(),
		CollectedAt:  time.Now(),
	}

	if !tc.initialized.Load() {
		return report
	}

	for _, tier := range tc.chain {
		report.Backends = append(report.Backends, tc.probeBackend(ctx, tier))
	}

	report.RecentFailures = tc.router.recentFailures()
	report.Recommendations = tc.recommend(report)

	return report
}

// recommend derives operator guidance from the probed capabilities and the
// per-tier probe results.
func (tc *TierCache) recommend(report Diagnostics) []string {
	var out []string

	if !tc.report.StructuredStore {
		out = append(out, "configure a SQLite path to enable the structured tier")
	}

	if !tc.report.BlobStore {
		out = append(out, "configure Redis to enable the blob tier")
	}

	if !tc.report.StringStore {
		out = append(out, "configure a writable file directory to enable the string tier")
	}

	if tc.report.BlobStore && !tc.report.Broadcast {
		out = append(out, "enable Redis pub/sub for cross-process invalidation")
	}

	for _, diag := range report.Backends {
		if !diag.Healthy {
			out = append(out, fmt.Sprintf("backend %s failed its probe, check its endpoint: %s",
				diag.Backend, diag.Err))
		}
	}

	return out
}

func (tc *TierCache) probeBackend(ctx context.Context, tier backend.IBackend) BackendDiagnostic {
	diag := BackendDiagnostic{Backend: tier.Name()}

	probe := cache.NewEntry(diagProbeKey, []byte("ok"),
		cache.WithTTL(time.Minute),
		cache.WithContainer(constants.EnhancedContainer),
	)

	started := time.Now()

	if err := tier.Set(ctx, probe); err != nil {
		diag.Err = fmt.Sprintf("set: %v", err)
		diag.Latency = time.Since(started)

		return diag
	}

	if _, ok := tier.Get(ctx, diagProbeKey); !ok {
		diag.Err = "probe entry not readable after write"
		diag.Latency = time.Since(started)

		return diag
	}

	if err := tier.Remove(ctx, diagProbeKey); err != nil {
		diag.Err = fmt.Sprintf("remove: %v", err)
		diag.Latency = time.Since(started)

		return diag
	}

	diag.Latency = time.Since(started)
	diag.Healthy = true
	diag.Entries = tier.Count(ctx)

	return diag
}
