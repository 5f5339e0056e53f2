// Package capability inspects the host environment once at startup and
// produces an immutable report of which storage and messaging primitives are
// reachable, plus a derived support tier. Absence of a capability is a normal,
// expected outcome, never an error: every feature test swallows failures.
package capability

// Tier is the coarse classification of the capabilities a runtime environment provides.
type Tier string

const (
	// TierFull means every probed capability is present.
	TierFull Tier = "full"
	// TierPartial means a mixed capability set is present.
	TierPartial Tier = "partial"
	// TierMinimal means no structured store and exactly one durable but
	// unstructured store is present.
	TierMinimal Tier = "minimal"
	// TierNone means no durable or structured store is present; only
	// transient primitives remain, if any.
	TierNone Tier = "none"
)

// String returns the string representation of the tier.
func (t Tier) String() string {
	return string(t)
}

// Report holds the named capability flags and the derived support tier.
// It is created once per process lifetime and never mutated afterwards.
type Report struct {
	StructuredStore bool // transactional structured store reachable (SQLite)
	BlobStore       bool // blob/response store reachable (Redis)
	StringStore     bool // simple string store writable (local file)
	Broadcast       bool // cross-context invalidation fan-out available
	Crypto          bool // cryptographic primitives usable
	Preload         bool // preload/background-sync possible
	Tier            Tier // derived support tier
}

// FeatureMap returns the capability flags keyed by feature name, for diagnostics.
func (r Report) FeatureMap() map[string]bool {
	return map[string]bool{
		"structuredStore": r.StructuredStore,
		"blobStore":       r.BlobStore,
		"stringStore":     r.StringStore,
		"broadcast":       r.Broadcast,
		"crypto":          r.Crypto,
		"preload":         r.Preload,
	}
}

// WithoutStructuredStore returns a copy of the report with the structured
// store demoted and the tier re-derived. The facade uses it when the store is
// reachable but the schema migration could not be completed.
func (r Report) WithoutStructuredStore() Report {
	r.StructuredStore = false
	r.Preload = false
	r.Tier = deriveTier(r)

	return r
}

// deriveTier computes the support tier from the capability flags.
//
// full requires every capability; none means no durable/structured store at
// all; minimal means no structured store and exactly one durable but
// unstructured store; everything else is partial.
func deriveTier(r Report) Tier {
	switch {
	case r.StructuredStore && r.BlobStore && r.StringStore && r.Broadcast && r.Crypto && r.Preload:
		return TierFull
	case !r.StructuredStore && !r.BlobStore:
		return TierNone
	case !r.StructuredStore && (r.BlobStore != r.StringStore):
		return TierMinimal
	default:
		return TierPartial
	}
}
