// Package stats provides cache statistics collection for the tiercache service.
package stats

// Stat identifies a statistic tracked by a collector.
type Stat string

const (
	// StatHits counts cache hits.
	StatHits Stat = "hits"
	// StatMisses counts cache misses.
	StatMisses Stat = "misses"
	// StatEvictions counts entries evicted by the in-memory LRU cap.
	StatEvictions Stat = "evictions"
	// StatExpirations counts entries removed by the TTL sweep.
	StatExpirations Stat = "expirations"
	// StatFallbacks counts failed adapter attempts that fell through the chain.
	StatFallbacks Stat = "fallbacks"
	// StatErrors counts internal errors absorbed by the facade.
	StatErrors Stat = "errors"
	// StatMigrationDuration records migration elapsed time in nanoseconds.
	StatMigrationDuration Stat = "migration_duration_ns"
	// StatGetDuration records get latency in nanoseconds.
	StatGetDuration Stat = "get_duration_ns"
	// StatSetDuration records set latency in nanoseconds.
	StatSetDuration Stat = "set_duration_ns"
)

// String returns the string representation of a Stat.
func (s Stat) String() string {
	return string(s)
}

// Stats contains the aggregated cache statistics.
type Stats struct {
	Hits        uint64 // number of cache hits
	Misses      uint64 // number of cache misses
	Evictions   uint64 // number of cache evictions
	Expirations uint64 // number of cache expirations
	Fallbacks   uint64 // number of fallback attempts across the backend chain
	Errors      uint64 // number of absorbed internal errors
}

// HitRate returns the ratio of hits to total lookups, zero when no lookups occurred.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}

	return float64(s.Hits) / float64(total)
}
