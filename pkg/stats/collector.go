package stats

import (
	"sync"

	"github.com/hyp3rd/ewrap"

	"github.com/magickw/tiercache/internal/sentinel"
)

// ICollector is an interface that defines the methods that a stats collector should implement.
type ICollector interface {
	// Incr increments the count of a statistic by the given value.
	Incr(stat Stat, value int64)
	// Decr decrements the count of a statistic by the given value.
	Decr(stat Stat, value int64)
	// Timing records the time it took for an event to occur.
	Timing(stat Stat, value int64)
	// Gauge records the current value of a statistic.
	Gauge(stat Stat, value int64)
	// GetStats returns the collected statistics.
	GetStats() Stats
}

// Collector is a counter-based stats collector.
type Collector struct {
	mu       sync.RWMutex // mutex to protect concurrent access to the stats
	counters map[Stat]int64
	timings  map[Stat][]int64
	gauges   map[Stat]int64
}

// NewCollector creates a new counter-based stats collector.
func NewCollector() *Collector {
	return &Collector{
		counters: make(map[Stat]int64),
		timings:  make(map[Stat][]int64),
		gauges:   make(map[Stat]int64),
	}
}

// Incr increments the count of a statistic by the given value.
func (c *Collector) Incr(stat Stat, value int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[stat] += value
}

// Decr decrements the count of a statistic by the given value.
func (c *Collector) Decr(stat Stat, value int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[stat] -= value
}

// Timing records the time it took for an event to occur.
func (c *Collector) Timing(stat Stat, value int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timings[stat] = append(c.timings[stat], value)
}

// Gauge records the current value of a statistic.
func (c *Collector) Gauge(stat Stat, value int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[stat] = value
}

// Mean returns the mean of the recorded timings for a statistic.
func (c *Collector) Mean(stat Stat) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	values := c.timings[stat]
	if len(values) == 0 {
		return 0
	}

	var sum int64
	for _, value := range values {
		sum += value
	}

	return float64(sum) / float64(len(values))
}

// GetStats returns the cache statistics.
func (c *Collector) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Stats{
		Hits:        uint64(max(c.counters[StatHits], 0)),
		Misses:      uint64(max(c.counters[StatMisses], 0)),
		Evictions:   uint64(max(c.counters[StatEvictions], 0)),
		Expirations: uint64(max(c.counters[StatExpirations], 0)),
		Fallbacks:   uint64(max(c.counters[StatFallbacks], 0)),
		Errors:      uint64(max(c.counters[StatErrors], 0)),
	}
}

// CollectorRegistry manages stats collector constructors.
type CollectorRegistry struct {
	collectors map[string]func() (ICollector, error)
}

// NewCollectorRegistry creates a new collector registry with default collectors pre-registered.
func NewCollectorRegistry() *CollectorRegistry {
	registry := &CollectorRegistry{
		collectors: make(map[string]func() (ICollector, error)),
	}
	// Register the default collector
	registry.Register("default", func() (ICollector, error) {
		collector := NewCollector()
		if collector == nil {
			return nil, ewrap.Wrap(sentinel.ErrStatsCollectorNotFound, "default")
		}

		return collector, nil
	})

	return registry
}

// Register registers a new stats collector with the given name.
func (r *CollectorRegistry) Register(name string, createFunc func() (ICollector, error)) {
	r.collectors[name] = createFunc
}

// NewCollector creates a new stats collector by name.
func (r *CollectorRegistry) NewCollector(statsCollectorName string) (ICollector, error) {
	if statsCollectorName == "" {
		return nil, ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "statsCollectorName")
	}

	createFunc, ok := r.collectors[statsCollectorName]
	if !ok {
		return nil, ewrap.Wrap(sentinel.ErrStatsCollectorNotFound, statsCollectorName)
	}

	return createFunc()
}
