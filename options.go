package tiercache

import (
	"database/sql"

	"github.com/redis/go-redis/v9"

	"github.com/magickw/tiercache/pkg/migration"
	"github.com/magickw/tiercache/pkg/stats"
)

// Logger is the minimal logging surface the cache writes to. The standard
// library's log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Option configures a TierCache before initialization.
type Option func(*TierCache)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(tc *TierCache) { tc.cfg = cfg.normalized() }
}

// WithDB injects an already-open structured-store handle instead of having
// the cache open Config.SQLitePath itself.
func WithDB(db *sql.DB) Option {
	return func(tc *TierCache) { tc.db = db }
}

// WithRedisClient injects an already-connected blob-store client.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(tc *TierCache) { tc.redis = client }
}

// WithLogger sets the cache logger. Defaults to discarding everything.
func WithLogger(logger Logger) Option {
	return func(tc *TierCache) { tc.logger = logger }
}

// WithCollector sets the stats collector.
func WithCollector(collector stats.ICollector) Option {
	return func(tc *TierCache) { tc.collector = collector }
}

// WithSerializer overrides the value serializer by registry name.
func WithSerializer(name string) Option {
	return func(tc *TierCache) { tc.cfg.Serializer = name }
}

// WithMigrationOptions appends extra options for the migration orchestrator,
// mostly useful to swap the step set in tests.
func WithMigrationOptions(opts ...migration.Option) Option {
	return func(tc *TierCache) { tc.migrationOpts = append(tc.migrationOpts, opts...) }
}
