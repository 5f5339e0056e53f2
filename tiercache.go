// Package tiercache is a client-side tiered cache with versioned schema
// migration and graceful degradation. At initialization it probes which
// storage endpoints are reachable, migrates the structured store to the
// enhanced schema when needed, and assembles a fallback chain of backends:
// structured store first, then blob store, then file store, then an
// in-memory map that is always available.
package tiercache

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyp3rd/ewrap"
	"github.com/redis/go-redis/v9"

	"github.com/magickw/tiercache/internal/constants"
	"github.com/magickw/tiercache/internal/libs/serializer"
	"github.com/magickw/tiercache/internal/sentinel"
	"github.com/magickw/tiercache/pkg/backend"
	"github.com/magickw/tiercache/pkg/cache"
	"github.com/magickw/tiercache/pkg/capability"
	"github.com/magickw/tiercache/pkg/migration"
	"github.com/magickw/tiercache/pkg/stats"
)

// TierCache is the cache facade. Construct it with New, bring it online with
// Initialize, and shut it down with Stop. All methods are safe for
// concurrent use once Initialize has returned.
type TierCache struct {
	cfg        Config
	logger     Logger
	collector  stats.ICollector
	serializer serializer.ISerializer

	db        *sql.DB
	ownsDB    bool
	redis     redis.UniversalClient
	ownsRedis bool

	report       capability.Report
	chain        []backend.IBackend
	router       *router
	memory       *backend.InMemory
	structured   *backend.SQLite
	orchestrator *migration.Orchestrator
	broadcast    *broadcaster

	migrationOpts []migration.Option
	lastMigration *migration.Result

	initialized atomic.Bool
	stopOnce    sync.Once
}

// New builds an unconnected TierCache. Nothing is probed or opened until
// Initialize runs.
func New(opts ...Option) (*TierCache, error) {
	tc := &TierCache{
		cfg:       DefaultConfig(),
		logger:    nopLogger{},
		collector: stats.NewCollector(),
	}

	for _, opt := range opts {
		opt(tc)
	}

	ser, err := serializer.New(tc.cfg.Serializer)
	if err != nil {
		return nil, err
	}

	tc.serializer = ser

	return tc, nil
}

// Initialize connects the configured endpoints, probes capabilities, runs
// the schema migration when the structured store is reachable, and assembles
// the fallback chain. A migration failure demotes the structured tier
// instead of failing initialization; the cache comes up degraded.
func (tc *TierCache) Initialize(ctx context.Context) error {
	if tc.initialized.Load() {
		return nil
	}

	if err := tc.connect(); err != nil {
		return err
	}

	tc.report = capability.Probe(ctx, capability.Endpoints{
		DB:      tc.db,
		Redis:   tc.redis,
		FileDir: tc.cfg.FileDir,
	})

	if tc.report.StructuredStore {
		if err := tc.migrate(ctx); err != nil {
			tc.logger.Printf("structured tier unavailable, degrading: %v", err)
			tc.report = tc.report.WithoutStructuredStore()
			tc.structured = nil
		}
	}

	if err := tc.assembleChain(); err != nil {
		return err
	}

	tc.router = newRouter(tc.chain, tc.collector, tc.logger, tc.cfg.DiagnosticsRingSize)

	if tc.cfg.BroadcastEnabled && tc.report.Broadcast {
		tc.broadcast = newBroadcaster(tc.redis, tc.cfg.BroadcastChannel, tc.logger)
		tc.broadcast.subscribe(ctx, tc.handleRemoteInvalidation)
	}

	tc.initialized.Store(true)
	tc.logger.Printf("cache online: tier=%s chain=%d backends", tc.report.Tier, len(tc.chain))

	return nil
}

// connect opens the endpoints named in the config, unless they were injected.
func (tc *TierCache) connect() error {
	if tc.db == nil && tc.cfg.SQLitePath != "" {
		db, err := backend.OpenSQLiteDB(tc.cfg.SQLitePath)
		if err != nil {
			// A broken structured endpoint is a degradation, not a
			// startup failure. The probe will report it absent.
			tc.logger.Printf("structured store unreachable: %v", err)
		} else {
			tc.db = db
			tc.ownsDB = true
		}
	}

	if tc.redis == nil && tc.cfg.RedisAddr != "" {
		tc.redis = backend.NewRedisClient(tc.cfg.RedisAddr, tc.cfg.RedisPassword, tc.cfg.RedisDB)
		tc.ownsRedis = true
	}

	return nil
}

// migrate brings the structured store to the enhanced schema and keeps the
// adapter only when the migration commits.
func (tc *TierCache) migrate(ctx context.Context) error {
	structured, err := backend.NewSQLite(
		backend.WithDB(tc.db),
		backend.WithContainer(constants.EnhancedContainer),
	)
	if err != nil {
		return err
	}

	versions, err := migration.NewSQLiteVersionStore(ctx, tc.db)
	if err != nil {
		return err
	}

	legacy, err := migration.NewSQLiteLegacyStore(tc.db)
	if err != nil {
		return err
	}

	snapshots, err := migration.NewSQLiteSnapshotStore(ctx, tc.db)
	if err != nil {
		return err
	}

	opts := append([]migration.Option{
		migration.WithSteps(func() []migration.Step {
			return migration.DefaultSteps(structured, legacy)
		}),
		migration.WithPostCheck(func(ctx context.Context) []string {
			if !structured.SchemaReady(ctx) {
				return []string{"enhanced schema missing"}
			}

			return nil
		}),
		migration.WithLogger(tc.logger),
		migration.WithCollector(tc.collector),
	}, tc.migrationOpts...)

	orchestrator, err := migration.NewOrchestrator(versions, legacy, snapshots, opts...)
	if err != nil {
		return err
	}

	tc.orchestrator = orchestrator

	result, err := orchestrator.PerformMigration(ctx)
	if err != nil {
		return err
	}

	tc.lastMigration = result

	if !result.Success {
		return ewrap.Wrap(sentinel.ErrMigrationStepFailed,
			fmt.Sprintf("migration failed: %v", result.Errors))
	}

	tc.structured = structured

	return nil
}

// assembleChain builds the fallback chain from the probed capabilities. The
// in-memory backend terminates the chain unconditionally.
func (tc *TierCache) assembleChain() error {
	tc.chain = tc.chain[:0]

	if tc.report.StructuredStore && tc.structured != nil {
		tc.chain = append(tc.chain, tc.structured)
	}

	if tc.report.BlobStore {
		blob, err := backend.NewRedis(
			backend.WithRedisClient(tc.redis),
			backend.WithKeySetName(constants.RedisKeySetName),
		)
		if err != nil {
			return err
		}

		tc.chain = append(tc.chain, blob)
	}

	if tc.report.StringStore {
		files, err := backend.NewFileStore(
			backend.WithDir(tc.cfg.FileDir),
			backend.WithQuota(tc.cfg.FileQuota),
		)
		if err != nil {
			return err
		}

		tc.chain = append(tc.chain, files)
	}

	memory, err := backend.NewInMemory(
		backend.WithCapacity(tc.cfg.MemoryCapacity),
		backend.WithSweepInterval(tc.cfg.SweepInterval),
	)
	if err != nil {
		return err
	}

	memory.SetCollector(tc.collector)
	tc.memory = memory
	tc.chain = append(tc.chain, memory)

	return nil
}

// Cache stores a value under key, routed to the best available tier.
func (tc *TierCache) Cache(ctx context.Context, key string, value any, ttl time.Duration) (err error) {
	defer recoverInto(&err)

	if !tc.initialized.Load() {
		return sentinel.ErrNotInitialized
	}

	if key == "" {
		return sentinel.ErrInvalidKey
	}

	if value == nil {
		return sentinel.ErrNilValue
	}

	if ttl < 0 {
		return sentinel.ErrInvalidExpiration
	}

	data, err := tc.serializer.Marshal(value)
	if err != nil {
		return ewrap.Wrapf(err, "encode value for %q", key)
	}

	entry := cache.NewEntry(key, data,
		cache.WithTTL(ttl),
		cache.WithContainer(constants.EnhancedContainer),
	)

	started := time.Now()
	_, err = tc.router.set(ctx, entry)
	tc.collector.Timing(stats.StatSetDuration, time.Since(started).Nanoseconds())

	if err != nil {
		tc.collector.Incr(stats.StatErrors, 1)

		return err
	}

	return nil
}

// Get retrieves the value stored under key. A hit on any tier counts as a
// hit; expired or unreadable entries count as misses.
func (tc *TierCache) Get(ctx context.Context, key string) (value any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			tc.logger.Printf("get recovered: %v", r)

			value, ok = nil, false
		}
	}()

	if !tc.initialized.Load() || key == "" {
		return nil, false
	}

	started := time.Now()
	entry, backendName, found := tc.router.get(ctx, key)
	tc.collector.Timing(stats.StatGetDuration, time.Since(started).Nanoseconds())

	if !found {
		tc.collector.Incr(stats.StatMisses, 1)

		return nil, false
	}

	if err := tc.serializer.Unmarshal(entry.Value, &value); err != nil {
		tc.logger.Printf("undecodable entry %q on %s: %v", key, backendName, err)
		tc.collector.Incr(stats.StatErrors, 1)

		return nil, false
	}

	tc.collector.Incr(stats.StatHits, 1)

	return value, true
}

// Invalidate removes the entries matching tagOrKey from every tier: the
// entry stored under it as a key, and any entries carrying it as an
// invalidation tag. The invalidation fans out to other processes when
// broadcast is available.
func (tc *TierCache) Invalidate(ctx context.Context, tagOrKey string) (err error) {
	defer recoverInto(&err)

	if !tc.initialized.Load() {
		return sentinel.ErrNotInitialized
	}

	if tagOrKey == "" {
		return sentinel.ErrInvalidKey
	}

	if err := tc.router.remove(ctx, tagOrKey); err != nil {
		return err
	}

	if err := tc.router.removeByTag(ctx, tagOrKey); err != nil {
		return err
	}

	if tc.broadcast != nil {
		tc.broadcast.publish(ctx, invalidationMessage{Key: tagOrKey})
	}

	return nil
}

// Clear removes all entries from every tier and broadcasts the flush.
func (tc *TierCache) Clear(ctx context.Context) (err error) {
	defer recoverInto(&err)

	if !tc.initialized.Load() {
		return sentinel.ErrNotInitialized
	}

	if err := tc.router.clear(ctx); err != nil {
		return err
	}

	if tc.broadcast != nil {
		tc.broadcast.publish(ctx, invalidationMessage{Flush: true})
	}

	return nil
}

// GetStats returns a point-in-time snapshot of cache statistics.
func (tc *TierCache) GetStats() stats.Stats {
	return tc.collector.GetStats()
}

// Capabilities returns the capability report resolved at initialization.
func (tc *TierCache) Capabilities() capability.Report {
	return tc.report
}

// IsEnhancedModeAvailable reports whether the structured tier is active.
func (tc *TierCache) IsEnhancedModeAvailable() bool {
	return tc.initialized.Load() && tc.report.StructuredStore && tc.structured != nil
}

// MigrationResult returns the outcome of the migration run at
// initialization, or nil when no structured store was probed.
func (tc *TierCache) MigrationResult() *migration.Result {
	return tc.lastMigration
}

// handleRemoteInvalidation applies an invalidation received over broadcast.
// Only the transient tiers are touched; the durable tiers were already
// updated by the publishing process.
func (tc *TierCache) handleRemoteInvalidation(msg invalidationMessage) {
	if tc.memory == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if msg.Flush {
		_ = tc.memory.Clear(ctx)

		return
	}

	_ = tc.memory.Remove(ctx, msg.Key)
	_ = removeTagged(ctx, tc.memory, msg.Key)
}

// Stop releases every resource held by the cache: background sweeps, the
// broadcast subscription, and any connection the cache opened itself.
func (tc *TierCache) Stop(_ context.Context) error {
	var err error

	tc.stopOnce.Do(func() {
		tc.initialized.Store(false)

		if tc.broadcast != nil {
			tc.broadcast.stop()
		}

		if tc.memory != nil {
			tc.memory.Stop()
		}

		if tc.ownsRedis && tc.redis != nil {
			err = tc.redis.Close()
		}

		if tc.ownsDB && tc.db != nil {
			if dbErr := tc.db.Close(); dbErr != nil && err == nil {
				err = dbErr
			}
		}
	})

	if err != nil {
		return ewrap.Wrap(err, "stop cache")
	}

	return nil
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = ewrap.Newf("recovered from panic: %v", r)
	}
}
