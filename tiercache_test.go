package tiercache

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/longbridgeapp/assert"
	"github.com/redis/go-redis/v9"

	"github.com/magickw/tiercache/internal/sentinel"
	"github.com/magickw/tiercache/pkg/backend"
	"github.com/magickw/tiercache/pkg/capability"
	"github.com/magickw/tiercache/pkg/migration"
)

func newMemoryOnlyCache(t *testing.T) *TierCache {
	t.Helper()

	tc, err := New()
	assert.Nil(t, err)
	assert.Nil(t, tc.Initialize(context.Background()))

	t.Cleanup(func() { _ = tc.Stop(context.Background()) })

	return tc
}

func newEnhancedCache(t *testing.T) *TierCache {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})

	cfg := DefaultConfig()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "cache.db")
	cfg.FileDir = t.TempDir()

	tc, err := New(WithConfig(cfg), WithRedisClient(client))
	assert.Nil(t, err)
	assert.Nil(t, tc.Initialize(context.Background()))

	t.Cleanup(func() {
		_ = tc.Stop(context.Background())
		_ = client.Close()
	})

	return tc
}

func TestNew_UnknownSerializer(t *testing.T) {
	_, err := New(WithSerializer("carrier-pigeon"))
	assert.NotNil(t, err)
}

func TestFacade_BeforeInitialize(t *testing.T) {
	tc, err := New()
	assert.Nil(t, err)

	assert.True(t, errors.Is(tc.Cache(context.Background(), "k", "v", 0), sentinel.ErrNotInitialized))

	_, ok := tc.Get(context.Background(), "k")
	assert.False(t, ok)

	assert.True(t, errors.Is(tc.Invalidate(context.Background(), "k"), sentinel.ErrNotInitialized))
	assert.True(t, errors.Is(tc.Clear(context.Background()), sentinel.ErrNotInitialized))

	_, err = tc.ExportCacheData(context.Background())
	assert.True(t, errors.Is(err, sentinel.ErrNotInitialized))
}

func TestFacade_MemoryOnly(t *testing.T) {
	ctx := context.Background()
	tc := newMemoryOnlyCache(t)

	assert.Equal(t, capability.TierNone, tc.Capabilities().Tier)
	assert.False(t, tc.IsEnhancedModeAvailable())
	assert.Equal(t, 1, len(tc.chain))

	t.Run("round trip", func(t *testing.T) {
		assert.Nil(t, tc.Cache(ctx, "greeting", "hello", 0))

		value, ok := tc.Get(ctx, "greeting")
		assert.True(t, ok)
		assert.Equal(t, "hello", value)
	})

	t.Run("argument validation", func(t *testing.T) {
		assert.True(t, errors.Is(tc.Cache(ctx, "", "v", 0), sentinel.ErrInvalidKey))
		assert.True(t, errors.Is(tc.Cache(ctx, "k", nil, 0), sentinel.ErrNilValue))
		assert.True(t, errors.Is(tc.Cache(ctx, "k", "v", -time.Second), sentinel.ErrInvalidExpiration))
		assert.True(t, errors.Is(tc.Invalidate(ctx, ""), sentinel.ErrInvalidKey))
	})

	t.Run("expired entries read as misses", func(t *testing.T) {
		assert.Nil(t, tc.Cache(ctx, "fleeting", "x", 30*time.Millisecond))

		_, ok := tc.Get(ctx, "fleeting")
		assert.True(t, ok)

		time.Sleep(60 * time.Millisecond)

		_, ok = tc.Get(ctx, "fleeting")
		assert.False(t, ok)
	})

	t.Run("invalidate removes the entry", func(t *testing.T) {
		assert.Nil(t, tc.Cache(ctx, "doomed", "x", 0))
		assert.Nil(t, tc.Invalidate(ctx, "doomed"))

		_, ok := tc.Get(ctx, "doomed")
		assert.False(t, ok)
	})

	t.Run("stats track hits and misses", func(t *testing.T) {
		snapshot := tc.GetStats()
		assert.True(t, snapshot.Hits > 0)
		assert.True(t, snapshot.Misses > 0)
		assert.True(t, snapshot.HitRate() > 0)
	})
}

func TestFacade_EnhancedLifecycle(t *testing.T) {
	ctx := context.Background()
	tc := newEnhancedCache(t)

	assert.Equal(t, capability.TierFull, tc.Capabilities().Tier)
	assert.True(t, tc.IsEnhancedModeAvailable())
	assert.Equal(t, 4, len(tc.chain))

	result := tc.MigrationResult()
	assert.NotNil(t, result)
	assert.True(t, result.Success)

	assert.Nil(t, tc.Cache(ctx, "profile", "alice", time.Minute))

	value, ok := tc.Get(ctx, "profile")
	assert.True(t, ok)
	assert.Equal(t, "alice", value)

	// The entry landed on the structured tier, the head of the chain.
	entry, backendName, found := tc.router.get(ctx, "profile")
	assert.True(t, found)
	assert.Equal(t, "sqlite", backendName)
	assert.NotNil(t, entry)

	assert.Nil(t, tc.Clear(ctx))

	_, ok = tc.Get(ctx, "profile")
	assert.False(t, ok)

	// Initialize is a no-op once the cache is online.
	assert.Nil(t, tc.Initialize(ctx))
}

// TestFacade_FreshInstallReachesEnhancedMode covers the first start against a
// database no previous version ever wrote: the migration creates the enhanced
// schema from nothing and the structured tier comes up active.
func TestFacade_FreshInstallReachesEnhancedMode(t *testing.T) {
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "cache.db")

	tc, err := New(WithConfig(cfg))
	assert.Nil(t, err)
	assert.Nil(t, tc.Initialize(ctx))

	t.Cleanup(func() { _ = tc.Stop(ctx) })

	assert.True(t, tc.IsEnhancedModeAvailable())
	assert.True(t, tc.Capabilities().StructuredStore)

	result := tc.MigrationResult()
	assert.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, 0, len(result.Errors))

	assert.Nil(t, tc.Cache(ctx, "first", "write", 0))

	_, backendName, found := tc.router.get(ctx, "first")
	assert.True(t, found)
	assert.Equal(t, "sqlite", backendName)
}

func TestFacade_MigratesLegacyInstallation(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	// Seed a version-1 installation the way the old client left it.
	seedDB, err := backend.OpenSQLiteDB(path)
	assert.Nil(t, err)

	legacy, err := migration.NewSQLiteLegacyStore(seedDB)
	assert.Nil(t, err)
	assert.Nil(t, legacy.EnsureContainer(ctx, "api-cache"))
	assert.Nil(t, legacy.Put(ctx, "api-cache", migration.LegacyEntry{Key: "users", Value: []byte(`[]`)}))
	assert.Nil(t, legacy.Put(ctx, "user-cache", migration.LegacyEntry{Key: "session", Value: []byte("tok")}))
	assert.Nil(t, seedDB.Close())

	cfg := DefaultConfig()
	cfg.SQLitePath = path

	tc, err := New(WithConfig(cfg))
	assert.Nil(t, err)
	assert.Nil(t, tc.Initialize(ctx))

	t.Cleanup(func() { _ = tc.Stop(ctx) })

	assert.True(t, tc.IsEnhancedModeAvailable())

	result := tc.MigrationResult()
	assert.True(t, result.Success)
	assert.Equal(t, 3, len(result.MigratedSteps))

	// Both legacy entries moved into the enhanced store.
	assert.Equal(t, 2, tc.structured.Count(ctx))
}

// TestFacade_InvalidateByTag exercises group invalidation: migrated entries
// carry their source container as a tag, so invalidating the container name
// sweeps them while unrelated entries survive.
func TestFacade_InvalidateByTag(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	seedDB, err := backend.OpenSQLiteDB(path)
	assert.Nil(t, err)

	legacy, err := migration.NewSQLiteLegacyStore(seedDB)
	assert.Nil(t, err)
	assert.Nil(t, legacy.EnsureContainer(ctx, "api-cache"))
	assert.Nil(t, legacy.Put(ctx, "api-cache", migration.LegacyEntry{Key: "users", Value: []byte(`[]`)}))
	assert.Nil(t, legacy.Put(ctx, "api-cache", migration.LegacyEntry{Key: "posts", Value: []byte(`[]`)}))
	assert.Nil(t, legacy.Put(ctx, "user-cache", migration.LegacyEntry{Key: "session", Value: []byte("tok")}))
	assert.Nil(t, seedDB.Close())

	cfg := DefaultConfig()
	cfg.SQLitePath = path

	tc, err := New(WithConfig(cfg))
	assert.Nil(t, err)
	assert.Nil(t, tc.Initialize(ctx))

	t.Cleanup(func() { _ = tc.Stop(ctx) })

	assert.Equal(t, 3, tc.structured.Count(ctx))

	assert.Nil(t, tc.Invalidate(ctx, "api-cache"))

	// Only the entries tagged with the invalidated container are gone.
	assert.Equal(t, 1, tc.structured.Count(ctx))

	_, found := tc.structured.Get(ctx, "users")
	assert.False(t, found)

	_, found = tc.structured.Get(ctx, "session")
	assert.True(t, found)
}

func TestFacade_DegradesWhenMigrationFails(t *testing.T) {
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "cache.db")
	cfg.FileDir = t.TempDir()

	broken := migration.Step{
		ID: "broken", Name: "broken", Required: true,
		Execute:  func(context.Context) error { return errors.New("refused") },
		Rollback: func(context.Context) error { return nil },
	}

	tc, err := New(WithConfig(cfg), WithMigrationOptions(
		migration.WithSteps(func() []migration.Step { return []migration.Step{broken} }),
		migration.WithPostCheck(func(context.Context) []string { return nil }),
	))
	assert.Nil(t, err)

	// Initialization survives; the structured tier is demoted.
	assert.Nil(t, tc.Initialize(ctx))

	t.Cleanup(func() { _ = tc.Stop(ctx) })

	assert.False(t, tc.IsEnhancedModeAvailable())
	assert.False(t, tc.Capabilities().StructuredStore)

	// The cache still works through the remaining tiers.
	assert.Nil(t, tc.Cache(ctx, "k", "v", 0))

	value, ok := tc.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", value)
}

func TestFacade_LegacyAliases(t *testing.T) {
	ctx := context.Background()
	tc := newMemoryOnlyCache(t)
	legacy := tc.Legacy()

	assert.Nil(t, legacy.Put(ctx, "aliased", "payload", 0))

	// The alias and the modern name read the same entry.
	value, ok := legacy.Retrieve(ctx, "aliased")
	assert.True(t, ok)
	assert.Equal(t, "payload", value)

	value, ok = tc.Get(ctx, "aliased")
	assert.True(t, ok)
	assert.Equal(t, "payload", value)

	assert.Nil(t, legacy.Remove(ctx, "aliased"))

	_, ok = tc.Get(ctx, "aliased")
	assert.False(t, ok)

	assert.Nil(t, legacy.Put(ctx, "flushed", "x", 0))
	assert.Nil(t, legacy.Flush(ctx))

	_, ok = legacy.Retrieve(ctx, "flushed")
	assert.False(t, ok)

	assert.True(t, legacy.Status().Misses > 0)
}

func TestFacade_ExportImport(t *testing.T) {
	ctx := context.Background()
	tc := newEnhancedCache(t)

	assert.Nil(t, tc.Cache(ctx, "alpha", "one", time.Hour))
	assert.Nil(t, tc.Cache(ctx, "beta", "two", 0))

	exported, err := tc.ExportCacheData(ctx)
	assert.Nil(t, err)
	assert.True(t, len(exported) > 0)

	assert.Nil(t, tc.Clear(ctx))

	_, ok := tc.Get(ctx, "alpha")
	assert.False(t, ok)

	assert.Nil(t, tc.ImportCacheData(ctx, exported))

	value, ok := tc.Get(ctx, "alpha")
	assert.True(t, ok)
	assert.Equal(t, "one", value)

	value, ok = tc.Get(ctx, "beta")
	assert.True(t, ok)
	assert.Equal(t, "two", value)
}

func TestFacade_ImportRejectsBadPayloads(t *testing.T) {
	ctx := context.Background()
	tc := newMemoryOnlyCache(t)

	assert.NotNil(t, tc.ImportCacheData(ctx, nil))
	assert.NotNil(t, tc.ImportCacheData(ctx, []byte("not msgpack")))
}

func TestFacade_RunDiagnostics(t *testing.T) {
	ctx := context.Background()
	tc := newEnhancedCache(t)

	report := tc.RunDiagnostics(ctx)
	assert.Equal(t, capability.TierFull, report.Tier)
	assert.True(t, report.EnhancedMode)
	assert.Equal(t, 4, len(report.Backends))

	for _, diag := range report.Backends {
		assert.True(t, diag.Healthy)
		assert.Equal(t, "", diag.Err)
	}

	// A healthy full-capability cache has nothing to recommend.
	assert.Equal(t, 0, len(report.Recommendations))
}

func TestFacade_DiagnosticsRecommendMissingTiers(t *testing.T) {
	ctx := context.Background()
	tc := newMemoryOnlyCache(t)

	report := tc.RunDiagnostics(ctx)
	assert.Equal(t, 3, len(report.Recommendations))

	joined := ""
	for _, rec := range report.Recommendations {
		joined += rec + "\n"
	}

	assert.True(t, strings.Contains(joined, "structured tier"))
	assert.True(t, strings.Contains(joined, "Redis"))
	assert.True(t, strings.Contains(joined, "file directory"))
}

func TestFacade_StopIsIdempotent(t *testing.T) {
	tc, err := New()
	assert.Nil(t, err)
	assert.Nil(t, tc.Initialize(context.Background()))

	assert.Nil(t, tc.Stop(context.Background()))
	assert.Nil(t, tc.Stop(context.Background()))

	// A stopped cache refuses writes.
	assert.True(t, errors.Is(tc.Cache(context.Background(), "k", "v", 0), sentinel.ErrNotInitialized))
}
