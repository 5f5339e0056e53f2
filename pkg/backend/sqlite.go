package backend

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyp3rd/ewrap"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/magickw/tiercache/internal/constants"
	"github.com/magickw/tiercache/internal/libs/serializer"
	"github.com/magickw/tiercache/internal/sentinel"
	"github.com/magickw/tiercache/pkg/cache"
)

// enhancedSchema is the enhanced cache layout: one metadata row per entry,
// keyed for point lookup and indexed for range scans by timestamp and
// container name. The schema is created by the migration orchestrator, not by
// the adapter; an adapter pointed at an unmigrated database reports plain
// backend failures and the router falls through.
const enhancedSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	container    TEXT    NOT NULL,
	key          TEXT    NOT NULL,
	value        BLOB    NOT NULL,
	headers      BLOB,
	tags         BLOB,
	checksum     INTEGER NOT NULL DEFAULT 0,
	size         INTEGER NOT NULL DEFAULT 0,
	timestamp    INTEGER NOT NULL,
	last_access  INTEGER NOT NULL,
	expiration_ms INTEGER NOT NULL DEFAULT 0,
	access_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (container, key)
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_timestamp ON cache_entries (timestamp);
CREATE INDEX IF NOT EXISTS idx_cache_entries_container ON cache_entries (container);
`

// SQLite is the structured store adapter, the most durable tier of the chain.
type SQLite struct {
	db         *sql.DB                // database handle, owned by the facade
	container  string                 // cache name entries are stored under
	serializer serializer.ISerializer // headers/tags codec
}

// NewSQLite creates a new SQLite adapter with the given options.
func NewSQLite(opts ...Option[SQLite]) (*SQLite, error) {
	backendInstance := &SQLite{
		container: constants.EnhancedContainer,
	}

	ApplyOptions(backendInstance, opts...)

	if backendInstance.db == nil {
		return nil, sentinel.ErrNilDB
	}

	if backendInstance.serializer == nil {
		ser, err := serializer.New("json")
		if err != nil {
			return nil, err
		}

		backendInstance.serializer = ser
	}

	return backendInstance, nil
}

// OpenSQLiteDB opens a SQLite database with the pragmas the adapter expects.
func OpenSQLiteDB(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "sqlite path")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, ewrap.Wrap(err, "open sqlite db")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()

		return nil, ewrap.Wrap(err, "ping sqlite db")
	}

	return db, nil
}

// EnsureSchema creates the enhanced schema if it does not exist. The
// migration orchestrator calls this from its create-enhanced-schema step.
func (cacheBackend *SQLite) EnsureSchema(ctx context.Context) error {
	if _, err := cacheBackend.db.ExecContext(ctx, enhancedSchema); err != nil {
		return ewrap.Wrap(sentinel.ErrBackendOperationFailed, err.Error())
	}

	return nil
}

// DropSchema removes the enhanced schema entirely. Only the migration
// rollback path uses it.
func (cacheBackend *SQLite) DropSchema(ctx context.Context) error {
	if _, err := cacheBackend.db.ExecContext(ctx, "DROP TABLE IF EXISTS cache_entries"); err != nil {
		return ewrap.Wrap(sentinel.ErrBackendOperationFailed, err.Error())
	}

	return nil
}

// SchemaReady reports whether the enhanced schema is present.
func (cacheBackend *SQLite) SchemaReady(ctx context.Context) bool {
	var name string

	err := cacheBackend.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'cache_entries'").Scan(&name)

	return err == nil && name == "cache_entries"
}

// DB exposes the underlying handle for the migration orchestrator's state stores.
func (cacheBackend *SQLite) DB() *sql.DB {
	return cacheBackend.db
}

// Name returns the adapter's backend name.
func (cacheBackend *SQLite) Name() string {
	return constants.SQLiteBackend
}

// Count returns the number of entries currently stored.
func (cacheBackend *SQLite) Count(ctx context.Context) int {
	var count int

	err := cacheBackend.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM cache_entries WHERE container = ?", cacheBackend.container).Scan(&count)
	if err != nil {
		return 0
	}

	return count
}

// Get retrieves the entry with the given key. Expired entries are removed
// lazily and reported as a miss; the hit count and last access time are
// written back to the metadata row.
func (cacheBackend *SQLite) Get(ctx context.Context, key string) (*cache.Entry, bool) {
	row := cacheBackend.db.QueryRowContext(ctx, `
SELECT value, headers, tags, checksum, size, timestamp, last_access, expiration_ms, access_count
FROM cache_entries WHERE container = ? AND key = ?`, cacheBackend.container, key)

	var (
		value, headersRaw, tagsRaw                []byte
		checksum, size, timestampMs, lastAccessMs int64
		expirationMs                              int64
		accessCount                               uint32
	)

	err := row.Scan(&value, &headersRaw, &tagsRaw, &checksum, &size,
		&timestampMs, &lastAccessMs, &expirationMs, &accessCount)
	if err != nil {
		return nil, false
	}

	entry := &cache.Entry{
		Key:         key,
		Value:       value,
		Container:   cacheBackend.container,
		Backend:     constants.SQLiteBackend,
		Checksum:    uint64(checksum),
		Size:        size,
		Timestamp:   time.UnixMilli(timestampMs),
		LastAccess:  time.UnixMilli(lastAccessMs),
		Expiration:  time.Duration(expirationMs) * time.Millisecond,
		AccessCount: accessCount,
	}

	if len(headersRaw) > 0 {
		_ = cacheBackend.serializer.Unmarshal(headersRaw, &entry.Headers)
	}

	if len(tagsRaw) > 0 {
		_ = cacheBackend.serializer.Unmarshal(tagsRaw, &entry.Tags)
	}

	if entry.Expired() {
		_ = cacheBackend.Remove(ctx, key)

		return nil, false
	}

	entry.Touch()

	_, _ = cacheBackend.db.ExecContext(ctx, `
UPDATE cache_entries SET access_count = ?, last_access = ?
WHERE container = ? AND key = ?`,
		entry.AccessCount, entry.LastAccess.UnixMilli(), cacheBackend.container, key)

	return entry, true
}

// Set stores the entry transactionally: the metadata row and value land
// together or not at all.
func (cacheBackend *SQLite) Set(ctx context.Context, entry *cache.Entry) error {
	if err := entry.Valid(); err != nil {
		return err
	}

	headersRaw, err := cacheBackend.marshalOrNil(entry.Headers, len(entry.Headers) > 0)
	if err != nil {
		return err
	}

	tagsRaw, err := cacheBackend.marshalOrNil(entry.Tags, len(entry.Tags) > 0)
	if err != nil {
		return err
	}

	_, err = cacheBackend.db.ExecContext(ctx, `
INSERT INTO cache_entries
	(container, key, value, headers, tags, checksum, size, timestamp, last_access, expiration_ms, access_count)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (container, key) DO UPDATE SET
	value = excluded.value,
	headers = excluded.headers,
	tags = excluded.tags,
	checksum = excluded.checksum,
	size = excluded.size,
	timestamp = excluded.timestamp,
	last_access = excluded.last_access,
	expiration_ms = excluded.expiration_ms,
	access_count = excluded.access_count`,
		cacheBackend.container, entry.Key, entry.Value, headersRaw, tagsRaw,
		int64(entry.Checksum), entry.Size, entry.Timestamp.UnixMilli(),
		entry.LastAccess.UnixMilli(), entry.Expiration.Milliseconds(), entry.AccessCount)
	if err != nil {
		return ewrap.Wrap(sentinel.ErrBackendOperationFailed, err.Error())
	}

	entry.Backend = constants.SQLiteBackend

	return nil
}

// Remove removes the entries with the given keys. Missing keys are not an error.
func (cacheBackend *SQLite) Remove(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		_, err := cacheBackend.db.ExecContext(ctx,
			"DELETE FROM cache_entries WHERE container = ? AND key = ?", cacheBackend.container, key)
		if err != nil {
			return ewrap.Wrap(sentinel.ErrBackendOperationFailed, err.Error())
		}
	}

	return nil
}

// Keys returns the keys currently stored by the adapter.
func (cacheBackend *SQLite) Keys(ctx context.Context) ([]string, error) {
	rows, err := cacheBackend.db.QueryContext(ctx,
		"SELECT key FROM cache_entries WHERE container = ? ORDER BY timestamp", cacheBackend.container)
	if err != nil {
		return nil, ewrap.Wrap(sentinel.ErrBackendOperationFailed, err.Error())
	}
	defer rows.Close()

	var keys []string

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, ewrap.Wrap(sentinel.ErrBackendOperationFailed, err.Error())
		}

		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, ewrap.Wrap(sentinel.ErrBackendOperationFailed, err.Error())
	}

	return keys, nil
}

// Clear removes all entries from the adapter's container.
func (cacheBackend *SQLite) Clear(ctx context.Context) error {
	_, err := cacheBackend.db.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE container = ?", cacheBackend.container)
	if err != nil {
		return ewrap.Wrap(sentinel.ErrBackendOperationFailed, err.Error())
	}

	return nil
}

// RangeByTimestamp returns the keys of entries created within [from, to],
// oldest first, using the timestamp index.
func (cacheBackend *SQLite) RangeByTimestamp(ctx context.Context, from, to time.Time) ([]string, error) {
	rows, err := cacheBackend.db.QueryContext(ctx, `
SELECT key FROM cache_entries
WHERE container = ? AND timestamp BETWEEN ? AND ?
ORDER BY timestamp`, cacheBackend.container, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, ewrap.Wrap(sentinel.ErrBackendOperationFailed, err.Error())
	}
	defer rows.Close()

	var keys []string

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, ewrap.Wrap(sentinel.ErrBackendOperationFailed, err.Error())
		}

		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, ewrap.Wrap(sentinel.ErrBackendOperationFailed, err.Error())
	}

	return keys, nil
}

func (cacheBackend *SQLite) marshalOrNil(v any, present bool) ([]byte, error) {
	if !present {
		return nil, nil
	}

	raw, err := cacheBackend.serializer.Marshal(v)
	if err != nil {
		return nil, ewrap.Wrap(sentinel.ErrBackendOperationFailed, err.Error())
	}

	return raw, nil
}
