// Package migration implements the cache-schema migration orchestrator: it
// detects the installed schema version, upgrades the legacy layout to the
// enhanced one step by step with per-step validation, and rolls the whole
// upgrade back from a backup snapshot when a required step or the
// post-migration validation fails.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/hyp3rd/ewrap"

	"github.com/magickw/tiercache/internal/sentinel"
)

// Version is the persisted cache-version record. Exactly one record is
// current at any time; it is rewritten only after a successful migration
// or rollback.
type Version struct {
	Version       string    // semantic version string
	SchemaVersion int       // schema-version integer compared against the target
	Features      []string  // feature list active at this version
	Timestamp     time.Time // when the record was written
}

// IVersionStore persists the current version record.
type IVersionStore interface {
	// Read returns the current version record, or nil when absent.
	Read(ctx context.Context) (*Version, error)
	// Write replaces the current version record.
	Write(ctx context.Context, version *Version) error
	// Clear removes the current version record.
	Clear(ctx context.Context) error
}

const versionSchema = `
CREATE TABLE IF NOT EXISTS cache_version (
	id             INTEGER PRIMARY KEY CHECK (id = 1),
	version        TEXT    NOT NULL,
	schema_version INTEGER NOT NULL,
	features       TEXT    NOT NULL DEFAULT '',
	updated_at     INTEGER NOT NULL
);`

// SQLiteVersionStore keeps the version record in a single-row table of the
// structured store, the most durable backend available.
type SQLiteVersionStore struct {
	db *sql.DB
}

// NewSQLiteVersionStore creates the version store and ensures its table exists.
func NewSQLiteVersionStore(ctx context.Context, db *sql.DB) (*SQLiteVersionStore, error) {
	if db == nil {
		return nil, sentinel.ErrNilDB
	}

	if _, err := db.ExecContext(ctx, versionSchema); err != nil {
		return nil, ewrap.Wrap(err, "ensure version table")
	}

	return &SQLiteVersionStore{db: db}, nil
}

// Read returns the current version record, or nil when absent.
func (s *SQLiteVersionStore) Read(ctx context.Context) (*Version, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT version, schema_version, features, updated_at FROM cache_version WHERE id = 1")

	var (
		version   Version
		features  string
		updatedAt int64
	)

	err := row.Scan(&version.Version, &version.SchemaVersion, &features, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, ewrap.Wrap(err, "read version record")
	}

	if features != "" {
		version.Features = strings.Split(features, ",")
	}

	version.Timestamp = time.UnixMilli(updatedAt)

	return &version, nil
}

// Write replaces the current version record. The single-row upsert keeps the
// at-most-one-current invariant without any coordination.
func (s *SQLiteVersionStore) Write(ctx context.Context, version *Version) error {
	if version == nil {
		return ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "version")
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO cache_version (id, version, schema_version, features, updated_at)
VALUES (1, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	version = excluded.version,
	schema_version = excluded.schema_version,
	features = excluded.features,
	updated_at = excluded.updated_at`,
		version.Version, version.SchemaVersion,
		strings.Join(version.Features, ","), time.Now().UnixMilli())
	if err != nil {
		return ewrap.Wrap(err, "write version record")
	}

	return nil
}

// Clear removes the current version record.
func (s *SQLiteVersionStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cache_version WHERE id = 1"); err != nil {
		return ewrap.Wrap(err, "clear version record")
	}

	return nil
}

// MemoryVersionStore keeps the version record in process memory. It backs
// degraded environments without a structured store, and tests.
type MemoryVersionStore struct {
	mu      sync.Mutex
	current *Version
}

// NewMemoryVersionStore creates an empty in-memory version store.
func NewMemoryVersionStore() *MemoryVersionStore {
	return &MemoryVersionStore{}
}

// Read returns the current version record, or nil when absent.
func (s *MemoryVersionStore) Read(_ context.Context) (*Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil, nil
	}

	clone := *s.current

	return &clone, nil
}

// Write replaces the current version record.
func (s *MemoryVersionStore) Write(_ context.Context, version *Version) error {
	if version == nil {
		return ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "version")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *version
	clone.Timestamp = time.Now()
	s.current = &clone

	return nil
}

// Clear removes the current version record.
func (s *MemoryVersionStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = nil

	return nil
}
