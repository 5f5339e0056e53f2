package migration

import (
	"context"
	"database/sql"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/hyp3rd/ewrap"

	"github.com/magickw/tiercache/internal/constants"
	"github.com/magickw/tiercache/internal/sentinel"
)

// LegacyEntry is one record of the version-1 cache layout. The legacy layout
// stored raw value bytes with a flat header map and no expiration metadata.
type LegacyEntry struct {
	Key     string
	Value   []byte
	Headers map[string]string
}

// ILegacyStore reads and rewrites the version-1 cache layout. The migration
// reads from it, the rollback replays the backup snapshot into it.
type ILegacyStore interface {
	// HasLegacyLayout reports whether the version-1 layout is present and
	// holds at least one of the well-known legacy container names.
	HasLegacyLayout(ctx context.Context) bool
	// Containers lists the distinct container names present in the layout.
	Containers(ctx context.Context) ([]string, error)
	// Entries returns value copies of every record in a container.
	Entries(ctx context.Context, container string) ([]LegacyEntry, error)
	// EnsureContainer makes a container writable, creating the layout if needed.
	EnsureContainer(ctx context.Context, container string) error
	// Put writes a record into a container.
	Put(ctx context.Context, container string, entry LegacyEntry) error
	// DropContainer removes a container and all its records.
	DropContainer(ctx context.Context, container string) error
}

const legacySchema = `
CREATE TABLE IF NOT EXISTS legacy_cache_store (
	cache_name TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      BLOB NOT NULL,
	headers    TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (cache_name, key)
);`

// SQLiteLegacyStore is the version-1 layout on the structured store.
type SQLiteLegacyStore struct {
	db *sql.DB
}

// NewSQLiteLegacyStore wraps an open database holding, or about to hold, the
// version-1 layout. It does not create the layout; that only happens on
// EnsureContainer, so a fresh install stays legacy-free.
func NewSQLiteLegacyStore(db *sql.DB) (*SQLiteLegacyStore, error) {
	if db == nil {
		return nil, sentinel.ErrNilDB
	}

	return &SQLiteLegacyStore{db: db}, nil
}

// layoutExists reports whether the legacy table is present at all. A fresh
// database never created it, so reads must treat absence as an empty layout
// rather than a query failure.
func (s *SQLiteLegacyStore) layoutExists(ctx context.Context) bool {
	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = 'legacy_cache_store'")

	var tables int
	if err := row.Scan(&tables); err != nil {
		return false
	}

	return tables > 0
}

// HasLegacyLayout reports whether the legacy table exists and holds at least
// one well-known legacy container name. An empty or foreign table does not
// count as a legacy installation.
func (s *SQLiteLegacyStore) HasLegacyLayout(ctx context.Context) bool {
	if !s.layoutExists(ctx) {
		return false
	}

	containers, err := s.Containers(ctx)
	if err != nil {
		return false
	}

	known := make(map[string]struct{}, len(constants.LegacyContainers()))
	for _, name := range constants.LegacyContainers() {
		known[name] = struct{}{}
	}

	for _, name := range containers {
		if _, ok := known[name]; ok {
			return true
		}
	}

	return false
}

// Containers lists the distinct container names present in the layout. A
// database without the layout reads as empty.
func (s *SQLiteLegacyStore) Containers(ctx context.Context) ([]string, error) {
	if !s.layoutExists(ctx) {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT cache_name FROM legacy_cache_store ORDER BY cache_name")
	if err != nil {
		return nil, ewrap.Wrap(err, "list legacy containers")
	}
	defer rows.Close()

	var containers []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, ewrap.Wrap(err, "scan legacy container")
		}

		containers = append(containers, name)
	}

	if err := rows.Err(); err != nil {
		return nil, ewrap.Wrap(err, "iterate legacy containers")
	}

	return containers, nil
}

// Entries returns value copies of every record in a container. A database
// without the layout reads as empty.
func (s *SQLiteLegacyStore) Entries(ctx context.Context, container string) ([]LegacyEntry, error) {
	if !s.layoutExists(ctx) {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value, headers FROM legacy_cache_store WHERE cache_name = ?", container)
	if err != nil {
		return nil, ewrap.Wrapf(err, "read legacy container %s", container)
	}
	defer rows.Close()

	var entries []LegacyEntry

	for rows.Next() {
		var (
			entry   LegacyEntry
			headers string
		)

		if err := rows.Scan(&entry.Key, &entry.Value, &headers); err != nil {
			return nil, ewrap.Wrap(err, "scan legacy entry")
		}

		entry.Headers = decodeHeaders(headers)
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, ewrap.Wrap(err, "iterate legacy entries")
	}

	return entries, nil
}

// EnsureContainer creates the legacy layout if needed. Containers are rows in
// the layout, so nothing per-container is created beyond the table itself.
func (s *SQLiteLegacyStore) EnsureContainer(ctx context.Context, _ string) error {
	if _, err := s.db.ExecContext(ctx, legacySchema); err != nil {
		return ewrap.Wrap(err, "ensure legacy layout")
	}

	return nil
}

// Put writes a record into a container.
func (s *SQLiteLegacyStore) Put(ctx context.Context, container string, entry LegacyEntry) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO legacy_cache_store (cache_name, key, value, headers)
VALUES (?, ?, ?, ?)
ON CONFLICT (cache_name, key) DO UPDATE SET
	value = excluded.value,
	headers = excluded.headers`,
		container, entry.Key, entry.Value, encodeHeaders(entry.Headers))
	if err != nil {
		return ewrap.Wrapf(err, "write legacy entry %s/%s", container, entry.Key)
	}

	return nil
}

// DropContainer removes a container and all its records. Dropping from an
// absent layout is a no-op.
func (s *SQLiteLegacyStore) DropContainer(ctx context.Context, container string) error {
	if !s.layoutExists(ctx) {
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM legacy_cache_store WHERE cache_name = ?", container)
	if err != nil {
		return ewrap.Wrapf(err, "drop legacy container %s", container)
	}

	return nil
}

// MemoryLegacyStore is an in-memory version-1 layout used by tests and by
// degraded environments without a structured store.
type MemoryLegacyStore struct {
	mu         sync.Mutex
	containers map[string]map[string]LegacyEntry
}

// NewMemoryLegacyStore creates an empty in-memory legacy store.
func NewMemoryLegacyStore() *MemoryLegacyStore {
	return &MemoryLegacyStore{containers: make(map[string]map[string]LegacyEntry)}
}

// Seed fills a container in one call, creating it if needed.
func (s *MemoryLegacyStore) Seed(container string, entries ...LegacyEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.containers[container]
	if !ok {
		bucket = make(map[string]LegacyEntry, len(entries))
		s.containers[container] = bucket
	}

	for _, entry := range entries {
		bucket[entry.Key] = entry
	}
}

// HasLegacyLayout reports whether any well-known legacy container holds data.
func (s *MemoryLegacyStore) HasLegacyLayout(_ context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range constants.LegacyContainers() {
		if len(s.containers[name]) > 0 {
			return true
		}
	}

	return false
}

// Containers lists the distinct container names present in the layout.
func (s *MemoryLegacyStore) Containers(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	containers := make([]string, 0, len(s.containers))
	for name := range s.containers {
		containers = append(containers, name)
	}

	return containers, nil
}

// Entries returns value copies of every record in a container.
func (s *MemoryLegacyStore) Entries(_ context.Context, container string) ([]LegacyEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.containers[container]
	entries := make([]LegacyEntry, 0, len(bucket))

	for _, entry := range bucket {
		entries = append(entries, entry)
	}

	return entries, nil
}

// EnsureContainer makes a container writable.
func (s *MemoryLegacyStore) EnsureContainer(_ context.Context, container string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.containers[container]; !ok {
		s.containers[container] = make(map[string]LegacyEntry)
	}

	return nil
}

// Put writes a record into a container.
func (s *MemoryLegacyStore) Put(_ context.Context, container string, entry LegacyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.containers[container]
	if !ok {
		bucket = make(map[string]LegacyEntry)
		s.containers[container] = bucket
	}

	bucket[entry.Key] = entry

	return nil
}

// DropContainer removes a container and all its records.
func (s *MemoryLegacyStore) DropContainer(_ context.Context, container string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.containers, container)

	return nil
}

// The legacy layout stores headers as a JSON object in a text column.

func encodeHeaders(headers map[string]string) string {
	if len(headers) == 0 {
		return ""
	}

	raw, err := json.Marshal(headers)
	if err != nil {
		return ""
	}

	return string(raw)
}

func decodeHeaders(raw string) map[string]string {
	if raw == "" {
		return nil
	}

	headers := make(map[string]string)
	if err := json.Unmarshal([]byte(raw), &headers); err != nil {
		return nil
	}

	return headers
}
