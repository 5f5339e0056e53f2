package migration

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/hyp3rd/ewrap"
	msgpack "github.com/shamaton/msgpack/v2"

	"github.com/magickw/tiercache/internal/sentinel"
)

// SnapshotEntry is one cached record captured by a backup.
type SnapshotEntry struct {
	Key     string            `msgpack:"key"`
	Value   []byte            `msgpack:"value"`
	Headers map[string]string `msgpack:"headers,omitempty"`
}

// ContainerSnapshot captures the full contents of one legacy container.
type ContainerSnapshot struct {
	Name    string          `msgpack:"name"`
	Entries []SnapshotEntry `msgpack:"entries"`
}

// Snapshot is a full pre-migration backup of the legacy cache contents,
// sufficient to rebuild the legacy layout on rollback.
type Snapshot struct {
	SourceVersion string              `msgpack:"source_version"`
	CreatedAt     time.Time           `msgpack:"created_at"`
	Containers    []ContainerSnapshot `msgpack:"containers"`
}

// EntryCount returns the total number of entries across all containers.
func (s *Snapshot) EntryCount() int {
	total := 0
	for _, container := range s.Containers {
		total += len(container.Entries)
	}

	return total
}

// ISnapshotStore persists at most one backup snapshot.
type ISnapshotStore interface {
	// Write replaces the persisted snapshot. The previous snapshot must
	// remain readable until the new one is durably written.
	Write(ctx context.Context, snapshot *Snapshot) error
	// Read returns the persisted snapshot, or nil when absent.
	Read(ctx context.Context) (*Snapshot, error)
	// Clear removes the persisted snapshot.
	Clear(ctx context.Context) error
}

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS cache_backup (
	id             INTEGER PRIMARY KEY CHECK (id = 1),
	source_version TEXT    NOT NULL,
	created_at     INTEGER NOT NULL,
	payload        BLOB    NOT NULL
);`

// SQLiteSnapshotStore keeps the snapshot as a single msgpack blob in the
// structured store. The single-row upsert runs in one statement, so the old
// snapshot is only replaced once the new one is fully written.
type SQLiteSnapshotStore struct {
	db *sql.DB
}

// NewSQLiteSnapshotStore creates the snapshot store and ensures its table exists.
func NewSQLiteSnapshotStore(ctx context.Context, db *sql.DB) (*SQLiteSnapshotStore, error) {
	if db == nil {
		return nil, sentinel.ErrNilDB
	}

	if _, err := db.ExecContext(ctx, snapshotSchema); err != nil {
		return nil, ewrap.Wrap(err, "ensure backup table")
	}

	return &SQLiteSnapshotStore{db: db}, nil
}

// Write replaces the persisted snapshot.
func (s *SQLiteSnapshotStore) Write(ctx context.Context, snapshot *Snapshot) error {
	if snapshot == nil {
		return ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "snapshot")
	}

	payload, err := msgpack.Marshal(snapshot)
	if err != nil {
		return ewrap.Wrap(err, "encode snapshot")
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO cache_backup (id, source_version, created_at, payload)
VALUES (1, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	source_version = excluded.source_version,
	created_at = excluded.created_at,
	payload = excluded.payload`,
		snapshot.SourceVersion, snapshot.CreatedAt.UnixMilli(), payload)
	if err != nil {
		return ewrap.Wrap(err, "write snapshot")
	}

	return nil
}

// Read returns the persisted snapshot, or nil when absent.
func (s *SQLiteSnapshotStore) Read(ctx context.Context) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx, "SELECT payload FROM cache_backup WHERE id = 1")

	var payload []byte

	err := row.Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, ewrap.Wrap(err, "read snapshot")
	}

	var snapshot Snapshot
	if err := msgpack.Unmarshal(payload, &snapshot); err != nil {
		return nil, ewrap.Wrap(err, "decode snapshot")
	}

	return &snapshot, nil
}

// Clear removes the persisted snapshot.
func (s *SQLiteSnapshotStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cache_backup WHERE id = 1"); err != nil {
		return ewrap.Wrap(err, "clear snapshot")
	}

	return nil
}

// MemorySnapshotStore keeps the snapshot in process memory.
type MemorySnapshotStore struct {
	mu       sync.Mutex
	snapshot *Snapshot
}

// NewMemorySnapshotStore creates an empty in-memory snapshot store.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{}
}

// Write replaces the persisted snapshot.
func (s *MemorySnapshotStore) Write(_ context.Context, snapshot *Snapshot) error {
	if snapshot == nil {
		return ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "snapshot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot = snapshot

	return nil
}

// Read returns the persisted snapshot, or nil when absent.
func (s *MemorySnapshotStore) Read(_ context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshot, nil
}

// Clear removes the persisted snapshot.
func (s *MemorySnapshotStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot = nil

	return nil
}

// BackupManager captures pre-migration snapshots of the legacy cache and
// replays them on rollback.
type BackupManager struct {
	legacy ILegacyStore
	store  ISnapshotStore
	logger Logger
}

// NewBackupManager wires a backup manager over a legacy store and a snapshot store.
func NewBackupManager(legacy ILegacyStore, store ISnapshotStore, logger Logger) (*BackupManager, error) {
	if legacy == nil || store == nil {
		return nil, ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "backup manager stores")
	}

	if logger == nil {
		logger = nopLogger{}
	}

	return &BackupManager{legacy: legacy, store: store, logger: logger}, nil
}

// CreateBackup captures every legacy container into a snapshot and persists
// it. The snapshot is only persisted once fully assembled, so a failure part
// way through leaves any previous snapshot intact.
func (m *BackupManager) CreateBackup(ctx context.Context, sourceVersion string) (*Snapshot, error) {
	containers, err := m.legacy.Containers(ctx)
	if err != nil {
		return nil, ewrap.Wrap(err, "enumerate containers for backup")
	}

	snapshot := &Snapshot{
		SourceVersion: sourceVersion,
		CreatedAt:     time.Now(),
	}

	for _, name := range containers {
		entries, err := m.legacy.Entries(ctx, name)
		if err != nil {
			return nil, ewrap.Wrapf(err, "capture container %s", name)
		}

		captured := ContainerSnapshot{Name: name, Entries: make([]SnapshotEntry, 0, len(entries))}
		for _, entry := range entries {
			captured.Entries = append(captured.Entries, SnapshotEntry{
				Key:     entry.Key,
				Value:   entry.Value,
				Headers: entry.Headers,
			})
		}

		snapshot.Containers = append(snapshot.Containers, captured)
	}

	if err := m.store.Write(ctx, snapshot); err != nil {
		return nil, ewrap.Wrap(err, "persist snapshot")
	}

	m.logger.Printf("backup captured: %d containers, %d entries",
		len(snapshot.Containers), snapshot.EntryCount())

	return snapshot, nil
}

// Latest returns the persisted snapshot, or ErrNoBackupAvailable when absent.
func (m *BackupManager) Latest(ctx context.Context) (*Snapshot, error) {
	snapshot, err := m.store.Read(ctx)
	if err != nil {
		return nil, err
	}

	if snapshot == nil {
		return nil, sentinel.ErrNoBackupAvailable
	}

	return snapshot, nil
}

// Restore replays a snapshot into the legacy store. Individual entry failures
// are logged and skipped; the restore only fails when a whole container
// cannot be made writable.
func (m *BackupManager) Restore(ctx context.Context, snapshot *Snapshot) error {
	if snapshot == nil {
		return sentinel.ErrNoBackupAvailable
	}

	for _, container := range snapshot.Containers {
		if err := m.legacy.EnsureContainer(ctx, container.Name); err != nil {
			return ewrap.Wrapf(err, "restore container %s", container.Name)
		}

		for _, entry := range container.Entries {
			err := m.legacy.Put(ctx, container.Name, LegacyEntry{
				Key:     entry.Key,
				Value:   entry.Value,
				Headers: entry.Headers,
			})
			if err != nil {
				m.logger.Printf("restore skipped %s/%s: %v", container.Name, entry.Key, err)
			}
		}
	}

	return nil
}

// Discard removes the persisted snapshot.
func (m *BackupManager) Discard(ctx context.Context) error {
	return m.store.Clear(ctx)
}

// Logger is the minimal logging surface the migration machinery needs.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
