// Package constants defines default configuration values, backend identifiers,
// and container names for the tiercache system.
package constants

import "time"

const (
	// TargetVersion is the version string written to the current version record
	// after a successful migration to the enhanced schema.
	TargetVersion = "2.0.0"
	// TargetSchemaVersion is the schema-version integer the migration upgrades to.
	TargetSchemaVersion = 2
	// LegacySchemaVersion is the schema-version inferred when legacy-shaped
	// containers are present but no version record exists.
	LegacySchemaVersion = 1
	// LegacyVersion is the version string assigned to installations detected
	// through the legacy layout rather than a version record.
	LegacyVersion = "1.0.0"

	// DefaultSweepInterval is the default interval of the expired-entry sweep
	// running in the in-memory backend.
	DefaultSweepInterval = 1 * time.Minute
	// DefaultMemoryCapacity is the default number of entries the in-memory
	// backend holds before evicting least-recently-used entries.
	DefaultMemoryCapacity = 10_000
	// DefaultFileStoreQuota is the default byte quota of the file-backed string store.
	DefaultFileStoreQuota = 4 << 20
	// DefaultDiagnosticsRingSize bounds the router's failure diagnostics buffer.
	DefaultDiagnosticsRingSize = 128

	// SQLiteBackend is the name of the structured store adapter.
	SQLiteBackend = "sqlite"
	// RedisBackend is the name of the blob store adapter.
	RedisBackend = "redis"
	// FileBackend is the name of the file-backed string store adapter.
	FileBackend = "file"
	// InMemoryBackend is the name of the in-memory adapter, the terminal fallback.
	InMemoryBackend = "in-memory"

	// EnhancedContainer is the cache name entries are stored under in the
	// enhanced schema.
	EnhancedContainer = "enhanced-cache"

	// RedisKeySetName is the name of the Redis set that tracks cached keys.
	RedisKeySetName = "tiercache"
	// RedisDialTimeout is the timeout for the Redis dialer.
	RedisDialTimeout = 5 * time.Second
	// RedisClientReadTimeout is the read timeout for the Redis client.
	RedisClientReadTimeout = 10 * time.Second
	// RedisClientWriteTimeout is the write timeout for the Redis client.
	RedisClientWriteTimeout = 10 * time.Second

	// BroadcastChannel is the default Redis pub/sub channel used for
	// cross-process cache-invalidation fan-out.
	BroadcastChannel = "tiercache:invalidation"
)

// LegacyContainers lists the container names of the legacy cache layout.
// Their presence, absent a version record, implies legacy schema version 1.
func LegacyContainers() []string {
	return []string{"api-cache", "asset-cache", "user-cache"}
}
