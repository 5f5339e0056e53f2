package backend

import (
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/magickw/tiercache/internal/libs/serializer"
)

// Option is a function type that configures a backend adapter.
type Option[T any] func(*T)

// ApplyOptions applies the given options to the given adapter.
func ApplyOptions[T any](backendInstance *T, options ...Option[T]) {
	for _, option := range options {
		option(backendInstance)
	}
}

// WithCapacity sets the entry cap of the in-memory adapter.
func WithCapacity(capacity int) Option[InMemory] {
	return func(b *InMemory) {
		b.capacity = capacity
	}
}

// WithSweepInterval sets the interval of the in-memory expired-entry sweep.
func WithSweepInterval(interval time.Duration) Option[InMemory] {
	return func(b *InMemory) {
		b.sweepInterval = interval
	}
}

// WithEvictionAlgorithm sets the eviction algorithm name of the in-memory adapter.
func WithEvictionAlgorithm(name string) Option[InMemory] {
	return func(b *InMemory) {
		b.algorithmName = name
	}
}

// WithDB sets the database handle of the SQLite adapter.
func WithDB(db *sql.DB) Option[SQLite] {
	return func(b *SQLite) {
		b.db = db
	}
}

// WithContainer sets the container name the SQLite adapter stores entries under.
func WithContainer(name string) Option[SQLite] {
	return func(b *SQLite) {
		b.container = name
	}
}

// WithRedisClient sets the client of the Redis adapter.
func WithRedisClient(client redis.UniversalClient) Option[Redis] {
	return func(b *Redis) {
		b.rdb = client
	}
}

// WithKeySetName sets the name of the Redis set that tracks cached keys.
func WithKeySetName(name string) Option[Redis] {
	return func(b *Redis) {
		b.keysSetName = name
	}
}

// WithSerializer sets the envelope serializer of the Redis adapter.
func WithSerializer(ser serializer.ISerializer) Option[Redis] {
	return func(b *Redis) {
		b.serializer = ser
	}
}

// WithDir sets the directory of the file store adapter.
func WithDir(dir string) Option[FileStore] {
	return func(b *FileStore) {
		b.dir = dir
	}
}

// WithQuota sets the byte quota of the file store adapter.
func WithQuota(quota int64) Option[FileStore] {
	return func(b *FileStore) {
		b.quota = quota
	}
}
