package backend

import (
	"context"
	"errors"
	"time"

	"github.com/hyp3rd/ewrap"
	"github.com/redis/go-redis/v9"

	"github.com/magickw/tiercache/internal/constants"
	"github.com/magickw/tiercache/internal/libs/serializer"
	"github.com/magickw/tiercache/internal/sentinel"
	"github.com/magickw/tiercache/pkg/cache"
)

// Redis is the blob store adapter. Entries are stored one hash per key with a
// msgpack-serialized envelope, and a set tracks the cached keys for
// enumeration. TTLs are delegated to the server's key expiry.
type Redis struct {
	rdb         redis.UniversalClient  // client to interact with the redis server
	keysSetName string                 // name of the set that tracks cached keys
	serializer  serializer.ISerializer // envelope codec
	pool        *cache.EntryPoolManager
}

// NewRedis creates a new Redis adapter with the given options.
func NewRedis(opts ...Option[Redis]) (*Redis, error) {
	backendInstance := &Redis{
		pool: cache.NewEntryPoolManager(),
	}

	ApplyOptions(backendInstance, opts...)

	if backendInstance.rdb == nil {
		return nil, sentinel.ErrNilClient
	}

	if backendInstance.keysSetName == "" {
		backendInstance.keysSetName = constants.RedisKeySetName
	}

	if backendInstance.serializer == nil {
		ser, err := serializer.New("msgpack")
		if err != nil {
			return nil, err
		}

		backendInstance.serializer = ser
	}

	return backendInstance, nil
}

// NewRedisClient builds a client with the package's defaults applied.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  constants.RedisDialTimeout,
		ReadTimeout:  constants.RedisClientReadTimeout,
		WriteTimeout: constants.RedisClientWriteTimeout,
	})
}

// Name returns the adapter's backend name.
func (cacheBackend *Redis) Name() string {
	return constants.RedisBackend
}

// Count returns the number of entries currently stored.
func (cacheBackend *Redis) Count(ctx context.Context) int {
	count, err := cacheBackend.rdb.SCard(ctx, cacheBackend.keysSetName).Result()
	if err != nil {
		return 0
	}

	return int(count)
}

// Get retrieves the entry with the given key. Expired entries are reported as
// a miss; the server-side key expiry removes the value, the key set is pruned
// here.
func (cacheBackend *Redis) Get(ctx context.Context, key string) (*cache.Entry, bool) {
	data, err := cacheBackend.rdb.HGet(ctx, cacheBackend.entryKey(key), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Value expired or never existed; drop the stale key-set member.
			_ = cacheBackend.rdb.SRem(ctx, cacheBackend.keysSetName, key).Err()
		}

		return nil, false
	}

	pooled := cacheBackend.pool.Get()

	if err := cacheBackend.serializer.Unmarshal(data, pooled); err != nil {
		cacheBackend.pool.Put(pooled)

		return nil, false
	}

	if pooled.Expired() {
		cacheBackend.pool.Put(pooled)
		_ = cacheBackend.Remove(ctx, key)

		return nil, false
	}

	// Clone into a new heap object to avoid returning a pooled pointer.
	out := *pooled
	cacheBackend.pool.Put(pooled)

	out.Touch()
	out.Backend = constants.RedisBackend

	return &out, true
}

// Set stores the entry.
func (cacheBackend *Redis) Set(ctx context.Context, entry *cache.Entry) error {
	if err := entry.Valid(); err != nil {
		return err
	}

	entry.Backend = constants.RedisBackend

	data, err := cacheBackend.serializer.Marshal(entry)
	if err != nil {
		return ewrap.Wrap(sentinel.ErrBackendOperationFailed, err.Error())
	}

	pipe := cacheBackend.rdb.TxPipeline()
	pipe.HSet(ctx, cacheBackend.entryKey(entry.Key), "data", data)
	pipe.SAdd(ctx, cacheBackend.keysSetName, entry.Key)

	if entry.Expiration > 0 {
		pipe.Expire(ctx, cacheBackend.entryKey(entry.Key), entry.Expiration)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return ewrap.Wrap(sentinel.ErrBackendOperationFailed, err.Error())
	}

	return nil
}

// Remove removes the entries with the given keys. Missing keys are not an error.
func (cacheBackend *Redis) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	pipe := cacheBackend.rdb.TxPipeline()

	for _, key := range keys {
		pipe.Del(ctx, cacheBackend.entryKey(key))
		pipe.SRem(ctx, cacheBackend.keysSetName, key)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return ewrap.Wrap(sentinel.ErrBackendOperationFailed, err.Error())
	}

	return nil
}

// Keys returns the keys currently stored by the adapter.
func (cacheBackend *Redis) Keys(ctx context.Context) ([]string, error) {
	keys, err := cacheBackend.rdb.SMembers(ctx, cacheBackend.keysSetName).Result()
	if err != nil {
		return nil, ewrap.Wrap(sentinel.ErrBackendOperationFailed, err.Error())
	}

	return keys, nil
}

// Clear removes all entries from the adapter.
func (cacheBackend *Redis) Clear(ctx context.Context) error {
	keys, err := cacheBackend.Keys(ctx)
	if err != nil {
		return err
	}

	if err := cacheBackend.Remove(ctx, keys...); err != nil {
		return err
	}

	return ewrap.Wrap(cacheBackend.rdb.Del(ctx, cacheBackend.keysSetName).Err(), "clearing key set")
}

// entryKey namespaces cache keys to keep them apart from the key set.
func (cacheBackend *Redis) entryKey(key string) string {
	return cacheBackend.keysSetName + ":" + key
}

// Ping verifies the server is reachable within the given timeout.
func (cacheBackend *Redis) Ping(ctx context.Context, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return ewrap.Wrap(cacheBackend.rdb.Ping(pingCtx).Err(), "pinging redis")
}
