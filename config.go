package tiercache

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hyp3rd/ewrap"

	"github.com/magickw/tiercache/internal/constants"
)

// Config carries the storage endpoints and tuning knobs of the cache.
// Every field has an environment binding so deployments can configure the
// cache without code.
type Config struct {
	// SQLitePath is the database file backing the structured store.
	// Empty disables the structured tier.
	SQLitePath string `env:"TIERCACHE_SQLITE_PATH"`
	// RedisAddr is the blob-store endpoint. Empty disables the blob tier.
	RedisAddr     string `env:"TIERCACHE_REDIS_ADDR"`
	RedisPassword string `env:"TIERCACHE_REDIS_PASSWORD"`
	RedisDB       int    `env:"TIERCACHE_REDIS_DB" envDefault:"0"`
	// FileDir is the directory backing the string store. Empty disables it.
	FileDir   string `env:"TIERCACHE_FILE_DIR"`
	FileQuota int64  `env:"TIERCACHE_FILE_QUOTA"`

	MemoryCapacity int           `env:"TIERCACHE_MEMORY_CAPACITY"`
	SweepInterval  time.Duration `env:"TIERCACHE_SWEEP_INTERVAL"`
	Serializer     string        `env:"TIERCACHE_SERIALIZER" envDefault:"msgpack"`

	// BroadcastEnabled turns on cross-process invalidation fan-out over
	// Redis pub/sub. It only takes effect when the broadcast capability
	// probes healthy.
	BroadcastEnabled bool   `env:"TIERCACHE_BROADCAST" envDefault:"true"`
	BroadcastChannel string `env:"TIERCACHE_BROADCAST_CHANNEL"`

	// MgmtAddr enables the management HTTP server when non-empty.
	MgmtAddr string `env:"TIERCACHE_MGMT_ADDR"`
	// MgmtToken guards the management endpoints when non-empty.
	MgmtToken string `env:"TIERCACHE_MGMT_TOKEN"`

	DiagnosticsRingSize int `env:"TIERCACHE_DIAG_RING"`
}

// DefaultConfig returns a config with every tuning knob at its default.
// Storage endpoints stay empty; the capability probe degrades gracefully
// around whatever is missing.
func DefaultConfig() Config {
	return Config{
		FileQuota:           constants.DefaultFileStoreQuota,
		MemoryCapacity:      constants.DefaultMemoryCapacity,
		SweepInterval:       constants.DefaultSweepInterval,
		Serializer:          "msgpack",
		BroadcastEnabled:    true,
		BroadcastChannel:    constants.BroadcastChannel,
		DiagnosticsRingSize: constants.DefaultDiagnosticsRingSize,
	}
}

// LoadEnv builds a config from the environment on top of the defaults.
func LoadEnv() (Config, error) {
	cfg := DefaultConfig()

	if err := env.Parse(&cfg); err != nil {
		return cfg, ewrap.Wrap(err, "parse environment")
	}

	return cfg.normalized(), nil
}

// normalized backfills zero values left by partial configuration.
func (c Config) normalized() Config {
	if c.FileQuota <= 0 {
		c.FileQuota = constants.DefaultFileStoreQuota
	}

	if c.MemoryCapacity <= 0 {
		c.MemoryCapacity = constants.DefaultMemoryCapacity
	}

	if c.SweepInterval <= 0 {
		c.SweepInterval = constants.DefaultSweepInterval
	}

	if c.Serializer == "" {
		c.Serializer = "msgpack"
	}

	if c.BroadcastChannel == "" {
		c.BroadcastChannel = constants.BroadcastChannel
	}

	if c.DiagnosticsRingSize <= 0 {
		c.DiagnosticsRingSize = constants.DefaultDiagnosticsRingSize
	}

	return c
}
