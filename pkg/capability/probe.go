package capability

import (
	"context"
	"crypto/rand"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
)

// Endpoints holds the handles the probe exercises. A nil handle or empty path
// marks the corresponding primitive as unconfigured, which the probe reports
// as unavailable.
type Endpoints struct {
	DB      *sql.DB       // structured store handle, nil when not configured
	Redis   redis.Cmdable // blob store / broadcast client, nil when not configured
	FileDir string        // directory of the file-backed string store
}

// Probe runs one feature test per capability and returns the immutable report.
// Feature tests are side-effect free where possible; the string-store test
// performs a trial write that is removed immediately, with any failure
// swallowed as "unavailable". Probe never returns an error.
func Probe(ctx context.Context, endpoints Endpoints) Report {
	report := Report{
		StructuredStore: probeStructured(ctx, endpoints.DB),
		BlobStore:       probeBlob(ctx, endpoints.Redis),
		StringStore:     probeStringStore(endpoints.FileDir),
		Crypto:          probeCrypto(),
	}

	// Fan-out rides on the blob store's pub/sub; probed separately so a
	// client with pub/sub disabled degrades to polling-free operation.
	report.Broadcast = probeBroadcast(ctx, endpoints.Redis)

	// Background preload needs both a durable structured store and fan-out.
	report.Preload = report.StructuredStore && report.Broadcast

	report.Tier = deriveTier(report)

	return report
}

func probeStructured(ctx context.Context, db *sql.DB) bool {
	if db == nil {
		return false
	}

	if err := db.PingContext(ctx); err != nil {
		return false
	}

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return false
	}

	return one == 1
}

func probeBlob(ctx context.Context, client redis.Cmdable) bool {
	if client == nil {
		return false
	}

	return client.Ping(ctx).Err() == nil
}

func probeBroadcast(ctx context.Context, client redis.Cmdable) bool {
	if client == nil {
		return false
	}

	return client.PubSubChannels(ctx, "*").Err() == nil
}

func probeStringStore(dir string) bool {
	if dir == "" {
		return false
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false
	}

	probePath := filepath.Join(dir, ".tiercache-probe")
	if err := os.WriteFile(probePath, []byte("ok"), 0o600); err != nil {
		return false
	}

	_ = os.Remove(probePath)

	return true
}

func probeCrypto() bool {
	var buf [16]byte

	_, err := rand.Read(buf[:])

	return err == nil
}
