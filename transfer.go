package tiercache

import (
	"context"
	"time"

	"github.com/hyp3rd/ewrap"
	msgpack "github.com/shamaton/msgpack/v2"

	"github.com/magickw/tiercache/internal/sentinel"
	"github.com/magickw/tiercache/pkg/cache"
)

// exportDocument is the wire format of ExportCacheData. It carries raw
// serialized values, so an export is importable by any process using the
// same value serializer.
type exportDocument struct {
	Version    string          `msgpack:"version"`
	ExportedAt time.Time       `msgpack:"exported_at"`
	Entries    []exportedEntry `msgpack:"entries"`
}

type exportedEntry struct {
	Key       string            `msgpack:"key"`
	Value     []byte            `msgpack:"value"`
	Headers   map[string]string `msgpack:"headers,omitempty"`
	Tags      []string          `msgpack:"tags,omitempty"`
	Container string            `msgpack:"container,omitempty"`
	Timestamp time.Time         `msgpack:"timestamp"`
	TTL       time.Duration     `msgpack:"ttl"`
}

// ExportCacheData serializes the live cache contents. Keys are collected
// across the whole chain and each value is read through the normal fallback
// path, so the export reflects what a reader would actually see.
func (tc *TierCache) ExportCacheData(ctx context.Context) ([]byte, error) {
	if !tc.initialized.Load() {
		return nil, sentinel.ErrNotInitialized
	}

	seen := make(map[string]struct{})
	doc := exportDocument{
		Version:    tc.report.Tier.String(),
		ExportedAt: time.Now(),
	}

	for _, tier := range tc.chain {
		keys, err := tier.Keys(ctx)
		if err != nil {
			tc.logger.Printf("export: skipping %s keys: %v", tier.Name(), err)

			continue
		}

		for _, key := range keys {
			if _, dup := seen[key]; dup {
				continue
			}

			seen[key] = struct{}{}

			entry, _, ok := tc.router.get(ctx, key)
			if !ok {
				continue
			}

			doc.Entries = append(doc.Entries, exportedEntry{
				Key:       entry.Key,
				Value:     entry.Value,
				Headers:   entry.Headers,
				Tags:      entry.Tags,
				Container: entry.Container,
				Timestamp: entry.Timestamp,
				TTL:       entry.Expiration,
			})
		}
	}

	encoded, err := msgpack.Marshal(doc)
	if err != nil {
		return nil, ewrap.Wrap(err, "encode export")
	}

	return encoded, nil
}

// ImportCacheData merges previously exported contents into the cache.
// Entries whose lifetime already elapsed are skipped; the rest keep their
// remaining lifetime rather than starting a fresh one.
func (tc *TierCache) ImportCacheData(ctx context.Context, data []byte) error {
	if !tc.initialized.Load() {
		return sentinel.ErrNotInitialized
	}

	if len(data) == 0 {
		return ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "import payload")
	}

	var doc exportDocument
	if err := msgpack.Unmarshal(data, &doc); err != nil {
		return ewrap.Wrap(err, "decode import")
	}

	imported, skipped := 0, 0

	for _, exported := range doc.Entries {
		ttl := exported.TTL
		if ttl > 0 {
			remaining := ttl - time.Since(exported.Timestamp)
			if remaining <= 0 {
				skipped++

				continue
			}

			ttl = remaining
		}

		entry := cache.NewEntry(exported.Key, exported.Value,
			cache.WithTTL(ttl),
			cache.WithHeaders(exported.Headers),
			cache.WithTags(exported.Tags...),
			cache.WithContainer(exported.Container),
		)

		if _, err := tc.router.set(ctx, entry); err != nil {
			return ewrap.Wrapf(err, "import entry %q", exported.Key)
		}

		imported++
	}

	tc.logger.Printf("import: %d entries restored, %d expired", imported, skipped)

	return nil
}
