package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/longbridgeapp/assert"

	"github.com/magickw/tiercache/internal/sentinel"
	"github.com/magickw/tiercache/pkg/cache"
)

func TestFileStore_SetGetRoundTrip(t *testing.T) {
	store, err := NewFileStore(WithDir(t.TempDir()))
	assert.Nil(t, err)

	ctx := context.Background()

	entry := cache.NewEntry("page", []byte(`{"body":"hello"}`),
		cache.WithHeaders(map[string]string{"content-type": "application/json"}),
		cache.WithTags("pages"),
	)
	assert.Nil(t, store.Set(ctx, entry))

	got, ok := store.Get(ctx, "page")
	assert.True(t, ok)
	assert.Equal(t, entry.Value, got.Value)
	assert.Equal(t, "application/json", got.Headers["content-type"])
	assert.True(t, got.VerifyChecksum())
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewFileStore(WithDir(dir))
	assert.Nil(t, err)
	assert.Nil(t, store.Set(ctx, cache.NewEntry("durable", []byte("v"))))

	reopened, err := NewFileStore(WithDir(dir))
	assert.Nil(t, err)

	got, ok := reopened.Get(ctx, "durable")
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got.Value)
}

func TestFileStore_QuotaRejectsOversizedWrite(t *testing.T) {
	store, err := NewFileStore(WithDir(t.TempDir()), WithQuota(256))
	assert.Nil(t, err)

	ctx := context.Background()

	assert.Nil(t, store.Set(ctx, cache.NewEntry("small", []byte("x"))))

	big := make([]byte, 1024)
	err = store.Set(ctx, cache.NewEntry("big", big))
	assert.True(t, errors.Is(err, sentinel.ErrQuotaExceeded))

	// The rejected write left the document untouched.
	assert.Equal(t, 1, store.Count(ctx))

	_, ok := store.Get(ctx, "big")
	assert.False(t, ok)
}

func TestFileStore_ExpiredEntryIsAMiss(t *testing.T) {
	store, err := NewFileStore(WithDir(t.TempDir()))
	assert.Nil(t, err)

	ctx := context.Background()

	entry := cache.NewEntry("short", []byte("v"), cache.WithTTL(10*time.Millisecond))
	assert.Nil(t, store.Set(ctx, entry))

	time.Sleep(30 * time.Millisecond)

	_, ok := store.Get(ctx, "short")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Count(ctx))
}

func TestFileStore_CorruptDocumentStartsEmpty(t *testing.T) {
	dir := t.TempDir()

	err := os.WriteFile(filepath.Join(dir, "entries.json"), []byte("{not json"), 0o600)
	assert.Nil(t, err)

	store, err := NewFileStore(WithDir(dir))
	assert.Nil(t, err)
	assert.Equal(t, 0, store.Count(context.Background()))
}

func TestFileStore_RemoveAndClear(t *testing.T) {
	store, err := NewFileStore(WithDir(t.TempDir()))
	assert.Nil(t, err)

	ctx := context.Background()

	assert.Nil(t, store.Set(ctx, cache.NewEntry("a", []byte("1"))))
	assert.Nil(t, store.Set(ctx, cache.NewEntry("b", []byte("2"))))

	assert.Nil(t, store.Remove(ctx, "a"))
	assert.Equal(t, 1, store.Count(ctx))

	assert.Nil(t, store.Clear(ctx))
	assert.Equal(t, 0, store.Count(ctx))
}
