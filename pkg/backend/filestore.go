package backend

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hyp3rd/ewrap"

	"github.com/magickw/tiercache/internal/constants"
	"github.com/magickw/tiercache/internal/libs/serializer"
	"github.com/magickw/tiercache/internal/sentinel"
	"github.com/magickw/tiercache/pkg/cache"
)

const fileStoreName = "entries.json"

// FileStore is the simple string store adapter: a single JSON document on
// local disk with a byte quota. A write that would push the encoded document
// over the quota fails with the store's quota-exceeded signal, which the
// router treats like any other backend failure and falls through.
type FileStore struct {
	dir        string                 // directory holding the store file
	path       string                 // full path of the store file
	quota      int64                  // byte quota of the encoded document
	serializer serializer.ISerializer // document codec
	mu         sync.Mutex             // serializes document rewrites
	document   map[string]fileEntry   // in-process view of the document
}

// fileEntry is the on-disk representation of one cached entry.
type fileEntry struct {
	Value       []byte            `json:"value"`
	Headers     map[string]string `json:"headers,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Checksum    uint64            `json:"checksum"`
	Timestamp   int64             `json:"timestamp"`
	ExpirationM int64             `json:"expirationMs"`
	AccessCount uint32            `json:"accessCount"`
	LastAccess  int64             `json:"lastAccess"`
}

// NewFileStore creates a new file store adapter, loading any existing document.
func NewFileStore(opts ...Option[FileStore]) (*FileStore, error) {
	backendInstance := &FileStore{
		quota:    constants.DefaultFileStoreQuota,
		document: make(map[string]fileEntry),
	}

	ApplyOptions(backendInstance, opts...)

	if backendInstance.dir == "" {
		return nil, ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "file store directory")
	}

	if backendInstance.serializer == nil {
		ser, err := serializer.New("json")
		if err != nil {
			return nil, err
		}

		backendInstance.serializer = ser
	}

	if err := os.MkdirAll(backendInstance.dir, 0o755); err != nil {
		return nil, ewrap.Wrap(sentinel.ErrBackendOperationFailed, err.Error())
	}

	backendInstance.path = filepath.Join(backendInstance.dir, fileStoreName)
	backendInstance.load()

	return backendInstance, nil
}

// Name returns the adapter's backend name.
func (cacheBackend *FileStore) Name() string {
	return constants.FileBackend
}

// Get retrieves the entry with the given key. Expired entries are removed
// lazily and reported as a miss.
func (cacheBackend *FileStore) Get(_ context.Context, key string) (*cache.Entry, bool) {
	cacheBackend.mu.Lock()
	defer cacheBackend.mu.Unlock()

	stored, ok := cacheBackend.document[key]
	if !ok {
		return nil, false
	}

	entry := stored.toEntry(key)
	if entry.Expired() {
		delete(cacheBackend.document, key)
		_ = cacheBackend.flushLocked()

		return nil, false
	}

	entry.Touch()
	stored.AccessCount = entry.AccessCount
	stored.LastAccess = entry.LastAccess.UnixMilli()
	cacheBackend.document[key] = stored
	// Hit-count bookkeeping stays in memory until the next document rewrite.

	return entry, true
}

// Set stores the entry, enforcing the byte quota atomically: the document on
// disk either contains the full new entry or is left untouched.
func (cacheBackend *FileStore) Set(_ context.Context, entry *cache.Entry) error {
	if err := entry.Valid(); err != nil {
		return err
	}

	cacheBackend.mu.Lock()
	defer cacheBackend.mu.Unlock()

	previous, hadPrevious := cacheBackend.document[entry.Key]
	cacheBackend.document[entry.Key] = toFileEntry(entry)

	encoded, err := cacheBackend.serializer.Marshal(cacheBackend.document)
	if err != nil {
		cacheBackend.revert(entry.Key, previous, hadPrevious)

		return ewrap.Wrap(sentinel.ErrBackendOperationFailed, err.Error())
	}

	if cacheBackend.quota > 0 && int64(len(encoded)) > cacheBackend.quota {
		cacheBackend.revert(entry.Key, previous, hadPrevious)

		return ewrap.Wrap(sentinel.ErrQuotaExceeded, entry.Key)
	}

	if err := cacheBackend.writeFile(encoded); err != nil {
		cacheBackend.revert(entry.Key, previous, hadPrevious)

		return err
	}

	entry.Backend = constants.FileBackend

	return nil
}

// Remove removes the entries with the given keys. Missing keys are not an error.
func (cacheBackend *FileStore) Remove(_ context.Context, keys ...string) error {
	cacheBackend.mu.Lock()
	defer cacheBackend.mu.Unlock()

	for _, key := range keys {
		delete(cacheBackend.document, key)
	}

	return cacheBackend.flushLocked()
}

// Keys returns the keys currently stored by the adapter.
func (cacheBackend *FileStore) Keys(_ context.Context) ([]string, error) {
	cacheBackend.mu.Lock()
	defer cacheBackend.mu.Unlock()

	keys := make([]string, 0, len(cacheBackend.document))
	for key := range cacheBackend.document {
		keys = append(keys, key)
	}

	return keys, nil
}

// Count returns the number of entries currently stored.
func (cacheBackend *FileStore) Count(_ context.Context) int {
	cacheBackend.mu.Lock()
	defer cacheBackend.mu.Unlock()

	return len(cacheBackend.document)
}

// Clear removes all entries from the adapter.
func (cacheBackend *FileStore) Clear(_ context.Context) error {
	cacheBackend.mu.Lock()
	defer cacheBackend.mu.Unlock()

	cacheBackend.document = make(map[string]fileEntry)

	return cacheBackend.flushLocked()
}

// load reads the existing document, tolerating a missing or corrupt file by
// starting empty.
func (cacheBackend *FileStore) load() {
	data, err := os.ReadFile(cacheBackend.path)
	if err != nil {
		return
	}

	document := make(map[string]fileEntry)
	if err := cacheBackend.serializer.Unmarshal(data, &document); err != nil {
		return
	}

	cacheBackend.document = document
}

// flushLocked rewrites the document. Callers must hold mu.
func (cacheBackend *FileStore) flushLocked() error {
	encoded, err := cacheBackend.serializer.Marshal(cacheBackend.document)
	if err != nil {
		return ewrap.Wrap(sentinel.ErrBackendOperationFailed, err.Error())
	}

	return cacheBackend.writeFile(encoded)
}

// writeFile writes the document atomically via a temp file and rename.
func (cacheBackend *FileStore) writeFile(encoded []byte) error {
	tmp := cacheBackend.path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o600); err != nil {
		return ewrap.Wrap(sentinel.ErrBackendOperationFailed, err.Error())
	}

	if err := os.Rename(tmp, cacheBackend.path); err != nil {
		_ = os.Remove(tmp)

		return ewrap.Wrap(sentinel.ErrBackendOperationFailed, err.Error())
	}

	return nil
}

func (cacheBackend *FileStore) revert(key string, previous fileEntry, hadPrevious bool) {
	if hadPrevious {
		cacheBackend.document[key] = previous

		return
	}

	delete(cacheBackend.document, key)
}

func toFileEntry(entry *cache.Entry) fileEntry {
	return fileEntry{
		Value:       entry.Value,
		Headers:     entry.Headers,
		Tags:        entry.Tags,
		Checksum:    entry.Checksum,
		Timestamp:   entry.Timestamp.UnixMilli(),
		ExpirationM: entry.Expiration.Milliseconds(),
		AccessCount: entry.AccessCount,
		LastAccess:  entry.LastAccess.UnixMilli(),
	}
}

func (stored fileEntry) toEntry(key string) *cache.Entry {
	entry := &cache.Entry{
		Key:         key,
		Value:       stored.Value,
		Headers:     stored.Headers,
		Tags:        stored.Tags,
		Checksum:    stored.Checksum,
		Timestamp:   time.UnixMilli(stored.Timestamp),
		LastAccess:  time.UnixMilli(stored.LastAccess),
		Expiration:  time.Duration(stored.ExpirationM) * time.Millisecond,
		AccessCount: stored.AccessCount,
		Backend:     constants.FileBackend,
	}
	_ = entry.SetSize()

	return entry
}
