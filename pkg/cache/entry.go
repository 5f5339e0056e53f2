// Package cache defines the cache entry envelope and its metadata. Every value
// stored by a backend adapter travels inside an Entry; the metadata record is
// owned exclusively by the adapter that stored it, and migration/backup code
// only ever reads a consistent copy.
package cache

import (
	"bytes"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ugorji/go/codec"

	"github.com/magickw/tiercache/internal/sentinel"
)

const bytesPerKB = 1024

// cborHandle is package-scoped to amortize allocations across SetSize calls.
//
//nolint:gochecknoglobals
var cborHandle = &codec.CborHandle{}

//nolint:gochecknoglobals
var bufPool = sync.Pool{ // *bytes.Buffer
	New: func() any { return new(bytes.Buffer) },
}

// Entry is the envelope wrapping a cached value. The Value is an opaque,
// already-serialized byte slice; the remaining fields are the metadata record
// described by the persisted state layout (key, timestamp, ttl, tags, content
// descriptor, size, hit count, last access, owning backend).
type Entry struct {
	Key         string            // key (or url) of the entry
	Value       []byte            // serialized payload, opaque to the engine
	Headers     map[string]string // response headers / arbitrary metadata
	Tags        []string          // tags for group invalidation
	Container   string            // owning cache/container name
	Backend     string            // name of the backend adapter holding the entry
	Checksum    uint64            // xxhash content descriptor of Value
	Size        int64             // size of the entry in bytes
	Timestamp   time.Time         // creation time
	LastAccess  time.Time         // last access time
	Expiration  time.Duration     // time-to-live; zero means no expiry
	AccessCount uint32            // hit count
}

// EntryOption configures an Entry at creation time.
type EntryOption func(*Entry)

// WithTTL sets the time-to-live of the entry.
func WithTTL(ttl time.Duration) EntryOption {
	return func(e *Entry) { e.Expiration = ttl }
}

// WithTags sets the invalidation tags of the entry.
func WithTags(tags ...string) EntryOption {
	return func(e *Entry) { e.Tags = tags }
}

// WithHeaders sets the header metadata of the entry.
func WithHeaders(headers map[string]string) EntryOption {
	return func(e *Entry) { e.Headers = headers }
}

// WithContainer sets the owning container name of the entry.
func WithContainer(name string) EntryOption {
	return func(e *Entry) { e.Container = name }
}

// NewEntry creates an entry for the given key and serialized value, stamps the
// creation time, and computes the content descriptor and size.
func NewEntry(key string, value []byte, opts ...EntryOption) *Entry {
	entry := &Entry{
		Key:        key,
		Value:      value,
		Timestamp:  time.Now(),
		LastAccess: time.Now(),
	}
	for _, opt := range opts {
		opt(entry)
	}

	entry.Checksum = xxhash.Sum64(value)
	_ = entry.SetSize()

	return entry
}

// HasTag reports whether the entry carries the given invalidation tag.
func (e *Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}

	return false
}

// Touch updates the last access time of the entry and increments the hit count.
func (e *Entry) Touch() {
	e.LastAccess = time.Now()
	e.AccessCount++
}

// Valid returns an error if the entry is invalid, nil otherwise.
func (e *Entry) Valid() error {
	if strings.TrimSpace(e.Key) == "" {
		return sentinel.ErrInvalidKey
	}

	if e.Value == nil {
		return sentinel.ErrNilValue
	}

	if e.Expiration < 0 {
		e.Expiration = 0

		return sentinel.ErrInvalidExpiration
	}

	return nil
}

// Expired reports whether the entry has outlived its time-to-live. The TTL is
// anchored to the creation timestamp, not the last access, so reads do not
// extend an entry's life.
func (e *Entry) Expired() bool {
	return e.Expiration > 0 && time.Since(e.Timestamp) > e.Expiration
}

// VerifyChecksum recomputes the content descriptor and reports whether it
// matches the stored one. A mismatch indicates corruption in the owning store.
func (e *Entry) VerifyChecksum() bool {
	return e.Checksum == xxhash.Sum64(e.Value)
}

// SizeKB returns the size of the entry in kilobytes.
func (e *Entry) SizeKB() float64 { return float64(e.Size) / bytesPerKB }

// SizeMB returns the size of the entry in megabytes.
func (e *Entry) SizeMB() float64 { return float64(e.Size) / (bytesPerKB * bytesPerKB) }

// SetSize computes and sets the size estimate of the entry. The value fast
// path avoids serialization; headers and tags are cbor-encoded with a pooled
// encoder and buffer.
func (e *Entry) SetSize() error {
	size := int64(len(e.Value) + len(e.Key))

	if len(e.Headers) > 0 || len(e.Tags) > 0 {
		buf, ok := bufPool.Get().(*bytes.Buffer)
		if !ok {
			buf = new(bytes.Buffer)
		}

		buf.Reset()
		defer bufPool.Put(buf)

		enc := codec.NewEncoder(buf, cborHandle)
		if err := enc.Encode(e.Headers); err != nil {
			return sentinel.ErrInvalidSize
		}

		if err := enc.Encode(e.Tags); err != nil {
			return sentinel.ErrInvalidSize
		}

		size += int64(buf.Len())
	}

	e.Size = size

	return nil
}
