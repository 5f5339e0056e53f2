package cache

import (
	"testing"
	"time"

	"github.com/longbridgeapp/assert"
)

func TestEntry_Expiration(t *testing.T) {
	tests := []struct {
		name    string
		ttl     time.Duration
		age     time.Duration
		expired bool
	}{
		{name: "no ttl never expires", ttl: 0, age: time.Hour, expired: false},
		{name: "young entry alive", ttl: time.Minute, age: time.Second, expired: false},
		{name: "old entry expired", ttl: 100 * time.Millisecond, age: time.Second, expired: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			entry := NewEntry("k", []byte("v"), WithTTL(test.ttl))
			entry.Timestamp = time.Now().Add(-test.age)

			assert.Equal(t, test.expired, entry.Expired())
		})
	}
}

func TestEntry_TouchDoesNotExtendLife(t *testing.T) {
	entry := NewEntry("k", []byte("v"), WithTTL(50*time.Millisecond))
	entry.Timestamp = time.Now().Add(-100 * time.Millisecond)

	// Access metadata moves, but lifetime stays anchored to creation.
	entry.Touch()

	assert.True(t, entry.Expired())
	assert.Equal(t, uint32(1), entry.AccessCount)
}

func TestEntry_Checksum(t *testing.T) {
	entry := NewEntry("k", []byte("payload"))

	assert.True(t, entry.VerifyChecksum())

	entry.Value = []byte("tampered")

	assert.False(t, entry.VerifyChecksum())
}

func TestEntry_Options(t *testing.T) {
	entry := NewEntry("k", []byte("v"),
		WithTTL(time.Minute),
		WithTags("a", "b"),
		WithHeaders(map[string]string{"content-type": "text/plain"}),
		WithContainer("enhanced-cache"),
	)

	assert.Equal(t, time.Minute, entry.Expiration)
	assert.Equal(t, []string{"a", "b"}, entry.Tags)
	assert.Equal(t, "text/plain", entry.Headers["content-type"])
	assert.Equal(t, "enhanced-cache", entry.Container)
	assert.True(t, entry.Size > 0)
}

func TestEntry_Valid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value []byte
		ttl   time.Duration
		ok    bool
	}{
		{name: "valid", key: "k", value: []byte("v"), ttl: 0, ok: true},
		{name: "empty key", key: "", value: []byte("v"), ttl: 0, ok: false},
		{name: "nil value", key: "k", value: nil, ttl: 0, ok: false},
		{name: "negative ttl", key: "k", value: []byte("v"), ttl: -time.Second, ok: false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			entry := NewEntry(test.key, test.value, WithTTL(test.ttl))

			assert.Equal(t, test.ok, entry.Valid() == nil)
		})
	}
}
