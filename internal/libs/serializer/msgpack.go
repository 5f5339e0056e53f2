package serializer

import (
	"github.com/shamaton/msgpack/v2"
)

// MsgpackSerializer leverages `msgpack` for compact binary encoding. Backup
// snapshots and blob-store envelopes use it.
type MsgpackSerializer struct{}

// Marshal serializes the given value into a byte slice.
func (d *MsgpackSerializer) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(&v)
}

// Unmarshal deserializes the given byte slice into the given value.
func (d *MsgpackSerializer) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}
