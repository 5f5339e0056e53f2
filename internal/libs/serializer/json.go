package serializer

import (
	"github.com/goccy/go-json"
)

// JSONSerializer leverages `goccy/go-json` for fast JSON encoding. It is the
// default serializer and the one used for export/import payloads, which are
// expected to be human-inspectable.
type JSONSerializer struct{}

// Marshal serializes the given value into a byte slice.
func (d *JSONSerializer) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal deserializes the given byte slice into the given value.
func (d *JSONSerializer) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
