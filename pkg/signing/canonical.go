package signing

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CanonicalJSON encodes v with object keys sorted at every depth, no
// insignificant whitespace, no HTML escaping, and numbers kept in their
// original textual form. The same value always yields the same bytes.
func CanonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return Canonicalize(raw)
}

// Canonicalize re-encodes an existing JSON document canonically.
func Canonicalize(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// encoding/json writes map keys in sorted order.
	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
