// Package encoding writes JSON responses through pooled buffers.
package encoding

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
)

// maxPooledBuffer keeps outlier responses, such as a full sync log listing,
// from pinning memory in the pool.
const maxPooledBuffer = 64 * 1024

var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// GetBuffer retrieves an empty bytes.Buffer from the pool
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a bytes.Buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBuffer {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}

// WriteJSON encodes v before touching w, so an encoding failure still yields
// a clean 500 instead of a half written body with the wrong status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) error {
	buf := GetBuffer()
	defer PutBuffer(buf)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal server error"}` + "\n"))
		return err
	}

	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}
