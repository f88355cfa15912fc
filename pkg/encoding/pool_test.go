package encoding_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/gateway-sync/pkg/encoding"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()

	err := encoding.WriteJSON(rec, http.StatusAccepted, map[string]interface{}{"success": true, "sync_id": 42})

	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true,"sync_id":42}`, rec.Body.String())
}

func TestWriteJSON_EncodeFailure(t *testing.T) {
	rec := httptest.NewRecorder()

	err := encoding.WriteJSON(rec, http.StatusOK, map[string]interface{}{"bad": make(chan int)})

	assert.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
}

func TestPutBuffer_DropsLargeBuffers(t *testing.T) {
	big := bytes.NewBuffer(make([]byte, 0, 128*1024))
	big.WriteString("stale")
	encoding.PutBuffer(big)

	buf := encoding.GetBuffer()
	defer encoding.PutBuffer(buf)
	assert.Zero(t, buf.Len())
}
