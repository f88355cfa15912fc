package jsonfield

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) map[string]interface{} {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var m map[string]interface{}
	require.NoError(t, dec.Decode(&m))
	return m
}

func TestString(t *testing.T) {
	m := decode(t, `{"a":"x","n":12.50,"b":true,"z":null}`)

	s, ok := String(m, "a")
	require.True(t, ok)
	assert.Equal(t, "x", *s)

	s, ok = String(m, "n")
	require.True(t, ok)
	assert.Equal(t, "12.50", *s)

	s, ok = String(m, "b")
	require.True(t, ok)
	assert.Equal(t, "true", *s)

	_, ok = String(m, "z")
	assert.False(t, ok)
	_, ok = String(m, "missing")
	assert.False(t, ok)

	assert.Equal(t, "x", *FirstString(m, "missing", "a", "n"))
	assert.Nil(t, FirstString(m, "missing", "z"))
	assert.True(t, Has(m, "a"))
	assert.False(t, Has(m, "z"))
}

func TestBool(t *testing.T) {
	tests := []struct {
		body        string
		wantValue   bool
		wantPresent bool
	}{
		{`{"k":true}`, true, true},
		{`{"k":false}`, false, true},
		{`{"k":"true"}`, true, true},
		{`{"k":"1"}`, true, true},
		{`{"k":"nope"}`, false, true},
		{`{"k":1}`, true, true},
		{`{"k":0}`, false, true},
		{`{"k":null}`, false, false},
		{`{}`, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			v, present := Bool(decode(t, tt.body), "k")
			assert.Equal(t, tt.wantValue, v)
			assert.Equal(t, tt.wantPresent, present)
		})
	}
}

func TestDecimalAndTime(t *testing.T) {
	m := decode(t, `{"amt":"10.25","num":7,"bad":"ten","when":"2025-02-01T12:00:00+05:30","empty":""}`)

	d, err := Decimal(m, "amt")
	require.NoError(t, err)
	assert.Equal(t, "10.25", d.String())

	d, err = Decimal(m, "num")
	require.NoError(t, err)
	assert.Equal(t, "7", d.String())

	_, err = Decimal(m, "bad")
	assert.Error(t, err)

	d, err = Decimal(m, "empty")
	require.NoError(t, err)
	assert.Nil(t, d)

	ts, err := Time(m, "when")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 2, 1, 6, 30, 0, 0, time.UTC), *ts)

	_, err = Time(m, "amt")
	assert.Error(t, err)

	ts, err = Time(m, "missing")
	require.NoError(t, err)
	assert.Nil(t, ts)
}

func TestRawBody(t *testing.T) {
	assert.Nil(t, RawBody(nil))
	assert.Nil(t, RawBody([]byte("   ")))
	assert.JSONEq(t, `{"a":1}`, string(RawBody([]byte(` {"a":1} `))))
	assert.JSONEq(t, `{"raw_body":"<html>down</html>"}`, string(RawBody([]byte("<html>down</html>\n"))))
}
