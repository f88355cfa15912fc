// Package jsonfield reads loosely typed values out of decoded JSON objects.
// Gateways disagree on whether numbers, booleans and dates are strings, so
// every accessor accepts the common spellings. Objects are expected to be
// decoded with json.Decoder.UseNumber.
package jsonfield

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kevin07696/gateway-sync/pkg/timeutil"
	"github.com/shopspring/decimal"
)

// Has reports whether key is present with a non-null value.
func Has(m map[string]interface{}, key string) bool {
	v, ok := m[key]
	return ok && v != nil
}

// String returns the value of key rendered as a string.
func String(m map[string]interface{}, key string) (*string, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, false
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	default:
		s = fmt.Sprint(t)
	}
	return &s, true
}

// FirstString returns the first present key among keys.
func FirstString(m map[string]interface{}, keys ...string) *string {
	for _, k := range keys {
		if s, ok := String(m, k); ok {
			return s
		}
	}
	return nil
}

// Bool returns the value of key as a boolean. Strings are parsed with
// strconv.ParseBool and numbers are true when non-zero.
func Bool(m map[string]interface{}, key string) (value, present bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b, true
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0, true
	}
	return false, true
}

// Decimal parses the value of key. A missing or empty value yields nil.
func Decimal(m map[string]interface{}, key string) (*decimal.Decimal, error) {
	s, ok := String(m, key)
	if !ok || *s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", key, *s, err)
	}
	return &d, nil
}

// Time parses the value of key with timeutil.ParseTimestamp. A missing or
// empty value yields nil.
func Time(m map[string]interface{}, key string) (*time.Time, error) {
	s, ok := String(m, key)
	if !ok || *s == "" {
		return nil, nil
	}
	t, err := timeutil.ParseTimestamp(*s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", key, *s, err)
	}
	return &t, nil
}

// RawBody returns a gateway answer ready for a jsonb column. JSON bodies are
// kept as-is and anything else is wrapped as {"raw_body": "..."}.
func RawBody(body []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	wrapped, err := json.Marshal(map[string]string{"raw_body": string(trimmed)})
	if err != nil {
		return nil
	}
	return wrapped
}
