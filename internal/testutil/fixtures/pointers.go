// Package fixtures provides test data builders and helpers.
package fixtures

import (
	"time"

	"github.com/shopspring/decimal"
)

// StringPtr returns a pointer to the given string.
func StringPtr(s string) *string {
	return &s
}

// IntPtr returns a pointer to the given int.
func IntPtr(i int) *int {
	return &i
}

// Int64Ptr returns a pointer to the given int64.
func Int64Ptr(i int64) *int64 {
	return &i
}

// TimePtr returns a pointer to the given time.Time.
func TimePtr(t time.Time) *time.Time {
	return &t
}

// DecimalPtr parses s and returns a pointer, panicking on bad input.
func DecimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
