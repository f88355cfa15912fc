// Package converters maps between nullable pgtype values and the pointer and
// decimal types used by the domain.
package converters

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Text converts a string to pgtype.Text, storing the empty string as NULL
func Text(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// TextPtr returns nil for NULL
func TextPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}

// TimePtr returns nil for NULL and normalizes to UTC
func TimePtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time.UTC()
	return &t
}

// ToNullableTimestamptz converts a time pointer to pgtype.Timestamptz
func ToNullableTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func Int8Ptr(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func Int4Ptr(v pgtype.Int4) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int32)
	return &n
}

// NumericToDecimal converts pgtype.Numeric to decimal.Decimal
func NumericToDecimal(n pgtype.Numeric) (decimal.Decimal, error) {
	var dec decimal.Decimal
	str, err := n.MarshalJSON()
	if err != nil {
		return dec, fmt.Errorf("marshal numeric: %w", err)
	}
	if len(str) >= 2 && str[0] == '"' && str[len(str)-1] == '"' {
		str = str[1 : len(str)-1]
	}
	return decimal.NewFromString(string(str))
}

// DecimalToNumeric returns a NULL numeric for nil.
func DecimalToNumeric(d *decimal.Decimal) (pgtype.Numeric, error) {
	var n pgtype.Numeric
	if d == nil {
		return n, nil
	}
	if err := n.Scan(d.String()); err != nil {
		return n, fmt.Errorf("convert decimal: %w", err)
	}
	return n, nil
}

// StringOrEmpty returns empty string if pointer is nil, otherwise returns the value
func StringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
