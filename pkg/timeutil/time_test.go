package timeutil

import (
	"testing"
	"time"
)

func TestNow_AlwaysUTC(t *testing.T) {
	now := Now()

	if now.Location() != time.UTC {
		t.Errorf("Now() returned non-UTC timezone: %v", now.Location())
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Time
		wantErr  bool
	}{
		{
			name:     "rfc3339 with offset",
			input:    "2025-11-20T17:30:00+05:30",
			expected: time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC),
		},
		{
			name:     "rfc3339 fractional",
			input:    "2025-11-20T12:00:00.250Z",
			expected: time.Date(2025, 11, 20, 12, 0, 0, 250000000, time.UTC),
		},
		{
			name:     "naive datetime",
			input:    "2025-11-20 08:15:00",
			expected: time.Date(2025, 11, 20, 8, 15, 0, 0, time.UTC),
		},
		{
			name:     "date only",
			input:    "2025-11-20",
			expected: time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "garbage",
			input:   "yesterday",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseTimestamp(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimestamp(%q) unexpected error: %v", tt.input, err)
			}
			if !got.Equal(tt.expected) || got.Location() != time.UTC {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFormatISO(t *testing.T) {
	in := time.Date(2025, 1, 2, 3, 4, 5, 6000, time.FixedZone("IST", 19800))
	if got, want := FormatISO(in), "2025-01-01T21:34:05.000006Z"; got != want {
		t.Errorf("FormatISO() = %q, want %q", got, want)
	}
}

func TestFakeClock(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)

	if !c.Now().Equal(start) {
		t.Errorf("Now() = %v, want %v", c.Now(), start)
	}

	c.Advance(90 * time.Second)
	if want := start.Add(90 * time.Second); !c.Now().Equal(want) {
		t.Errorf("after Advance Now() = %v, want %v", c.Now(), want)
	}

	later := start.Add(time.Hour)
	c.Set(later)
	if !c.Now().Equal(later) {
		t.Errorf("after Set Now() = %v, want %v", c.Now(), later)
	}

	var _ Clock = RealClock{}
	var _ Clock = c
}
