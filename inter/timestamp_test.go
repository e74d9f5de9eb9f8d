package inter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestCalendarConstants guards the granularities the reference emission
// scenario depends on.
func TestCalendarConstants(t *testing.T) {
	require.Equal(t, Timestamp(604800), Week)
	require.Equal(t, Timestamp(31536000), Year)
}

func TestWeekBoundaries(t *testing.T) {
	tests := []struct {
		name      string
		ts        Timestamp
		wantStart Timestamp
		wantNext  Timestamp
	}{
		{"zero", 0, 0, Week},
		{"inside first week", 1000, 0, Week},
		{"exactly on boundary", Week, Week, 2 * Week},
		{"one before boundary", 2*Week - 1, Week, 2 * Week},
		{"year is not week aligned", Year, 52 * Week, 53 * Week},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.wantStart, WeekStart(tt.ts, Week))
			require.Equal(t, tt.wantNext, NextWeek(tt.ts, Week))
		})
	}
}

func TestFromTime(t *testing.T) {
	ts := FromTime(time.Date(2021, 1, 7, 0, 0, 0, 0, time.UTC))
	require.Equal(t, Timestamp(1609977600), ts)
	require.Equal(t, ts, WeekStart(ts, Week), "thursdays 00:00 UTC are week starts")
	require.Equal(t, Timestamp(0), FromTime(time.Unix(-5, 0)))
	require.Equal(t, "604800 (1970-01-08T00:00:00Z)", Week.String())
}

func TestMinTimestamp(t *testing.T) {
	require.Equal(t, Timestamp(3), MinTimestamp(3, 5))
	require.Equal(t, Timestamp(3), MinTimestamp(5, 3))
}
