// Package inter defines the core value types shared by every layer of the
// funder: the accounting clock (Timestamp) and the calendar granularities the
// checkpoint engine walks in.
//
// Key concepts:
//   - Timestamp: unix seconds, the only unit of time the ledger stores
//   - Week: the fixed accounting granularity; weights are sampled per week
//   - Year: the default length of one emission epoch (rate decay period)
//
// Usage:
//
//	start := inter.WeekStart(ts, inter.Week)
//	next := inter.NextWeek(ts, inter.Week)
package inter

import (
	"fmt"
	"time"
)

// Timestamp is a point in time expressed as unix seconds.
// Unlike time.Time it has no location and no sub-second precision, which keeps
// every accounting computation in exact integer arithmetic.
type Timestamp uint64

const (
	// Day is one calendar day in seconds.
	Day Timestamp = 86400

	// Week is the fixed accounting granularity (604800 seconds).
	// Weight samples are keyed by week starts, i.e. multiples of Week.
	Week Timestamp = 7 * Day

	// Year is 365 days (31536000 seconds); the default emission epoch length.
	Year Timestamp = 365 * Day
)

// FromTime converts a wall-clock time into a Timestamp, dropping sub-second precision.
// Times before the unix epoch clamp to zero.
func FromTime(t time.Time) Timestamp {
	if t.Unix() < 0 {
		return 0
	}
	return Timestamp(t.Unix())
}

// Now returns the current wall-clock time as a Timestamp.
func Now() Timestamp {
	return FromTime(time.Now())
}

// Unix returns the timestamp as unix seconds.
func (t Timestamp) Unix() int64 {
	return int64(t)
}

// Time converts the timestamp back into a UTC time.Time.
func (t Timestamp) Time() time.Time {
	return time.Unix(int64(t), 0).UTC()
}

// String renders the timestamp as seconds plus its UTC date, e.g. "604800 (1970-01-08T00:00:00Z)".
func (t Timestamp) String() string {
	return fmt.Sprintf("%d (%s)", uint64(t), t.Time().Format(time.RFC3339))
}

// WeekStart floors t to the start of the period of the given length.
func WeekStart(t, length Timestamp) Timestamp {
	return t / length * length
}

// NextWeek returns the first period boundary strictly after t,
// i.e. floor((t + length) / length) * length.
func NextWeek(t, length Timestamp) Timestamp {
	return (t + length) / length * length
}

// MinTimestamp returns the earlier of a and b.
func MinTimestamp(a, b Timestamp) Timestamp {
	if a < b {
		return a
	}
	return b
}
