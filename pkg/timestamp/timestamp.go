// Package timestamp converts between time.Time and the float seconds used by
// stream clocks and recordings.
//
// Source clocks and the wall_time_unix column are float64 seconds with
// microsecond resolution on disk. The wall_time_iso column is local time
// without a zone, as written by the recorder.
//
// Usage Examples:
//
//	sec := timestamp.UnixSeconds(time.Now())
//	t := timestamp.FromUnixSeconds(sec)
//
//	iso := timestamp.FormatISO(t)          // 2024-03-01T09:15:02.125000
//	col := timestamp.FormatSeconds(sec)    // 1709284502.125000
//	back, err := timestamp.ParseISO(iso)
package timestamp

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// ISOLayout is the wall clock layout of recordings: local time, microseconds,
// no zone.
const ISOLayout = "2006-01-02T15:04:05.000000"

// UnixSeconds converts t to seconds since the Unix epoch. Zero time is 0.
func UnixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

// FromUnixSeconds converts seconds since the epoch to a time rounded to the
// microsecond. Zero and non-finite inputs give the zero time.
func FromUnixSeconds(sec float64) time.Time {
	if sec == 0 || math.IsNaN(sec) || math.IsInf(sec, 0) {
		return time.Time{}
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(math.Round(frac*1e6))*int64(time.Microsecond))
}

// FormatSeconds renders a seconds value with six decimals.
func FormatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 6, 64)
}

// FormatISO renders t in local time with ISOLayout.
func FormatISO(t time.Time) string {
	return t.Local().Format(ISOLayout)
}

// ParseISO parses a value written by FormatISO as local time.
func ParseISO(s string) (time.Time, error) {
	t, err := time.ParseInLocation(ISOLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse wall time %q: %w", s, err)
	}
	return t, nil
}

// Duration converts a span in seconds to a time.Duration.
func Duration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

// Span returns the time between two stream timestamps, never negative.
func Span(start, end float64) time.Duration {
	if end <= start {
		return 0
	}
	return Duration(end - start)
}
