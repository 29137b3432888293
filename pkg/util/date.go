package util

import (
	"strconv"
	"time"
)

const DayLayout = "2006-01-02"

// ParseTime accepts RFC3339 (with or without fractional seconds), a plain
// YYYY-MM-DD day, or unix seconds.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(DayLayout, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// FormatDay renders t as a UTC calendar day.
func FormatDay(t time.Time) string {
	return t.UTC().Format(DayLayout)
}
