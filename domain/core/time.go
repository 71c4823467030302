package core

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Accepted ISO-8601 layouts, most specific first
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// ParseTimestamp parses an ISO-8601 date or date-time
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if d, err := civil.ParseDate(s); err == nil {
		return d.In(time.UTC), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO-8601 timestamp %q", s)
}

// FormatTimestamp renders t as ISO-8601. Midnight UTC values are written date-only
// so that date-only input round-trips unchanged.
func FormatTimestamp(t time.Time) string {
	if t.Location() == time.UTC && t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return civil.DateOf(t).String()
	}
	return t.Format(time.RFC3339Nano)
}

// ParseDate parses an ISO-8601 date, or the date part of an ISO-8601 date-time
func ParseDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if d, err := civil.ParseDate(s); err == nil {
		return d, nil
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return civil.Date{}, err
	}
	return civil.DateOf(t), nil
}

// SameDate compares two optional timestamps by calendar date only, ignoring time-of-day.
// Two absent timestamps are equal; one absent and one present are not.
func SameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return civil.DateOf(*a) == civil.DateOf(*b)
}
