// Package timeutil provides UTC time helpers for the reputation engine.
// All ledger timestamps, detection windows, and snapshots are UTC; these
// helpers keep the truncation and window math in one place.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// Now returns the current time in UTC.
func Now() time.Time {
	return time.Now().UTC()
}

// ToUTC converts a time to UTC.
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// WindowStart returns the start of a rolling window ending at t.
// Used as the cutoff for rolling-window counts.
func WindowStart(t time.Time, window time.Duration) time.Time {
	return t.UTC().Add(-window)
}

// StartOfDay returns midnight UTC of the given day.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last nanosecond of the given day in UTC.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).Add(24*time.Hour - time.Nanosecond)
}

// IsSameDay checks if two times fall on the same UTC day.
func IsSameDay(t1, t2 time.Time) bool {
	y1, m1, d1 := t1.UTC().Date()
	y2, m2, d2 := t2.UTC().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// DaysBetween returns the number of whole UTC days between two times.
// Always non-negative.
func DaysBetween(t1, t2 time.Time) int {
	d1 := StartOfDay(t1)
	d2 := StartOfDay(t2)
	days := int(d2.Sub(d1).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}

// DaysSince returns the number of whole UTC days since the given time.
func DaysSince(t time.Time) int {
	return DaysBetween(t, Now())
}

// FormatRFC3339 formats a time as RFC 3339 in UTC, the wire format for
// every timestamp the engine emits.
func FormatRFC3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseRFC3339 parses an RFC 3339 timestamp and normalizes it to UTC.
func ParseRFC3339(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// FormatRelative formats a time relative to now ("5m ago", "in 2h").
// Used in operator-facing log and alert output.
func FormatRelative(t time.Time) string {
	d := time.Since(t)
	if d >= 0 {
		return formatPastDuration(d)
	}
	return formatFutureDuration(-d)
}

func formatPastDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func formatFutureDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "in under a minute"
	case d < time.Hour:
		return fmt.Sprintf("in %dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("in %dh", int(d.Hours()))
	default:
		return fmt.Sprintf("in %dd", int(d.Hours()/24))
	}
}
