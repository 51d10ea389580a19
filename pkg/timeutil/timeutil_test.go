package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowStart(t *testing.T) {
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC), WindowStart(at, time.Hour))

	// Non-UTC input normalizes.
	loc := time.FixedZone("UTC+5", 5*3600)
	local := time.Date(2026, 8, 1, 17, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC), WindowStart(local, time.Hour))
}

func TestStartAndEndOfDay(t *testing.T) {
	at := time.Date(2026, 8, 1, 15, 30, 45, 123, time.UTC)

	start := StartOfDay(at)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), start)

	end := EndOfDay(at)
	assert.Equal(t, start.Add(24*time.Hour-time.Nanosecond), end)
	assert.True(t, IsSameDay(start, end))
}

func TestIsSameDay(t *testing.T) {
	a := time.Date(2026, 8, 1, 23, 59, 0, 0, time.UTC)
	b := time.Date(2026, 8, 2, 0, 1, 0, 0, time.UTC)
	assert.False(t, IsSameDay(a, b))

	// 23:30 UTC+5 is 18:30 UTC, same UTC day.
	loc := time.FixedZone("UTC+5", 5*3600)
	c := time.Date(2026, 8, 1, 23, 30, 0, 0, loc)
	assert.True(t, IsSameDay(a, c))
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2026, 8, 1, 23, 0, 0, 0, time.UTC)
	b := time.Date(2026, 8, 4, 1, 0, 0, 0, time.UTC)

	assert.Equal(t, 3, DaysBetween(a, b))
	assert.Equal(t, 3, DaysBetween(b, a), "order does not matter")
	assert.Equal(t, 0, DaysBetween(a, a))
}

func TestRFC3339RoundTrip(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	at := time.Date(2026, 8, 1, 17, 0, 0, 0, loc)

	formatted := FormatRFC3339(at)
	assert.Equal(t, "2026-08-01T12:00:00Z", formatted)

	parsed, err := ParseRFC3339(formatted)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, parsed.Location())
	assert.True(t, parsed.Equal(at))

	_, err = ParseRFC3339("yesterday")
	assert.Error(t, err)
}

func TestFormatRelative(t *testing.T) {
	assert.Equal(t, "just now", FormatRelative(time.Now().Add(-10*time.Second)))
	assert.Equal(t, "5m ago", FormatRelative(time.Now().Add(-5*time.Minute)))
	assert.Equal(t, "3h ago", FormatRelative(time.Now().Add(-3*time.Hour)))
	assert.Equal(t, "2d ago", FormatRelative(time.Now().Add(-49*time.Hour)))
	assert.Equal(t, "in 10m", FormatRelative(time.Now().Add(10*time.Minute+time.Second)))
}
