package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCronExpression(t *testing.T) {
	_, err := ParseCronExpression(Every5Minutes)
	require.NoError(t, err)

	_, err = ParseCronExpression("0 3 * * *")
	require.NoError(t, err)

	_, err = ParseCronExpression("* * *")
	assert.Error(t, err, "five fields required")

	_, err = ParseCronExpression("61 * * * *")
	assert.Error(t, err, "minute out of range")

	_, err = ParseCronExpression("*/0 * * * *")
	assert.Error(t, err, "zero step")
}

func TestCronExpression_Next(t *testing.T) {
	ce, err := ParseCronExpression("*/15 * * * *")
	require.NoError(t, err)

	at := time.Date(2026, 8, 1, 10, 7, 30, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 1, 10, 15, 0, 0, time.UTC), ce.Next(at))

	// From an exact match, Next moves to the following slot.
	at = time.Date(2026, 8, 1, 10, 15, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 1, 10, 30, 0, 0, time.UTC), ce.Next(at))
}

func TestCronExpression_NextCrossesDayBoundary(t *testing.T) {
	ce, err := ParseCronExpression("0 3 * * *")
	require.NoError(t, err)

	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 2, 3, 0, 0, 0, time.UTC), ce.Next(at))
}

func TestCronExpression_Weekday(t *testing.T) {
	ce, err := ParseCronExpression(EverySunday)
	require.NoError(t, err)

	// 2026-08-01 is a Saturday.
	at := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	next := ce.Next(at)
	assert.Equal(t, time.Weekday(0), next.Weekday())
	assert.Equal(t, time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC), next)
}

func TestCronSchedule_ImplementsSchedule(t *testing.T) {
	s, err := NewCronSchedule(Every10Minutes)
	require.NoError(t, err)

	var _ Schedule = s
	assert.Equal(t, "@cron */10 * * * *", s.String())

	at := time.Date(2026, 8, 1, 10, 2, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 1, 10, 10, 0, 0, time.UTC), s.Next(at))

	_, err = NewCronSchedule("bad")
	assert.Error(t, err)
}
