package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXP_Level(t *testing.T) {
	cases := []struct {
		xp    int64
		level Level
	}{
		{0, 1},
		{50, 1},
		{99, 1},
		{100, 2},
		{399, 2},
		{400, 3},
		{899, 3},
		{900, 4},
		{10000, 11},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.level, XP(tc.xp).Level(), "xp=%d", tc.xp)
	}
}

func TestXP_LevelNeverBelowMinimum(t *testing.T) {
	assert.Equal(t, MinLevel, XP(0).Level())
	assert.Equal(t, MinLevel, XP(-500).Level())
}

func TestXP_AddClampsAtZero(t *testing.T) {
	assert.Equal(t, XP(0), XP(5).Add(-10))
	assert.Equal(t, XP(0), XP(0).Add(-2))
	assert.Equal(t, XP(3), XP(5).Add(-2))
}

func TestXP_AddClampsAtMax(t *testing.T) {
	assert.Equal(t, MaxXP, MaxXP.Add(100))
}

func TestLevel_RequiredXP(t *testing.T) {
	assert.Equal(t, int64(0), Level(1).RequiredXP())
	assert.Equal(t, int64(100), Level(2).RequiredXP())
	assert.Equal(t, int64(400), Level(3).RequiredXP())
	assert.Equal(t, int64(900), Level(4).RequiredXP())
}

func TestLevel_RoundTripsWithXP(t *testing.T) {
	// The XP floor of each level must map back to that level.
	for l := Level(1); l <= 20; l++ {
		assert.Equal(t, l, XP(l.RequiredXP()).Level(), "level=%d", l)
	}
}

func TestNewActorID(t *testing.T) {
	id, err := NewActorID("  11111111-2222-3333-4444-555555555555  ")
	require.NoError(t, err)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", id.String())

	upper, err := NewActorID("ABCDEF00-2222-3333-4444-555555555555")
	require.NoError(t, err)
	assert.Equal(t, "abcdef00-2222-3333-4444-555555555555", upper.String())

	_, err = NewActorID("not-a-uuid")
	assert.Error(t, err)

	_, err = NewActorID("")
	assert.Error(t, err)
}

func TestRank(t *testing.T) {
	assert.True(t, Rank(1).IsTop100())
	assert.True(t, Rank(100).IsTop100())
	assert.False(t, Rank(101).IsTop100())
	assert.False(t, Unranked.IsTop100())

	assert.True(t, Unranked.IsUnranked())
	assert.False(t, Rank(3).IsUnranked())

	// Moving from rank 5 to rank 2 is an improvement of 3.
	assert.Equal(t, 3, Rank(2).Compare(Rank(5)))
	assert.Equal(t, -3, Rank(5).Compare(Rank(2)))
}

func TestBotScore(t *testing.T) {
	assert.Equal(t, BotScore(30), BotScore(10).Add(20))
	// Negative increases are ignored, the score is monotonic.
	assert.Equal(t, BotScore(10), BotScore(10).Add(-5))
	assert.Equal(t, BotScore(10), BotScore(10).Add(0))

	assert.False(t, BotScore(49).ReachesThreshold())
	assert.True(t, BotScore(50).ReachesThreshold())
	assert.True(t, BotScore(120).ReachesThreshold())
}

func TestPagination(t *testing.T) {
	p := NewPagination(0, 0)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, DefaultPageSize, p.PageSize)
	assert.Equal(t, 0, p.Offset())

	p = NewPagination(3, 10)
	assert.Equal(t, 20, p.Offset())
	assert.Equal(t, 10, p.Limit())

	p = NewPagination(1, 5000)
	assert.Equal(t, MaxPageSize, p.PageSize)
}

func TestDomainErrorMatching(t *testing.T) {
	err := WrapError("ledger", "Append", ErrAlreadyExists, "dedup key already applied", nil)
	assert.True(t, IsAlreadyExists(err))
	assert.False(t, IsNotFound(err))

	assert.True(t, IsNotFound(ErrActorNotFound))
	assert.True(t, IsValidation(ErrInvalidActorID))
	assert.True(t, IsRetryable(ErrStorageUnavailable))
	assert.False(t, IsRetryable(ErrActorNotFound))
}
