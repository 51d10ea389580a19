package leaderboard

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

func testActorID(n int) shared.ActorID {
	return shared.ActorID(fmt.Sprintf("%08d-0000-0000-0000-000000000000", n))
}

func standing(n int, xp int64, joinedAt time.Time) *Standing {
	return &Standing{
		ActorID:  testActorID(n),
		TotalXP:  shared.XP(xp),
		Level:    shared.XP(xp).Level(),
		JoinedAt: joinedAt,
	}
}

func TestRanking_AssignRanks(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewRanking(3)
	require.NoError(t, r.Add(standing(1, 100, base)))
	require.NoError(t, r.Add(standing(2, 300, base)))
	require.NoError(t, r.Add(standing(3, 200, base)))

	r.AssignRanks()

	all := r.All()
	assert.Equal(t, testActorID(2), all[0].ActorID)
	assert.Equal(t, shared.Rank(1), all[0].Rank)
	assert.Equal(t, testActorID(3), all[1].ActorID)
	assert.Equal(t, shared.Rank(2), all[1].Rank)
	assert.Equal(t, testActorID(1), all[2].ActorID)
	assert.Equal(t, shared.Rank(3), all[2].Rank)
}

func TestRanking_TiesBreakByJoinDate(t *testing.T) {
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.AddDate(0, 1, 0)

	r := NewRanking(2)
	require.NoError(t, r.Add(standing(1, 500, late)))
	require.NoError(t, r.Add(standing(2, 500, early)))

	r.AssignRanks()

	// Equal XP: the earlier joiner ranks higher.
	assert.Equal(t, shared.Rank(1), r.Get(testActorID(2)).Rank)
	assert.Equal(t, shared.Rank(2), r.Get(testActorID(1)).Rank)
}

func TestRanking_Top100Badge(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewRanking(105)
	for i := 1; i <= 105; i++ {
		require.NoError(t, r.Add(standing(i, int64(10000-i), base)))
	}

	r.AssignRanks()

	assert.True(t, r.Get(testActorID(100)).IsTop100)
	assert.False(t, r.Get(testActorID(101)).IsTop100)
}

func TestRanking_RejectsDuplicates(t *testing.T) {
	base := time.Now()
	r := NewRanking(2)
	require.NoError(t, r.Add(standing(1, 100, base)))

	err := r.Add(standing(1, 200, base))
	assert.True(t, shared.IsAlreadyExists(err))
	assert.Equal(t, 1, r.Count())
}

func TestRanking_Top(t *testing.T) {
	base := time.Now()
	r := NewRanking(3)
	for i := 1; i <= 3; i++ {
		require.NoError(t, r.Add(standing(i, int64(i*100), base)))
	}
	r.AssignRanks()

	top := r.Top(2)
	require.Len(t, top, 2)
	assert.Equal(t, testActorID(3), top[0].ActorID)

	assert.Len(t, r.Top(10), 3)
	assert.Nil(t, r.Top(0))
}

func TestCalculateDiff_Movement(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	oldA := standing(1, 300, base)
	oldA.Rank = 1
	oldB := standing(2, 200, base)
	oldB.Rank = 2
	old := NewSnapshot([]*Standing{oldA, oldB})

	// B overtakes A.
	newB := standing(2, 400, base)
	newB.Rank = 1
	newA := standing(1, 300, base)
	newA.Rank = 2
	current := NewSnapshot([]*Standing{newB, newA})

	diff := CalculateDiff(old, current)

	require.True(t, diff.HasChanges())
	assert.Equal(t, RankChange(1), diff.RankChanges[testActorID(2)], "moved up one")
	assert.Equal(t, RankChange(-1), diff.RankChanges[testActorID(1)], "moved down one")
	assert.Equal(t, RankChange(1), newB.RankChange)
	assert.Empty(t, diff.NewEntries)
	assert.Empty(t, diff.Removed)
}

func TestCalculateDiff_FirstPassIsAllNew(t *testing.T) {
	a := standing(1, 100, time.Now())
	a.Rank = 1
	current := NewSnapshot([]*Standing{a})

	diff := CalculateDiff(nil, current)
	assert.Len(t, diff.NewEntries, 1)
	assert.Empty(t, diff.RankChanges)
}

func TestCalculateDiff_FlaggedActorIsRemoved(t *testing.T) {
	base := time.Now()
	oldA := standing(1, 300, base)
	oldA.Rank = 1
	oldB := standing(2, 200, base)
	oldB.Rank = 2
	old := NewSnapshot([]*Standing{oldA, oldB})

	newB := standing(2, 200, base)
	newB.Rank = 1
	current := NewSnapshot([]*Standing{newB})

	diff := CalculateDiff(old, current)

	require.Len(t, diff.Removed, 1)
	assert.Equal(t, testActorID(1), diff.Removed[0].ActorID)
	assert.Equal(t, RankChange(1), diff.RankChanges[testActorID(2)])
}

func TestCalculateDiff_TopBoundaryCrossings(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	oldEntries := make([]*Standing, 0, 101)
	for i := 1; i <= 101; i++ {
		s := standing(i, int64(10000-i), base)
		s.Rank = shared.Rank(i)
		oldEntries = append(oldEntries, s)
	}
	old := NewSnapshot(oldEntries)

	// Actor 101 jumps to rank 100, pushing actor 100 out.
	newEntries := make([]*Standing, 0, 101)
	for i := 1; i <= 99; i++ {
		s := standing(i, int64(10000-i), base)
		s.Rank = shared.Rank(i)
		newEntries = append(newEntries, s)
	}
	promoted := standing(101, 9950, base)
	promoted.Rank = 100
	demoted := standing(100, 9900, base)
	demoted.Rank = 101
	newEntries = append(newEntries, promoted, demoted)
	current := NewSnapshot(newEntries)

	diff := CalculateDiff(old, current)

	require.Len(t, diff.TopChanges, 2)
	byActor := map[shared.ActorID]TopChange{}
	for _, tc := range diff.TopChanges {
		byActor[tc.ActorID] = tc
	}
	assert.True(t, byActor[testActorID(101)].Entered)
	assert.False(t, byActor[testActorID(100)].Entered)
}

func TestRankChange_IsSignificant(t *testing.T) {
	assert.True(t, RankChange(5).IsSignificant(5))
	assert.True(t, RankChange(-5).IsSignificant(5))
	assert.False(t, RankChange(4).IsSignificant(5))
	assert.True(t, RankChange(1).IsSignificant(1))
	assert.False(t, RankChange(0).IsSignificant(1))
}

func TestSnapshot_Lookup(t *testing.T) {
	a := standing(1, 100, time.Now())
	snap := NewSnapshot([]*Standing{a})

	assert.True(t, snap.Contains(testActorID(1)))
	assert.False(t, snap.Contains(testActorID(2)))
	assert.Equal(t, 1, snap.Count())
	assert.False(t, snap.IsEmpty())

	var nilSnap *Snapshot
	assert.True(t, nilSnap.IsEmpty())
	assert.Nil(t, nilSnap.Get(testActorID(1)))
}
