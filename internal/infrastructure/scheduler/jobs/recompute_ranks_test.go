package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makerhub/reputation-engine/internal/domain/leaderboard"
	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY FAKES
// ══════════════════════════════════════════════════════════════════════════════

type fakeLeaderboardRepo struct {
	actors  map[shared.ActorID]*leaderboard.Standing
	flagged map[shared.ActorID]bool
	current []*leaderboard.Standing

	listErr  error
	writeErr error
	writes   int
}

func newFakeLeaderboardRepo() *fakeLeaderboardRepo {
	return &fakeLeaderboardRepo{
		actors:  make(map[shared.ActorID]*leaderboard.Standing),
		flagged: make(map[shared.ActorID]bool),
	}
}

func (f *fakeLeaderboardRepo) addActor(id shared.ActorID, xp int64, joinedAt time.Time, isFlagged bool) {
	f.actors[id] = &leaderboard.Standing{
		ActorID:  id,
		TotalXP:  shared.XP(xp),
		Level:    shared.XP(xp).Level(),
		Rank:     shared.Unranked,
		JoinedAt: joinedAt,
	}
	f.flagged[id] = isFlagged
}

func (f *fakeLeaderboardRepo) ListRankable(_ context.Context) ([]*leaderboard.Standing, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*leaderboard.Standing
	for id, s := range f.actors {
		if f.flagged[id] {
			continue
		}
		copied := *s
		copied.Rank = shared.Unranked
		copied.IsTop100 = false
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeLeaderboardRepo) CurrentStandings(_ context.Context) ([]*leaderboard.Standing, error) {
	return f.current, nil
}

func (f *fakeLeaderboardRepo) WriteRanks(_ context.Context, ranking *leaderboard.Ranking) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	// One transaction: ranked actors get their new rank, everyone else
	// (flagged actors included) is nulled out.
	for _, s := range f.actors {
		s.Rank = shared.Unranked
		s.IsTop100 = false
	}
	for _, entry := range ranking.All() {
		if s, ok := f.actors[entry.ActorID]; ok {
			s.Rank = entry.Rank
			s.IsTop100 = entry.IsTop100
		}
	}
	f.current = ranking.All()
	f.writes++
	return nil
}

func (f *fakeLeaderboardRepo) MarkFirstCohort(_ context.Context, _ int) (int, error) {
	return 0, nil
}

func (f *fakeLeaderboardRepo) GetPage(_ context.Context, _ shared.Pagination) ([]*leaderboard.Standing, int, error) {
	return f.current, len(f.current), nil
}

func (f *fakeLeaderboardRepo) GetActorStanding(_ context.Context, id shared.ActorID) (*leaderboard.Standing, error) {
	s, ok := f.actors[id]
	if !ok {
		return nil, shared.ErrActorNotFound
	}
	return s, nil
}

type stubPublisher struct {
	events []shared.Event
}

func (p *stubPublisher) Publish(event shared.Event) error {
	p.events = append(p.events, event)
	return nil
}

func (p *stubPublisher) countOf(eventType shared.EventType) int {
	n := 0
	for _, e := range p.events {
		if e.EventType() == eventType {
			n++
		}
	}
	return n
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func jobActorID(n int) shared.ActorID {
	ids := []shared.ActorID{
		"a0000000-0000-0000-0000-000000000001",
		"a0000000-0000-0000-0000-000000000002",
		"a0000000-0000-0000-0000-000000000003",
	}
	return ids[n-1]
}

func newRecomputeJob(repo *fakeLeaderboardRepo, pub *stubPublisher) *RecomputeRanksJob {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRecomputeRanksJob(repo, nil, pub, nil, logger, DefaultRecomputeRanksConfig())
}

func TestRecomputeRanks_SkipsFlaggedActors(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := newFakeLeaderboardRepo()
	repo.addActor(jobActorID(1), 500, base, false)
	repo.addActor(jobActorID(2), 900, base, true) // flagged, highest XP
	repo.addActor(jobActorID(3), 300, base, false)

	pub := &stubPublisher{}
	job := newRecomputeJob(repo, pub)

	require.NoError(t, job.Run(context.Background()))

	// Ranks run over non-flagged actors only; the flagged actor keeps a
	// null rank despite the top XP.
	assert.Equal(t, shared.Rank(1), repo.actors[jobActorID(1)].Rank)
	assert.Equal(t, shared.Rank(2), repo.actors[jobActorID(3)].Rank)
	assert.Equal(t, shared.Unranked, repo.actors[jobActorID(2)].Rank)
	assert.False(t, repo.actors[jobActorID(2)].IsTop100)

	require.Len(t, repo.current, 2)
	assert.Equal(t, 1, pub.countOf(shared.EventLeaderboardRecomputed))

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.RankedActors)
}

func TestRecomputeRanks_FlaggedActorDropsOut(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := newFakeLeaderboardRepo()
	repo.addActor(jobActorID(1), 500, base, false)
	repo.addActor(jobActorID(2), 400, base, false)

	pub := &stubPublisher{}
	job := newRecomputeJob(repo, pub)
	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, shared.Rank(2), repo.actors[jobActorID(2)].Rank)

	// Actor 2 gets flagged between passes: the next pass nulls their rank.
	repo.flagged[jobActorID(2)] = true
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, shared.Unranked, repo.actors[jobActorID(2)].Rank)
	assert.Len(t, repo.current, 1)

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.DroppedOut)
}

func TestRecomputeRanks_WriteFailureLeavesPreviousSnapshot(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := newFakeLeaderboardRepo()
	repo.addActor(jobActorID(1), 500, base, false)
	repo.addActor(jobActorID(2), 400, base, false)

	pub := &stubPublisher{}
	job := newRecomputeJob(repo, pub)
	require.NoError(t, job.Run(context.Background()))
	firstPass := repo.current

	// XP moves, but the write fails: the pass errors out and the previous
	// snapshot stays authoritative, with no movement events.
	repo.actors[jobActorID(2)].TotalXP = shared.XP(900)
	repo.writeErr = errors.New("connection reset")
	eventsBefore := len(pub.events)

	err := job.Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, firstPass, repo.current)
	assert.Equal(t, 1, repo.writes)
	assert.Equal(t, shared.Rank(1), repo.actors[jobActorID(1)].Rank)
	assert.Len(t, pub.events, eventsBefore)
}

func TestRecomputeRanks_PublishesMovement(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := newFakeLeaderboardRepo()
	repo.addActor(jobActorID(1), 500, base, false)
	repo.addActor(jobActorID(2), 400, base, false)

	pub := &stubPublisher{}
	job := newRecomputeJob(repo, pub)
	require.NoError(t, job.Run(context.Background()))

	// Actor 2 overtakes actor 1 between passes.
	repo.actors[jobActorID(2)].TotalXP = shared.XP(900)
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, shared.Rank(1), repo.actors[jobActorID(2)].Rank)
	assert.Equal(t, shared.Rank(2), repo.actors[jobActorID(1)].Rank)
	assert.Equal(t, 2, pub.countOf(shared.EventRankChanged))

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.RankChanges)
}

func TestRecomputeRanks_ListFailureIsFatal(t *testing.T) {
	repo := newFakeLeaderboardRepo()
	repo.listErr = errors.New("connection reset")

	pub := &stubPublisher{}
	job := newRecomputeJob(repo, pub)

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, repo.writes)
	assert.Empty(t, pub.events)
	assert.Nil(t, job.LastRunStats())
}
