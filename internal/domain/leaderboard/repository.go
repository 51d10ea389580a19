package leaderboard

import (
	"context"
	"time"

	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines storage operations for the leaderboard.
//
// The recompute job reads rankable actors under a consistent view, assigns
// ranks in memory, and writes them back in one transaction, so a failure
// leaves the previous rank snapshot intact. Award processing never goes
// through this interface.
type Repository interface {
	// ListRankable returns a consistent view of all non-flagged actors
	// (XP, level, joined_at) for rank assignment.
	ListRankable(ctx context.Context) ([]*Standing, error)

	// CurrentStandings returns the persisted ranks from the last completed
	// pass, rank order, excluding unranked actors.
	CurrentStandings(ctx context.Context) ([]*Standing, error)

	// WriteRanks persists a completed ranking in one transaction: new
	// ranks and top-100 flags for ranked actors, null rank for everyone
	// else (flagged actors included).
	WriteRanks(ctx context.Context, ranking *Ranking) error

	// MarkFirstCohort sets is_first_100 for the earliest cohortSize
	// joiners. It is a one-time bootstrap: subsequent calls are no-ops.
	// Returns the number of actors marked (0 when already bootstrapped).
	MarkFirstCohort(ctx context.Context, cohortSize int) (int, error)

	// GetPage returns a page of current standings plus the total count.
	GetPage(ctx context.Context, page shared.Pagination) ([]*Standing, int, error)

	// GetActorStanding returns one actor's current standing.
	// Returns ErrActorNotFound for unknown actors; flagged or not-yet-ranked
	// actors come back with Rank == Unranked.
	GetActorStanding(ctx context.Context, actorID shared.ActorID) (*Standing, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Cache defines the read-side cache rebuilt after each recompute pass.
// Never authoritative: misses fall through to the repository.
type Cache interface {
	// RebuildFromSnapshot atomically replaces the cached leaderboard.
	RebuildFromSnapshot(ctx context.Context, entries []*Standing, ttl time.Duration) error

	// GetTop returns the cached top-N, or an empty slice on cache miss.
	GetTop(ctx context.Context, limit int) ([]*Standing, error)

	// GetRank returns an actor's cached standing, or nil on cache miss.
	GetRank(ctx context.Context, actorID shared.ActorID) (*Standing, error)

	// Size returns the number of cached standings, 0 on cache miss.
	Size(ctx context.Context) (int, error)

	// RemoveActor evicts one actor (used when an actor gets flagged
	// between recompute passes).
	RemoveActor(ctx context.Context, actorID shared.ActorID) error

	// Invalidate drops the cached leaderboard entirely.
	Invalidate(ctx context.Context) error
}
