// Package leaderboard contains the ranking model: standings of non-flagged
// actors ordered by total XP, the rank assignment algorithm, and the
// snapshot/diff machinery the recompute job uses to detect movement.
package leaderboard

import (
	"sort"
	"time"

	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

// TopBadgeSize is the rank cutoff for the top-100 badge.
const TopBadgeSize = 100

// FirstCohortSize is how many earliest joiners get the one-time first-100 badge.
const FirstCohortSize = 100

// RankChange is the movement between two recompute passes.
// Positive = moved up, negative = moved down.
type RankChange int

// IsSignificant reports whether the movement is at least threshold positions.
func (rc RankChange) IsSignificant(threshold int) bool {
	if rc < 0 {
		return int(-rc) >= threshold
	}
	return int(rc) >= threshold
}

// Standing is one actor's row in the ranking.
type Standing struct {
	ActorID  shared.ActorID
	TotalXP  shared.XP
	Level    shared.Level
	JoinedAt time.Time

	// Assigned by AssignRanks.
	Rank     shared.Rank
	IsTop100 bool

	// Movement since the previous pass, filled in by CalculateDiff.
	RankChange RankChange
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKING
// ══════════════════════════════════════════════════════════════════════════════

// Ranking accumulates standings and assigns ranks. Only non-flagged actors
// belong here; the repository filters flagged actors before building one.
type Ranking struct {
	entries []*Standing
	byID    map[shared.ActorID]*Standing
}

// NewRanking creates an empty ranking with the given capacity hint.
func NewRanking(capacity int) *Ranking {
	if capacity < 0 {
		capacity = 0
	}
	return &Ranking{
		entries: make([]*Standing, 0, capacity),
		byID:    make(map[shared.ActorID]*Standing, capacity),
	}
}

// Add appends a standing. Duplicate actors are rejected.
func (r *Ranking) Add(s *Standing) error {
	if s == nil || !s.ActorID.IsValid() {
		return shared.ErrInvalidActorID
	}
	if _, exists := r.byID[s.ActorID]; exists {
		return shared.NewDomainError("leaderboard", "Add", shared.ErrAlreadyExists, "actor already in ranking")
	}
	r.entries = append(r.entries, s)
	r.byID[s.ActorID] = s
	return nil
}

// AssignRanks sorts by total XP descending, ties broken by joined_at
// ascending (earlier joiners rank higher), and assigns ranks 1..N. Top-100
// membership follows directly from the assigned rank.
func (r *Ranking) AssignRanks() {
	sort.SliceStable(r.entries, func(i, j int) bool {
		if r.entries[i].TotalXP != r.entries[j].TotalXP {
			return r.entries[i].TotalXP > r.entries[j].TotalXP
		}
		return r.entries[i].JoinedAt.Before(r.entries[j].JoinedAt)
	})

	for i, entry := range r.entries {
		entry.Rank = shared.Rank(i + 1)
		entry.IsTop100 = entry.Rank.IsTop(TopBadgeSize)
	}
}

// All returns the standings in rank order (after AssignRanks).
func (r *Ranking) All() []*Standing {
	return r.entries
}

// Get returns the standing for an actor, or nil.
func (r *Ranking) Get(actorID shared.ActorID) *Standing {
	return r.byID[actorID]
}

// Top returns the first n standings.
func (r *Ranking) Top(n int) []*Standing {
	if n <= 0 {
		return nil
	}
	if n > len(r.entries) {
		n = len(r.entries)
	}
	result := make([]*Standing, n)
	copy(result, r.entries[:n])
	return result
}

// Count returns the number of standings.
func (r *Ranking) Count() int {
	return len(r.entries)
}

// IsEmpty returns true when no actor is rankable.
func (r *Ranking) IsEmpty() bool {
	return len(r.entries) == 0
}
