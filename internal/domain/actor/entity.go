// Package actor contains the per-profile aggregate this engine derives from
// the XP ledger: totals, level, rank, badges, and bot-watch state. Actor rows
// are provisioned externally and never deleted here; every mutable field is a
// cache of engine-owned computations.
package actor

import (
	"time"

	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

// Actor is the aggregate root for a single profile's reputation state.
type Actor struct {
	ID shared.ActorID

	// Derived from the ledger. TotalXP is a cache of the transaction sum,
	// never an independent source of truth.
	TotalXP shared.XP
	Level   shared.Level

	// Derived by the ranker. Unranked while flagged or before the first
	// recompute pass.
	Rank     shared.Rank
	IsTop100 bool

	// Badges. IsFirst100 is set once by the bootstrap job and never recomputed.
	IsFirst100 bool

	// Bot watch state. BotScore only grows; IsFlaggedBot is monotonic until
	// an administrator clears it outside this engine.
	BotScore      shared.BotScore
	IsFlaggedBot  bool
	BotAlertCount int

	LastAwardAt *time.Time
	JoinedAt    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewActor creates an actor aggregate for a freshly provisioned profile.
func NewActor(id shared.ActorID, joinedAt time.Time) (*Actor, error) {
	if !id.IsValid() {
		return nil, shared.ErrInvalidActorID
	}
	if joinedAt.IsZero() {
		joinedAt = time.Now()
	}
	now := time.Now()
	return &Actor{
		ID:        id,
		TotalXP:   0,
		Level:     shared.MinLevel,
		Rank:      shared.Unranked,
		JoinedAt:  joinedAt,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ApplyAmount adjusts the cached total by a signed transaction amount,
// clamping at zero, and recomputes the level. Returns true when the level
// increased.
func (a *Actor) ApplyAmount(amount int64, at time.Time) bool {
	oldLevel := a.Level
	a.TotalXP = a.TotalXP.Add(amount)
	a.Level = a.TotalXP.Level()
	a.LastAwardAt = &at
	a.UpdatedAt = time.Now()
	return a.Level > oldLevel
}

// RaiseBotScore accumulates an alert's score increase and flips the flag when
// the threshold is crossed. Returns true when the actor became flagged by
// this call.
func (a *Actor) RaiseBotScore(increase int) bool {
	a.BotScore = a.BotScore.Add(increase)
	a.BotAlertCount++
	a.UpdatedAt = time.Now()
	if !a.IsFlaggedBot && a.BotScore.ReachesThreshold() {
		a.IsFlaggedBot = true
		return true
	}
	return false
}

// AssignRank records a recompute result. Top-100 membership follows the rank.
func (a *Actor) AssignRank(rank shared.Rank) {
	a.Rank = rank
	a.IsTop100 = rank.IsTop100()
	a.UpdatedAt = time.Now()
}

// ClearRank removes the actor from the ranking (flagged actors).
func (a *Actor) ClearRank() {
	a.Rank = shared.Unranked
	a.IsTop100 = false
	a.UpdatedAt = time.Now()
}

// MarkFirstCohort sets the one-time first-100 badge.
func (a *Actor) MarkFirstCohort() {
	a.IsFirst100 = true
	a.UpdatedAt = time.Now()
}

// IsRankable reports whether the ranker should consider this actor.
func (a *Actor) IsRankable() bool {
	return !a.IsFlaggedBot
}
