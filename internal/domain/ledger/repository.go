package ledger

import (
	"context"
	"time"

	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER REPOSITORY INTERFACE
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// GrantState summarizes the applied grant/revoke history for one
// (reason, target) pair. Used by the visibility-toggle reconciler to decide
// whether a bonus is currently in effect.
type GrantState struct {
	Grants  int
	Revokes int
}

// InEffect reports whether a grant is currently outstanding.
func (s GrantState) InEffect() bool {
	return s.Grants > s.Revokes
}

// Divergence records an actor whose cached total drifted from the ledger sum.
type Divergence struct {
	ActorID     shared.ActorID
	CachedTotal int64
	LedgerSum   int64
}

// Repository defines storage operations for the XP ledger.
//
// Append is the only write and carries the aggregator contract: the
// transaction insert and the actor's total_xp/xp_level update happen in one
// atomic unit, serialized per actor, never blocking other actors.
type Repository interface {
	// Append writes a transaction and updates the actor aggregate atomically.
	// A transaction whose dedup_key was already applied returns
	// (applied=false, nil): duplicates are a no-op, not an error.
	// Returns ErrActorNotFound if the actor row does not exist.
	Append(ctx context.Context, tx *Transaction) (applied bool, err error)

	// GetByDedupKey returns the transaction holding the given dedup key.
	// Returns ErrTransactionNotFound if no such transaction exists.
	GetByDedupKey(ctx context.Context, dedupKey string) (*Transaction, error)

	// ExistsDedupKey checks whether a dedup key has been applied.
	ExistsDedupKey(ctx context.Context, dedupKey string) (bool, error)

	// GrantStateFor counts applied grants and revokes for a
	// (reason, target) pair.
	GrantStateFor(ctx context.Context, reason Reason, target shared.TargetRef) (GrantState, error)

	// SumByActor returns the signed sum of all transactions for an actor.
	SumByActor(ctx context.Context, actorID shared.ActorID) (int64, error)

	// ListByActor returns an actor's transactions, newest first.
	ListByActor(ctx context.Context, actorID shared.ActorID, page shared.Pagination) ([]*Transaction, error)

	// CountByActorReasonSince counts an actor's applied transactions with
	// the given reason created at or after the cutoff. Feeds the bot
	// detector's rolling windows.
	CountByActorReasonSince(ctx context.Context, actorID shared.ActorID, reason Reason, since time.Time) (int, error)

	// LastByActorReason returns the most recent transaction for an
	// (actor, reason) pair, skipping transactions that reference any of
	// the excluded targets, or ErrTransactionNotFound. The exclusion lets
	// the detector measure the gap to the previous publish without a
	// redelivered event matching its own ledger row.
	LastByActorReason(ctx context.Context, actorID shared.ActorID, reason Reason, excluding ...shared.TargetRef) (*Transaction, error)

	// FindDivergentAggregates returns actors whose cached total_xp does not
	// equal the ledger sum. Feeds the repair pass.
	FindDivergentAggregates(ctx context.Context, limit int) ([]Divergence, error)

	// RepairAggregate rewrites an actor's total_xp and xp_level from the
	// ledger sum and returns the corrected total.
	RepairAggregate(ctx context.Context, actorID shared.ActorID) (int64, error)
}
