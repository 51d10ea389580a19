package actor

import (
	"context"

	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines storage operations for actor aggregates.
//
// Derived fields (total_xp, xp_level) are written by the ledger repository in
// the same transaction as the transaction append; bot fields by the bot-watch
// repository; rank fields by the leaderboard repository. This interface covers
// provisioning and reads.
type Repository interface {
	// Create provisions a new actor row.
	// Returns ErrActorAlreadyExists if the actor already exists.
	Create(ctx context.Context, a *Actor) error

	// GetByID returns an actor by ID.
	// Returns ErrActorNotFound if the actor does not exist.
	GetByID(ctx context.Context, id shared.ActorID) (*Actor, error)

	// GetByIDs returns actors for the given IDs; missing IDs are skipped.
	GetByIDs(ctx context.Context, ids []shared.ActorID) ([]*Actor, error)

	// Exists checks actor existence without loading the row.
	Exists(ctx context.Context, id shared.ActorID) (bool, error)

	// List returns actors with pagination, ordered by joined_at ascending.
	List(ctx context.Context, page shared.Pagination) ([]*Actor, error)

	// Count returns the total number of actors.
	Count(ctx context.Context) (int, error)
}
