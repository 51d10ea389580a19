package botwatch

import (
	"context"

	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// SaveResult reports the actor state after an alert was persisted.
type SaveResult struct {
	NewScore     shared.BotScore
	NewlyFlagged bool
}

// Repository defines storage operations for bot alerts.
//
// SaveAlert carries the atomicity contract from the detector design: the
// alert insert, the bot_score increase, the alert counter, and the flag flip
// at the threshold are one atomic update.
type Repository interface {
	// SaveAlert persists an alert and applies its score increase to the
	// actor. Returns ErrActorNotFound if the actor row does not exist.
	SaveAlert(ctx context.Context, alert *Alert) (SaveResult, error)

	// GetByID returns an alert by ID.
	// Returns ErrAlertNotFound if the alert does not exist.
	GetByID(ctx context.Context, id string) (*Alert, error)

	// ListByActor returns an actor's alerts, newest first.
	ListByActor(ctx context.Context, actorID shared.ActorID, page shared.Pagination) ([]*Alert, error)

	// ListUnreviewed returns unreviewed alerts across all actors for the
	// administrative review surface.
	ListUnreviewed(ctx context.Context, page shared.Pagination) ([]*Alert, error)

	// MarkReviewed flags an alert as seen by an administrator.
	MarkReviewed(ctx context.Context, id string) error

	// SaveDispute stores the actor's dispute message on an alert.
	SaveDispute(ctx context.Context, id string, message string) error
}
