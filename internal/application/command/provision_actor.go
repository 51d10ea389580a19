package command

import (
	"context"
	"fmt"
	"time"

	"github.com/makerhub/reputation-engine/internal/domain/actor"
	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROVISION ACTOR COMMAND
// The profile service owns identity; this command only mirrors a new profile
// into the engine so its events stop bouncing off the unknown-actor check.
// ══════════════════════════════════════════════════════════════════════════════

// ProvisionActorCommand registers a profile with the engine.
type ProvisionActorCommand struct {
	ActorID string

	// JoinedAt is the profile's original join time, which drives ranking
	// tiebreaks and the first-cohort badge. Defaults to now.
	JoinedAt time.Time
}

// ProvisionActorResult reports the provisioning outcome.
type ProvisionActorResult struct {
	ActorID shared.ActorID

	// AlreadyExisted is true when the profile was provisioned before.
	// Re-provisioning is a no-op, not an error.
	AlreadyExisted bool
}

// ProvisionActorHandler handles the ProvisionActorCommand.
type ProvisionActorHandler struct {
	actorRepo actor.Repository
}

// NewProvisionActorHandler creates a new ProvisionActorHandler.
func NewProvisionActorHandler(actorRepo actor.Repository) *ProvisionActorHandler {
	return &ProvisionActorHandler{actorRepo: actorRepo}
}

// Handle executes the provision actor command.
func (h *ProvisionActorHandler) Handle(ctx context.Context, cmd ProvisionActorCommand) (*ProvisionActorResult, error) {
	actorID, err := shared.NewActorID(cmd.ActorID)
	if err != nil {
		return nil, fmt.Errorf("provision_actor: %w", err)
	}

	a, err := actor.NewActor(actorID, cmd.JoinedAt)
	if err != nil {
		return nil, fmt.Errorf("provision_actor: %w", err)
	}

	if err := h.actorRepo.Create(ctx, a); err != nil {
		if shared.IsAlreadyExists(err) {
			return &ProvisionActorResult{ActorID: actorID, AlreadyExisted: true}, nil
		}
		return nil, fmt.Errorf("provision_actor: failed to create actor: %w", err)
	}

	return &ProvisionActorResult{ActorID: actorID}, nil
}
