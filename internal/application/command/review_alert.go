package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/makerhub/reputation-engine/internal/domain/botwatch"
)

// ══════════════════════════════════════════════════════════════════════════════
// ALERT REVIEW COMMANDS
// The review workflow is human: flags are monotonic inside the engine, so
// these commands only annotate alerts, never clear scores.
// ══════════════════════════════════════════════════════════════════════════════

// ReviewAlertCommand marks an alert as reviewed by an administrator.
type ReviewAlertCommand struct {
	AlertID string
}

// DisputeAlertCommand attaches an actor's dispute message to an alert.
type DisputeAlertCommand struct {
	AlertID string
	Message string
}

// ReviewAlertHandler handles alert review and dispute commands.
type ReviewAlertHandler struct {
	alertRepo botwatch.Repository
}

// NewReviewAlertHandler creates a new ReviewAlertHandler.
func NewReviewAlertHandler(alertRepo botwatch.Repository) *ReviewAlertHandler {
	return &ReviewAlertHandler{alertRepo: alertRepo}
}

// HandleReview executes the review command.
func (h *ReviewAlertHandler) HandleReview(ctx context.Context, cmd ReviewAlertCommand) error {
	if strings.TrimSpace(cmd.AlertID) == "" {
		return errors.New("review_alert: alert ID is required")
	}
	if err := h.alertRepo.MarkReviewed(ctx, cmd.AlertID); err != nil {
		return fmt.Errorf("review_alert: %w", err)
	}
	return nil
}

// HandleDispute executes the dispute command.
func (h *ReviewAlertHandler) HandleDispute(ctx context.Context, cmd DisputeAlertCommand) error {
	if strings.TrimSpace(cmd.AlertID) == "" {
		return errors.New("review_alert: alert ID is required")
	}
	if strings.TrimSpace(cmd.Message) == "" {
		return errors.New("review_alert: dispute message is required")
	}
	if err := h.alertRepo.SaveDispute(ctx, cmd.AlertID, strings.TrimSpace(cmd.Message)); err != nil {
		return fmt.Errorf("review_alert: %w", err)
	}
	return nil
}
