// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/makerhub/reputation-engine/internal/domain/activity"
	"github.com/makerhub/reputation-engine/internal/domain/actor"
	"github.com/makerhub/reputation-engine/internal/domain/award"
	"github.com/makerhub/reputation-engine/internal/domain/botwatch"
	"github.com/makerhub/reputation-engine/internal/domain/ledger"
	"github.com/makerhub/reputation-engine/internal/domain/shared"
	"github.com/makerhub/reputation-engine/pkg/retry"
	"github.com/makerhub/reputation-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD EVENT COMMAND
// The single award pipeline: decode -> reject unknown actors -> evaluate the
// rule table -> append to the ledger -> inspect for bot behavior.
// ══════════════════════════════════════════════════════════════════════════════

// RecordEventCommand carries one inbound engagement event.
type RecordEventCommand struct {
	// EventType names the inbound event variant.
	EventType activity.Type

	// Payload is the raw event body, decoded and validated at this boundary.
	Payload json.RawMessage

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RecordEventCommand) Validate() error {
	if !c.EventType.IsValid() {
		return fmt.Errorf("record_event: %w", activity.ErrUnknownType)
	}
	if len(c.Payload) == 0 {
		return fmt.Errorf("record_event: %w", activity.ErrMalformedPayload)
	}
	return nil
}

// RecordEventResult reports what one event did.
type RecordEventResult struct {
	// EventType is the decoded event variant.
	EventType activity.Type

	// ActorID is the actor the event is attributed to.
	ActorID shared.ActorID

	// Decisions is how many award decisions the rule table produced.
	Decisions int

	// Applied holds the transactions that actually landed in the ledger.
	Applied []*ledger.Transaction

	// Duplicates is how many decisions were silently absorbed by dedup.
	Duplicates int

	// AlertsRaised is how many bot alerts this event triggered.
	AlertsRaised int

	// NewlyFlagged is true when this event pushed the actor over the
	// flag threshold.
	NewlyFlagged bool

	// RecordedAt is when the pipeline finished.
	RecordedAt time.Time
}

// WasNoOp reports whether the event changed nothing.
func (r *RecordEventResult) WasNoOp() bool {
	return len(r.Applied) == 0 && r.AlertsRaised == 0
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordEventHandler handles the RecordEventCommand.
type RecordEventHandler struct {
	actorRepo      actor.Repository
	ledgerRepo     ledger.Repository
	alertRepo      botwatch.Repository
	detector       *botwatch.Detector
	eventPublisher shared.EventPublisher
	retrier        *retry.Retrier
	logger         *slog.Logger
}

// NewRecordEventHandler creates a new RecordEventHandler.
func NewRecordEventHandler(
	actorRepo actor.Repository,
	ledgerRepo ledger.Repository,
	alertRepo botwatch.Repository,
	detector *botwatch.Detector,
	eventPublisher shared.EventPublisher,
	retrier *retry.Retrier,
	logger *slog.Logger,
) *RecordEventHandler {
	if detector == nil {
		detector = botwatch.NewDetector()
	}
	if retrier == nil {
		retrier = retry.New(
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(50*time.Millisecond),
			retry.WithMaxDelay(time.Second),
			retry.WithRetryIf(isTransientStorageError),
		)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RecordEventHandler{
		actorRepo:      actorRepo,
		ledgerRepo:     ledgerRepo,
		alertRepo:      alertRepo,
		detector:       detector,
		eventPublisher: eventPublisher,
		retrier:        retrier,
		logger:         logger,
	}
}

// isTransientStorageError retries raw storage failures (connection drops,
// lock contention) but never domain rejections.
func isTransientStorageError(err error) bool {
	if shared.IsRetryable(err) {
		return true
	}
	var domainErr *shared.DomainError
	return !errors.As(err, &domainErr)
}

// Handle executes the record event command.
//
// Error taxonomy: malformed payloads and unknown event types come back as
// validation errors for the boundary to reject; an unknown actor is fatal
// and logged, since it means a collaborating service sent an event for a
// profile this engine never provisioned; duplicate deliveries are silent
// no-ops reported through the result, never errors.
func (h *RecordEventHandler) Handle(ctx context.Context, cmd RecordEventCommand) (*RecordEventResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	event, err := activity.Decode(cmd.EventType, cmd.Payload)
	if err != nil {
		return nil, fmt.Errorf("record_event: %w", err)
	}

	exists, err := h.actorRepo.Exists(ctx, event.Actor())
	if err != nil {
		return nil, fmt.Errorf("record_event: failed to check actor: %w", err)
	}
	if !exists {
		h.logger.Error("event references unknown actor",
			"event_type", event.Type().String(),
			"actor_id", event.Actor(),
			"correlation_id", cmd.CorrelationID,
		)
		return nil, fmt.Errorf("record_event: %w", shared.ErrActorNotFound)
	}

	result := &RecordEventResult{
		EventType: event.Type(),
		ActorID:   event.Actor(),
	}

	// The detector sees the actor's history as it was before this event
	// lands in the ledger.
	history, err := h.assembleHistory(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("record_event: failed to assemble history: %w", err)
	}

	awardCtx, err := h.assembleAwardContext(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("record_event: failed to assemble award context: %w", err)
	}

	decisions, err := award.Evaluate(event, awardCtx)
	if err != nil {
		return nil, fmt.Errorf("record_event: %w", err)
	}
	result.Decisions = len(decisions)

	levelsBefore, err := h.levelsFor(ctx, decisions)
	if err != nil {
		return nil, fmt.Errorf("record_event: failed to load recipients: %w", err)
	}

	for _, decision := range decisions {
		if err := h.applyDecision(ctx, decision, cmd.CorrelationID, result); err != nil {
			return nil, err
		}
	}

	if err := h.publishLevelUps(ctx, result, levelsBefore); err != nil {
		h.logger.Warn("failed to publish level-up events", "error", err)
	}

	// Award outcome does not gate detection: a deduplicated redelivery is
	// still behavior worth inspecting.
	h.inspectForAbuse(ctx, event, history, cmd.CorrelationID, result)

	result.RecordedAt = time.Now().UTC()
	return result, nil
}

// applyDecision appends one award decision to the ledger with bounded retry
// and publishes the XP event on success.
func (h *RecordEventHandler) applyDecision(
	ctx context.Context,
	decision award.Decision,
	correlationID string,
	result *RecordEventResult,
) error {
	tx, err := ledger.NewTransaction(
		decision.Recipient,
		decision.Amount,
		decision.Reason,
		decision.TargetRefs,
		decision.DedupKey,
	)
	if err != nil {
		return fmt.Errorf("record_event: invalid decision: %w", err)
	}

	var applied bool
	err = h.retrier.Do(ctx, func(ctx context.Context) error {
		var appendErr error
		applied, appendErr = h.ledgerRepo.Append(ctx, tx)
		return appendErr
	})
	if err != nil {
		return fmt.Errorf("record_event: failed to append transaction: %w", err)
	}

	if !applied {
		result.Duplicates++
		return nil
	}
	result.Applied = append(result.Applied, tx)

	newTotal, err := h.ledgerRepo.SumByActor(ctx, decision.Recipient)
	if err != nil {
		// The append committed; the event total is cosmetic.
		h.logger.Warn("failed to read new total for event", "actor_id", decision.Recipient, "error", err)
		newTotal = 0
	}
	if newTotal < 0 {
		newTotal = 0
	}

	event := shared.NewXPGainedEvent(
		decision.Recipient.String(),
		decision.Amount,
		newTotal,
		decision.Reason.String(),
		decision.DedupKey,
	)
	if correlationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(correlationID)
	}
	if err := h.eventPublisher.Publish(event); err != nil {
		h.logger.Warn("failed to publish XP event", "actor_id", decision.Recipient, "error", err)
	}

	return nil
}

// levelsFor snapshots each distinct recipient's level before any append, so
// level-up detection can compare after the fact. Unknown recipients are
// fatal here, before anything is written.
func (h *RecordEventHandler) levelsFor(ctx context.Context, decisions []award.Decision) (map[shared.ActorID]shared.Level, error) {
	levels := make(map[shared.ActorID]shared.Level, len(decisions))
	for _, d := range decisions {
		if _, seen := levels[d.Recipient]; seen {
			continue
		}
		a, err := h.actorRepo.GetByID(ctx, d.Recipient)
		if err != nil {
			return nil, err
		}
		levels[d.Recipient] = a.Level
	}
	return levels, nil
}

// publishLevelUps compares recipient levels after the appends against the
// pre-append snapshot.
func (h *RecordEventHandler) publishLevelUps(ctx context.Context, result *RecordEventResult, before map[shared.ActorID]shared.Level) error {
	seen := make(map[shared.ActorID]bool, len(result.Applied))
	for _, tx := range result.Applied {
		if seen[tx.ActorID] {
			continue
		}
		seen[tx.ActorID] = true

		a, err := h.actorRepo.GetByID(ctx, tx.ActorID)
		if err != nil {
			return err
		}
		oldLevel, ok := before[tx.ActorID]
		if !ok || a.Level <= oldLevel {
			continue
		}

		event := shared.NewLevelUpEvent(tx.ActorID.String(), oldLevel.Int(), a.Level.Int(), a.TotalXP.Int64())
		if err := h.eventPublisher.Publish(event); err != nil {
			return err
		}
	}
	return nil
}

// assembleHistory pulls the slice of ledger history the detector needs.
func (h *RecordEventHandler) assembleHistory(ctx context.Context, event activity.Event) (botwatch.History, error) {
	var history botwatch.History

	switch e := event.(type) {
	case activity.ProjectPublished:
		// Excluding this project keeps a redelivered publish from measuring
		// the gap against its own ledger row.
		last, err := h.lastProjectPublish(ctx, e.ActorID, e.ProjectID)
		if err != nil {
			return history, err
		}
		history.LastProjectPublishedAt = last
	case activity.IdeaSubmitted:
		cutoff := timeutil.WindowStart(e.SubmittedAt, botwatch.IdeaSpamWindow)
		count, err := h.ledgerRepo.CountByActorReasonSince(ctx, e.ActorID, ledger.ReasonIdeaSubmitted, cutoff)
		if err != nil {
			return history, err
		}
		// A redelivered idea already sits in the window count; only a fresh
		// one is counted in by hand.
		counted, err := h.ledgerRepo.ExistsDedupKey(ctx, award.IdeaKey(e.IdeaID))
		if err != nil {
			return history, err
		}
		if !counted {
			count++
		}
		history.IdeasInWindow = count
	}

	return history, nil
}

// lastProjectPublish finds the actor's most recent publish across both
// project reasons, skipping the project in hand, nil if they have never
// published another project.
func (h *RecordEventHandler) lastProjectPublish(ctx context.Context, actorID shared.ActorID, projectID shared.TargetRef) (*time.Time, error) {
	var last *time.Time
	for _, reason := range []ledger.Reason{ledger.ReasonFirstProject, ledger.ReasonAdditionalProject} {
		tx, err := h.ledgerRepo.LastByActorReason(ctx, actorID, reason, projectID)
		if err != nil {
			if shared.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if last == nil || tx.CreatedAt.After(*last) {
			t := tx.CreatedAt
			last = &t
		}
	}
	return last, nil
}

// assembleAwardContext pulls the slice of ledger history the rule table needs.
func (h *RecordEventHandler) assembleAwardContext(ctx context.Context, event activity.Event) (award.Context, error) {
	var awardCtx award.Context

	switch e := event.(type) {
	case activity.ProjectPublished:
		key := award.FirstProjectKey(e.ActorID)
		tx, err := h.ledgerRepo.GetByDedupKey(ctx, key)
		if err != nil {
			if shared.IsNotFound(err) {
				return awardCtx, nil
			}
			return awardCtx, err
		}
		awardCtx.FirstProjectConsumed = true
		if len(tx.TargetRefs) > 0 {
			awardCtx.FirstProjectTarget = tx.TargetRefs[0]
		}
	case activity.ReviewReceived:
		awardCtx.AuthorVisible = e.AuthorVisible
		if e.HasAuthenticatedAuthor() {
			state, err := h.ledgerRepo.GrantStateFor(ctx, ledger.ReasonPublicReviewBonus, e.ReviewID)
			if err != nil {
				return awardCtx, err
			}
			awardCtx.ReviewBonusStates = map[shared.TargetRef]ledger.GrantState{e.ReviewID: state}
		}
	case activity.VisibilityToggled:
		states := make(map[shared.TargetRef]ledger.GrantState, len(e.AuthoredReviewIDs))
		for _, reviewID := range e.AuthoredReviewIDs {
			state, err := h.ledgerRepo.GrantStateFor(ctx, ledger.ReasonPublicReviewBonus, reviewID)
			if err != nil {
				return awardCtx, err
			}
			states[reviewID] = state
		}
		awardCtx.ReviewBonusStates = states
	}

	return awardCtx, nil
}

// inspectForAbuse runs the detector and persists whatever it raises.
// Detection failures are logged, never fatal: losing an alert must not
// lose an award.
func (h *RecordEventHandler) inspectForAbuse(
	ctx context.Context,
	event activity.Event,
	history botwatch.History,
	correlationID string,
	result *RecordEventResult,
) {
	alerts := h.detector.Inspect(event, history)
	for _, alert := range alerts {
		saveResult, err := h.alertRepo.SaveAlert(ctx, alert)
		if err != nil {
			h.logger.Error("failed to save bot alert",
				"actor_id", alert.ActorID,
				"alert_type", alert.AlertType.String(),
				"error", err,
			)
			continue
		}
		result.AlertsRaised++

		raised := shared.NewBotAlertRaisedEvent(
			alert.ActorID.String(),
			alert.AlertType.String(),
			alert.Severity.String(),
			alert.ScoreIncrease,
			saveResult.NewScore.Int(),
		)
		if correlationID != "" {
			raised.BaseEvent = raised.BaseEvent.WithCorrelationID(correlationID)
		}
		if err := h.eventPublisher.Publish(raised); err != nil {
			h.logger.Warn("failed to publish alert event", "error", err)
		}

		if saveResult.NewlyFlagged {
			result.NewlyFlagged = true
			flagged := shared.NewActorFlaggedEvent(
				alert.ActorID.String(),
				saveResult.NewScore.Int(),
				alert.AlertType.String(),
			)
			if err := h.eventPublisher.Publish(flagged); err != nil {
				h.logger.Warn("failed to publish flag event", "error", err)
			}
			h.logger.Warn("actor flagged as bot",
				"actor_id", alert.ActorID,
				"bot_score", saveResult.NewScore.Int(),
				"alert_type", alert.AlertType.String(),
			)
		}
	}
}
