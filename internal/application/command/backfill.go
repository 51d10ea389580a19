package command

import (
	"context"
	"fmt"
)

// ══════════════════════════════════════════════════════════════════════════════
// BACKFILL COMMAND
// Replays a batch of inbound events through the same pipeline as live
// delivery. Dedup keys make replay safe: anything already applied is a
// silent no-op.
// ══════════════════════════════════════════════════════════════════════════════

// BackfillCommand contains a batch of events to replay.
type BackfillCommand struct {
	Events        []RecordEventCommand
	CorrelationID string

	// ContinueOnError keeps replaying after a failed event instead of
	// aborting the batch.
	ContinueOnError bool
}

// BackfillResult contains results for a replayed batch.
type BackfillResult struct {
	TotalCount     int
	SuccessCount   int
	FailedCount    int
	AppliedCount   int
	DuplicateCount int
	Results        []*RecordEventResult
	Errors         map[int]error
}

// BackfillHandler replays batches through the record-event pipeline.
type BackfillHandler struct {
	handler *RecordEventHandler
}

// NewBackfillHandler creates a new BackfillHandler.
func NewBackfillHandler(handler *RecordEventHandler) *BackfillHandler {
	return &BackfillHandler{handler: handler}
}

// Handle executes the backfill command.
func (h *BackfillHandler) Handle(ctx context.Context, cmd BackfillCommand) (*BackfillResult, error) {
	result := &BackfillResult{
		TotalCount: len(cmd.Events),
		Results:    make([]*RecordEventResult, 0, len(cmd.Events)),
		Errors:     make(map[int]error),
	}

	for i, event := range cmd.Events {
		if event.CorrelationID == "" {
			event.CorrelationID = cmd.CorrelationID
		}

		eventResult, err := h.handler.Handle(ctx, event)
		if err != nil {
			result.FailedCount++
			result.Errors[i] = err
			if !cmd.ContinueOnError {
				return result, fmt.Errorf("backfill: event %d failed: %w", i, err)
			}
			continue
		}

		result.SuccessCount++
		result.AppliedCount += len(eventResult.Applied)
		result.DuplicateCount += eventResult.Duplicates
		result.Results = append(result.Results, eventResult)
	}

	return result, nil
}
