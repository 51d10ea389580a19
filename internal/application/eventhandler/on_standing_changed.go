package eventhandler

import (
	"context"
	"log/slog"

	"github.com/makerhub/reputation-engine/internal/application/query"
	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON STANDING CHANGED HANDLER
// Drops the cached standing DTO whenever anything that feeds it moves: an
// XP change, a level-up, or a rank movement. The next read rebuilds it from
// PostgreSQL.
// ═══════════════════════════════════════════════════════════════════════════

// OnStandingChangedHandler invalidates per-actor standing DTOs.
type OnStandingChangedHandler struct {
	resultCache query.ResultCache
	logger      *slog.Logger
}

// NewOnStandingChangedHandler creates a new OnStandingChangedHandler.
func NewOnStandingChangedHandler(resultCache query.ResultCache, logger *slog.Logger) *OnStandingChangedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnStandingChangedHandler{
		resultCache: resultCache,
		logger:      logger.With("handler", "on_standing_changed"),
	}
}

// EventTypes lists the events this handler reacts to.
func (h *OnStandingChangedHandler) EventTypes() []shared.EventType {
	return []shared.EventType{
		shared.EventXPGained,
		shared.EventXPRevoked,
		shared.EventLevelUp,
		shared.EventRankChanged,
		shared.EventEnteredTopN,
		shared.EventAggregateRepaired,
	}
}

// Handle implements shared.EventHandler. The aggregate ID of every event
// this handler subscribes to is the affected actor.
func (h *OnStandingChangedHandler) Handle(event shared.Event) error {
	if h.resultCache == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := h.resultCache.Delete(ctx, query.StandingCacheKey(event.AggregateID())); err != nil {
		h.logger.Warn("failed to drop cached standing",
			"actor_id", event.AggregateID(),
			"event_type", event.EventType(),
			"error", err,
		)
	}
	return nil
}
