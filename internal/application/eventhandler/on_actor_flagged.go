// Package eventhandler contains the reactive side of the engine: handlers
// that subscribe to domain events and run side effects such as cache
// eviction. Award correctness never depends on them; every handler here is
// best-effort.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/makerhub/reputation-engine/internal/application/query"
	"github.com/makerhub/reputation-engine/internal/domain/leaderboard"
	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

// handlerTimeout bounds each side effect; event handlers receive no caller
// context.
const handlerTimeout = 5 * time.Second

// ═══════════════════════════════════════════════════════════════════════════
// ON ACTOR FLAGGED HANDLER
// A freshly flagged actor must disappear from the visible board immediately,
// not at the next recompute pass. The database rank clears on the next pass;
// this handler closes the gap for readers hitting the cache.
// ═══════════════════════════════════════════════════════════════════════════

// OnActorFlaggedHandler evicts flagged actors from the cached leaderboard.
type OnActorFlaggedHandler struct {
	leaderboardCache leaderboard.Cache
	resultCache      query.ResultCache
	logger           *slog.Logger
}

// NewOnActorFlaggedHandler creates a new OnActorFlaggedHandler.
func NewOnActorFlaggedHandler(
	leaderboardCache leaderboard.Cache,
	resultCache query.ResultCache,
	logger *slog.Logger,
) *OnActorFlaggedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnActorFlaggedHandler{
		leaderboardCache: leaderboardCache,
		resultCache:      resultCache,
		logger:           logger.With("handler", "on_actor_flagged"),
	}
}

// Handle implements shared.EventHandler.
func (h *OnActorFlaggedHandler) Handle(event shared.Event) error {
	flagged, ok := event.(shared.ActorFlaggedEvent)
	if !ok {
		return fmt.Errorf("on_actor_flagged: unexpected event type %s", event.EventType())
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	actorID := shared.ActorID(flagged.ActorID)

	if h.leaderboardCache != nil {
		if err := h.leaderboardCache.RemoveActor(ctx, actorID); err != nil {
			h.logger.Warn("failed to evict flagged actor from board",
				"actor_id", flagged.ActorID,
				"error", err,
			)
		}
	}

	if h.resultCache != nil {
		if err := h.resultCache.Delete(ctx, query.StandingCacheKey(flagged.ActorID)); err != nil {
			h.logger.Warn("failed to drop cached standing",
				"actor_id", flagged.ActorID,
				"error", err,
			)
		}
	}

	h.logger.Info("flagged actor evicted from cached board",
		"actor_id", flagged.ActorID,
		"bot_score", flagged.BotScore,
	)
	return nil
}
