package query

import (
	"context"
	"errors"
	"time"

	"github.com/makerhub/reputation-engine/internal/domain/actor"
	"github.com/makerhub/reputation-engine/internal/domain/leaderboard"
	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ACTOR STANDING QUERY
// The "where am I" read: XP, level, rank, badges, and bot-watch state for one
// actor. Actor state always comes from PostgreSQL; Redis only contributes the
// movement since the last recompute pass and a short-lived DTO cache.
// ══════════════════════════════════════════════════════════════════════════════

// ResultCache is a small JSON key/value cache for query DTOs. Satisfied by
// the Redis cache client; any Get error counts as a miss.
type ResultCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// StandingCacheKey is the DTO cache key for one actor's standing.
func StandingCacheKey(actorID string) string {
	return "actor:" + actorID + ":standing"
}

// StandingCacheTTL bounds DTO staleness between award and recompute events.
const StandingCacheTTL = 10 * time.Minute

// GetActorStandingQuery contains the actor to look up.
type GetActorStandingQuery struct {
	ActorID string
}

// Validate checks the query parameters.
func (q *GetActorStandingQuery) Validate() error {
	if q.ActorID == "" {
		return errors.New("actor_id is required")
	}
	return nil
}

// ActorStandingDTO is one actor's full reputation standing.
type ActorStandingDTO struct {
	ActorID string `json:"actor_id"`

	// XP and level
	TotalXP       int64   `json:"total_xp"`
	Level         int     `json:"level"`
	XPToNextLevel int64   `json:"xp_to_next_level"`
	LevelProgress float64 `json:"level_progress"`

	// Rank. Zero means unranked: flagged, or no recompute pass yet.
	Rank       int  `json:"rank"`
	IsTop100   bool `json:"is_top_100"`
	RankChange int  `json:"rank_change"`

	// Badges
	IsFirst100 bool `json:"is_first_100"`

	// Bot watch
	IsFlaggedBot  bool `json:"is_flagged_bot"`
	BotAlertCount int  `json:"bot_alert_count"`

	LastAwardAt *time.Time `json:"last_award_at,omitempty"`
	JoinedAt    time.Time  `json:"joined_at"`
}

// GetActorStandingHandler handles the GetActorStandingQuery.
type GetActorStandingHandler struct {
	actorRepo        actor.Repository
	leaderboardCache leaderboard.Cache
	resultCache      ResultCache
}

// NewGetActorStandingHandler creates a new GetActorStandingHandler.
func NewGetActorStandingHandler(
	actorRepo actor.Repository,
	leaderboardCache leaderboard.Cache,
	resultCache ResultCache,
) *GetActorStandingHandler {
	return &GetActorStandingHandler{
		actorRepo:        actorRepo,
		leaderboardCache: leaderboardCache,
		resultCache:      resultCache,
	}
}

// Handle executes the actor standing query.
func (h *GetActorStandingHandler) Handle(ctx context.Context, query GetActorStandingQuery) (*ActorStandingDTO, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetActorStanding", shared.ErrValidation, err.Error(), err)
	}

	actorID, err := shared.NewActorID(query.ActorID)
	if err != nil {
		return nil, err
	}

	if h.resultCache != nil {
		var cached ActorStandingDTO
		if err := h.resultCache.Get(ctx, StandingCacheKey(actorID.String()), &cached); err == nil {
			return &cached, nil
		}
	}

	a, err := h.actorRepo.GetByID(ctx, actorID)
	if err != nil {
		return nil, err
	}

	dto := h.buildDTO(a)
	h.attachMovement(ctx, actorID, dto)

	if h.resultCache != nil {
		_ = h.resultCache.Set(ctx, StandingCacheKey(actorID.String()), dto, StandingCacheTTL)
	}

	return dto, nil
}

// buildDTO maps the aggregate onto the wire shape and derives the level
// progress numbers.
func (h *GetActorStandingHandler) buildDTO(a *actor.Actor) *ActorStandingDTO {
	currentFloor := a.Level.RequiredXP()
	nextFloor := (a.Level + 1).RequiredXP()

	toNext := nextFloor - a.TotalXP.Int64()
	if toNext < 0 {
		toNext = 0
	}

	progress := 0.0
	if nextFloor > currentFloor {
		progress = float64(a.TotalXP.Int64()-currentFloor) / float64(nextFloor-currentFloor)
		if progress < 0 {
			progress = 0
		}
		if progress > 1 {
			progress = 1
		}
	}

	return &ActorStandingDTO{
		ActorID:       a.ID.String(),
		TotalXP:       a.TotalXP.Int64(),
		Level:         a.Level.Int(),
		XPToNextLevel: toNext,
		LevelProgress: progress,
		Rank:          a.Rank.Int(),
		IsTop100:      a.IsTop100,
		IsFirst100:    a.IsFirst100,
		IsFlaggedBot:  a.IsFlaggedBot,
		BotAlertCount: a.BotAlertCount,
		LastAwardAt:   a.LastAwardAt,
		JoinedAt:      a.JoinedAt,
	}
}

// attachMovement fills in the rank movement from the cached board. Best
// effort: a cache miss leaves RankChange at zero.
func (h *GetActorStandingHandler) attachMovement(ctx context.Context, actorID shared.ActorID, dto *ActorStandingDTO) {
	if h.leaderboardCache == nil {
		return
	}
	standing, err := h.leaderboardCache.GetRank(ctx, actorID)
	if err != nil || standing == nil {
		return
	}
	dto.RankChange = int(standing.RankChange)
}
