// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"errors"
	"time"

	"github.com/makerhub/reputation-engine/internal/domain/leaderboard"
	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Serves leaderboard pages cache-first. The Redis board covers the top-100
// window; deeper pages and cache misses fall through to PostgreSQL, which is
// always authoritative.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery contains leaderboard page parameters.
type GetLeaderboardQuery struct {
	// Page is the 1-based page number.
	Page int

	// PageSize is the number of entries per page (default 20, max 100).
	PageSize int
}

// Validate checks and normalizes the query parameters.
func (q *GetLeaderboardQuery) Validate() error {
	if q.Page < 0 {
		return errors.New("page cannot be negative")
	}
	if q.PageSize < 0 {
		return errors.New("page_size cannot be negative")
	}
	normalized := shared.NewPagination(q.Page, q.PageSize)
	q.Page = normalized.Page
	q.PageSize = normalized.PageSize
	return nil
}

// LeaderboardEntryDTO is one row of a leaderboard page.
type LeaderboardEntryDTO struct {
	Rank       int       `json:"rank"`
	ActorID    string    `json:"actor_id"`
	TotalXP    int64     `json:"total_xp"`
	Level      int       `json:"level"`
	IsTop100   bool      `json:"is_top_100"`
	RankChange int       `json:"rank_change"`
	JoinedAt   time.Time `json:"joined_at"`
}

// GetLeaderboardResult is a leaderboard page.
type GetLeaderboardResult struct {
	Entries   []LeaderboardEntryDTO `json:"entries"`
	Page      int                   `json:"page"`
	PageSize  int                   `json:"page_size"`
	Total     int                   `json:"total"`
	FromCache bool                  `json:"from_cache"`
}

// GetLeaderboardHandler handles the GetLeaderboardQuery.
type GetLeaderboardHandler struct {
	leaderboardRepo  leaderboard.Repository
	leaderboardCache leaderboard.Cache
}

// NewGetLeaderboardHandler creates a new GetLeaderboardHandler.
func NewGetLeaderboardHandler(
	leaderboardRepo leaderboard.Repository,
	leaderboardCache leaderboard.Cache,
) *GetLeaderboardHandler {
	return &GetLeaderboardHandler{
		leaderboardRepo:  leaderboardRepo,
		leaderboardCache: leaderboardCache,
	}
}

// Handle executes the leaderboard query.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, query GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetLeaderboard", shared.ErrValidation, err.Error(), err)
	}

	if result := h.tryCache(ctx, query); result != nil {
		return result, nil
	}

	page := shared.NewPagination(query.Page, query.PageSize)
	standings, total, err := h.leaderboardRepo.GetPage(ctx, page)
	if err != nil {
		return nil, shared.WrapError("query", "GetLeaderboard", shared.ErrStorageUnavailable, "failed to get leaderboard page", err)
	}

	return &GetLeaderboardResult{
		Entries:  toEntryDTOs(standings),
		Page:     query.Page,
		PageSize: query.PageSize,
		Total:    total,
	}, nil
}

// tryCache serves the page from Redis when the whole requested window sits
// inside the cached board. Any cache error is a miss.
func (h *GetLeaderboardHandler) tryCache(ctx context.Context, query GetLeaderboardQuery) *GetLeaderboardResult {
	if h.leaderboardCache == nil {
		return nil
	}

	end := query.Page * query.PageSize
	if end > leaderboard.TopBadgeSize {
		return nil
	}

	size, err := h.leaderboardCache.Size(ctx)
	if err != nil || size == 0 {
		return nil
	}

	offset := (query.Page - 1) * query.PageSize
	if offset >= size {
		// Valid empty page past the end of the board.
		return &GetLeaderboardResult{
			Entries:   []LeaderboardEntryDTO{},
			Page:      query.Page,
			PageSize:  query.PageSize,
			Total:     size,
			FromCache: true,
		}
	}

	standings, err := h.leaderboardCache.GetTop(ctx, end)
	if err != nil || len(standings) <= offset {
		return nil
	}

	return &GetLeaderboardResult{
		Entries:   toEntryDTOs(standings[offset:]),
		Page:      query.Page,
		PageSize:  query.PageSize,
		Total:     size,
		FromCache: true,
	}
}

func toEntryDTOs(standings []*leaderboard.Standing) []LeaderboardEntryDTO {
	entries := make([]LeaderboardEntryDTO, 0, len(standings))
	for _, s := range standings {
		entries = append(entries, LeaderboardEntryDTO{
			Rank:       s.Rank.Int(),
			ActorID:    s.ActorID.String(),
			TotalXP:    s.TotalXP.Int64(),
			Level:      s.Level.Int(),
			IsTop100:   s.IsTop100,
			RankChange: int(s.RankChange),
			JoinedAt:   s.JoinedAt,
		})
	}
	return entries
}
