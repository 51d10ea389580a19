// Package jobs contains implementations of scheduled jobs for the reputation
// engine: the leaderboard recompute pass, the one-time first-cohort bootstrap,
// and the ledger verification pass.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/makerhub/reputation-engine/internal/domain/leaderboard"
	"github.com/makerhub/reputation-engine/internal/domain/shared"
	"github.com/makerhub/reputation-engine/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOMPUTE RANKS JOB
// ══════════════════════════════════════════════════════════════════════════════

// RecomputeRanksJob rebuilds the leaderboard from the actor aggregates.
//
// Each pass reads all non-flagged actors under a consistent view, assigns
// dense ranks in memory, and writes them back in one transaction. A failed
// pass leaves the previous rank snapshot intact; readers keep seeing the
// last completed board. The Redis cache rebuild afterwards is best-effort:
// a cache failure never fails the pass.
type RecomputeRanksJob struct {
	// Dependencies
	leaderboardRepo leaderboard.Repository
	cache           leaderboard.Cache
	eventPublisher  shared.EventPublisher
	cacheBreaker    *circuitbreaker.CircuitBreaker
	logger          *slog.Logger

	// Configuration
	config RecomputeRanksConfig

	// State
	lastRunStats atomic.Value // *RecomputeStats
}

// RecomputeRanksConfig contains configuration for the recompute job.
type RecomputeRanksConfig struct {
	// PublishRankChanges enables rank movement events.
	PublishRankChanges bool

	// MinRankChangeForEvent is the minimum movement to publish an event for.
	MinRankChangeForEvent int

	// CacheTTL is the TTL for the rebuilt leaderboard cache.
	CacheTTL time.Duration

	// Timeout is the maximum duration for one pass.
	Timeout time.Duration
}

// DefaultRecomputeRanksConfig returns sensible defaults.
func DefaultRecomputeRanksConfig() RecomputeRanksConfig {
	return RecomputeRanksConfig{
		PublishRankChanges:    true,
		MinRankChangeForEvent: 1,
		CacheTTL:              30 * time.Minute,
		Timeout:               5 * time.Minute,
	}
}

// RecomputeStats contains statistics from one recompute pass.
type RecomputeStats struct {
	StartedAt    time.Time
	CompletedAt  time.Time
	Duration     time.Duration
	RankedActors int
	RankChanges  int
	TopEntries   int
	TopExits     int
	DroppedOut   int
	CacheRebuilt bool
}

// NewRecomputeRanksJob creates a new recompute ranks job.
func NewRecomputeRanksJob(
	leaderboardRepo leaderboard.Repository,
	cache leaderboard.Cache,
	eventPublisher shared.EventPublisher,
	cacheBreaker *circuitbreaker.CircuitBreaker,
	logger *slog.Logger,
	config RecomputeRanksConfig,
) *RecomputeRanksJob {
	if logger == nil {
		logger = slog.Default()
	}

	return &RecomputeRanksJob{
		leaderboardRepo: leaderboardRepo,
		cache:           cache,
		eventPublisher:  eventPublisher,
		cacheBreaker:    cacheBreaker,
		logger:          logger,
		config:          config,
	}
}

// Name returns the job name.
func (j *RecomputeRanksJob) Name() string {
	return "recompute_ranks"
}

// Description returns a human-readable description.
func (j *RecomputeRanksJob) Description() string {
	return "Recomputes leaderboard ranks from actor XP and publishes movement events"
}

// Run executes one recompute pass.
func (j *RecomputeRanksJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &RecomputeStats{StartedAt: startedAt}

	j.logger.Info("starting recompute_ranks job")

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	// The previous standings feed the movement diff. Best-effort: a read
	// failure here only suppresses movement events for this pass.
	prevStandings, err := j.leaderboardRepo.CurrentStandings(ctx)
	if err != nil {
		j.logger.Warn("failed to read previous standings", "error", err)
		prevStandings = nil
	}
	prevSnapshot := leaderboard.NewSnapshot(prevStandings)

	rankable, err := j.leaderboardRepo.ListRankable(ctx)
	if err != nil {
		return fmt.Errorf("failed to list rankable actors: %w", err)
	}

	ranking := leaderboard.NewRanking(len(rankable))
	for _, standing := range rankable {
		if err := ranking.Add(standing); err != nil {
			j.logger.Warn("failed to add standing to ranking",
				"actor_id", standing.ActorID,
				"error", err,
			)
		}
	}
	ranking.AssignRanks()
	stats.RankedActors = ranking.Count()

	// The only write of the pass. On failure the previous snapshot stays
	// authoritative, so no diff, no events, no cache rebuild.
	if err := j.leaderboardRepo.WriteRanks(ctx, ranking); err != nil {
		return fmt.Errorf("failed to write ranks: %w", err)
	}

	newSnapshot := leaderboard.NewSnapshot(ranking.All())
	diff := leaderboard.CalculateDiff(prevSnapshot, newSnapshot)
	stats.DroppedOut = len(diff.Removed)
	j.publishMovement(diff, newSnapshot, stats)

	recomputed := shared.NewLeaderboardRecomputedEvent(
		stats.RankedActors,
		stats.DroppedOut,
		time.Since(startedAt),
	)
	if err := j.eventPublisher.Publish(recomputed); err != nil {
		j.logger.Warn("failed to publish recompute event", "error", err)
	}

	j.rebuildCache(ctx, ranking, stats)

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastRunStats.Store(stats)

	j.logger.Info("recompute_ranks job completed",
		"duration", stats.Duration.String(),
		"ranked_actors", stats.RankedActors,
		"rank_changes", stats.RankChanges,
		"top_entries", stats.TopEntries,
		"cache_rebuilt", stats.CacheRebuilt,
	)

	return nil
}

// publishMovement emits rank movement events from the snapshot diff.
func (j *RecomputeRanksJob) publishMovement(diff *leaderboard.Diff, snapshot *leaderboard.Snapshot, stats *RecomputeStats) {
	if !j.config.PublishRankChanges {
		return
	}

	for actorID, change := range diff.RankChanges {
		stats.RankChanges++
		if !change.IsSignificant(j.config.MinRankChangeForEvent) {
			continue
		}

		entry := snapshot.Get(actorID)
		if entry == nil {
			continue
		}
		oldRank := entry.Rank.Int() + int(change)

		event := shared.NewRankChangedEvent(actorID.String(), oldRank, entry.Rank.Int())
		if err := j.eventPublisher.Publish(event); err != nil {
			j.logger.Warn("failed to publish rank change",
				"actor_id", actorID,
				"error", err,
			)
		}
	}

	for _, topChange := range diff.TopChanges {
		if topChange.Entered {
			stats.TopEntries++
			event := shared.NewEnteredTopNEvent(
				topChange.ActorID.String(),
				leaderboard.TopBadgeSize,
				topChange.NewRank.Int(),
			)
			if err := j.eventPublisher.Publish(event); err != nil {
				j.logger.Warn("failed to publish top entry",
					"actor_id", topChange.ActorID,
					"error", err,
				)
			}
		} else {
			stats.TopExits++
		}
	}
}

// rebuildCache refreshes the Redis leaderboard behind a circuit breaker.
// Cache errors are logged, never returned: the database snapshot is
// authoritative and the stale cache expires on its own TTL.
func (j *RecomputeRanksJob) rebuildCache(ctx context.Context, ranking *leaderboard.Ranking, stats *RecomputeStats) {
	if j.cache == nil {
		return
	}

	rebuild := func(ctx context.Context) error {
		return j.cache.RebuildFromSnapshot(ctx, ranking.All(), j.config.CacheTTL)
	}

	var err error
	if j.cacheBreaker != nil {
		err = j.cacheBreaker.Execute(ctx, rebuild)
	} else {
		err = rebuild(ctx)
	}

	if err != nil {
		j.logger.Warn("failed to rebuild leaderboard cache", "error", err)
		return
	}
	stats.CacheRebuilt = true
}

// LastRunStats returns statistics from the last completed pass.
func (j *RecomputeRanksJob) LastRunStats() *RecomputeStats {
	stats := j.lastRunStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*RecomputeStats)
}
