package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/makerhub/reputation-engine/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// MARK FIRST COHORT JOB
// ══════════════════════════════════════════════════════════════════════════════

// MarkFirstCohortJob awards the one-time first-100 badge to the earliest
// joiners. The repository guards the bootstrap with a milestone row, so the
// job is safe to schedule repeatedly and across multiple instances: every
// run after the first is a no-op.
type MarkFirstCohortJob struct {
	leaderboardRepo leaderboard.Repository
	logger          *slog.Logger
	config          MarkFirstCohortConfig

	lastRunStats atomic.Value // *FirstCohortStats
}

// MarkFirstCohortConfig contains configuration for the bootstrap job.
type MarkFirstCohortConfig struct {
	// CohortSize is how many earliest joiners get the badge.
	CohortSize int

	// Timeout is the maximum duration for the bootstrap.
	Timeout time.Duration
}

// DefaultMarkFirstCohortConfig returns sensible defaults.
func DefaultMarkFirstCohortConfig() MarkFirstCohortConfig {
	return MarkFirstCohortConfig{
		CohortSize: leaderboard.FirstCohortSize,
		Timeout:    time.Minute,
	}
}

// FirstCohortStats contains statistics from a bootstrap run.
type FirstCohortStats struct {
	StartedAt    time.Time
	CompletedAt  time.Time
	ActorsMarked int
	AlreadyDone  bool
}

// NewMarkFirstCohortJob creates a new first-cohort bootstrap job.
func NewMarkFirstCohortJob(
	leaderboardRepo leaderboard.Repository,
	logger *slog.Logger,
	config MarkFirstCohortConfig,
) *MarkFirstCohortJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.CohortSize <= 0 {
		config.CohortSize = leaderboard.FirstCohortSize
	}

	return &MarkFirstCohortJob{
		leaderboardRepo: leaderboardRepo,
		logger:          logger,
		config:          config,
	}
}

// Name returns the job name.
func (j *MarkFirstCohortJob) Name() string {
	return "mark_first_cohort"
}

// Description returns a human-readable description.
func (j *MarkFirstCohortJob) Description() string {
	return "One-time bootstrap that marks the earliest joiners as the first cohort"
}

// Run executes the bootstrap.
func (j *MarkFirstCohortJob) Run(ctx context.Context) error {
	stats := &FirstCohortStats{StartedAt: time.Now()}

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	marked, err := j.leaderboardRepo.MarkFirstCohort(ctx, j.config.CohortSize)
	if err != nil {
		return fmt.Errorf("failed to mark first cohort: %w", err)
	}

	stats.ActorsMarked = marked
	stats.AlreadyDone = marked == 0
	stats.CompletedAt = time.Now()
	j.lastRunStats.Store(stats)

	if marked == 0 {
		j.logger.Debug("first cohort already bootstrapped")
		return nil
	}

	j.logger.Info("first cohort marked",
		"actors_marked", marked,
		"cohort_size", j.config.CohortSize,
	)
	return nil
}

// LastRunStats returns statistics from the last run.
func (j *MarkFirstCohortJob) LastRunStats() *FirstCohortStats {
	stats := j.lastRunStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*FirstCohortStats)
}
