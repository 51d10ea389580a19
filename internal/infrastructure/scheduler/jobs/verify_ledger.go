package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/makerhub/reputation-engine/internal/domain/ledger"
	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VERIFY LEDGER JOB
// ══════════════════════════════════════════════════════════════════════════════

// VerifyLedgerJob is the repair pass: it finds actors whose cached total_xp
// drifted from the ledger sum and rewrites the aggregate from the ledger.
// The ledger is the source of truth; the aggregate is a derived value, so
// a repair never touches transaction rows.
type VerifyLedgerJob struct {
	ledgerRepo     ledger.Repository
	eventPublisher shared.EventPublisher
	logger         *slog.Logger
	config         VerifyLedgerConfig

	lastRunStats atomic.Value // *VerifyStats
}

// VerifyLedgerConfig contains configuration for the verification pass.
type VerifyLedgerConfig struct {
	// BatchLimit caps how many divergent actors one pass repairs.
	BatchLimit int

	// Timeout is the maximum duration for one pass.
	Timeout time.Duration
}

// DefaultVerifyLedgerConfig returns sensible defaults.
func DefaultVerifyLedgerConfig() VerifyLedgerConfig {
	return VerifyLedgerConfig{
		BatchLimit: 100,
		Timeout:    2 * time.Minute,
	}
}

// VerifyStats contains statistics from one verification pass.
type VerifyStats struct {
	StartedAt      time.Time
	CompletedAt    time.Time
	Duration       time.Duration
	DivergentFound int
	Repaired       int
	Failed         int
}

// NewVerifyLedgerJob creates a new ledger verification job.
func NewVerifyLedgerJob(
	ledgerRepo ledger.Repository,
	eventPublisher shared.EventPublisher,
	logger *slog.Logger,
	config VerifyLedgerConfig,
) *VerifyLedgerJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.BatchLimit <= 0 {
		config.BatchLimit = DefaultVerifyLedgerConfig().BatchLimit
	}

	return &VerifyLedgerJob{
		ledgerRepo:     ledgerRepo,
		eventPublisher: eventPublisher,
		logger:         logger,
		config:         config,
	}
}

// Name returns the job name.
func (j *VerifyLedgerJob) Name() string {
	return "verify_ledger"
}

// Description returns a human-readable description.
func (j *VerifyLedgerJob) Description() string {
	return "Finds actors whose XP aggregate diverged from the ledger and repairs them"
}

// Run executes one verification pass.
func (j *VerifyLedgerJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &VerifyStats{StartedAt: startedAt}

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	divergences, err := j.ledgerRepo.FindDivergentAggregates(ctx, j.config.BatchLimit)
	if err != nil {
		return fmt.Errorf("failed to find divergent aggregates: %w", err)
	}
	stats.DivergentFound = len(divergences)

	for _, d := range divergences {
		corrected, err := j.ledgerRepo.RepairAggregate(ctx, d.ActorID)
		if err != nil {
			stats.Failed++
			j.logger.Error("failed to repair aggregate",
				"actor_id", d.ActorID,
				"cached_total", d.CachedTotal,
				"ledger_sum", d.LedgerSum,
				"error", err,
			)
			continue
		}
		stats.Repaired++

		j.logger.Warn("repaired divergent aggregate",
			"actor_id", d.ActorID,
			"old_total", d.CachedTotal,
			"new_total", corrected,
			"ledger_sum", d.LedgerSum,
		)

		event := shared.NewAggregateRepairedEvent(
			d.ActorID.String(),
			d.CachedTotal,
			corrected,
			d.LedgerSum,
		)
		if err := j.eventPublisher.Publish(event); err != nil {
			j.logger.Warn("failed to publish repair event",
				"actor_id", d.ActorID,
				"error", err,
			)
		}
	}

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastRunStats.Store(stats)

	if stats.DivergentFound > 0 {
		j.logger.Info("verify_ledger job completed",
			"duration", stats.Duration.String(),
			"divergent_found", stats.DivergentFound,
			"repaired", stats.Repaired,
			"failed", stats.Failed,
		)
	}

	if stats.Failed > 0 {
		return fmt.Errorf("verification completed with %d failed repairs", stats.Failed)
	}
	return nil
}

// LastRunStats returns statistics from the last completed pass.
func (j *VerifyLedgerJob) LastRunStats() *VerifyStats {
	stats := j.lastRunStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*VerifyStats)
}
