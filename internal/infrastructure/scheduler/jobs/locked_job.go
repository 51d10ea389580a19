package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISTRIBUTED LOCK WRAPPER
// When several engine instances share one database, only the lock holder
// runs the wrapped job. Losing the race is a skip, not a failure.
// ══════════════════════════════════════════════════════════════════════════════

// Locker acquires short-lived distributed locks. Satisfied by the Redis
// cache client.
type Locker interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// LockedJob wraps a Job so only one instance runs it at a time.
type LockedJob struct {
	inner   Job
	locker  Locker
	lockKey string
	ttl     time.Duration
	logger  *slog.Logger
}

// Job is the scheduler's job contract, restated here so the wrapper can
// decorate any job without importing the scheduler package.
type Job interface {
	Name() string
	Run(ctx context.Context) error
	Description() string
}

// NewLockedJob wraps a job with a distributed lock. The TTL should exceed
// the job's expected runtime so the lock does not expire mid-run.
func NewLockedJob(inner Job, locker Locker, lockKey string, ttl time.Duration, logger *slog.Logger) *LockedJob {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &LockedJob{
		inner:   inner,
		locker:  locker,
		lockKey: lockKey,
		ttl:     ttl,
		logger:  logger,
	}
}

// Name returns the wrapped job's name.
func (j *LockedJob) Name() string { return j.inner.Name() }

// Description returns the wrapped job's description.
func (j *LockedJob) Description() string { return j.inner.Description() }

// Run acquires the lock, runs the wrapped job, and releases the lock.
func (j *LockedJob) Run(ctx context.Context) error {
	acquired, err := j.locker.SetNX(ctx, j.lockKey, time.Now().UnixNano(), j.ttl)
	if err != nil {
		// A broken lock store must not stop a single-instance deployment.
		j.logger.Warn("lock store unavailable, running without lock",
			"job", j.inner.Name(),
			"error", err,
		)
		return j.inner.Run(ctx)
	}
	if !acquired {
		j.logger.Debug("another instance holds the lock, skipping run",
			"job", j.inner.Name(),
			"lock_key", j.lockKey,
		)
		return nil
	}

	defer func() {
		if err := j.locker.Delete(context.WithoutCancel(ctx), j.lockKey); err != nil {
			j.logger.Warn("failed to release job lock",
				"job", j.inner.Name(),
				"error", err,
			)
		}
	}()

	if err := j.inner.Run(ctx); err != nil {
		return fmt.Errorf("%s: %w", j.inner.Name(), err)
	}
	return nil
}
