package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	runs int
	err  error
}

func (j *countingJob) Name() string                { return j.name }
func (j *countingJob) Run(_ context.Context) error { j.runs++; return j.err }
func (j *countingJob) Description() string         { return "counts its runs" }

func newTestScheduler(maxHistory int) *Scheduler {
	cfg := DefaultSchedulerConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	if maxHistory > 0 {
		cfg.MaxHistorySize = maxHistory
	}
	return NewScheduler(cfg)
}

func TestScheduler_RegisterRejectsDuplicates(t *testing.T) {
	s := newTestScheduler(0)
	schedule := NewIntervalSchedule(time.Minute)

	require.NoError(t, s.Register(&countingJob{name: "recompute"}, schedule))

	err := s.Register(&countingJob{name: "recompute"}, schedule)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrJobAlreadyExists)

	assert.ErrorIs(t, s.Register(nil, schedule), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "other"}, nil), ErrNilSchedule)
}

func TestScheduler_RunNowRecordsHistory(t *testing.T) {
	s := newTestScheduler(0)
	job := &countingJob{name: "recompute"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "recompute")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.True(t, result.Manual)
	assert.Equal(t, 1, job.runs)

	history := s.GetHistory(10)
	require.Len(t, history, 1)
	assert.Equal(t, "recompute", history[0].JobName)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	require.NotNil(t, jobs[0].LastResult)
	assert.True(t, jobs[0].LastResult.Manual)
}

func TestScheduler_RunNowUnknownJob(t *testing.T) {
	s := newTestScheduler(0)

	result, err := s.RunNow(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.Nil(t, result)
}

func TestScheduler_RunNowSurfacesJobFailure(t *testing.T) {
	s := newTestScheduler(0)
	job := &countingJob{name: "verify", err: errors.New("divergence scan failed")}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "verify")
	require.Error(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, int64(1), jobs[0].FailCount)
}

func TestScheduler_HistoryIsBounded(t *testing.T) {
	s := newTestScheduler(3)
	job := &countingJob{name: "recompute"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	for i := 0; i < 5; i++ {
		_, err := s.RunNow(context.Background(), "recompute")
		require.NoError(t, err)
	}

	assert.Len(t, s.GetHistory(0), 3)
	assert.Equal(t, 5, job.runs)
}

func TestScheduler_StartStopLifecycle(t *testing.T) {
	s := newTestScheduler(0)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}
