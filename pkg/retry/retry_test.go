package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetrier(opts ...Option) *Retrier {
	base := []Option{
		WithMaxAttempts(3),
		WithInitialDelay(time.Millisecond),
		WithMaxDelay(5 * time.Millisecond),
		WithJitter(0),
	}
	return New(append(base, opts...)...)
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := fastRetrier().Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesRetryableErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := fastRetrier().Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(boom)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnNonRetryableError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := fastRetrier().Do(context.Background(), func(ctx context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDo_PermanentErrorShortCircuits(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	retrier := fastRetrier(WithRetryIf(func(error) bool { return true }))
	err := retrier.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(boom)
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := fastRetrier().Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Retryable(boom)
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestDo_RetryIfOverridesDefault(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	retrier := fastRetrier(WithRetryIf(func(err error) bool {
		return err.Error() == "boom"
	}))
	err := retrier.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls, "plain errors retried when RetryIf says so")
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := fastRetrier().Do(ctx, func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestDo_OnRetryCallback(t *testing.T) {
	var attempts []int
	retrier := fastRetrier(WithOnRetry(func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}))

	_ = retrier.Do(context.Background(), func(ctx context.Context) error {
		return Retryable(errors.New("boom"))
	})
	assert.Equal(t, []int{1, 2}, attempts, "no callback after the final attempt")
}

func TestDoWithData(t *testing.T) {
	calls := 0
	got, err := DoWithData(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, Retryable(errors.New("boom"))
		}
		return 42, nil
	}, WithMaxAttempts(3), WithInitialDelay(time.Millisecond), WithJitter(0))
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestCalculateDelay_BacksOffAndCaps(t *testing.T) {
	r := New(
		WithInitialDelay(10*time.Millisecond),
		WithMaxDelay(30*time.Millisecond),
		WithMultiplier(2.0),
		WithJitter(0),
	)

	assert.Equal(t, 10*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 20*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 30*time.Millisecond, r.calculateDelay(3), "capped at max delay")
	assert.Equal(t, 30*time.Millisecond, r.calculateDelay(10))
}

func TestRetryableAndPermanentClassification(t *testing.T) {
	boom := errors.New("boom")

	assert.True(t, IsRetryable(Retryable(boom)))
	assert.False(t, IsRetryable(boom))
	assert.True(t, IsPermanent(Permanent(boom)))
	assert.False(t, IsPermanent(Retryable(boom)))

	assert.Nil(t, Retryable(nil))
	assert.Nil(t, Permanent(nil))
	assert.ErrorIs(t, Retryable(boom), boom)
}
