package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failing(ctx context.Context) error { return errBoom }

func succeeding(ctx context.Context) error { return nil }

func TestExecute_ClosedPassesThrough(t *testing.T) {
	cb := New("test")
	err := cb.Execute(context.Background(), succeeding)
	require.NoError(t, err)
	assert.True(t, cb.IsClosed())
	assert.Equal(t, 1, cb.Counts().TotalSuccesses)
}

func TestExecute_OpensAfterThreshold(t *testing.T) {
	cb := New("test", WithFailureThreshold(3))

	for i := 0; i < 3; i++ {
		err := cb.Execute(context.Background(), failing)
		assert.ErrorIs(t, err, errBoom)
	}
	assert.True(t, cb.IsOpen())

	// Requests are shed while open; the protected function never runs.
	calls := 0
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 0, calls)
}

func TestExecute_SuccessResetsFailureStreak(t *testing.T) {
	cb := New("test", WithFailureThreshold(3))

	require.Error(t, cb.Execute(context.Background(), failing))
	require.Error(t, cb.Execute(context.Background(), failing))
	require.NoError(t, cb.Execute(context.Background(), succeeding))
	require.Error(t, cb.Execute(context.Background(), failing))
	require.Error(t, cb.Execute(context.Background(), failing))

	assert.True(t, cb.IsClosed(), "streak restarted after the success")
}

func TestExecute_HalfOpenRecovery(t *testing.T) {
	cb := New("test",
		WithFailureThreshold(1),
		WithSuccessThreshold(1),
		WithTimeout(10*time.Millisecond),
	)

	require.Error(t, cb.Execute(context.Background(), failing))
	require.True(t, cb.IsOpen())

	time.Sleep(15 * time.Millisecond)

	// First probe after the timeout is allowed and closes the circuit.
	require.NoError(t, cb.Execute(context.Background(), succeeding))
	assert.True(t, cb.IsClosed())
}

func TestExecute_HalfOpenFailureReopens(t *testing.T) {
	cb := New("test",
		WithFailureThreshold(1),
		WithTimeout(10*time.Millisecond),
	)

	require.Error(t, cb.Execute(context.Background(), failing))
	time.Sleep(15 * time.Millisecond)

	require.Error(t, cb.Execute(context.Background(), failing))
	assert.True(t, cb.IsOpen())
}

func TestExecuteWithFallback(t *testing.T) {
	cb := New("test", WithFailureThreshold(1))
	require.Error(t, cb.Execute(context.Background(), failing))
	require.True(t, cb.IsOpen())

	fallbackUsed := false
	err := cb.ExecuteWithFallback(context.Background(), succeeding, func(err error) error {
		fallbackUsed = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, fallbackUsed)

	// Non-breaker errors do not trigger the fallback.
	cb.Reset()
	err = cb.ExecuteWithFallback(context.Background(), failing, func(err error) error {
		t.Fatal("fallback must not run for pass-through errors")
		return nil
	})
	assert.ErrorIs(t, err, errBoom)
}

func TestWithIsFailure_IgnoresExpectedErrors(t *testing.T) {
	notFound := errors.New("not found")
	cb := New("test",
		WithFailureThreshold(1),
		WithIsFailure(func(err error) bool { return !errors.Is(err, notFound) }),
	)

	err := cb.Execute(context.Background(), func(ctx context.Context) error { return notFound })
	assert.ErrorIs(t, err, notFound)
	assert.True(t, cb.IsClosed(), "expected errors do not trip the breaker")
}

func TestOnStateChangeCallback(t *testing.T) {
	type transition struct{ from, to State }
	var seen []transition

	cb := New("test",
		WithFailureThreshold(1),
		WithOnStateChange(func(name string, from, to State) {
			assert.Equal(t, "test", name)
			seen = append(seen, transition{from, to})
		}),
	)

	require.Error(t, cb.Execute(context.Background(), failing))
	require.Len(t, seen, 1)
	assert.Equal(t, transition{StateClosed, StateOpen}, seen[0])
}

func TestReset(t *testing.T) {
	cb := New("test", WithFailureThreshold(1))
	require.Error(t, cb.Execute(context.Background(), failing))
	require.True(t, cb.IsOpen())

	cb.Reset()
	assert.True(t, cb.IsClosed())
	assert.Equal(t, Counts{}, cb.Counts())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}
