package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reduxgo/redux/pkg/api"
)

type flakyAction struct {
	retry    api.Retry
	attempts *atomic.Int32
	failFor  int32
}

func (a flakyAction) ActionKind() api.Kind   { return "Flaky" }
func (a flakyAction) RetryPolicy() api.Retry { return a.retry }

func (a flakyAction) Reduce(ctx context.Context, s int) (api.Reduction[int], error) {
	n := a.attempts.Add(1)
	if n <= a.failFor {
		return api.NoChange[int](), errors.New("transient")
	}
	return api.StateOf(s + 1), nil
}

func fastRetry(max int) api.Retry {
	return api.Retry{
		MaxRetries:   max,
		InitialDelay: time.Millisecond,
		Multiplier:   1.5,
		MaxDelay:     5 * time.Millisecond,
	}
}

// TestRetrySucceedsAfterFailures verifies the reducer is re-run until it
// succeeds and the successful attempt's reduction is committed.
func TestRetrySucceedsAfterFailures(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t, Config[int]{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var attempts atomic.Int32
	st, err := s.DispatchAndWait(ctx, flakyAction{retry: fastRetry(3), attempts: &attempts, failFor: 2})
	require.NoError(t, err)
	require.True(t, st.IsCompletedOK())
	require.EqualValues(t, 3, attempts.Load())
	require.Equal(t, 1, s.State())
}

// TestRetryExhaustsAttempts verifies a reducer that keeps failing runs
// MaxRetries+1 times and the last error surfaces.
func TestRetryExhaustsAttempts(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t, Config[int]{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var attempts atomic.Int32
	st, err := s.DispatchAndWait(ctx, flakyAction{retry: fastRetry(2), attempts: &attempts, failFor: 100})
	require.NoError(t, err)
	require.True(t, st.IsCompletedFailed())
	require.ErrorContains(t, st.OriginalError, "transient")
	require.EqualValues(t, 3, attempts.Load(), "MaxRetries=2 means 3 attempts total")
	require.Equal(t, 0, s.State())
}

// TestRetryFirstAttemptSucceedsInline verifies that a retrying action whose
// first attempt succeeds never leaves the dispatching goroutine.
func TestRetryFirstAttemptSucceedsInline(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t, Config[int]{})

	var attempts atomic.Int32
	st, err := s.DispatchSync(flakyAction{retry: fastRetry(3), attempts: &attempts, failFor: 0})
	require.NoError(t, err)
	require.True(t, st.IsCompletedOK())
	require.EqualValues(t, 1, attempts.Load())
	require.Equal(t, 1, s.State())
}

// TestRetryBackoffIsAsync verifies that the first failed attempt makes the
// action asynchronous, which DispatchSync rejects.
func TestRetryBackoffIsAsync(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t, Config[int]{})

	var attempts atomic.Int32
	_, err := s.DispatchSync(flakyAction{retry: fastRetry(3), attempts: &attempts, failFor: 100})
	require.ErrorIs(t, err, api.ErrActionIsAsync)
}

// TestRetrySeesFreshSnapshot verifies each retry attempt reduces against
// the state at attempt time.
func TestRetrySeesFreshSnapshot(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t, Config[int]{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var attempts atomic.Int32
	ready := make(chan struct{})
	a := api.ActionFunc[int]{
		Kind: "Doubler",
		ReduceFn: func(ctx context.Context, state int) (api.Reduction[int], error) {
			switch attempts.Add(1) {
			case 1:
				return api.NoChange[int](), errors.New("transient")
			case 2:
				// Hold the retry goroutine until the state has advanced, so
				// the next attempt's snapshot is read after the commit.
				<-ready
				return api.NoChange[int](), errors.New("transient")
			default:
				return api.StateOf(state * 2), nil
			}
		},
	}
	wrapped := retryOf(a, fastRetry(3))

	s.Dispatch(wrapped)
	s.Dispatch(increment{by: 5})
	close(ready)

	require.NoError(t, s.WaitCondition(ctx, func(s int) bool { return s == 10 }))
}

// retryingFunc attaches a Retry policy to an ActionFunc for tests.
type retryingFunc struct {
	api.ActionFunc[int]
	retry api.Retry
}

func (a retryingFunc) RetryPolicy() api.Retry { return a.retry }

func retryOf(a api.ActionFunc[int], r api.Retry) retryingFunc {
	return retryingFunc{ActionFunc: a, retry: r}
}
