package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reduxgo/redux/pkg/api"
)

type pollCount struct {
	poll api.Polling
}

func (a pollCount) ActionKind() api.Kind { return "PollCount" }

func (a pollCount) PollingPolicy() api.Polling { return a.poll }

func (a pollCount) Reduce(ctx context.Context, s int) (api.Reduction[int], error) {
	return api.StateOf(s + 1), nil
}

// waitStable waits until the state stops changing across two observation
// windows of d each.
func waitStable(t *testing.T, s api.Store[int], d time.Duration) int {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		a := s.State()
		time.Sleep(d)
		if s.State() == a {
			return a
		}
		if time.Now().After(deadline) {
			t.Fatal("state never stabilized")
		}
	}
}

// TestPollOnce verifies PollOnce runs the reducer exactly once and leaves
// no loop behind.
func TestPollOnce(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t, Config[int]{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := s.DispatchAndWait(ctx, pollCount{poll: api.Polling{Every: 10 * time.Millisecond, Mode: api.PollOnce}})
	require.NoError(t, err)
	require.True(t, st.IsCompletedOK())
	require.Equal(t, 1, s.State())

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, s.State(), "PollOnce must not start a loop")
}

// TestPollStartAndStop verifies the loop re-runs the reducer until PollStop
// cancels it. PollStop itself runs no hooks and completes OK.
func TestPollStartAndStop(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t, Config[int]{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := s.DispatchAndWait(ctx, pollCount{poll: api.Polling{Every: 10 * time.Millisecond}})
	require.NoError(t, err)
	require.True(t, st.IsCompletedOK())

	require.NoError(t, s.WaitCondition(ctx, func(s int) bool { return s >= 3 }))

	st, err = s.DispatchAndWait(ctx, pollCount{poll: api.Polling{Mode: api.PollStop}})
	require.NoError(t, err)
	require.True(t, st.IsCompletedOK())
	require.False(t, st.BeforeCompleted, "PollStop runs no lifecycle phases")

	stopped := waitStable(t, s, 50*time.Millisecond)
	require.GreaterOrEqual(t, stopped, 3)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, stopped, s.State(), "loop must not tick after PollStop")
}

// TestPollRestart verifies PollRestart replaces the key's loop and keeps
// polling.
func TestPollRestart(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t, Config[int]{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := s.DispatchAndWait(ctx, pollCount{poll: api.Polling{Every: 10 * time.Millisecond}})
	require.NoError(t, err)
	require.NoError(t, s.WaitCondition(ctx, func(s int) bool { return s >= 2 }))

	_, err = s.DispatchAndWait(ctx, pollCount{poll: api.Polling{Every: 10 * time.Millisecond, Mode: api.PollRestart}})
	require.NoError(t, err)

	mark := s.State()
	require.NoError(t, s.WaitCondition(ctx, func(s int) bool { return s >= mark+2 }),
		"restarted loop must keep ticking")

	_, err = s.DispatchAndWait(ctx, pollCount{poll: api.Polling{Mode: api.PollStop}})
	require.NoError(t, err)
}

// TestPollStartIsIdempotentPerKey verifies a second PollStart on a running
// key does not start a second loop; its own reducer run still happens.
func TestPollStartIsIdempotentPerKey(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t, Config[int]{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slow := api.Polling{Every: time.Hour}
	_, err := s.DispatchAndWait(ctx, pollCount{poll: slow})
	require.NoError(t, err)
	_, err = s.DispatchAndWait(ctx, pollCount{poll: slow})
	require.NoError(t, err)

	// Two initiating runs, no ticks within the hour.
	require.Equal(t, 2, s.State())

	_, err = s.DispatchAndWait(ctx, pollCount{poll: api.Polling{Mode: api.PollStop}})
	require.NoError(t, err)
}

// TestCloseStopsPollLoops verifies Close cancels running loops.
func TestCloseStopsPollLoops(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t, Config[int]{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := s.DispatchAndWait(ctx, pollCount{poll: api.Polling{Every: 10 * time.Millisecond}})
	require.NoError(t, err)
	require.NoError(t, s.WaitCondition(ctx, func(s int) bool { return s >= 2 }))

	require.NoError(t, s.Close())
	stopped := waitStable(t, s, 50*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, stopped, s.State())
}
