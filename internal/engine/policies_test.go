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

type nonReentrantAction struct {
	api.NonReentrant
	started chan struct{}
	release chan struct{}
}

func (a *nonReentrantAction) ActionKind() api.Kind { return "NonReentrant" }

func (a *nonReentrantAction) Reduce(ctx context.Context, s int) (api.Reduction[int], error) {
	return api.Deferred(func(ctx context.Context, latest int) (api.Reduction[int], error) {
		close(a.started)
		<-a.release
		return api.StateOf(latest + 1), nil
	}), nil
}

// TestNonReentrantAbortsSecond verifies that a second dispatch of the same
// key is aborted while the first is in flight, and that the key is released
// at completion.
func TestNonReentrantAbortsSecond(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t, Config[int]{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first := &nonReentrantAction{started: make(chan struct{}), release: make(chan struct{})}
	s.Dispatch(first)
	select {
	case <-first.started:
	case <-ctx.Done():
		t.Fatal("first dispatch never started")
	}

	second := &nonReentrantAction{started: make(chan struct{}), release: make(chan struct{})}
	st, err := s.DispatchAndWait(ctx, second)
	require.NoError(t, err)
	require.True(t, st.Aborted)
	require.True(t, st.IsCompletedOK())
	require.False(t, st.BeforeCompleted, "aborted dispatch must not run hooks")

	close(first.release)
	require.NoError(t, s.WaitCondition(ctx, func(s int) bool { return s == 1 }))

	// Key released: a fresh dispatch runs.
	third := &nonReentrantAction{started: make(chan struct{}), release: make(chan struct{})}
	close(third.release)
	st, err = s.DispatchAndWait(ctx, third)
	require.NoError(t, err)
	require.False(t, st.Aborted)
	require.Equal(t, 2, s.State())
}

type throttledAction struct {
	throttle api.Throttle
	err      error
}

func (a throttledAction) ActionKind() api.Kind         { return "Throttled" }
func (a throttledAction) ThrottlePolicy() api.Throttle { return a.throttle }

func (a throttledAction) Reduce(ctx context.Context, s int) (api.Reduction[int], error) {
	if a.err != nil {
		return api.NoChange[int](), a.err
	}
	return api.StateOf(s + 1), nil
}

// TestThrottleWindow verifies that dispatches inside the window abort, that
// IgnoreThrottle bypasses the check, and that RemoveLockOnError clears the
// stamp after a failure.
func TestThrottleWindow(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t, Config[int]{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	window := api.Throttle{Window: time.Hour}

	st, err := s.DispatchAndWait(ctx, throttledAction{throttle: window})
	require.NoError(t, err)
	require.True(t, st.IsCompletedOK())
	require.Equal(t, 1, s.State())

	st, err = s.DispatchAndWait(ctx, throttledAction{throttle: window})
	require.NoError(t, err)
	require.True(t, st.Aborted)
	require.Equal(t, 1, s.State())

	st, err = s.DispatchAndWait(ctx, throttledAction{throttle: api.Throttle{Window: time.Hour, IgnoreThrottle: true}})
	require.NoError(t, err)
	require.False(t, st.Aborted)
	require.Equal(t, 2, s.State())
}

// TestThrottleRemoveLockOnError verifies that a failed dispatch with
// RemoveLockOnError reopens the window immediately.
func TestThrottleRemoveLockOnError(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t, Config[int]{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	unlocking := api.Throttle{Window: time.Hour, RemoveLockOnError: true}

	st, err := s.DispatchAndWait(ctx, throttledAction{throttle: unlocking, err: errors.New("fetch failed")})
	require.NoError(t, err)
	require.True(t, st.IsCompletedFailed())

	// The failed attempt removed its own stamp, so a retry is not throttled.
	st, err = s.DispatchAndWait(ctx, throttledAction{throttle: unlocking})
	require.NoError(t, err)
	require.False(t, st.Aborted)
	require.Equal(t, 1, s.State())
}

type freshAction struct {
	api.Fresh
	err error
}

func (a freshAction) ActionKind() api.Kind { return "FreshLoad" }

func (a freshAction) Reduce(ctx context.Context, s int) (api.Reduction[int], error) {
	if a.err != nil {
		return api.NoChange[int](), a.err
	}
	return api.StateOf(s + 1), nil
}

// TestFreshSkipsWhileFresh verifies the freshness gate: a successful load
// marks the key fresh, a failed load does not.
func TestFreshSkipsWhileFresh(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t, Config[int]{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fresh := api.Fresh{FreshFor: time.Hour}

	st, err := s.DispatchAndWait(ctx, freshAction{Fresh: fresh})
	require.NoError(t, err)
	require.True(t, st.IsCompletedOK())
	require.Equal(t, 1, s.State())

	st, err = s.DispatchAndWait(ctx, freshAction{Fresh: fresh})
	require.NoError(t, err)
	require.True(t, st.Aborted, "data still fresh, load must be skipped")
	require.Equal(t, 1, s.State())
}

// TestFreshFailedLoadDoesNotFreshen verifies that a failed load restores
// the previous stamp so the next attempt is not gated.
func TestFreshFailedLoadDoesNotFreshen(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t, Config[int]{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fresh := api.Fresh{FreshFor: time.Hour}

	st, err := s.DispatchAndWait(ctx, freshAction{Fresh: fresh, err: errors.New("load failed")})
	require.NoError(t, err)
	require.True(t, st.IsCompletedFailed())

	st, err = s.DispatchAndWait(ctx, freshAction{Fresh: fresh})
	require.NoError(t, err)
	require.False(t, st.Aborted)
	require.Equal(t, 1, s.State())
}

type debouncedAdd struct {
	api.Debounce
	by int
}

func (a debouncedAdd) ActionKind() api.Kind { return "DebouncedAdd" }

func (a debouncedAdd) Reduce(ctx context.Context, s int) (api.Reduction[int], error) {
	return api.StateOf(s + a.by), nil
}

// TestDebounceCollapsesBurst verifies that a burst of dispatches inside the
// quiet window runs only the last one; superseded dispatches end Aborted.
func TestDebounceCollapsesBurst(t *testing.T) {
	t.Parallel()

	rec := &recordingObserver{}
	s := newCounterStore(t, Config[int]{ActionObserver: rec})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	quiet := api.Debounce{Quiet: 40 * time.Millisecond}

	// Dispatch arms the quiet timer inline and returns; each burst member
	// supersedes the previous one.
	s.Dispatch(debouncedAdd{Debounce: quiet, by: 1})
	s.Dispatch(debouncedAdd{Debounce: quiet, by: 2})
	last, err := s.DispatchAndWait(ctx, debouncedAdd{Debounce: quiet, by: 100})
	require.NoError(t, err)
	require.True(t, last.IsCompletedOK())
	require.False(t, last.Aborted)
	require.Equal(t, 100, s.State())

	aborted := 0
	for _, st := range rec.ended() {
		if st.Kind == "DebouncedAdd" && st.Aborted {
			aborted++
		}
	}
	require.Equal(t, 2, aborted, "superseded burst members must abort")
}

// TestDebounceRejectsDispatchSync verifies that a debounced action cannot
// run synchronously.
func TestDebounceRejectsDispatchSync(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t, Config[int]{})

	_, err := s.DispatchSync(debouncedAdd{Debounce: api.Debounce{Quiet: time.Millisecond}, by: 1})
	require.ErrorIs(t, err, api.ErrActionIsAsync)
}

type abortingAction struct {
	reduced *atomic.Int32
}

func (a abortingAction) ActionKind() api.Kind { return "AbortSelf" }

func (a abortingAction) AbortDispatch(s int) bool { return s >= 3 }

func (a abortingAction) Reduce(ctx context.Context, s int) (api.Reduction[int], error) {
	a.reduced.Add(1)
	return api.StateOf(s + 1), nil
}

// TestAbortDispatch verifies that the action's own abort gate stops the
// lifecycle before any hook runs.
func TestAbortDispatch(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t, Config[int]{InitialState: 3})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var reduced atomic.Int32
	st, err := s.DispatchAndWait(ctx, abortingAction{reduced: &reduced})
	require.NoError(t, err)
	require.True(t, st.Aborted)
	require.True(t, st.IsCompletedOK())
	require.EqualValues(t, 0, reduced.Load())
	require.Equal(t, 3, s.State())
}

type conflictedAction struct {
	api.Retry
	api.Debounce
}

func (conflictedAction) Reduce(ctx context.Context, s int) (api.Reduction[int], error) {
	return api.StateOf(s + 1), nil
}

// TestPolicyConflictFailsDispatch verifies that an invalid policy
// combination fails the dispatch with ErrPolicyConflict before any phase
// runs.
func TestPolicyConflictFailsDispatch(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t, Config[int]{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := s.DispatchAndWait(ctx, conflictedAction{})
	require.NoError(t, err)
	require.True(t, st.IsCompletedFailed())
	require.ErrorIs(t, st.WrappedError, api.ErrPolicyConflict)
	require.Equal(t, 0, s.State())
}

type keyedAction struct {
	api.NonReentrant
	key     string
	release chan struct{}
}

func (a *keyedAction) ActionKind() api.Kind { return "Keyed" }
func (a *keyedAction) Key() string          { return a.key }

func (a *keyedAction) Reduce(ctx context.Context, s int) (api.Reduction[int], error) {
	return api.Deferred(func(ctx context.Context, latest int) (api.Reduction[int], error) {
		<-a.release
		return api.StateOf(latest + 1), nil
	}), nil
}

// TestKeyerScopesGates verifies that per-key gates distinguish dispatches of
// the same kind with different keys.
func TestKeyerScopesGates(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t, Config[int]{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	release := make(chan struct{})
	s.Dispatch(&keyedAction{key: "item-1", release: release})

	// Same kind, different key: not gated.
	other := &keyedAction{key: "item-2", release: release}
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()
	st, err := s.DispatchAndWait(ctx, other)
	require.NoError(t, err)
	require.False(t, st.Aborted)

	require.NoError(t, s.WaitCondition(ctx, func(s int) bool { return s == 2 }))
}
