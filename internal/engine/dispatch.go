package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reduxgo/redux/pkg/api"
)

// dispatch carries the runtime state of one dispatched action through the
// lifecycle. Phases run on one goroutine at a time, but the status is read
// concurrently by waiters, so all status access goes through the mutex.
type dispatch[S any] struct {
	action   api.Action[S]
	kind     api.Kind
	key      string
	policies api.PolicySet

	waited   bool
	syncOnly bool

	mu     sync.Mutex
	status api.ActionStatus
	done   chan struct{}

	// gate bookkeeping for release/restore at terminal status
	holdsKey        bool
	stampedThrottle bool
	throttlePrev    time.Time
	stampedFresh    bool
	freshPrev       time.Time
}

func (s *store[S]) newDispatch(a api.Action[S]) *dispatch[S] {
	kind := kindFor(a)
	return &dispatch[S]{
		action:   a,
		kind:     kind,
		key:      keyFor(a, kind),
		policies: api.PoliciesOf(a),
		done:     make(chan struct{}),
	}
}

func kindFor[S any](a api.Action[S]) api.Kind {
	if k, ok := a.(api.Kinder); ok {
		return k.ActionKind()
	}
	return api.KindOf(a)
}

func keyFor[S any](a api.Action[S], kind api.Kind) string {
	if k, ok := a.(api.Keyer); ok {
		return k.Key()
	}
	return string(kind)
}

func (d *dispatch[S]) snapshot() api.ActionStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *dispatch[S]) id() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status.DispatchID
}

func (d *dispatch[S]) update(fn func(*api.ActionStatus)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.status)
}

// start runs the lifecycle inline on the caller's goroutine until the first
// deferred boundary. Every path through the lifecycle must reach exactly one
// of finish/fail/abort, which closes d.done.
func (s *store[S]) start(ctx context.Context, d *dispatch[S]) {
	if s.closed.Load() {
		d.update(func(st *api.ActionStatus) {
			st.Kind = d.kind
			st.OriginalError = api.ErrStoreClosed
			st.WrappedError = api.ErrStoreClosed
			st.Completed = true
		})
		close(d.done)
		return
	}

	id := s.nextDispatch.Add(1)
	d.update(func(st *api.ActionStatus) {
		st.Kind = d.kind
		st.DispatchID = id
	})

	ctx = api.WithStore[S](ctx, s)
	s.actionObs.OnDispatchStart(ctx, d.kind, id)
	s.kinds.enter(d.kind)

	if err := d.policies.Validate(); err != nil {
		s.fail(ctx, d, err)
		return
	}

	if s.gateAborts(d) {
		s.abort(ctx, d)
		return
	}

	switch {
	case d.policies.Debounce != nil:
		s.runDebounced(ctx, d)
	case d.policies.Polling != nil:
		s.runPolling(ctx, d)
	case d.policies.Optimistic():
		s.runOptimistic(ctx, d)
	default:
		if !s.runBefore(ctx, d) {
			return
		}
		s.runReduceChain(ctx, d)
	}
}

// gateAborts checks the policy abort gates in order (non-reentrancy,
// throttle, freshness, stale push), then the action's own AbortDispatch.
// Policy gates accept atomically; if the action's own gate aborts afterwards
// the throttle/fresh stamps are restored.
func (s *store[S]) gateAborts(d *dispatch[S]) bool {
	ps := d.policies

	if ps.NonReentrant != nil || ps.OptimisticCommand != nil {
		if !s.gates.tryEnter(d.key) {
			return true
		}
		d.holdsKey = true
	}

	if ps.Throttle != nil {
		accepted, prev := s.gates.tryThrottle(d.key, ps.Throttle.Window, ps.Throttle.IgnoreThrottle)
		if !accepted {
			return true
		}
		d.stampedThrottle = true
		d.throttlePrev = prev
	}

	if ps.Fresh != nil {
		accepted, prev := s.gates.tryFresh(d.key, ps.Fresh.FreshFor)
		if !accepted {
			return true
		}
		d.stampedFresh = true
		d.freshPrev = prev
	}

	if pa, ok := d.action.(api.PushAction); ok {
		if !s.syncs.acceptPush(pa.PushKey(), pa.PushRevision()) {
			return true
		}
	}

	if ab, ok := d.action.(api.DispatchAborter[S]); ok && ab.AbortDispatch(s.State()) {
		if d.stampedThrottle {
			s.gates.restoreThrottle(d.key, d.throttlePrev)
			d.stampedThrottle = false
		}
		if d.stampedFresh {
			s.gates.restoreFresh(d.key, d.freshPrev)
			d.stampedFresh = false
		}
		return true
	}
	return false
}

// runBefore executes the Before hook, if any. On failure it runs After,
// routes the error and reports false; the reducer must not run.
func (s *store[S]) runBefore(ctx context.Context, d *dispatch[S]) bool {
	if b, ok := d.action.(api.BeforeHook[S]); ok {
		err := runSafe("before hook", func() error {
			return b.Before(ctx, s.State())
		})
		if err != nil {
			d.update(func(st *api.ActionStatus) { st.OriginalError = err })
			s.runAfter(ctx, d)
			s.fail(ctx, d, err)
			return false
		}
	}
	d.update(func(st *api.ActionStatus) { st.BeforeCompleted = true })
	return true
}

// runReduceChain builds the reducer chain (action reducer, wrapped by the
// action's own WrapReduce, wrapped by the retry policy) and runs it. A chain
// that stays synchronous does its read-modify-write under the state lock, so
// concurrent dispatches serialize instead of overwriting each other's
// commits. The lock is released before any deferred continuation, hook or
// observer runs; a reducer that needs store access must defer.
func (s *store[S]) runReduceChain(ctx context.Context, d *dispatch[S]) {
	reducer := d.action.Reduce
	if w, ok := d.action.(api.ReduceWrapper[S]); ok {
		reducer = w.WrapReduce(reducer)
	}
	if d.policies.Retry != nil {
		reducer = s.retryWrap(d, reducer)
	}

	s.mu.Lock()
	red, err := safeReduce(ctx, reducer, s.state)
	if err != nil {
		s.mu.Unlock()
		s.reduceFailed(ctx, d, err)
		return
	}
	if red.IsDeferred() {
		s.mu.Unlock()
		if d.syncOnly {
			s.reduceFailed(ctx, d, api.ErrActionIsAsync)
			return
		}
		go s.continueDeferred(ctx, d, red.Continuation())
		return
	}

	prev := s.state
	next, changed := red.NewState()
	if changed {
		s.state = next
	} else {
		next = prev
	}
	s.mu.Unlock()

	if changed {
		d.update(func(st *api.ActionStatus) { st.StateChanged = true })
	}
	s.stateObs.OnStateChange(ctx, d.kind, d.id(), prev, next, nil)
	if changed {
		s.waiters.notify(next)
		if s.persist != nil {
			s.persist.stateChanged()
		}
	}
	d.update(func(st *api.ActionStatus) { st.ReduceCompleted = true })
	s.runAfter(ctx, d)
	s.finish(ctx, d)
}

// continueDeferred drives a deferred reduction chain. Each hop receives a
// fresh snapshot of the state; the state may advance between hops.
func (s *store[S]) continueDeferred(ctx context.Context, d *dispatch[S], cont func(context.Context, S) (api.Reduction[S], error)) {
	for {
		red, err := safeContinue(ctx, cont, s.State())
		if err != nil {
			s.reduceFailed(ctx, d, err)
			return
		}
		if red.IsDeferred() {
			cont = red.Continuation()
			continue
		}
		s.commitReduction(ctx, d, red)
		d.update(func(st *api.ActionStatus) { st.ReduceCompleted = true })
		s.runAfter(ctx, d)
		s.finish(ctx, d)
		return
	}
}

// commitReduction applies a concrete reduction to the state. NoChange still
// notifies the state observer, with prev == next.
func (s *store[S]) commitReduction(ctx context.Context, d *dispatch[S], red api.Reduction[S]) {
	if next, ok := red.NewState(); ok {
		s.commitWith(ctx, d, func(S) S { return next })
		return
	}
	cur := s.State()
	s.stateObs.OnStateChange(ctx, d.kind, d.id(), cur, cur, nil)
}

// commitWith replaces the state under the store lock and notifies the state
// observer, condition waiters and the persist loop.
func (s *store[S]) commitWith(ctx context.Context, d *dispatch[S], fn func(S) S) {
	s.mu.Lock()
	prev := s.state
	next := fn(prev)
	s.state = next
	s.mu.Unlock()

	d.update(func(st *api.ActionStatus) { st.StateChanged = true })
	s.stateObs.OnStateChange(ctx, d.kind, d.id(), prev, next, nil)
	s.waiters.notify(next)
	if s.persist != nil {
		s.persist.stateChanged()
	}
}

// reduceFailed notifies the state observer of the failure, runs After and
// routes the error.
func (s *store[S]) reduceFailed(ctx context.Context, d *dispatch[S], err error) {
	d.update(func(st *api.ActionStatus) { st.OriginalError = err })
	cur := s.State()
	s.stateObs.OnStateChange(ctx, d.kind, d.id(), cur, cur, err)
	s.runAfter(ctx, d)
	s.fail(ctx, d, err)
}

// runAfter executes the After hook. It runs on success and on before/reduce
// failure alike; its errors and panics are logged out-of-band and never
// propagated to the dispatch caller.
func (s *store[S]) runAfter(ctx context.Context, d *dispatch[S]) {
	a, ok := d.action.(api.AfterHook[S])
	if !ok {
		d.update(func(st *api.ActionStatus) { st.AfterCompleted = true })
		return
	}
	err := runSafe("after hook", func() error {
		return a.After(ctx, s.State(), d.snapshot())
	})
	if err != nil {
		s.logger.Error("after hook failed",
			slog.String("kind", string(d.kind)),
			slog.Uint64("dispatch_id", d.id()),
			slog.Any("error", err),
		)
		return
	}
	d.update(func(st *api.ActionStatus) { st.AfterCompleted = true })
}

// abort terminates the dispatch without running any hook. Aborted
// dispatches complete OK with the state untouched.
func (s *store[S]) abort(ctx context.Context, d *dispatch[S]) {
	d.update(func(st *api.ActionStatus) { st.Aborted = true })
	s.finish(ctx, d)
}

// fail routes err through the error chain: the action's WrapError, the
// store-wide GlobalWrapError, then the error observer. Any wrapper may
// replace the error, suppress it by returning nil, or pass it through.
// Suppression means the dispatch was not a failure: the status completes OK
// with no error recorded.
func (s *store[S]) fail(ctx context.Context, d *dispatch[S], err error) {
	wrapped := err
	if w, ok := d.action.(api.ErrorWrapper); ok {
		wrapped = w.WrapError(wrapped)
	}
	if wrapped != nil && s.globalWrapError != nil {
		wrapped = s.globalWrapError(wrapped)
	}
	if wrapped == nil {
		d.update(func(st *api.ActionStatus) {
			st.OriginalError = nil
			st.WrappedError = nil
		})
		s.finish(ctx, d)
		return
	}

	if ue, ok := api.AsUserException(wrapped); ok {
		s.userErrs.push(ue)
	}

	d.update(func(st *api.ActionStatus) {
		st.OriginalError = err
		st.WrappedError = wrapped
	})
	s.kinds.fail(d.kind, wrapped)

	escalate := false
	if s.errorObserver != nil {
		escalate = s.errorObserver(wrapped, d.kind, d.snapshot())
	} else if _, ok := api.AsUserException(wrapped); !ok {
		escalate = true
	}
	if escalate && !d.waited {
		s.logger.Error("action failed",
			slog.String("kind", string(d.kind)),
			slog.Uint64("dispatch_id", d.id()),
			slog.Any("error", wrapped),
		)
	}

	s.finish(ctx, d)
}

// finish marks the dispatch terminal, releases per-key gates, notifies the
// action observer and wakes waiters.
func (s *store[S]) finish(ctx context.Context, d *dispatch[S]) {
	d.update(func(st *api.ActionStatus) { st.Completed = true })
	st := d.snapshot()
	failed := st.IsCompletedFailed()

	if d.holdsKey {
		s.gates.leave(d.key)
	}
	if failed && d.stampedThrottle && d.policies.Throttle != nil && d.policies.Throttle.RemoveLockOnError {
		s.gates.clearThrottle(d.key)
	}
	if failed && d.stampedFresh {
		s.gates.restoreFresh(d.key, d.freshPrev)
	}

	s.kinds.exit(d.kind)
	// Conditions may close over per-kind queries like IsWaiting, so they are
	// re-evaluated on completion too, not only on commits.
	s.waiters.notify(s.State())
	s.actionObs.OnDispatchEnd(ctx, d.kind, st.DispatchID, st)
	close(d.done)
}

// runDebounced parks the dispatch under its key and re-arms the key's quiet
// timer. Only the dispatch whose timer fires untouched runs its lifecycle;
// superseded dispatches terminate Aborted.
func (s *store[S]) runDebounced(ctx context.Context, d *dispatch[S]) {
	if d.syncOnly {
		s.fail(ctx, d, api.ErrActionIsAsync)
		return
	}
	quiet := d.policies.Debounce.Normalized().Quiet
	key := d.key
	prev := s.gates.armDebounce(key, d, quiet, func(gen uint64) {
		s.debounceFire(key, gen)
	})
	if prev != nil {
		s.abort(ctx, prev)
	}
}

func (s *store[S]) debounceFire(key string, gen uint64) {
	d := s.gates.takeDebounced(key, gen)
	if d == nil {
		return
	}
	ctx := api.WithStore[S](context.Background(), s)
	if s.closed.Load() {
		s.fail(ctx, d, api.ErrStoreClosed)
		return
	}
	if !s.runBefore(ctx, d) {
		return
	}
	s.runReduceChain(ctx, d)
}

// runSafe invokes fn, converting a panic into an error.
func runSafe(where string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", where, r)
		}
	}()
	return fn()
}

func safeReduce[S any](ctx context.Context, r api.Reducer[S], state S) (red api.Reduction[S], err error) {
	err = runSafe("reducer", func() error {
		var rerr error
		red, rerr = r(ctx, state)
		return rerr
	})
	return red, err
}

func safeContinue[S any](ctx context.Context, cont func(context.Context, S) (api.Reduction[S], error), state S) (red api.Reduction[S], err error) {
	err = runSafe("deferred reducer", func() error {
		var cerr error
		red, cerr = cont(ctx, state)
		return cerr
	})
	return red, err
}

func isErr(err, target error) bool {
	return err != nil && errors.Is(err, target)
}
