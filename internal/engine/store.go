package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reduxgo/redux/pkg/api"
)

// Config describes how to construct a store. Only used inside this package;
// external callers use the redux.New constructor and its options.
type Config[S any] struct {
	InitialState S

	Logger         *slog.Logger
	ActionObserver api.ActionObserver[S]
	StateObserver  api.StateObserver[S]

	// GlobalWrapError is the store-wide error filter, applied after the
	// action's own WrapError. Returning nil suppresses the error.
	GlobalWrapError func(err error) error

	// ErrorObserver is the last stage of the error chain. Returning true
	// escalates failures of unawaited dispatches to the store logger.
	// When nil, user exceptions are treated as expected and everything
	// else escalates.
	ErrorObserver func(err error, kind api.Kind, status api.ActionStatus) bool

	// UserExceptionCap bounds the user-exception queue. Default 10.
	UserExceptionCap int

	// Persistor, when set, receives throttled state snapshots and seeds
	// the initial state if it already holds one.
	Persistor       api.Persistor[S]
	PersistThrottle time.Duration
}

// store is the single-writer state container. Synchronous reducers do their
// read-modify-write under mu, so plain dispatches never lose concurrent
// updates; deferred continuations run against snapshots outside the lock and
// commit last-write-wins. Hooks always run outside the lock and are free to
// read the store or dispatch follow-up actions.
type store[S any] struct {
	mu    sync.Mutex // guards state
	state S

	logger    *slog.Logger
	actionObs api.ActionObserver[S]
	stateObs  api.StateObserver[S]

	globalWrapError func(err error) error
	errorObserver   func(err error, kind api.Kind, status api.ActionStatus) bool

	nextDispatch atomic.Uint64
	closed       atomic.Bool

	kinds     *kindBook
	gates     *policyGates[S]
	syncs     *syncRegistry[S]
	waiters   *conditionWaiters[S]
	userErrs  *exceptionQueue
	resources *resourceRegistry
	persist   *persistLoop[S]
}

var _ api.Store[int] = (*store[int])(nil)

// New constructs a store from cfg. If a persistor is configured and already
// holds a state, that state seeds the store and overrides
// cfg.InitialState.
func New[S any](cfg Config[S]) (api.Store[S], error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	actionObs := cfg.ActionObserver
	if actionObs == nil {
		actionObs = api.NoopObserver[S]{}
	}
	stateObs := cfg.StateObserver
	if stateObs == nil {
		stateObs = api.NoopObserver[S]{}
	}

	s := &store[S]{
		state:           cfg.InitialState,
		logger:          logger,
		actionObs:       actionObs,
		stateObs:        stateObs,
		globalWrapError: cfg.GlobalWrapError,
		errorObserver:   cfg.ErrorObserver,
		kinds:           newKindBook(),
		gates:           newPolicyGates[S](),
		syncs:           newSyncRegistry[S](),
		waiters:         newConditionWaiters[S](),
		userErrs:        newExceptionQueue(cfg.UserExceptionCap),
		resources:       newResourceRegistry(),
	}

	if cfg.Persistor != nil {
		loaded, ok, err := cfg.Persistor.ReadState(context.Background())
		if err != nil {
			return nil, fmt.Errorf("read persisted state: %w", err)
		}
		if ok {
			s.state = loaded
		}
		s.persist = newPersistLoop(cfg.Persistor, cfg.PersistThrottle, s.State, logger)
	}

	return s, nil
}

func (s *store[S]) State() S {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *store[S]) Dispatch(a api.Action[S]) {
	d := s.newDispatch(a)
	s.start(context.Background(), d)
}

func (s *store[S]) DispatchAndWait(ctx context.Context, a api.Action[S]) (api.ActionStatus, error) {
	d := s.newDispatch(a)
	d.waited = true
	s.start(ctx, d)

	select {
	case <-d.done:
		return d.snapshot(), nil
	case <-ctx.Done():
		return d.snapshot(), ctx.Err()
	}
}

func (s *store[S]) DispatchAll(as ...api.Action[S]) {
	for _, a := range as {
		s.Dispatch(a)
	}
}

func (s *store[S]) DispatchAndWaitAll(ctx context.Context, as ...api.Action[S]) ([]api.ActionStatus, error) {
	ds := make([]*dispatch[S], len(as))
	for i, a := range as {
		ds[i] = s.newDispatch(a)
		ds[i].waited = true
		s.start(ctx, ds[i])
	}

	statuses := make([]api.ActionStatus, len(ds))
	for i, d := range ds {
		select {
		case <-d.done:
		case <-ctx.Done():
			for j, dj := range ds {
				statuses[j] = dj.snapshot()
			}
			return statuses, ctx.Err()
		}
		statuses[i] = d.snapshot()
	}
	return statuses, nil
}

func (s *store[S]) DispatchSync(a api.Action[S]) (api.ActionStatus, error) {
	d := s.newDispatch(a)
	d.waited = true
	d.syncOnly = true
	s.start(context.Background(), d)

	// syncOnly dispatches never leave the calling goroutine, so the
	// terminal status is already set.
	<-d.done
	st := d.snapshot()
	switch {
	case isErr(st.WrappedError, api.ErrActionIsAsync):
		return st, api.ErrActionIsAsync
	case isErr(st.WrappedError, api.ErrStoreClosed):
		return st, api.ErrStoreClosed
	}
	return st, nil
}

func (s *store[S]) IsWaiting(kind api.Kind) bool { return s.kinds.isWaiting(kind) }

func (s *store[S]) IsFailed(kind api.Kind) bool { return s.kinds.failureFor(kind) != nil }

func (s *store[S]) ExceptionFor(kind api.Kind) error { return s.kinds.failureFor(kind) }

func (s *store[S]) ClearExceptionFor(kind api.Kind) { s.kinds.clear(kind) }

func (s *store[S]) WaitCondition(ctx context.Context, pred func(S) bool) error {
	return s.waiters.wait(ctx, s.State, pred)
}

func (s *store[S]) NextUserException() (*api.UserException, bool) {
	return s.userErrs.pop()
}

func (s *store[S]) DispatchCount() uint64 { return s.nextDispatch.Load() }

// Close stops polling loops, disposes registered resources and flushes a
// final persist. It is idempotent; dispatches after Close fail with
// ErrStoreClosed.
func (s *store[S]) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.resources.disposeAll()
	if s.persist != nil {
		return s.persist.close()
	}
	return nil
}
