package api

import "context"

// Store holds one immutable state value of type S and runs dispatched
// actions through the lifecycle
//
//	abortDispatch → before → (wrapped) reduce → after
//
// The state is replaced atomically at the end of a successful reduce, never
// mutated in place. Multiple actions may be in flight at once: synchronous
// reducers run read-modify-write serialized under the store's write lock,
// while deferred continuations observe snapshots and commit last-write-wins.
type Store[S any] interface {
	// State returns the current state snapshot.
	State() S

	// Dispatch submits an action fire-and-forget. The lifecycle runs inline
	// on the caller's goroutine until the first deferred boundary, so a
	// fully synchronous action has committed by the time Dispatch returns.
	Dispatch(a Action[S])

	// DispatchAndWait submits an action and blocks until its lifecycle
	// reaches a terminal status. The returned error is only a context or
	// shutdown error; action failures travel inside the status.
	DispatchAndWait(ctx context.Context, a Action[S]) (ActionStatus, error)

	// DispatchAll submits all actions fire-and-forget.
	DispatchAll(as ...Action[S])

	// DispatchAndWaitAll submits all actions and blocks until every one
	// reaches a terminal status. Statuses are returned in input order.
	DispatchAndWaitAll(ctx context.Context, as ...Action[S]) ([]ActionStatus, error)

	// DispatchSync runs the action like DispatchAndWait but reports
	// ErrActionIsAsync if the lifecycle turns out to leave the calling
	// goroutine. The failure is also recorded on the status; state is
	// unchanged.
	DispatchSync(a Action[S]) (ActionStatus, error)

	// IsWaiting reports whether a dispatch of the given kind is in flight.
	IsWaiting(kind Kind) bool

	// IsFailed reports whether the most recent dispatch of the given kind
	// failed and the failure has not been cleared.
	IsFailed(kind Kind) bool

	// ExceptionFor returns the recorded failure for the kind, or nil.
	ExceptionFor(kind Kind) error

	// ClearExceptionFor removes the recorded failure for the kind.
	// Dispatching the kind again clears it as well.
	ClearExceptionFor(kind Kind)

	// WaitCondition blocks until the state satisfies pred, checked
	// immediately and after every commit, or until ctx is done.
	WaitCondition(ctx context.Context, pred func(S) bool) error

	// NextUserException pops the oldest queued user-facing exception.
	NextUserException() (*UserException, bool)

	// DispatchCount returns the number of dispatches started so far.
	DispatchCount() uint64

	// Close stops polling loops, disposes registered resources and flushes
	// a final persist. Further dispatches fail with ErrStoreClosed. Close
	// is idempotent.
	Close() error
}
