package api

import (
	"context"
	"reflect"
)

// Kind identifies an action type at runtime. All per-kind bookkeeping in the
// store (in-flight tracking, failure records, policy keys) defaults to the
// action's Kind.
type Kind string

// KindOf derives the Kind of an action from its Go type, pointer-indirected,
// as "pkgname.TypeName".
func KindOf(a any) Kind {
	t := reflect.TypeOf(a)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return Kind("<nil>")
	}
	return Kind(t.String())
}

// Kinder lets an action override the Kind derived from its Go type.
// ActionFunc uses this so closure-backed actions get distinct identities.
type Kinder interface {
	ActionKind() Kind
}

// Keyer lets an action override the key used by per-key policies
// (non-reentrancy, throttle, debounce, freshness, optimistic sync, polling).
// The default key is the string form of the action's Kind.
type Keyer interface {
	Key() string
}

// Reduction is the outcome of a reducer: commit a new state, leave the state
// unchanged, or defer the rest of the work to a continuation that runs on its
// own goroutine.
//
// A Deferred continuation receives a fresh snapshot of the state at the time
// it resumes, not the snapshot its reducer started from. Continuations may
// defer again, forming a chain; the state may advance between hops.
type Reduction[S any] struct {
	kind  reductionKind
	state S
	cont  func(ctx context.Context, latest S) (Reduction[S], error)
}

type reductionKind int

const (
	reductionNoChange reductionKind = iota
	reductionState
	reductionDeferred
)

// StateOf returns a Reduction that commits s as the next state.
func StateOf[S any](s S) Reduction[S] {
	return Reduction[S]{kind: reductionState, state: s}
}

// NoChange returns a Reduction that leaves the state untouched.
func NoChange[S any]() Reduction[S] {
	return Reduction[S]{kind: reductionNoChange}
}

// Deferred returns a Reduction that suspends the reducer. fn runs later on a
// separate goroutine and receives the state as it is at resumption time.
func Deferred[S any](fn func(ctx context.Context, latest S) (Reduction[S], error)) Reduction[S] {
	return Reduction[S]{kind: reductionDeferred, cont: fn}
}

// IsDeferred reports whether the reduction suspended.
func (r Reduction[S]) IsDeferred() bool { return r.kind == reductionDeferred }

// NewState returns the committed state and true for StateOf reductions,
// and the zero value and false otherwise.
func (r Reduction[S]) NewState() (S, bool) {
	return r.state, r.kind == reductionState
}

// Continuation returns the deferred continuation, or nil if the reduction
// did not defer.
func (r Reduction[S]) Continuation() func(ctx context.Context, latest S) (Reduction[S], error) {
	return r.cont
}

// Reducer computes the next state from the current one.
type Reducer[S any] func(ctx context.Context, state S) (Reduction[S], error)

// Action is a dispatched command object carrying its own state-transition
// logic. Optional lifecycle hooks (BeforeHook, AfterHook, DispatchAborter,
// ErrorWrapper, ReduceWrapper) and policies are detected by interface
// assertion on the action value.
type Action[S any] interface {
	Reduce(ctx context.Context, state S) (Reduction[S], error)
}

// BeforeHook runs before the reducer. If it returns an error the reducer is
// skipped; After still runs, and the error is routed through the normal
// error chain.
type BeforeHook[S any] interface {
	Before(ctx context.Context, state S) error
}

// AfterHook runs after the reducer, on success and on before/reduce failure
// alike (but not when the dispatch was aborted). Errors returned from After
// are logged out-of-band and never reach the dispatch caller.
type AfterHook[S any] interface {
	After(ctx context.Context, state S, status ActionStatus) error
}

// DispatchAborter is checked before any other phase. Returning true aborts
// the dispatch: no hooks run, the state is untouched, and the status
// completes OK with Aborted set.
type DispatchAborter[S any] interface {
	AbortDispatch(state S) bool
}

// ErrorWrapper gives the action first chance at errors from Before or
// Reduce. It may replace the error, suppress it by returning nil, or pass it
// through unchanged.
type ErrorWrapper interface {
	WrapError(err error) error
}

// ReduceWrapper wraps the action's own reducer. Policy wrappers (retry,
// optimistic handling) apply outside this one.
type ReduceWrapper[S any] interface {
	WrapReduce(next Reducer[S]) Reducer[S]
}

// ActionFunc is a closure-backed action for one-off dispatches.
type ActionFunc[S any] struct {
	Kind     Kind
	ReduceFn Reducer[S]
}

var _ Action[int] = ActionFunc[int]{}
var _ Kinder = ActionFunc[int]{}

func (a ActionFunc[S]) Reduce(ctx context.Context, state S) (Reduction[S], error) {
	return a.ReduceFn(ctx, state)
}

func (a ActionFunc[S]) ActionKind() Kind { return a.Kind }

type storeContextKey struct{}

// WithStore attaches a store to the context. The engine installs it before
// every hook call so hooks can dispatch follow-up actions via
// StoreFromContext.
func WithStore[S any](ctx context.Context, s Store[S]) context.Context {
	return context.WithValue(ctx, storeContextKey{}, s)
}

// StoreFromContext recovers the store attached by WithStore.
func StoreFromContext[S any](ctx context.Context) (Store[S], bool) {
	s, ok := ctx.Value(storeContextKey{}).(Store[S])
	return s, ok
}
