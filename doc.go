// Package redux provides a lightweight, embeddable action-dispatch state
// container for Go.
//
// Redux is designed for applications that want a single source of truth: one
// immutable state value, replaced only by dispatched actions, with
// cross-cutting behaviors (retry, throttle, debounce, optimistic remote
// sync, polling) composing onto the dispatch lifecycle instead of being
// re-implemented per feature. It runs fully in Go, supports multiple
// persistence backends, and integrates cleanly into existing codebases.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Store
//  2. Action
//  3. Reduction
//  4. Policies
//  5. Observers
//
// # Store
//
// The Store owns the current state of an application-defined type S. It
// exposes the dispatch family (Dispatch, DispatchAndWait, DispatchAll,
// DispatchAndWaitAll, DispatchSync), per-kind bookkeeping (IsWaiting,
// IsFailed, ExceptionFor), predicate waits (WaitCondition) and the bounded
// queue of user-facing exceptions (NextUserException).
//
// The state is replaced atomically after each successful reduce; it is
// never mutated in place. Multiple actions may be in flight concurrently:
// synchronous reducers are serialized under the store's write lock, deferred
// continuations run on snapshots, and a fully synchronous action has
// committed by the time Dispatch returns.
//
// # Action
//
// An Action is a command object carrying its own state-transition logic:
//
//	type Increment struct{ By int }
//
//	func (a Increment) Reduce(ctx context.Context, s int) (redux.Reduction[int], error) {
//	    return redux.StateOf(s + a.By), nil
//	}
//
// Actions may optionally implement lifecycle hooks, detected by interface
// assertion: Before (runs first; failure skips the reducer), After (always
// runs, even on failure), AbortDispatch (checked before anything else),
// WrapError (first chance at errors) and WrapReduce (wraps the reducer).
// One-off actions can be built with ActionOf.
//
// # Reduction
//
// A reducer returns an explicit outcome instead of relying on return-shape
// inspection: StateOf commits a new state, NoChange leaves it untouched,
// and Deferred suspends the reducer, continuing later on a separate
// goroutine against a fresh snapshot:
//
//	func (a LoadUser) Reduce(ctx context.Context, s AppState) (redux.Reduction[AppState], error) {
//	    return redux.Deferred(func(ctx context.Context, latest AppState) (redux.Reduction[AppState], error) {
//	        user, err := fetchUser(ctx, a.ID)
//	        if err != nil {
//	            return redux.NoChange[AppState](), err
//	        }
//	        return redux.StateOf(latest.WithUser(user)), nil
//	    }), nil
//	}
//
// # Policies
//
// Cross-cutting behaviors are small structs embedded into action types:
// NonReentrant, Retry, Throttle, Debounce, Fresh, OptimisticCommand,
// OptimisticSync, OptimisticSyncPush and Polling. Embedding a policy is all
// it takes:
//
//	type SaveName struct {
//	    redux.Retry
//	    Name string
//	}
//
// Policies keep per-key bookkeeping, keyed by the action's Kind unless the
// action implements Keyer. Not every combination composes; conflicting
// combinations (for example Retry with Debounce) fail the dispatch with
// ErrPolicyConflict before any hook runs.
//
// # Observers
//
// ActionObserver sees every dispatch start and end; StateObserver sees
// every commit (and reducer failure) with the previous and next state. The
// package ships NoopObserver, composite fan-out constructors, a
// slog-backed LoggingObserver and the counter-based BasicMetrics; a
// Prometheus observer lives in pkg/metrics.
//
// # Errors
//
// Errors from Before and Reduce run through a three-stage chain: the
// action's WrapError, the store-wide GlobalWrapError, then the error
// observer. Each stage may replace, suppress, or pass the error through.
// UserException values are expected conditions: they are collected into a
// bounded FIFO queue for UI consumption rather than treated as defects.
//
// # Persistence
//
// A Persistor saves state snapshots with trailing-edge throttling and seeds
// the store on construction. In-memory, SQLite, Redis and PostgreSQL
// persistors are included:
//
//	db, _ := sql.Open("sqlite", "app.db")
//	p, _ := redux.NewSQLitePersistor[AppState](db)
//	store, _ := redux.New(initial, redux.WithPersistor(p, time.Second))
package redux
