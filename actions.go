package redux

import "context"

// ActionOf creates a closure-backed action for one-off dispatches. kind
// gives the action its identity for bookkeeping and per-key policies.
//
// Example:
//
//	store.Dispatch(redux.ActionOf("Increment",
//	    func(ctx context.Context, s int) (redux.Reduction[int], error) {
//	        return redux.StateOf(s + 1), nil
//	    }))
func ActionOf[S any](kind string, fn Reducer[S]) ActionFunc[S] {
	if kind == "" {
		panic("redux: action kind must not be empty")
	}
	if fn == nil {
		panic("redux: action reducer must not be nil")
	}
	return ActionFunc[S]{Kind: Kind(kind), ReduceFn: fn}
}

// SetState creates an action that replaces the state with next.
func SetState[S any](kind string, next S) ActionFunc[S] {
	return ActionOf(kind, func(ctx context.Context, _ S) (Reduction[S], error) {
		return StateOf(next), nil
	})
}
