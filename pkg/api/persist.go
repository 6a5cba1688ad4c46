package api

import "context"

// Persistor saves and restores state snapshots. The store persists with
// trailing-edge throttling: after a commit, at most one PersistState call is
// scheduled per throttle window, carrying the newest state; Close flushes a
// final persist.
//
// At store construction, if the persistor holds a state, it seeds the store
// and overrides the programmatic initial state.
type Persistor[S any] interface {
	// ReadState returns the persisted state, whether one exists, and any
	// read error.
	ReadState(ctx context.Context) (S, bool, error)

	// PersistState saves a snapshot of the state.
	PersistState(ctx context.Context, state S) error

	// DeleteState removes any persisted snapshot.
	DeleteState(ctx context.Context) error
}
