package api

// ActionStatus describes how far a single dispatch got through the
// lifecycle. A fresh status is created at dispatch start and updated by the
// store as phases complete; callers receive it as a value, so reads are
// always consistent snapshots.
//
// The lifecycle of one dispatch is:
//
//	Pending → (Aborted | Before → Reduce → After → Completed{OK|Failed})
//
// Aborted and Completed are terminal. An aborted dispatch completes OK with
// all phase flags false.
type ActionStatus struct {
	// Kind is the action's runtime identity.
	Kind Kind

	// DispatchID is a monotonic per-store counter assigned at dispatch start.
	DispatchID uint64

	// Completed is set when the dispatch reaches a terminal state.
	Completed bool

	// Aborted is set when AbortDispatch (or a policy gate) stopped the
	// dispatch before any hook ran.
	Aborted bool

	BeforeCompleted bool
	ReduceCompleted bool
	AfterCompleted  bool

	// StateChanged reports whether the reducer committed a new state.
	StateChanged bool

	// OriginalError is the error as thrown by Before or Reduce, before any
	// wrapping. Nil if the dispatch succeeded or the error was suppressed.
	OriginalError error

	// WrappedError is the error after the action's WrapError and the store's
	// GlobalWrapError ran. This is what ExceptionFor reports and what waiters
	// see in the status.
	WrappedError error
}

// IsCompleted reports whether the dispatch reached a terminal state.
func (s ActionStatus) IsCompleted() bool { return s.Completed }

// IsCompletedOK reports whether the dispatch completed without an error.
// Aborted dispatches complete OK.
func (s ActionStatus) IsCompletedOK() bool {
	return s.Completed && s.OriginalError == nil && s.WrappedError == nil
}

// IsCompletedFailed reports whether the dispatch completed with an error.
// Exactly one of IsCompletedOK and IsCompletedFailed holds once IsCompleted
// is true.
func (s ActionStatus) IsCompletedFailed() bool {
	return s.Completed && !s.IsCompletedOK()
}
