package api

import (
	"context"
	"time"
)

// Policies are small config structs embedded into action types. Embedding
// promotes the struct's capability getter (RetryPolicy, ThrottlePolicy, ...)
// onto the action, which is how the store detects them:
//
//	type SaveName struct {
//	    api.Retry
//	    Name string
//	}
//
// Per-key bookkeeping defaults to the action's Kind; actions may override
// the key by implementing Keyer. Not every combination of policies composes;
// PolicySet.Validate checks the combination before any hook runs.

// NonReentrant aborts a dispatch while another dispatch of the same key is
// still running.
type NonReentrant struct{}

func (p NonReentrant) NonReentrantPolicy() NonReentrant { return p }

// UnlimitedRetries makes Retry keep retrying until the reducer succeeds.
const UnlimitedRetries = -1

// Retry re-runs a failing reducer with exponential backoff. The delay before
// attempt n (0-based) is InitialDelay * Multiplier^n, capped at MaxDelay.
// A reducer that keeps failing runs MaxRetries+1 times in total before the
// last error surfaces.
//
// Retry forces the action to be asynchronous: the first retry moves
// execution off the dispatching goroutine.
type Retry struct {
	// MaxRetries is the number of retries after the first attempt.
	// Zero means the default of 3; UnlimitedRetries disables the limit.
	MaxRetries int

	// InitialDelay is the delay before the first retry. Default 350ms.
	InitialDelay time.Duration

	// Multiplier grows the delay each retry. Default 2.0.
	Multiplier float64

	// MaxDelay caps the delay. Default 5s.
	MaxDelay time.Duration
}

func (p Retry) RetryPolicy() Retry { return p }

// Normalized returns the policy with defaults filled in.
func (p Retry) Normalized() Retry {
	if p.MaxRetries == 0 {
		p.MaxRetries = 3
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 350 * time.Millisecond
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 5 * time.Second
	}
	return p
}

// Delay returns the backoff delay before retry attempt n (0-based).
func (p Retry) Delay(attempt int) time.Duration {
	d := p.InitialDelay
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Throttle aborts dispatches of a key that arrive within Window of the last
// accepted dispatch of that key.
type Throttle struct {
	// Window is the throttle period.
	Window time.Duration

	// IgnoreThrottle lets this dispatch through regardless of the window.
	// The dispatch still stamps the key.
	IgnoreThrottle bool

	// RemoveLockOnError clears the key's stamp when the dispatch fails, so
	// the next dispatch may run immediately.
	RemoveLockOnError bool
}

func (p Throttle) ThrottlePolicy() Throttle { return p }

// Debounce collapses rapid dispatches of a key into one: every dispatch
// re-arms the key's timer, and only the dispatch whose timer fires untouched
// runs its reducer. Superseded dispatches terminate Aborted. Debounced
// execution is always asynchronous.
type Debounce struct {
	// Quiet is the required inactivity period. Default 333ms.
	Quiet time.Duration
}

func (p Debounce) DebouncePolicy() Debounce { return p }

// Normalized returns the policy with defaults filled in.
func (p Debounce) Normalized() Debounce {
	if p.Quiet <= 0 {
		p.Quiet = 333 * time.Millisecond
	}
	return p
}

// Fresh aborts dispatches of a key while previously loaded data is still
// fresh. It differs from Throttle in its failure handling: a failed dispatch
// restores the key's previous freshness stamp, so a failed load does not
// count as freshening and an immediate retry is allowed.
type Fresh struct {
	// FreshFor is how long an accepted dispatch keeps the key fresh.
	FreshFor time.Duration
}

func (p Fresh) FreshPolicy() Fresh { return p }

// OptimisticCommand applies a locally computed value to the state
// immediately, then sends it to a remote sink. On send failure the value is
// rolled back only if the state still holds the optimistic value (stale
// check), so newer changes are never clobbered. The action must implement
// OptimisticApplier. Implies NonReentrant per key.
type OptimisticCommand struct{}

func (p OptimisticCommand) OptimisticCommandPolicy() OptimisticCommand { return p }

// OptimisticSync applies every dispatch's value immediately and serializes
// at most one outstanding send per key. Values dispatched while a send is in
// flight coalesce into exactly one follow-up send reflecting the latest
// value. The action must implement OptimisticApplier.
type OptimisticSync struct{}

func (p OptimisticSync) OptimisticSyncPolicy() OptimisticSync { return p }

// OptimisticSyncPush extends OptimisticSync with revision tracking so
// server-pushed updates can be ordered against local edits: a local revision
// increments per dispatch, a server revision advances with acknowledged
// sends and accepted pushes. Pushes with a revision at or below the highest
// known server revision are rejected as stale, and so are pushes arriving
// while a local edit's send is still unsettled. The action must implement
// RevisionedApplier; pushes implement PushAction.
type OptimisticSyncPush struct{}

func (p OptimisticSyncPush) OptimisticSyncPushPolicy() OptimisticSyncPush { return p }

// PollMode selects what a dispatch of a Polling action does to the key's
// recurring loop.
type PollMode int

const (
	// PollStart runs the reducer and then re-runs it Every after each run
	// completes. The interval is measured from completion, not start.
	PollStart PollMode = iota

	// PollStop cancels the key's loop without running the reducer.
	PollStop

	// PollOnce runs the reducer once without touching the loop.
	PollOnce

	// PollRestart cancels the key's loop, then starts it again.
	PollRestart
)

// Polling maintains one recurring reducer loop per key.
type Polling struct {
	// Every is the interval between the end of one run and the next.
	Every time.Duration

	// Mode selects the operation; the zero value is PollStart.
	Mode PollMode
}

func (p Polling) PollingPolicy() Polling { return p }

// OptimisticApplier is the contract OptimisticCommand and OptimisticSync
// actions must implement. Value computes the local value to apply; ReadValue
// and ApplyValue project it out of and into the state; SendValue delivers it
// to the remote sink.
type OptimisticApplier[S any] interface {
	Value() any
	ReadValue(state S) any
	ApplyValue(state S, value any) S
	SendValue(ctx context.Context, value any) error
}

// RevisionedApplier is the OptimisticSyncPush variant of OptimisticApplier:
// SendValue additionally returns the server revision assigned to the
// acknowledged value.
type RevisionedApplier[S any] interface {
	Value() any
	ReadValue(state S) any
	ApplyValue(state S, value any) S
	SendValue(ctx context.Context, value any) (serverRev uint64, err error)
}

// PushAction marks an action as carrying a server-pushed update for an
// OptimisticSyncPush key. Its reducer applies the pushed value; the store
// aborts it first if its revision is stale.
type PushAction interface {
	PushKey() string
	PushRevision() uint64
}

// PolicySet is the collection of policies detected on one action. Nil
// fields mean the policy is absent.
type PolicySet struct {
	NonReentrant       *NonReentrant
	Retry              *Retry
	Throttle           *Throttle
	Debounce           *Debounce
	Fresh              *Fresh
	OptimisticCommand  *OptimisticCommand
	OptimisticSync     *OptimisticSync
	OptimisticSyncPush *OptimisticSyncPush
	Polling            *Polling
}

// PoliciesOf detects the policies embedded in an action.
func PoliciesOf[S any](a Action[S]) PolicySet {
	var ps PolicySet
	if c, ok := a.(interface{ NonReentrantPolicy() NonReentrant }); ok {
		p := c.NonReentrantPolicy()
		ps.NonReentrant = &p
	}
	if c, ok := a.(interface{ RetryPolicy() Retry }); ok {
		p := c.RetryPolicy()
		ps.Retry = &p
	}
	if c, ok := a.(interface{ ThrottlePolicy() Throttle }); ok {
		p := c.ThrottlePolicy()
		ps.Throttle = &p
	}
	if c, ok := a.(interface{ DebouncePolicy() Debounce }); ok {
		p := c.DebouncePolicy()
		ps.Debounce = &p
	}
	if c, ok := a.(interface{ FreshPolicy() Fresh }); ok {
		p := c.FreshPolicy()
		ps.Fresh = &p
	}
	if c, ok := a.(interface {
		OptimisticCommandPolicy() OptimisticCommand
	}); ok {
		p := c.OptimisticCommandPolicy()
		ps.OptimisticCommand = &p
	}
	if c, ok := a.(interface{ OptimisticSyncPolicy() OptimisticSync }); ok {
		p := c.OptimisticSyncPolicy()
		ps.OptimisticSync = &p
	}
	if c, ok := a.(interface {
		OptimisticSyncPushPolicy() OptimisticSyncPush
	}); ok {
		p := c.OptimisticSyncPushPolicy()
		ps.OptimisticSyncPush = &p
	}
	if c, ok := a.(interface{ PollingPolicy() Polling }); ok {
		p := c.PollingPolicy()
		ps.Polling = &p
	}
	return ps
}

// Optimistic reports whether any optimistic policy is present.
func (ps PolicySet) Optimistic() bool {
	return ps.OptimisticCommand != nil || ps.OptimisticSync != nil || ps.OptimisticSyncPush != nil
}

// Validate checks the combination against the compatibility matrix and
// returns an ErrPolicyConflict for pairs that do not compose. NonReentrant
// composes with everything (the optimistic policies imply it).
func (ps PolicySet) Validate() error {
	if ps.Retry != nil {
		switch {
		case ps.Debounce != nil:
			return policyConflict("Retry", "Debounce")
		case ps.Throttle != nil:
			return policyConflict("Retry", "Throttle")
		case ps.Optimistic():
			// Rollback timing during a retry attempt is undefined.
			return policyConflict("Retry", "Optimistic")
		}
	}
	if ps.Throttle != nil {
		switch {
		case ps.Debounce != nil:
			return policyConflict("Throttle", "Debounce")
		case ps.Fresh != nil:
			return policyConflict("Throttle", "Fresh")
		}
	}
	if ps.Debounce != nil {
		switch {
		case ps.Fresh != nil:
			return policyConflict("Debounce", "Fresh")
		case ps.Polling != nil:
			return policyConflict("Debounce", "Polling")
		}
	}
	optimistic := 0
	for _, present := range []bool{
		ps.OptimisticCommand != nil,
		ps.OptimisticSync != nil,
		ps.OptimisticSyncPush != nil,
	} {
		if present {
			optimistic++
		}
	}
	if optimistic > 1 {
		return policyConflict("Optimistic", "Optimistic")
	}
	if ps.Polling != nil && optimistic > 0 {
		return policyConflict("Polling", "Optimistic")
	}
	return nil
}
