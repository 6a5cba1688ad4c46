package engine

import (
	"context"
	"time"

	"github.com/reduxgo/redux/pkg/api"
)

// pollTick is the internal action a polling loop re-dispatches on each
// interval. It carries the original action's identity and reducer but no
// policies, so every tick runs the plain lifecycle with observers and error
// routing.
type pollTick[S any] struct {
	kind   api.Kind
	key    string
	reduce api.Reducer[S]
}

func (t pollTick[S]) Reduce(ctx context.Context, state S) (api.Reduction[S], error) {
	return t.reduce(ctx, state)
}

func (t pollTick[S]) ActionKind() api.Kind { return t.kind }

func (t pollTick[S]) Key() string { return t.key }

func pollResource(key string) string { return "poll:" + key }

// runPolling handles a dispatch carrying the Polling policy according to
// its mode. One loop runs per key, tracked in the resource registry so
// Close stops it.
func (s *store[S]) runPolling(ctx context.Context, d *dispatch[S]) {
	policy := *d.policies.Polling

	switch policy.Mode {
	case api.PollStop:
		s.resources.dispose(pollResource(d.key))
		s.finish(ctx, d)
		return
	case api.PollRestart:
		s.resources.dispose(pollResource(d.key))
	case api.PollStart, api.PollOnce:
	}

	if policy.Mode != api.PollOnce {
		s.startPollLoop(d, policy.Every)
	}

	if !s.runBefore(ctx, d) {
		return
	}
	s.runReduceChain(ctx, d)
}

// startPollLoop starts the key's recurring loop unless one is already
// running. The loop waits for the initiating dispatch to complete, then
// re-runs the reducer Every after each run completes; the interval is
// measured from completion, not start.
func (s *store[S]) startPollLoop(d *dispatch[S], every time.Duration) {
	if every <= 0 {
		return
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	if !s.resources.register(pollResource(d.key), cancel) {
		cancel()
		return
	}

	tick := pollTick[S]{kind: d.kind, key: d.key, reduce: d.action.Reduce}
	go func() {
		<-d.done
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-time.After(every):
			}
			if _, err := s.DispatchAndWait(loopCtx, tick); err != nil {
				return
			}
		}
	}()
}
