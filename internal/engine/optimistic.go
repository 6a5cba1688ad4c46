package engine

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/reduxgo/redux/pkg/api"
)

// syncRegistry holds the per-key records of the optimistic-sync policies:
// the in-flight send flag, the coalesced follow-up, the last acknowledged
// value and the revision counters. localRev increments per revisioned
// dispatch, before any suspension point; settledRev is the highest local
// revision whose send has settled (acknowledged or abandoned). While the
// two differ the key has outstanding local edits.
type syncRegistry[S any] struct {
	mu   sync.Mutex
	recs map[string]*syncRecord[S]
}

type syncRecord[S any] struct {
	inFlight bool
	pending  *pendingSend[S]

	lastAcked any
	hasAcked  bool

	localRev   uint64
	settledRev uint64
	serverRev  uint64
}

type pendingSend[S any] struct {
	d     *dispatch[S]
	value any
	rev   uint64
}

func newSyncRegistry[S any]() *syncRegistry[S] {
	return &syncRegistry[S]{recs: make(map[string]*syncRecord[S])}
}

func (r *syncRegistry[S]) record(key string) *syncRecord[S] {
	rec := r.recs[key]
	if rec == nil {
		rec = &syncRecord[S]{}
		r.recs[key] = rec
	}
	return rec
}

// acceptPush applies stale-push rejection: a push with a revision at or
// below the highest known server revision for the key is rejected, and so
// is any push arriving while local edits are still outstanding, since the
// local value already supersedes whatever the push carries. Accepted pushes
// advance the server revision.
func (r *syncRegistry[S]) acceptPush(key string, rev uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.record(key)
	if rev <= rec.serverRev || rec.localRev > rec.settledRev {
		return false
	}
	rec.serverRev = rev
	return true
}

// sendFunc abstracts over the two applier contracts: plain sends report no
// server revision.
type sendFunc func(ctx context.Context, value any) (serverRev uint64, err error)

// runOptimistic dispatches to the optimistic runner matching the action's
// policy. All optimistic lifecycles are asynchronous: the optimistic value
// commits inline, the send runs on its own goroutine.
func (s *store[S]) runOptimistic(ctx context.Context, d *dispatch[S]) {
	if d.syncOnly {
		s.fail(ctx, d, api.ErrActionIsAsync)
		return
	}
	if !s.runBefore(ctx, d) {
		return
	}

	switch {
	case d.policies.OptimisticCommand != nil:
		s.runOptimisticCommand(ctx, d)
	case d.policies.OptimisticSync != nil:
		app, ok := d.action.(api.OptimisticApplier[S])
		if !ok {
			s.applierMissing(ctx, d, "OptimisticSync", "OptimisticApplier")
			return
		}
		send := func(ctx context.Context, value any) (uint64, error) {
			return 0, app.SendValue(ctx, value)
		}
		s.runOptimisticSync(ctx, d, app.ReadValue, app.ApplyValue, send, app.Value(), false)
	default:
		app, ok := d.action.(api.RevisionedApplier[S])
		if !ok {
			s.applierMissing(ctx, d, "OptimisticSyncPush", "RevisionedApplier")
			return
		}
		s.runOptimisticSync(ctx, d, app.ReadValue, app.ApplyValue, app.SendValue, app.Value(), true)
	}
}

func (s *store[S]) applierMissing(ctx context.Context, d *dispatch[S], policy, iface string) {
	err := fmt.Errorf("action %s: %s requires the action to implement %s", d.kind, policy, iface)
	s.runAfter(ctx, d)
	s.fail(ctx, d, err)
}

// runOptimisticCommand applies the action's value to the state immediately
// and sends it to the remote sink. On send failure the value is rolled back
// only if the state still holds it, so changes applied in the meantime are
// never clobbered. The dispatch holds the key's non-reentrancy flag for its
// whole lifetime (claimed in the gate phase).
func (s *store[S]) runOptimisticCommand(ctx context.Context, d *dispatch[S]) {
	app, ok := d.action.(api.OptimisticApplier[S])
	if !ok {
		s.applierMissing(ctx, d, "OptimisticCommand", "OptimisticApplier")
		return
	}

	value := app.Value()
	var prior any
	s.commitWith(ctx, d, func(cur S) S {
		prior = app.ReadValue(cur)
		return app.ApplyValue(cur, value)
	})

	go func() {
		err := runSafe("optimistic send", func() error {
			return app.SendValue(ctx, value)
		})
		if err != nil {
			s.rollbackIfCurrent(ctx, d, app.ReadValue, app.ApplyValue, value, prior)
			d.update(func(st *api.ActionStatus) { st.OriginalError = err })
			s.runAfter(ctx, d)
			s.fail(ctx, d, err)
			return
		}
		d.update(func(st *api.ActionStatus) { st.ReduceCompleted = true })
		s.runAfter(ctx, d)
		s.finish(ctx, d)
	}()
}

// runOptimisticSync applies the dispatch's value immediately and serializes
// sends per key: at most one send is outstanding, and values dispatched
// while one is in flight coalesce into exactly one follow-up carrying the
// latest value. A superseded follow-up completes OK right away; its value
// was applied locally and its send duty was taken over.
func (s *store[S]) runOptimisticSync(
	ctx context.Context,
	d *dispatch[S],
	readValue func(S) any,
	applyValue func(S, any) S,
	send sendFunc,
	value any,
	revisioned bool,
) {
	s.commitWith(ctx, d, func(cur S) S { return applyValue(cur, value) })

	s.syncs.mu.Lock()
	rec := s.syncs.record(d.key)
	if revisioned {
		// Captured before any suspension point: while this edit's send has
		// not settled, acceptPush holds incoming pushes off the key.
		rec.localRev++
	}
	rev := rec.localRev
	if rec.inFlight {
		superseded := rec.pending
		rec.pending = &pendingSend[S]{d: d, value: value, rev: rev}
		s.syncs.mu.Unlock()
		if superseded != nil {
			s.completeSend(ctx, superseded.d, nil)
		}
		return
	}
	rec.inFlight = true
	s.syncs.mu.Unlock()

	go s.sendLoop(d, rec, readValue, applyValue, send, value, rev)
}

// sendLoop runs on its own goroutine and drains the key's sends one at a
// time: the in-flight value, then whatever follow-up coalesced while it was
// out. Rollback on failure happens only once the key has stabilized (no
// pending follow-up) and only under the stale-check.
func (s *store[S]) sendLoop(
	d *dispatch[S],
	rec *syncRecord[S],
	readValue func(S) any,
	applyValue func(S, any) S,
	send sendFunc,
	value any,
	rev uint64,
) {
	ctx := api.WithStore[S](context.Background(), s)
	for {
		var serverRev uint64
		err := runSafe("optimistic send", func() error {
			var serr error
			serverRev, serr = send(ctx, value)
			return serr
		})

		s.syncs.mu.Lock()
		next := rec.pending
		rec.pending = nil
		var rollbackTo any
		var canRollback bool
		if err == nil {
			rec.lastAcked = value
			rec.hasAcked = true
			if serverRev > rec.serverRev {
				rec.serverRev = serverRev
			}
		} else if next == nil && rec.hasAcked {
			rollbackTo = rec.lastAcked
			canRollback = true
		}
		// Acked or abandoned, the local revisions this send carried are
		// settled either way; a rolled-back edit must not block pushes.
		if rev > rec.settledRev {
			rec.settledRev = rev
		}
		stabilized := next == nil
		if stabilized {
			rec.inFlight = false
		}
		s.syncs.mu.Unlock()

		if err != nil && canRollback {
			s.rollbackIfCurrent(ctx, d, readValue, applyValue, value, rollbackTo)
		}
		s.completeSend(ctx, d, err)

		if stabilized {
			return
		}
		d = next.d
		value = next.value
		rev = next.rev
	}
}

// completeSend terminates an optimistic dispatch: After always runs, then
// the dispatch finishes OK or routes its send error.
func (s *store[S]) completeSend(ctx context.Context, d *dispatch[S], err error) {
	if err != nil {
		d.update(func(st *api.ActionStatus) { st.OriginalError = err })
		s.runAfter(ctx, d)
		s.fail(ctx, d, err)
		return
	}
	d.update(func(st *api.ActionStatus) { st.ReduceCompleted = true })
	s.runAfter(ctx, d)
	s.finish(ctx, d)
}

// rollbackIfCurrent restores prior only if the state still holds the
// optimistic value (by deep equality). A state that moved on is left
// intact.
func (s *store[S]) rollbackIfCurrent(
	ctx context.Context,
	d *dispatch[S],
	readValue func(S) any,
	applyValue func(S, any) S,
	applied, prior any,
) {
	s.mu.Lock()
	cur := s.state
	if !reflect.DeepEqual(readValue(cur), applied) {
		s.mu.Unlock()
		return
	}
	next := applyValue(cur, prior)
	s.state = next
	s.mu.Unlock()

	s.stateObs.OnStateChange(ctx, d.kind, d.id(), cur, next, nil)
	s.waiters.notify(next)
	if s.persist != nil {
		s.persist.stateChanged()
	}
}
