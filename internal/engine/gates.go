package engine

import (
	"sync"
	"time"
)

// policyGates holds the per-key bookkeeping for the abort-gate policies:
// non-reentrancy flags, throttle and freshness stamps, and debounce timers.
// All maps are guarded by one mutex; entries are created on first dispatch
// under a key.
type policyGates[S any] struct {
	mu       sync.Mutex
	running  map[string]bool
	throttle map[string]time.Time
	fresh    map[string]time.Time
	debounce map[string]*debounceEntry[S]

	now func() time.Time
}

// debounceEntry tracks one key's parked dispatch. gen increments on every
// re-arm: a timer that already fired when its key was re-armed carries a
// stale generation, and takeDebounced ignores it.
type debounceEntry[S any] struct {
	pending *dispatch[S]
	timer   *time.Timer
	gen     uint64
}

func newPolicyGates[S any]() *policyGates[S] {
	return &policyGates[S]{
		running:  make(map[string]bool),
		throttle: make(map[string]time.Time),
		fresh:    make(map[string]time.Time),
		debounce: make(map[string]*debounceEntry[S]),
		now:      time.Now,
	}
}

// tryEnter claims the non-reentrancy flag for key. It reports false if a
// dispatch of the same key is still running.
func (g *policyGates[S]) tryEnter(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running[key] {
		return false
	}
	g.running[key] = true
	return true
}

func (g *policyGates[S]) leave(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, key)
}

// tryThrottle accepts or rejects a dispatch under the throttle window.
// Accepted dispatches stamp the key; prev is the stamp before acceptance so
// an abort later in the gate chain can restore it. When ignore is set the
// window is not checked but the key is still stamped.
func (g *policyGates[S]) tryThrottle(key string, window time.Duration, ignore bool) (accepted bool, prev time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	last, ok := g.throttle[key]
	if !ignore && ok && g.now().Sub(last) < window {
		return false, last
	}
	g.throttle[key] = g.now()
	return true, last
}

// clearThrottle removes the key's stamp (RemoveLockOnError).
func (g *policyGates[S]) clearThrottle(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.throttle, key)
}

func (g *policyGates[S]) restoreThrottle(key string, prev time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev.IsZero() {
		delete(g.throttle, key)
	} else {
		g.throttle[key] = prev
	}
}

// tryFresh accepts a dispatch when the key's data is no longer fresh.
// Accepted dispatches stamp the key fresh; prev is kept so a failed load can
// restore it (a failed load does not count as freshening).
func (g *policyGates[S]) tryFresh(key string, freshFor time.Duration) (accepted bool, prev time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	last, ok := g.fresh[key]
	if ok && g.now().Sub(last) < freshFor {
		return false, last
	}
	g.fresh[key] = g.now()
	return true, last
}

func (g *policyGates[S]) restoreFresh(key string, prev time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev.IsZero() {
		delete(g.fresh, key)
	} else {
		g.fresh[key] = prev
	}
}

// armDebounce replaces the key's pending dispatch with d and re-arms the
// timer; fire receives the new arming's generation. It returns the
// superseded dispatch, if any, so the caller can terminate it.
func (g *policyGates[S]) armDebounce(key string, d *dispatch[S], quiet time.Duration, fire func(gen uint64)) *dispatch[S] {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.debounce[key]
	if e == nil {
		e = &debounceEntry[S]{}
		g.debounce[key] = e
	}
	prev := e.pending
	e.pending = d
	e.gen++
	gen := e.gen
	if e.timer != nil {
		// Stop is best effort: a timer that already fired still reaches
		// takeDebounced, where its stale gen rules it out.
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(quiet, func() { fire(gen) })
	return prev
}

// takeDebounced removes and returns the key's pending dispatch when the
// timer of the same arming fires untouched. A fire from an earlier arming
// gets nothing: the re-arm restarted the quiet period.
func (g *policyGates[S]) takeDebounced(key string, gen uint64) *dispatch[S] {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.debounce[key]
	if e == nil || e.gen != gen {
		return nil
	}
	d := e.pending
	e.pending = nil
	e.timer = nil
	return d
}
