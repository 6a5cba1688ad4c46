package engine

import (
	"context"
	"sync"

	"github.com/reduxgo/redux/pkg/api"
)

// conditionWaiters holds the predicates registered through WaitCondition.
// Predicates are checked against every committed state; satisfied waiters
// are woken and removed.
type conditionWaiters[S any] struct {
	mu      sync.Mutex
	waiters []*condWaiter[S]
}

type condWaiter[S any] struct {
	pred func(S) bool
	ch   chan struct{}
}

func newConditionWaiters[S any]() *conditionWaiters[S] {
	return &conditionWaiters[S]{}
}

// wait blocks until pred holds or ctx is done. current is re-read after
// registration so a commit between the first check and registration cannot
// be missed.
func (w *conditionWaiters[S]) wait(ctx context.Context, current func() S, pred func(S) bool) error {
	if pred(current()) {
		return nil
	}
	cw := &condWaiter[S]{pred: pred, ch: make(chan struct{})}
	w.mu.Lock()
	w.waiters = append(w.waiters, cw)
	w.mu.Unlock()

	if pred(current()) {
		w.remove(cw)
		return nil
	}

	select {
	case <-cw.ch:
		return nil
	case <-ctx.Done():
		w.remove(cw)
		return ctx.Err()
	}
}

// notify wakes every waiter whose predicate holds for state.
func (w *conditionWaiters[S]) notify(state S) {
	w.mu.Lock()
	defer w.mu.Unlock()
	kept := w.waiters[:0]
	for _, cw := range w.waiters {
		if cw.pred(state) {
			close(cw.ch)
			continue
		}
		kept = append(kept, cw)
	}
	w.waiters = kept
}

func (w *conditionWaiters[S]) remove(cw *condWaiter[S]) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, c := range w.waiters {
		if c == cw {
			w.waiters = append(w.waiters[:i], w.waiters[i+1:]...)
			return
		}
	}
}

// kindBook tracks in-flight dispatch counts and the most recent failure per
// action kind, backing IsWaiting, IsFailed, ExceptionFor and
// ClearExceptionFor.
type kindBook struct {
	mu       sync.Mutex
	inFlight map[api.Kind]int
	failures map[api.Kind]error
}

func newKindBook() *kindBook {
	return &kindBook{
		inFlight: make(map[api.Kind]int),
		failures: make(map[api.Kind]error),
	}
}

// enter marks a dispatch of kind as in flight and clears the kind's
// previous failure record.
func (b *kindBook) enter(kind api.Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inFlight[kind]++
	delete(b.failures, kind)
}

func (b *kindBook) exit(kind api.Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := b.inFlight[kind]; n <= 1 {
		delete(b.inFlight, kind)
	} else {
		b.inFlight[kind] = n - 1
	}
}

func (b *kindBook) fail(kind api.Kind, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[kind] = err
}

func (b *kindBook) clear(kind api.Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, kind)
}

func (b *kindBook) isWaiting(kind api.Kind) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight[kind] > 0
}

func (b *kindBook) failureFor(kind api.Kind) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures[kind]
}
