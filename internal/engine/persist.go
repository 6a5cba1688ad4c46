package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/reduxgo/redux/pkg/api"
)

// persistLoop throttles persistence: after a commit, at most one persist is
// scheduled per window, on the trailing edge, so the newest state always
// lands. A zero window persists on every commit. close flushes a final
// persist when there are unpersisted changes.
type persistLoop[S any] struct {
	persistor api.Persistor[S]
	window    time.Duration
	current   func() S
	logger    *slog.Logger

	mu     sync.Mutex
	timer  *time.Timer
	dirty  bool
	closed bool
}

func newPersistLoop[S any](p api.Persistor[S], window time.Duration, current func() S, logger *slog.Logger) *persistLoop[S] {
	return &persistLoop[S]{
		persistor: p,
		window:    window,
		current:   current,
		logger:    logger,
	}
}

// stateChanged marks the state dirty and arms the window timer if none is
// pending.
func (l *persistLoop[S]) stateChanged() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.dirty = true
	if l.window <= 0 {
		l.dirty = false
		l.mu.Unlock()
		l.flush()
		return
	}
	if l.timer == nil {
		l.timer = time.AfterFunc(l.window, l.fire)
	}
	l.mu.Unlock()
}

func (l *persistLoop[S]) fire() {
	l.mu.Lock()
	l.timer = nil
	dirty := l.dirty
	l.dirty = false
	closed := l.closed
	l.mu.Unlock()
	if closed || !dirty {
		return
	}
	l.flush()
}

func (l *persistLoop[S]) flush() {
	if err := l.persistor.PersistState(context.Background(), l.current()); err != nil {
		l.logger.Error("persist state failed", slog.Any("error", err))
	}
}

// close stops the timer and flushes a final persist if changes are pending.
func (l *persistLoop[S]) close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	dirty := l.dirty
	l.dirty = false
	l.mu.Unlock()

	if dirty {
		return l.persistor.PersistState(context.Background(), l.current())
	}
	return nil
}
