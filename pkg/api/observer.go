package api

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// ActionObserver receives callbacks at dispatch initiation and completion,
// for every dispatch including aborted ones.
//
// Implementations must not mutate state and should be fast and non-blocking;
// heavy work should be done asynchronously so as not to delay dispatches.
type ActionObserver[S any] interface {
	// OnDispatchStart is called once per dispatch, before any phase runs.
	OnDispatchStart(ctx context.Context, kind Kind, dispatchID uint64)

	// OnDispatchEnd is called once per dispatch when it reaches a terminal
	// status.
	OnDispatchEnd(ctx context.Context, kind Kind, dispatchID uint64, status ActionStatus)
}

// StateObserver is notified once per dispatch that reached the reducer,
// right after the commit (or the failure). It is not called for aborted
// dispatches. prev and next are equal when the reducer returned no change or
// failed.
type StateObserver[S any] interface {
	OnStateChange(ctx context.Context, kind Kind, dispatchID uint64, prev, next S, err error)
}

// NoopObserver implements both observer interfaces and does nothing.
// It is used as the default when no observer is configured.
type NoopObserver[S any] struct{}

func (NoopObserver[S]) OnDispatchStart(ctx context.Context, kind Kind, dispatchID uint64) {}
func (NoopObserver[S]) OnDispatchEnd(ctx context.Context, kind Kind, dispatchID uint64, status ActionStatus) {
}
func (NoopObserver[S]) OnStateChange(ctx context.Context, kind Kind, dispatchID uint64, prev, next S, err error) {
}

// CompositeActionObserver fans out events to multiple action observers.
type CompositeActionObserver[S any] struct {
	observers []ActionObserver[S]
}

// NewCompositeActionObserver creates an ActionObserver that forwards events
// to each non-nil observer in obs.
func NewCompositeActionObserver[S any](obs ...ActionObserver[S]) ActionObserver[S] {
	filtered := make([]ActionObserver[S], 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver[S]{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeActionObserver[S]{observers: filtered}
}

func (c *CompositeActionObserver[S]) OnDispatchStart(ctx context.Context, kind Kind, dispatchID uint64) {
	for _, o := range c.observers {
		o.OnDispatchStart(ctx, kind, dispatchID)
	}
}

func (c *CompositeActionObserver[S]) OnDispatchEnd(ctx context.Context, kind Kind, dispatchID uint64, status ActionStatus) {
	for _, o := range c.observers {
		o.OnDispatchEnd(ctx, kind, dispatchID, status)
	}
}

// CompositeStateObserver fans out events to multiple state observers.
type CompositeStateObserver[S any] struct {
	observers []StateObserver[S]
}

// NewCompositeStateObserver creates a StateObserver that forwards events to
// each non-nil observer in obs.
func NewCompositeStateObserver[S any](obs ...StateObserver[S]) StateObserver[S] {
	filtered := make([]StateObserver[S], 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver[S]{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeStateObserver[S]{observers: filtered}
}

func (c *CompositeStateObserver[S]) OnStateChange(ctx context.Context, kind Kind, dispatchID uint64, prev, next S, err error) {
	for _, o := range c.observers {
		o.OnStateChange(ctx, kind, dispatchID, prev, next, err)
	}
}

// LoggingObserver writes structured logs for both observer interfaces using
// log/slog.
type LoggingObserver[S any] struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an observer that logs dispatch and state-change
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver[S any](logger *slog.Logger) *LoggingObserver[S] {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver[S]{Logger: logger}
}

func (o *LoggingObserver[S]) OnDispatchStart(ctx context.Context, kind Kind, dispatchID uint64) {
	o.Logger.DebugContext(ctx, "dispatch_start",
		slog.String("kind", string(kind)),
		slog.Uint64("dispatch_id", dispatchID),
	)
}

func (o *LoggingObserver[S]) OnDispatchEnd(ctx context.Context, kind Kind, dispatchID uint64, status ActionStatus) {
	level := slog.LevelDebug
	if status.IsCompletedFailed() {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "dispatch_end",
		slog.String("kind", string(kind)),
		slog.Uint64("dispatch_id", dispatchID),
		slog.Bool("aborted", status.Aborted),
		slog.Bool("state_changed", status.StateChanged),
		slog.Any("error", status.WrappedError),
	)
}

func (o *LoggingObserver[S]) OnStateChange(ctx context.Context, kind Kind, dispatchID uint64, prev, next S, err error) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "state_change",
		slog.String("kind", string(kind)),
		slog.Uint64("dispatch_id", dispatchID),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple dispatch counters. It implements both
// observer interfaces and can be combined with LoggingObserver via the
// composite constructors.
type BasicMetrics[S any] struct {
	dispatchesStarted   atomic.Int64
	dispatchesCompleted atomic.Int64
	dispatchesFailed    atomic.Int64
	dispatchesAborted   atomic.Int64
	stateChanges        atomic.Int64
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	DispatchesStarted   int64
	DispatchesCompleted int64
	DispatchesFailed    int64
	DispatchesAborted   int64
	InFlight            int64
	StateChanges        int64
}

func (m *BasicMetrics[S]) OnDispatchStart(ctx context.Context, kind Kind, dispatchID uint64) {
	m.dispatchesStarted.Add(1)
}

func (m *BasicMetrics[S]) OnDispatchEnd(ctx context.Context, kind Kind, dispatchID uint64, status ActionStatus) {
	m.dispatchesCompleted.Add(1)
	if status.IsCompletedFailed() {
		m.dispatchesFailed.Add(1)
	}
	if status.Aborted {
		m.dispatchesAborted.Add(1)
	}
}

func (m *BasicMetrics[S]) OnStateChange(ctx context.Context, kind Kind, dispatchID uint64, prev, next S, err error) {
	if err == nil {
		m.stateChanges.Add(1)
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics[S]) Snapshot() BasicMetricsSnapshot {
	started := m.dispatchesStarted.Load()
	completed := m.dispatchesCompleted.Load()

	return BasicMetricsSnapshot{
		DispatchesStarted:   started,
		DispatchesCompleted: completed,
		DispatchesFailed:    m.dispatchesFailed.Load(),
		DispatchesAborted:   m.dispatchesAborted.Load(),
		InFlight:            started - completed,
		StateChanges:        m.stateChanges.Load(),
	}
}
