package redux

import (
	"log/slog"
	"time"

	"github.com/reduxgo/redux/internal/engine"
)

// Option configures a store under construction.
type Option[S any] func(*engine.Config[S])

// WithLogger sets the logger used for out-of-band reporting (after-hook
// failures, escalated errors, persist failures). Defaults to
// slog.Default().
func WithLogger[S any](logger *slog.Logger) Option[S] {
	return func(cfg *engine.Config[S]) {
		cfg.Logger = logger
	}
}

// WithActionObserver sets the observer notified at dispatch initiation and
// completion.
func WithActionObserver[S any](obs ActionObserver[S]) Option[S] {
	return func(cfg *engine.Config[S]) {
		cfg.ActionObserver = obs
	}
}

// WithStateObserver sets the observer notified after each reducer commit or
// failure.
func WithStateObserver[S any](obs StateObserver[S]) Option[S] {
	return func(cfg *engine.Config[S]) {
		cfg.StateObserver = obs
	}
}

// WithGlobalWrapError sets the store-wide error filter, applied after the
// action's own WrapError. It may replace the error, suppress it by
// returning nil, or pass it through. Typical use is normalizing third-party
// errors into user-facing exceptions.
func WithGlobalWrapError[S any](wrap func(err error) error) Option[S] {
	return func(cfg *engine.Config[S]) {
		cfg.GlobalWrapError = wrap
	}
}

// WithErrorObserver sets the last stage of the error chain. Returning true
// escalates failures of unawaited dispatches to the store logger; waited
// dispatches always carry the error in their status.
func WithErrorObserver[S any](obs func(err error, kind Kind, status ActionStatus) bool) Option[S] {
	return func(cfg *engine.Config[S]) {
		cfg.ErrorObserver = obs
	}
}

// WithUserExceptionCap bounds the user-exception queue (default 10). When
// full, the oldest entry is dropped.
//
// cap must be positive.
func WithUserExceptionCap[S any](cap int) Option[S] {
	if cap <= 0 {
		panic("redux: user exception cap must be positive")
	}
	return func(cfg *engine.Config[S]) {
		cfg.UserExceptionCap = cap
	}
}

// WithPersistor wires a persistor with trailing-edge throttling: after a
// commit, at most one persist per window, carrying the newest state. A zero
// window persists on every commit. Close flushes a final persist.
func WithPersistor[S any](p Persistor[S], window time.Duration) Option[S] {
	if p == nil {
		panic("redux: persistor must not be nil")
	}
	return func(cfg *engine.Config[S]) {
		cfg.Persistor = p
		cfg.PersistThrottle = window
	}
}
