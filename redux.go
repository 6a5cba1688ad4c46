package redux

import (
	"context"
	"database/sql"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/reduxgo/redux/internal/engine"
	"github.com/reduxgo/redux/internal/persistence"
	"github.com/reduxgo/redux/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Kind          = api.Kind
	ActionStatus  = api.ActionStatus
	UserException = api.UserException

	Store[S any]          = api.Store[S]
	Action[S any]         = api.Action[S]
	ActionFunc[S any]     = api.ActionFunc[S]
	Reducer[S any]        = api.Reducer[S]
	Reduction[S any]      = api.Reduction[S]
	Persistor[S any]      = api.Persistor[S]
	ActionObserver[S any] = api.ActionObserver[S]
	StateObserver[S any]  = api.StateObserver[S]

	BeforeHook[S any]      = api.BeforeHook[S]
	AfterHook[S any]       = api.AfterHook[S]
	DispatchAborter[S any] = api.DispatchAborter[S]
	ErrorWrapper           = api.ErrorWrapper
	ReduceWrapper[S any]   = api.ReduceWrapper[S]

	OptimisticApplier[S any] = api.OptimisticApplier[S]
	RevisionedApplier[S any] = api.RevisionedApplier[S]
	PushAction               = api.PushAction

	NonReentrant       = api.NonReentrant
	Retry              = api.Retry
	Throttle           = api.Throttle
	Debounce           = api.Debounce
	Fresh              = api.Fresh
	OptimisticCommand  = api.OptimisticCommand
	OptimisticSync     = api.OptimisticSync
	OptimisticSyncPush = api.OptimisticSyncPush
	Polling            = api.Polling
	PollMode           = api.PollMode

	NoopObserver[S any]    = api.NoopObserver[S]
	LoggingObserver[S any] = api.LoggingObserver[S]
	BasicMetrics[S any]    = api.BasicMetrics[S]
	BasicMetricsSnapshot   = api.BasicMetricsSnapshot
)

// Re-export sentinel errors and common values.

var (
	ErrStoreClosed    = api.ErrStoreClosed
	ErrActionIsAsync  = api.ErrActionIsAsync
	ErrPolicyConflict = api.ErrPolicyConflict

	NewUserException = api.NewUserException
	AsUserException  = api.AsUserException
)

const (
	UnlimitedRetries = api.UnlimitedRetries

	PollStart   = api.PollStart
	PollStop    = api.PollStop
	PollOnce    = api.PollOnce
	PollRestart = api.PollRestart
)

// New creates a store holding initial, configured by opts. If a persistor
// is configured and already holds a state, that state seeds the store
// instead of initial.
func New[S any](initial S, opts ...Option[S]) (Store[S], error) {
	cfg := engine.Config[S]{InitialState: initial}
	for _, opt := range opts {
		opt(&cfg)
	}
	return engine.New(cfg)
}

// Reduction constructors, re-exported from pkg/api.

// StateOf returns a Reduction committing s as the next state.
func StateOf[S any](s S) Reduction[S] { return api.StateOf(s) }

// NoChange returns a Reduction leaving the state untouched.
func NoChange[S any]() Reduction[S] { return api.NoChange[S]() }

// Deferred returns a Reduction that suspends the reducer; fn runs on its
// own goroutine against a fresh snapshot of the state.
func Deferred[S any](fn func(ctx context.Context, latest S) (Reduction[S], error)) Reduction[S] {
	return api.Deferred(fn)
}

// StoreFromContext recovers the store attached to hook contexts, so hooks
// can dispatch follow-up actions.
func StoreFromContext[S any](ctx context.Context) (Store[S], bool) {
	return api.StoreFromContext[S](ctx)
}

// Observer constructors, re-exported from pkg/api.

// NewLoggingObserver creates an observer logging dispatch and state-change
// events via log/slog. A nil logger means slog.Default().
func NewLoggingObserver[S any](logger *slog.Logger) *LoggingObserver[S] {
	return api.NewLoggingObserver[S](logger)
}

// NewCompositeActionObserver fans out to each non-nil observer.
func NewCompositeActionObserver[S any](obs ...ActionObserver[S]) ActionObserver[S] {
	return api.NewCompositeActionObserver(obs...)
}

// NewCompositeStateObserver fans out to each non-nil observer.
func NewCompositeStateObserver[S any](obs ...StateObserver[S]) StateObserver[S] {
	return api.NewCompositeStateObserver(obs...)
}

// Persistor constructors. These wrap the internal/persistence package so
// external callers never need to import internal packages.

// NewMemoryPersistor returns an in-memory Persistor, intended for tests and
// development.
func NewMemoryPersistor[S any]() Persistor[S] {
	return persistence.NewMemoryPersistor[S]()
}

// NewSQLitePersistor returns a Persistor keeping state snapshots in a
// SQLite database. The caller imports the driver (e.g. modernc.org/sqlite).
func NewSQLitePersistor[S any](db *sql.DB) (Persistor[S], error) {
	return persistence.NewSQLitePersistor[S](db)
}

// NewRedisPersistor returns a Persistor keeping the state snapshot in
// Redis under the given key prefix ("redux:" when empty).
func NewRedisPersistor[S any](client *goredis.Client, prefix string) Persistor[S] {
	return persistence.NewRedisPersistor[S](client, prefix)
}

// NewPostgresPersistor returns a Persistor keeping the state snapshot in
// PostgreSQL. The caller imports the driver.
func NewPostgresPersistor[S any](db *sql.DB) (Persistor[S], error) {
	return persistence.NewPostgresPersistor[S](db)
}
