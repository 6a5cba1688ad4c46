package api

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreClosed is reported by dispatches attempted after Close.
	ErrStoreClosed = errors.New("store is closed")

	// ErrActionIsAsync is reported by DispatchSync when the action's
	// lifecycle would have to leave the calling goroutine: the reducer
	// deferred, a retry needed backoff, a debounce armed, or an optimistic
	// send was about to start.
	ErrActionIsAsync = errors.New("action is async")

	// ErrPolicyConflict is reported when an action carries a combination of
	// policies that do not compose (for example Retry together with
	// Debounce). The dispatch fails before any hook runs.
	ErrPolicyConflict = errors.New("conflicting action policies")
)

// UserException is an expected, user-facing condition such as a validation
// failure. It is not treated as a code defect: instead of being escalated to
// the error observer's rethrow path, it is collected into the store's
// bounded exception queue for UI consumption (see Store.NextUserException).
type UserException struct {
	// Msg is the message intended for the end user.
	Msg string

	// Code optionally identifies the condition for programmatic handling.
	Code string

	// Reason optionally carries a second, more detailed line.
	Reason string

	// Cause is the underlying error, if this exception wraps one.
	Cause error
}

// NewUserException creates a UserException with the given user-facing
// message.
func NewUserException(msg string) *UserException {
	return &UserException{Msg: msg}
}

func (e *UserException) Error() string {
	if e.Reason != "" {
		return e.Msg + ": " + e.Reason
	}
	return e.Msg
}

func (e *UserException) Unwrap() error { return e.Cause }

// WithCode returns a copy of the exception with the given code.
func (e *UserException) WithCode(code string) *UserException {
	c := *e
	c.Code = code
	return &c
}

// WithReason returns a copy of the exception with the given reason line.
func (e *UserException) WithReason(reason string) *UserException {
	c := *e
	c.Reason = reason
	return &c
}

// WithCause returns a copy of the exception wrapping err.
func (e *UserException) WithCause(err error) *UserException {
	c := *e
	c.Cause = err
	return &c
}

// AsUserException reports whether err is, or wraps, a UserException.
func AsUserException(err error) (*UserException, bool) {
	var ue *UserException
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// WrapAsUserException normalizes a third-party error into a UserException
// with the given user-facing message, keeping err as the cause. It is a
// convenience for GlobalWrapError implementations.
func WrapAsUserException(msg string, err error) *UserException {
	return &UserException{Msg: msg, Cause: err}
}

func policyConflict(a, b string) error {
	return fmt.Errorf("%w: %s and %s", ErrPolicyConflict, a, b)
}
