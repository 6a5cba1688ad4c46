package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestUserExceptionFluent verifies that the fluent helpers return modified
// copies without touching the original.
func TestUserExceptionFluent(t *testing.T) {
	t.Parallel()

	base := NewUserException("Name too short")
	cause := errors.New("validation: min length 2")

	full := base.WithCode("name_too_short").WithReason("minimum is 2 characters").WithCause(cause)

	require.Equal(t, "Name too short", base.Msg)
	require.Empty(t, base.Code)
	require.Empty(t, base.Reason)
	require.NoError(t, base.Cause)

	require.Equal(t, "name_too_short", full.Code)
	require.Equal(t, "Name too short: minimum is 2 characters", full.Error())
	require.ErrorIs(t, full, cause)
}

// TestAsUserException verifies detection through wrapping.
func TestAsUserException(t *testing.T) {
	t.Parallel()

	ue := NewUserException("Out of stock")
	wrapped := fmt.Errorf("checkout failed: %w", ue)

	got, ok := AsUserException(wrapped)
	require.True(t, ok)
	require.Equal(t, ue, got)

	_, ok = AsUserException(errors.New("plain"))
	require.False(t, ok)
}

// TestWrapAsUserException verifies third-party error normalization keeps
// the cause reachable via errors.Is.
func TestWrapAsUserException(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: connection refused")
	ue := WrapAsUserException("Could not reach the server", cause)

	require.Equal(t, "Could not reach the server", ue.Msg)
	require.ErrorIs(t, ue, cause)
}
