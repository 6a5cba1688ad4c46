package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type retryingAction struct {
	Retry
}

func (retryingAction) Reduce(ctx context.Context, s int) (Reduction[int], error) {
	return NoChange[int](), nil
}

type retryDebounceAction struct {
	Retry
	Debounce
}

func (retryDebounceAction) Reduce(ctx context.Context, s int) (Reduction[int], error) {
	return NoChange[int](), nil
}

type nonReentrantPollingAction struct {
	NonReentrant
	Polling
}

func (nonReentrantPollingAction) Reduce(ctx context.Context, s int) (Reduction[int], error) {
	return NoChange[int](), nil
}

// TestPoliciesOfDetectsEmbedded verifies that embedding a policy struct is
// enough for the store to detect it.
func TestPoliciesOfDetectsEmbedded(t *testing.T) {
	t.Parallel()

	ps := PoliciesOf[int](retryingAction{Retry: Retry{MaxRetries: 5}})
	require.NotNil(t, ps.Retry)
	require.Equal(t, 5, ps.Retry.MaxRetries)
	require.Nil(t, ps.Debounce)
	require.Nil(t, ps.Polling)

	ps = PoliciesOf[int](nonReentrantPollingAction{})
	require.NotNil(t, ps.NonReentrant)
	require.NotNil(t, ps.Polling)
	require.NoError(t, ps.Validate())
}

// TestPolicyMatrixConflicts verifies that the documented conflicting pairs
// are rejected with ErrPolicyConflict.
func TestPolicyMatrixConflicts(t *testing.T) {
	t.Parallel()

	conflicting := []PolicySet{
		{Retry: &Retry{}, Debounce: &Debounce{}},
		{Retry: &Retry{}, Throttle: &Throttle{}},
		{Retry: &Retry{}, OptimisticCommand: &OptimisticCommand{}},
		{Retry: &Retry{}, OptimisticSync: &OptimisticSync{}},
		{Retry: &Retry{}, OptimisticSyncPush: &OptimisticSyncPush{}},
		{Throttle: &Throttle{}, Debounce: &Debounce{}},
		{Throttle: &Throttle{}, Fresh: &Fresh{}},
		{Debounce: &Debounce{}, Fresh: &Fresh{}},
		{Debounce: &Debounce{}, Polling: &Polling{}},
		{OptimisticCommand: &OptimisticCommand{}, OptimisticSync: &OptimisticSync{}},
		{OptimisticSync: &OptimisticSync{}, OptimisticSyncPush: &OptimisticSyncPush{}},
		{Polling: &Polling{}, OptimisticCommand: &OptimisticCommand{}},
	}
	for _, ps := range conflicting {
		require.ErrorIs(t, ps.Validate(), ErrPolicyConflict, "%+v", ps)
	}

	require.ErrorIs(t, PoliciesOf[int](retryDebounceAction{}).Validate(), ErrPolicyConflict)
}

// TestPolicyMatrixCompatible verifies that NonReentrant composes with
// everything and that common combinations pass.
func TestPolicyMatrixCompatible(t *testing.T) {
	t.Parallel()

	compatible := []PolicySet{
		{},
		{NonReentrant: &NonReentrant{}},
		{NonReentrant: &NonReentrant{}, Retry: &Retry{}},
		{NonReentrant: &NonReentrant{}, Throttle: &Throttle{}},
		{NonReentrant: &NonReentrant{}, OptimisticSync: &OptimisticSync{}},
		{Retry: &Retry{}, Polling: &Polling{}},
		{Throttle: &Throttle{}, Polling: &Polling{}},
		{Fresh: &Fresh{}},
		{OptimisticSyncPush: &OptimisticSyncPush{}},
	}
	for _, ps := range compatible {
		require.NoError(t, ps.Validate(), "%+v", ps)
	}
}

// TestRetryDefaults verifies Normalized fills the documented defaults and
// Delay applies the multiplier with the cap.
func TestRetryDefaults(t *testing.T) {
	t.Parallel()

	p := Retry{}.Normalized()
	require.Equal(t, 3, p.MaxRetries)
	require.Equal(t, 350*time.Millisecond, p.InitialDelay)
	require.Equal(t, 2.0, p.Multiplier)
	require.Equal(t, 5*time.Second, p.MaxDelay)

	unlimited := Retry{MaxRetries: UnlimitedRetries}.Normalized()
	require.Equal(t, UnlimitedRetries, unlimited.MaxRetries)

	p = Retry{InitialDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: 350 * time.Millisecond}.Normalized()
	require.Equal(t, 100*time.Millisecond, p.Delay(0))
	require.Equal(t, 200*time.Millisecond, p.Delay(1))
	require.Equal(t, 350*time.Millisecond, p.Delay(2))
	require.Equal(t, 350*time.Millisecond, p.Delay(10))
}

// TestDebounceDefaults verifies the default quiet period.
func TestDebounceDefaults(t *testing.T) {
	t.Parallel()

	require.Equal(t, 333*time.Millisecond, Debounce{}.Normalized().Quiet)
	require.Equal(t, time.Second, Debounce{Quiet: time.Second}.Normalized().Quiet)
}
