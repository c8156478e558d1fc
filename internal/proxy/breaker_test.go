package proxy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "talentgate/pkg/domain-errors"
)

func newTestBreaker(now *time.Time) *Breaker {
	return NewBreaker("skills", 5, time.Minute,
		WithBreakerClock(func() time.Time { return *now }))
}

func TestBreakerStaysClosedBelowThreshold(t *testing.T) {
	now := time.Now()
	b := newTestBreaker(&now)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreakerSuccessResetsConsecutiveCount(t *testing.T) {
	now := time.Now()
	b := newTestBreaker(&now)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	b.RecordSuccess()
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerOpensAtThresholdAndFailsFast(t *testing.T) {
	now := time.Now()
	b := newTestBreaker(&now)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	assert.Equal(t, StateOpen, b.State())

	err := b.Allow()
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	assert.Equal(t, dErrors.ReasonCircuitOpen, dErrors.ReasonOf(err))
}

func TestBreakerAdmitsExactlyOneTrialAfterReset(t *testing.T) {
	now := time.Now()
	b := newTestBreaker(&now)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	now = now.Add(61 * time.Second)

	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())

	// Concurrent requests during the trial are held back.
	assert.Error(t, b.Allow())
	assert.Error(t, b.Allow())
}

func TestBreakerClosesWhenTrialSucceeds(t *testing.T) {
	now := time.Now()
	b := newTestBreaker(&now)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	now = now.Add(61 * time.Second)
	require.NoError(t, b.Allow())

	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreakerReopensWhenTrialFails(t *testing.T) {
	now := time.Now()
	b := newTestBreaker(&now)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	now = now.Add(61 * time.Second)
	require.NoError(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.Error(t, b.Allow())

	// The reset timeout starts over from the failed trial.
	now = now.Add(61 * time.Second)
	assert.NoError(t, b.Allow())
}

func TestBreakerCanceledTrialReopensWithFreshTimeout(t *testing.T) {
	now := time.Now()
	b := newTestBreaker(&now)

	// Outside a trial the cancel is a no-op.
	b.CancelTrial()
	assert.Equal(t, StateClosed, b.State())

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	now = now.Add(61 * time.Second)
	require.NoError(t, b.Allow())
	require.Equal(t, StateHalfOpen, b.State())

	b.CancelTrial()
	assert.Equal(t, StateOpen, b.State())
	assert.Error(t, b.Allow())

	// The slot is free again once the fresh timeout elapses.
	now = now.Add(61 * time.Second)
	assert.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestBreakerTransitionHookObservesEveryChange(t *testing.T) {
	now := time.Now()
	var transitions []BreakerState
	b := NewBreaker("skills", 2, time.Minute,
		WithBreakerClock(func() time.Time { return now }),
		WithTransitionHook(func(_ string, state BreakerState) {
			transitions = append(transitions, state)
		}))

	b.RecordFailure()
	b.RecordFailure()
	now = now.Add(61 * time.Second)
	require.NoError(t, b.Allow())
	b.RecordSuccess()

	assert.Equal(t, []BreakerState{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestRegistryIsolatesServices(t *testing.T) {
	reg := NewRegistry(1, time.Minute)

	reg.Get("skills").RecordFailure()
	assert.Equal(t, StateOpen, reg.Get("skills").State())
	assert.Equal(t, StateClosed, reg.Get("matching").State())

	states := reg.States()
	assert.Equal(t, StateOpen, states["skills"])
	assert.Equal(t, StateClosed, states["matching"])
}
