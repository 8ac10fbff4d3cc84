package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSolver = errors.New("solver exited with status 1")

func fail(context.Context) error    { return errSolver }
func succeed(context.Context) error { return nil }

func TestCircuitBreaker(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute})
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	steps := []struct {
		name    string
		advance time.Duration
		fn      func(context.Context) error
		wantErr error
		state   CircuitBreakerState
	}{
		{name: "first failure stays closed", fn: fail, wantErr: errSolver, state: StateClosed},
		{name: "threshold opens", fn: fail, wantErr: errSolver, state: StateOpen},
		{name: "open rejects", advance: 30 * time.Second, fn: succeed, wantErr: ErrOpen, state: StateOpen},
		{name: "failed trial reopens", advance: time.Minute, fn: fail, wantErr: errSolver, state: StateOpen},
		{name: "still cooling down", advance: 59 * time.Second, fn: succeed, wantErr: ErrOpen, state: StateOpen},
		{name: "successful trial closes", advance: time.Second, fn: succeed, state: StateClosed},
		{name: "closed again", fn: fail, wantErr: errSolver, state: StateClosed},
	}

	for _, step := range steps {
		now = now.Add(step.advance)
		err := cb.Call(ctx, step.fn)
		if step.wantErr != nil {
			require.ErrorIs(t, err, step.wantErr, step.name)
		} else {
			require.NoError(t, err, step.name)
		}
		assert.Equal(t, step.state, cb.State(), step.name)
	}

	assert.Equal(t, 1, cb.Failures())
	cb.Reset()
	assert.Zero(t, cb.Failures())
	assert.Equal(t, "closed", cb.Stats()["state"])
}

func TestCircuitBreakerIgnoresCallerCancellation(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Call(ctx, func(ctx context.Context) error { return ctx.Err() })
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
	assert.Zero(t, cb.Failures())
}

func TestCircuitBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	assert.Equal(t, 5, cb.config.FailureThreshold)
	assert.Equal(t, 30*time.Second, cb.config.RecoveryTimeout)
	assert.Equal(t, 1, cb.config.SuccessThreshold)
	assert.Equal(t, "unknown", CircuitBreakerState(9).String())
}
