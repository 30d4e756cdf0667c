package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcore/types"
)

func TestDoWithResult_SucceedsAfterRetries(t *testing.T) {
	policy := &Policy{MaxRetries: 3, InitialDelay: time.Millisecond, Strategy: DelayFixed}
	r := New(policy, nil)

	calls := 0
	res, err := r.DoWithResult(context.Background(), "test.op", func() (any, error) {
		calls++
		if calls < 3 {
			return nil, types.NewError(types.ErrUpstreamError, "boom").WithRetryable(true)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", res.Value)
	assert.Equal(t, 3, calls)
	assert.Len(t, res.Attempts, 2)
}

func TestDoWithResult_StopsOnDeterministicError(t *testing.T) {
	policy := &Policy{MaxRetries: 5, InitialDelay: time.Millisecond}
	r := New(policy, nil)

	calls := 0
	_, err := r.DoWithResult(context.Background(), "test.op", func() (any, error) {
		calls++
		return nil, types.NewError(types.ErrInvalidRequest, "bad input")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "deterministic errors must not be retried")
}

func TestDoWithResult_ExhaustsRetries(t *testing.T) {
	policy := &Policy{MaxRetries: 2, InitialDelay: time.Millisecond}
	r := New(policy, nil)

	calls := 0
	sentinel := errors.New("persistent failure")
	_, err := r.DoWithResult(context.Background(), "test.op", func() (any, error) {
		calls++
		return nil, types.NewError(types.ErrUpstreamError, sentinel.Error()).WithRetryable(true)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls) // initial + 2 retries
}

func TestDoWithResult_ContextCancelledDuringBackoff(t *testing.T) {
	policy := &Policy{MaxRetries: 5, InitialDelay: 50 * time.Millisecond}
	r := New(policy, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.DoWithResult(ctx, "test.op", func() (any, error) {
		return nil, types.NewError(types.ErrUpstreamError, "boom").WithRetryable(true)
	})

	require.Error(t, err)
}

func TestCalculateDelay_Strategies(t *testing.T) {
	base := time.Second
	r := &retryer{policy: &Policy{InitialDelay: base, MaxDelay: time.Minute, Multiplier: 2.0}}

	r.policy.Strategy = DelayFixed
	assert.Equal(t, base, r.calculateDelay(1))
	assert.Equal(t, base, r.calculateDelay(4))

	r.policy.Strategy = DelayLinear
	assert.Equal(t, 3*base, r.calculateDelay(3))

	r.policy.Strategy = DelayFibonacci
	assert.Equal(t, time.Duration(fibonacci(4))*base, r.calculateDelay(4))

	r.policy.Strategy = DelayExponential
	assert.Equal(t, 4*base, r.calculateDelay(3))
}

func TestCalculateDelay_CapsAtMaxDelay(t *testing.T) {
	r := &retryer{policy: &Policy{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Strategy: DelayExponential, Multiplier: 10}}
	assert.Equal(t, 3*time.Second, r.calculateDelay(5))
}
