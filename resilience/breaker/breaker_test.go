package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcore/types"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	cfg := &Config{Threshold: 3, Timeout: time.Second, ResetTimeout: time.Minute, HalfOpenMaxCalls: 1}
	b := New(cfg, nil)

	failing := func() error { return errors.New("boom") }

	for i := 0; i < 3; i++ {
		_ = b.Call(context.Background(), failing)
	}
	assert.Equal(t, StateOpen, b.State())

	err := b.Call(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	cfg := &Config{Threshold: 1, Timeout: time.Second, ResetTimeout: 10 * time.Millisecond, HalfOpenMaxCalls: 2}
	b := New(cfg, nil)

	_ = b.Call(context.Background(), func() error { return errors.New("boom") })
	require.Equal(t, StateOpen, b.State())

	time.Sleep(15 * time.Millisecond)

	err := b.Call(context.Background(), func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	cfg := &Config{Threshold: 1, Timeout: time.Second, ResetTimeout: 10 * time.Millisecond, HalfOpenMaxCalls: 2}
	b := New(cfg, nil)

	_ = b.Call(context.Background(), func() error { return errors.New("boom") })
	time.Sleep(15 * time.Millisecond)

	err := b.Call(context.Background(), func() error { return errors.New("still down") })
	require.Error(t, err)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_ClientErrorsDoNotTripBreaker(t *testing.T) {
	cfg := &Config{Threshold: 2, Timeout: time.Second, ResetTimeout: time.Minute, HalfOpenMaxCalls: 1}
	b := New(cfg, nil)

	clientErr := types.NewError(types.ErrInvalidRequest, "bad request")
	for i := 0; i < 5; i++ {
		_ = b.Call(context.Background(), func() error { return clientErr })
	}

	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_TimeoutCountsAsFailure(t *testing.T) {
	cfg := &Config{Threshold: 1, Timeout: 5 * time.Millisecond, ResetTimeout: time.Minute, HalfOpenMaxCalls: 1}
	b := New(cfg, nil)

	err := b.Call(context.Background(), func() error {
		time.Sleep(20 * time.Millisecond)
		return nil
	})

	require.Error(t, err)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_Reset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Threshold = 1
	b := New(cfg, nil)

	_ = b.Call(context.Background(), func() error { return errors.New("boom") })
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
}
