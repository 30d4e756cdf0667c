// Package breaker implements a three-state circuit breaker (Closed / Open /
// HalfOpen) guarding calls to flaky upstreams such as LLM providers and MCP
// servers.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/types"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateHalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

// Config tunes a breaker instance.
type Config struct {
	Threshold        int // consecutive failures before opening
	Timeout          time.Duration // per-call timeout
	ResetTimeout     time.Duration // Open -> HalfOpen wait
	HalfOpenMaxCalls int
	OnStateChange    func(from, to State)
}

func DefaultConfig() *Config {
	return &Config{
		Threshold:        5,
		Timeout:          30 * time.Second,
		ResetTimeout:     60 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

func (c *Config) normalize() {
	if c.Threshold <= 0 {
		c.Threshold = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 60 * time.Second
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = 3
	}
}

var (
	ErrCircuitOpen            = errors.New("circuit breaker is open")
	ErrTooManyCallsInHalfOpen = errors.New("too many calls while half-open")
)

// CircuitBreaker guards calls against a single upstream dependency.
type CircuitBreaker interface {
	Call(ctx context.Context, fn func() error) error
	CallWithResult(ctx context.Context, fn func() (any, error)) (any, error)
	State() State
	Reset()
}

type breaker struct {
	config *Config
	logger *zap.Logger

	mu                sync.RWMutex
	state             State
	failureCount      int
	lastFailureTime   time.Time
	halfOpenCallCount int
}

// New creates a CircuitBreaker. A nil config falls back to DefaultConfig.
func New(config *Config, logger *zap.Logger) CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	config.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &breaker{config: config, logger: logger.With(zap.String("component", "breaker")), state: StateClosed}
}

func (b *breaker) Call(ctx context.Context, fn func() error) error {
	_, err := b.CallWithResult(ctx, func() (any, error) {
		return nil, fn()
	})
	return err
}

type callResult struct {
	result any
	err    error
}

func (b *breaker) CallWithResult(ctx context.Context, fn func() (any, error)) (any, error) {
	if err := b.beforeCall(); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	resultCh := make(chan callResult, 1)
	go func() {
		result, err := fn()
		resultCh <- callResult{result: result, err: err}
	}()

	select {
	case <-callCtx.Done():
		err := fmt.Errorf("call timed out: %w", callCtx.Err())
		b.afterCall(false)
		return nil, err

	case res := <-resultCh:
		success := res.err == nil || isClientError(res.err)
		b.afterCall(success)
		if !success {
			return nil, res.err
		}
		return res.result, nil
	}
}

// isClientError reports whether err reflects a problem with the request
// rather than the upstream's availability — these never count as a breaker
// failure, otherwise a client sending consistently malformed requests would
// trip the breaker for every other caller sharing it.
func isClientError(err error) bool {
	code := types.GetErrorCode(err)
	if code == "" {
		return false
	}
	return types.IsDeterministic(code) || code == types.ErrRateLimit || code == types.ErrContextTooLong
}

func (b *breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(b.lastFailureTime) > b.config.ResetTimeout {
			b.setState(StateHalfOpen)
			b.halfOpenCallCount = 0
			b.logger.Info("circuit entering half-open")
			return nil
		}
		return ErrCircuitOpen

	case StateHalfOpen:
		if b.halfOpenCallCount >= b.config.HalfOpenMaxCalls {
			return ErrTooManyCallsInHalfOpen
		}
		b.halfOpenCallCount++
		return nil

	default:
		return fmt.Errorf("unknown breaker state: %v", b.state)
	}
}

func (b *breaker) afterCall(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
}

func (b *breaker) onSuccess() {
	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.logger.Info("circuit recovered", zap.Int("half_open_calls", b.halfOpenCallCount))
		b.setState(StateClosed)
		b.failureCount = 0
		b.halfOpenCallCount = 0
	case StateOpen:
		b.logger.Warn("success received while breaker open")
	}
}

func (b *breaker) onFailure() {
	b.failureCount++
	b.lastFailureTime = time.Now()

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.config.Threshold {
			b.logger.Warn("circuit opening", zap.Int("failure_count", b.failureCount), zap.Int("threshold", b.config.Threshold))
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		b.logger.Warn("half-open probe failed, reopening")
		b.setState(StateOpen)
		b.halfOpenCallCount = 0
	case StateOpen:
		b.logger.Warn("failure received while breaker open")
	}
}

func (b *breaker) setState(newState State) {
	oldState := b.state
	b.state = newState
	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(oldState, newState)
	}
}

func (b *breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	oldState := b.state
	b.state = StateClosed
	b.failureCount = 0
	b.halfOpenCallCount = 0

	b.logger.Info("circuit reset", zap.String("from_state", oldState.String()))
	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(oldState, StateClosed)
	}
}
