// Package retry implements the runtime's retry loop: configurable delay
// strategies, jitter, and retryable/non-retryable error classification.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/types"
)

// DelayStrategy selects how the delay between attempts grows.
type DelayStrategy string

const (
	DelayFixed       DelayStrategy = "FIXED"
	DelayLinear      DelayStrategy = "LINEAR"
	DelayExponential DelayStrategy = "EXPONENTIAL"
	DelayFibonacci   DelayStrategy = "FIBONACCI"
)

// Policy configures a Retryer.
type Policy struct {
	MaxRetries      int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Strategy        DelayStrategy
	Multiplier      float64 // used by EXPONENTIAL only
	Jitter          bool
	RetryableErrors []error // empty means "use types.Error.Retryable / IsDeterministic"
	OnRetry         func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy returns the policy used for LLM/tool calls absent an
// explicit override.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Strategy:     DelayExponential,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

func (p *Policy) normalize() {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 1 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Strategy == "" {
		p.Strategy = DelayExponential
	}
	if p.Strategy == DelayExponential && p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}
}

// Attempt records one failed call within a Do/DoWithResult loop: its error
// and, when another call followed, the delay waited before it.
type Attempt struct {
	Number int
	Err    error
	Delay  time.Duration
}

// Result is the full record of a retried operation, returned alongside the
// error so callers can surface how many attempts an operation took.
type Result struct {
	Attempts []Attempt
	Value    any
	Err      error
}

// Retryer executes a function under a Policy.
type Retryer interface {
	Do(ctx context.Context, opKey string, fn func() error) error
	DoWithResult(ctx context.Context, opKey string, fn func() (any, error)) (*Result, error)
}

type retryer struct {
	policy *Policy
	logger *zap.Logger
}

// New creates a Retryer. A nil policy falls back to DefaultPolicy.
func New(policy *Policy, logger *zap.Logger) Retryer {
	if policy == nil {
		policy = DefaultPolicy()
	}
	policy.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &retryer{policy: policy, logger: logger.With(zap.String("component", "retry"))}
}

func (r *retryer) Do(ctx context.Context, opKey string, fn func() error) error {
	_, err := r.DoWithResult(ctx, opKey, func() (any, error) {
		return nil, fn()
	})
	return err
}

func (r *retryer) DoWithResult(ctx context.Context, opKey string, fn func() (any, error)) (*Result, error) {
	res := &Result{}
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.calculateDelay(attempt)
			res.Attempts[len(res.Attempts)-1].Delay = delay

			r.logger.Debug("retrying",
				zap.String("op", opKey),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", r.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)

			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}

			select {
			case <-ctx.Done():
				res.Err = fmt.Errorf("retry cancelled for %s: %w", opKey, ctx.Err())
				return res, res.Err
			case <-time.After(delay):
			}
		}

		var value any
		value, lastErr = fn()

		if lastErr == nil {
			res.Value = value
			if attempt > 0 {
				r.logger.Info("retry succeeded", zap.String("op", opKey), zap.Int("attempt", attempt))
			}
			return res, nil
		}
		res.Attempts = append(res.Attempts, Attempt{Number: attempt, Err: lastErr})

		if !r.isRetryable(lastErr) {
			r.logger.Debug("error not retryable", zap.String("op", opKey), zap.Error(lastErr))
			res.Err = lastErr
			return res, lastErr
		}

		if attempt >= r.policy.MaxRetries {
			break
		}
	}

	r.logger.Warn("retries exhausted",
		zap.String("op", opKey),
		zap.Int("attempts", r.policy.MaxRetries+1),
		zap.Error(lastErr),
	)
	res.Err = fmt.Errorf("failed after %d retries for %s: %w", r.policy.MaxRetries, opKey, lastErr)
	return res, res.Err
}

func (r *retryer) calculateDelay(attempt int) time.Duration {
	initial := float64(r.policy.InitialDelay)
	var delay float64

	switch r.policy.Strategy {
	case DelayFixed:
		delay = initial
	case DelayLinear:
		delay = initial * float64(attempt)
	case DelayFibonacci:
		delay = initial * float64(fibonacci(attempt))
	default: // DelayExponential
		delay = initial * math.Pow(r.policy.Multiplier, float64(attempt-1))
	}

	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}

	if r.policy.Jitter {
		jitter := delay * 0.25
		delay += (rand.Float64()*2 - 1) * jitter
	}

	if delay < initial {
		delay = initial
	}

	return time.Duration(delay)
}

func fibonacci(n int) int {
	if n <= 1 {
		return 1
	}
	a, b := 1, 1
	for i := 2; i <= n; i++ {
		a, b = b, a+b
	}
	return b
}

// isRetryable decides whether err should trigger another attempt. A
// types.Error with IsDeterministic(code) never retries regardless of the
// policy's RetryableErrors list; otherwise an explicit list narrows
// eligibility, and an empty list defers to types.Error.Retryable (or
// retries any plain error, since callers without a structured error have no
// other signal).
func (r *retryer) isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if code := types.GetErrorCode(err); code != "" && types.IsDeterministic(code) {
		return false
	}

	if len(r.policy.RetryableErrors) > 0 {
		for _, candidate := range r.policy.RetryableErrors {
			if errors.Is(err, candidate) {
				return true
			}
		}
		return false
	}

	if terr, ok := err.(*types.Error); ok {
		return terr.Retryable
	}

	return true
}
