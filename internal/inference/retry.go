package inference

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// Policy bounds retries. The wait before attempt n+1 is BaseDelay*n.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy allows 3 attempts with 1s then 2s between them.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

// Backoff returns the wait that follows the given failed attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return p.BaseDelay * time.Duration(attempt)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Retrying runs a single-attempt Invoker under a Policy.
type Retrying struct {
	inner  Invoker
	name   string
	policy Policy
	logger *zap.Logger
	sleep  SleepFunc
}

type RetryOption func(*Retrying)

func WithPolicy(p Policy) RetryOption {
	return func(r *Retrying) {
		if p.MaxAttempts > 0 {
			r.policy.MaxAttempts = p.MaxAttempts
		}
		if p.BaseDelay >= 0 {
			r.policy.BaseDelay = p.BaseDelay
		}
	}
}

func WithSleep(sleep SleepFunc) RetryOption {
	return func(r *Retrying) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// NewRetrying wraps inner. name identifies the backend in logs and errors.
func NewRetrying(inner Invoker, name string, logger *zap.Logger, opts ...RetryOption) (*Retrying, error) {
	if inner == nil {
		return nil, errors.New("inference: invoker must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Retrying{
		inner:  inner,
		name:   name,
		policy: DefaultPolicy(),
		logger: logger,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Send tries the wrapped backend until it succeeds or the policy is exhausted.
// Attempts never overlap: each backoff fully elapses before the next attempt.
func (r *Retrying) Send(ctx context.Context, prompt, model string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		reply, err := r.inner.Send(ctx, prompt, model)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		r.logger.Warn("backend attempt failed",
			zap.String("backend", r.name),
			zap.String("model", model),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.policy.MaxAttempts),
			zap.Error(err),
		)

		if attempt == r.policy.MaxAttempts {
			break
		}
		if sleepErr := r.sleep(ctx, r.policy.Backoff(attempt)); sleepErr != nil {
			return "", &BackendError{Backend: r.name, Attempts: attempt, Err: errors.Join(lastErr, sleepErr)}
		}
	}
	return "", &BackendError{Backend: r.name, Attempts: r.policy.MaxAttempts, Err: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
