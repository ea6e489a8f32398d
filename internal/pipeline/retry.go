package pipeline

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net"
	"time"
)

// RetryPolicy decides whether and when a failed operation is retried.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
	MaxElapsed() time.Duration
}

// ExponentialRetryPolicy implements RetryPolicy with jittered backoff
// bounded by attempts, per-attempt delay, and total elapsed time.
type ExponentialRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxElapsed  time.Duration
}

// NewExponentialRetryPolicy builds a policy with sane defaults.
func NewExponentialRetryPolicy() *ExponentialRetryPolicy {
	return &ExponentialRetryPolicy{
		maxAttempts: 3,
		baseDelay:   250 * time.Millisecond,
		maxDelay:    5 * time.Second,
		maxElapsed:  2 * time.Minute,
	}
}

// NewRetryPolicy builds a policy with explicit bounds.
func NewRetryPolicy(maxAttempts int, baseDelay, maxDelay, maxElapsed time.Duration) *ExponentialRetryPolicy {
	return &ExponentialRetryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		maxElapsed:  maxElapsed,
	}
}

// ShouldRetry decides whether the error is retryable.
func (p *ExponentialRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Permanent conditions never heal on retry.
	if errors.Is(err, ErrFileTooLarge) || errors.Is(err, ErrUnknownExtractionType) ||
		errors.Is(err, ErrMissingBlob) || errors.Is(err, ErrNoDownload) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return true
}

// Backoff returns the wait duration before the next attempt.
func (p *ExponentialRetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := p.randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

// MaxElapsed bounds the total time spent across attempts.
func (p *ExponentialRetryPolicy) MaxElapsed() time.Duration {
	return p.maxElapsed
}

func (p *ExponentialRetryPolicy) randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// Retry runs fn under the policy, sleeping between attempts, until fn
// succeeds, the policy gives up, or the elapsed budget is spent.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	start := time.Now()
	attempt := 0
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !policy.ShouldRetry(err, attempt) {
			return err
		}
		if max := policy.MaxElapsed(); max > 0 && time.Since(start) >= max {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.Backoff(attempt)):
		}
		attempt++
	}
}
