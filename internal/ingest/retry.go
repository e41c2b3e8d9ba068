package ingest

import (
	"time"
)

// BackoffShape selects how the delay between save attempts grows.
type BackoffShape string

const (
	// BackoffExp doubles the base delay after each failed attempt.
	BackoffExp BackoffShape = "exp"
	// BackoffFixed waits the same delay between every attempt.
	BackoffFixed BackoffShape = "fixed"
)

// RetryPolicy bounds the persist retries of a single submission. Only the
// save step retries; validation and publish never do.
type RetryPolicy struct {
	Shape       BackoffShape
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
	Cap         time.Duration
}

// ExponentialPolicy is the default retry policy.
func ExponentialPolicy() RetryPolicy {
	return RetryPolicy{Shape: BackoffExp, MaxAttempts: 3, BaseDelay: time.Second, Factor: 2.0, Cap: 30 * time.Second}
}

// FixedPolicy is the alternative fixed-delay policy.
func FixedPolicy() RetryPolicy {
	return RetryPolicy{Shape: BackoffFixed, MaxAttempts: 5, BaseDelay: 3 * time.Second}
}

// Delay returns the wait before the given retry. attempt counts failed
// attempts so far, starting at 1.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 || attempt <= 0 {
		return 0
	}
	if p.Shape == BackoffFixed {
		return p.BaseDelay
	}
	factor := p.Factor
	if factor <= 1 {
		factor = 2.0
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * factor)
		if p.Cap > 0 && d >= p.Cap {
			return p.Cap
		}
	}
	if p.Cap > 0 && d > p.Cap {
		return p.Cap
	}
	return d
}
