package backup

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy governs per-task transfer attempts: exponential backoff with
// jitter, bounded attempts, and a longer base delay for quota throttles.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// Jitter is the fraction of the computed delay randomized away
	// (0.2 means the final delay lands in [0.8d, d]).
	Jitter float64
	// QuotaDelay replaces BaseDelay when the destination reports a quota
	// throttle; zero falls back to 4x BaseDelay.
	QuotaDelay time.Duration
}

// DefaultRetryPolicy mirrors the configured sync option defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   5 * time.Second,
		MaxDelay:    2 * time.Minute,
		Multiplier:  2.0,
		Jitter:      0.2,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 5 * time.Minute
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2.0
	}
	if p.QuotaDelay <= 0 {
		p.QuotaDelay = 4 * p.BaseDelay
	}
	return p
}

// Delay computes the backoff before attempt n (1-based: Delay(1) is the
// wait after the first failure). Quota throttles start from a longer base.
func (p RetryPolicy) Delay(attempt int, kind ErrorKind) time.Duration {
	p = p.withDefaults()

	base := p.BaseDelay
	if kind == KindQuota {
		base = p.QuotaDelay
	}

	d := float64(base) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		d -= rand.Float64() * p.Jitter * d
	}
	return time.Duration(d)
}

// attemptState is the explicit per-task retry state machine.
type attemptState int

const (
	statePending attemptState = iota
	stateAttempting
	stateSucceeded
	stateFailed
)

// Run drives op through the state machine until it succeeds, exhausts
// MaxAttempts, hits a non-retryable error, or ctx is cancelled. It returns
// the number of attempts made and the final error, if any.
func (p RetryPolicy) Run(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	p = p.withDefaults()

	state := statePending
	attempts := 0
	var lastErr error

	for state != stateSucceeded && state != stateFailed {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return attempts, lastErr
			}
			return attempts, err
		}

		state = stateAttempting
		attempts++
		err := op(ctx)
		if err == nil {
			state = stateSucceeded
			break
		}
		lastErr = err

		kind := ClassifyError(err)
		if !kind.Retryable() || attempts >= p.MaxAttempts {
			state = stateFailed
			break
		}

		select {
		case <-ctx.Done():
			return attempts, lastErr
		case <-time.After(p.Delay(attempts, kind)):
			state = statePending
		}
	}

	if state == stateFailed {
		return attempts, lastErr
	}
	return attempts, nil
}
