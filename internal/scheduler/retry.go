package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// ErrRetriesExhausted is returned by RetryPolicy.Do once MaxAttempts were used up.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryPolicy is a bounded retry schedule. With Multiplier <= 1 the delay is
// constant, otherwise it grows by Multiplier per attempt up to MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	Jitter      time.Duration
}

// NextBackoff returns the wait before the next attempt after `attempt` attempts
// were made, and false when no attempts remain.
func (p RetryPolicy) NextBackoff(attempt int) (time.Duration, bool) {
	if p.MaxAttempts <= 0 || attempt >= p.MaxAttempts {
		return 0, false
	}
	backoff := p.Delay
	if p.Multiplier > 1 {
		f := float64(p.Delay)
		for i := 1; i < attempt; i++ {
			f *= p.Multiplier
		}
		backoff = time.Duration(f)
	}
	if p.MaxDelay > 0 && backoff > p.MaxDelay {
		backoff = p.MaxDelay
	}
	if p.Jitter > 0 {
		backoff += time.Duration(rand.Int64N(int64(p.Jitter) + 1))
	}
	return backoff, true
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, attempts run out or ctx ends.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err

		wait, ok := p.NextBackoff(attempt)
		if !ok {
			return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, lastErr)
		}
		if err := sleep(ctx, wait); err != nil {
			return fmt.Errorf("%w: %w", err, lastErr)
		}
	}
}

// WaitFor polls cond until it holds or the attempts run out.
func (p RetryPolicy) WaitFor(ctx context.Context, cond func() bool) bool {
	err := p.Do(ctx, func(context.Context, int) error {
		if cond() {
			return nil
		}
		return errConditionFalse
	})
	return err == nil
}

var errConditionFalse = errors.New("condition not met")

func sleep(ctx context.Context, d time.Duration) error {
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
