package unifiedllm

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy configures retry behavior with exponential backoff.
type RetryPolicy struct {
	MaxRetries        int           // retry attempts, not counting the first call
	BaseDelay         time.Duration // delay before the first retry
	MaxDelay          time.Duration // cap on any single delay
	BackoffMultiplier float64
	Jitter            bool // scale each delay by a random factor in [0.5, 1.5)
	OnRetry           func(err error, attempt int, delay time.Duration)
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         time.Second,
		MaxDelay:          60 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// Delay calculates the delay for attempt n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := math.Min(float64(p.BaseDelay)*math.Pow(p.BackoffMultiplier, float64(attempt)), float64(p.MaxDelay))
	if p.Jitter {
		delay *= 0.5 + rand.Float64()
	}
	return time.Duration(delay)
}

// Retry calls fn, retrying retryable errors according to policy. A
// Retry-After hint on a rate limit error replaces the computed delay; a hint
// longer than MaxDelay ends the retries.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result, err := fn(ctx)
	if err == nil {
		return result, nil
	}

	for attempt := 0; attempt < policy.MaxRetries; attempt++ {
		if !IsRetryable(err) {
			return zero, err
		}

		delay := policy.Delay(attempt)
		var rl *RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter != nil {
			retryDelay := time.Duration(*rl.RetryAfter * float64(time.Second))
			if retryDelay > policy.MaxDelay {
				return zero, err
			}
			delay = retryDelay
		}

		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, &AbortError{SDKError: SDKError{Message: "request cancelled during retry", Cause: ctx.Err()}}
		case <-timer.C:
		}

		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}
	}

	return zero, err
}
