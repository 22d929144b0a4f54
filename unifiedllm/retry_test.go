package unifiedllm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:        maxRetries,
		BaseDelay:         time.Millisecond,
		BackoffMultiplier: 1,
		MaxDelay:          time.Millisecond,
	}
}

func serverErr() error {
	return &ServerError{ProviderError: ProviderError{SDKError: SDKError{Message: "server error"}, Retryable: true}}
}

func TestRetryPolicyDelay(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:         time.Second,
		BackoffMultiplier: 2.0,
		MaxDelay:          60 * time.Second,
	}

	for i, expected := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second} {
		if got := policy.Delay(i); got != expected {
			t.Errorf("attempt %d: expected %v, got %v", i, expected, got)
		}
	}
	if got := policy.Delay(10); got != 60*time.Second {
		t.Errorf("expected delay capped at 60s, got %v", got)
	}
}

func TestRetryPolicyDelayWithJitter(t *testing.T) {
	policy := DefaultRetryPolicy()
	for range 100 {
		got := policy.Delay(0)
		if got < 500*time.Millisecond || got >= 1500*time.Millisecond {
			t.Fatalf("jittered delay out of range: %v", got)
		}
	}
}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	var attempts []int
	policy := fastPolicy(3)
	policy.OnRetry = func(_ error, attempt int, _ time.Duration) {
		attempts = append(attempts, attempt)
	}

	calls := 0
	result, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", serverErr()
		}
		return "success", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "success" || calls != 3 {
		t.Errorf("got %q after %d calls", result, calls)
	}
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("unexpected OnRetry attempts: %v", attempts)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		return "", fmt.Errorf("calling provider: %w", &AuthenticationError{})
	})
	var auth *AuthenticationError
	if !errors.As(err, &auth) {
		t.Fatalf("expected wrapped AuthenticationError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryExhausted(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(2), func(ctx context.Context) (int, error) {
		calls++
		return 0, serverErr()
	})
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if calls != 3 { // 1 initial + 2 retries
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryHonorsRetryAfter(t *testing.T) {
	policy := fastPolicy(1)
	policy.MaxDelay = time.Second

	tooLong := 5.0
	calls := 0
	_, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		return "", &RateLimitError{ProviderError: ProviderError{Retryable: true, RetryAfter: &tooLong}}
	})
	if err == nil || calls != 1 {
		t.Errorf("expected immediate failure when Retry-After exceeds MaxDelay, calls=%d err=%v", calls, err)
	}

	var gotDelay time.Duration
	short := 0.01
	policy.OnRetry = func(_ error, _ int, d time.Duration) { gotDelay = d }
	calls = 0
	_, _ = Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		return "", &RateLimitError{ProviderError: ProviderError{Retryable: true, RetryAfter: &short}}
	})
	if gotDelay != 10*time.Millisecond {
		t.Errorf("expected Retry-After delay of 10ms, got %v", gotDelay)
	}
}

func TestRetryCancelled(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 5, BaseDelay: time.Second, BackoffMultiplier: 1, MaxDelay: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	calls := 0
	_, err := Retry(ctx, policy, func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("always fails")
	})
	var abort *AbortError
	if !errors.As(err, &abort) {
		t.Fatalf("expected AbortError, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected abort to wrap context.Canceled")
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.MaxRetries != 2 || p.BaseDelay != time.Second || p.MaxDelay != time.Minute {
		t.Errorf("unexpected default policy: %+v", p)
	}
	if p.BackoffMultiplier != 2.0 || !p.Jitter {
		t.Errorf("unexpected default backoff: %+v", p)
	}
}
