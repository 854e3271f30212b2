package model

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"
)

func TestComputeBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	maxDelay := time.Second

	t.Run("grows exponentially within jitter", func(t *testing.T) {
		rng := rand.New(rand.NewSource(42))
		for attempt, floor := range []time.Duration{100, 200, 400, 800} {
			floor *= time.Millisecond
			got := computeBackoff(attempt, base, maxDelay, rng)
			if got < floor || got >= floor+base {
				t.Errorf("attempt %d: delay %v not in [%v, %v)", attempt, got, floor, floor+base)
			}
		}
	})

	t.Run("caps at max delay", func(t *testing.T) {
		got := computeBackoff(10, base, maxDelay, rand.New(rand.NewSource(1)))
		if got < maxDelay || got >= maxDelay+base {
			t.Errorf("delay %v not capped near %v", got, maxDelay)
		}
	})

	t.Run("same seed is deterministic", func(t *testing.T) {
		a := computeBackoff(2, base, maxDelay, rand.New(rand.NewSource(7)))
		b := computeBackoff(2, base, maxDelay, rand.New(rand.NewSource(7)))
		if a != b {
			t.Errorf("delays differ: %v vs %v", a, b)
		}
	})

	t.Run("zero base means no wait", func(t *testing.T) {
		if got := computeBackoff(3, 0, maxDelay, nil); got != 0 {
			t.Errorf("delay = %v, want 0", got)
		}
	})
}

func TestRetryPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		wantErr bool
	}{
		{"default", DefaultRetryPolicy(), false},
		{"zero attempts", RetryPolicy{MaxAttempts: 0}, true},
		{"max below base", RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: time.Millisecond}, true},
		{"no delays", RetryPolicy{MaxAttempts: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRetryPolicy) {
				t.Errorf("expected ErrInvalidRetryPolicy, got %v", err)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("anthropic: status 529: overloaded_error"), true},
		{errors.New("openai: status 429: Rate limit reached"), true},
		{errors.New("connection reset by peer"), true},
		{errors.New("status 400: invalid_request_error"), false},
		{errors.New("model API key is required"), false},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRetryPolicy_ContextErrorsNeverRetry(t *testing.T) {
	rp := RetryPolicy{MaxAttempts: 3, Retryable: func(error) bool { return true }}
	if rp.retryable(context.Canceled) {
		t.Error("context.Canceled must not be retried")
	}
	if rp.retryable(context.DeadlineExceeded) {
		t.Error("context.DeadlineExceeded must not be retried")
	}
}
