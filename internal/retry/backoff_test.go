package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(max int) Config {
	return Config{MaxRetries: max, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Multiplier: 2}
}

func TestWithExponentialBackoff_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	err := WithExponentialBackoff(context.Background(), fastConfig(5), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary failure")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithExponentialBackoff_ExhaustsRetries(t *testing.T) {
	attempts := 0
	base := errors.New("down")
	err := WithExponentialBackoff(context.Background(), fastConfig(2), func(ctx context.Context) error {
		attempts++
		return base
	})
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped base error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithExponentialBackoff_PermanentStopsImmediately(t *testing.T) {
	attempts := 0
	base := errors.New("unauthorized")
	err := WithExponentialBackoff(context.Background(), fastConfig(5), func(ctx context.Context) error {
		attempts++
		return Permanent(base)
	})
	if err != base {
		t.Fatalf("expected unwrapped permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
	if !IsPermanent(Permanent(base)) || IsPermanent(base) {
		t.Fatalf("IsPermanent mismatch")
	}
}

func TestWithExponentialBackoff_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := Config{MaxRetries: -1, InitialBackoff: time.Second, MaxBackoff: time.Second, Multiplier: 2}
	err := WithExponentialBackoff(ctx, cfg, func(ctx context.Context) error { return errors.New("x") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := Config{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2}
	cases := []struct {
		n    int
		want time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{5, time.Second},
	}
	for _, c := range cases {
		if got := calculateBackoff(c.n, cfg); got != c.want {
			t.Fatalf("calculateBackoff(%d)=%v want %v", c.n, got, c.want)
		}
	}
	cfg.Jitter = true
	for i := 0; i < 50; i++ {
		d := calculateBackoff(2, cfg)
		if d < 150*time.Millisecond || d > 250*time.Millisecond {
			t.Fatalf("jittered backoff out of range: %v", d)
		}
	}
}
