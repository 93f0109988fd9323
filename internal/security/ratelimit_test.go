package security

import (
	"errors"
	"testing"
	"time"
)

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{MessagesPerMin: 3})
	for i := 0; i < 3; i++ {
		if err := rl.Allow("message"); err != nil {
			t.Fatalf("call %d unexpectedly limited: %v", i+1, err)
		}
	}
	if err := rl.Allow("message"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{MessagesPerMin: 1})
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return current }

	if err := rl.Allow("message"); err != nil {
		t.Fatalf("first call limited: %v", err)
	}
	if err := rl.Allow("message"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	current = current.Add(61 * time.Second)
	if err := rl.Allow("message"); err != nil {
		t.Fatalf("call after window limited: %v", err)
	}
}

func TestRateLimiter_UnknownKindUnlimited(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})
	for i := 0; i < 1000; i++ {
		if err := rl.Allow("other"); err != nil {
			t.Fatalf("unknown kind limited: %v", err)
		}
	}
}
