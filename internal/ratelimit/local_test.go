package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLocalLimiterBurstThenBlock(t *testing.T) {
	limiter, err := NewLocalLimiter(2, time.Minute)
	if err != nil {
		t.Fatalf("new local limiter: %v", err)
	}
	t.Cleanup(func() { _ = limiter.Close() })
	ctx := context.Background()

	if !limiter.Allow(ctx, "203.0.113.5") || !limiter.Allow(ctx, "203.0.113.5") {
		t.Fatalf("burst attempts should pass")
	}
	if limiter.Allow(ctx, "203.0.113.5") {
		t.Fatalf("attempt over burst should be blocked")
	}
	if !limiter.Allow(ctx, "198.51.100.7") {
		t.Fatalf("other clients keep their own bucket")
	}
}

func TestLocalLimiterRefills(t *testing.T) {
	limiter, err := NewLocalLimiter(1, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("new local limiter: %v", err)
	}
	t.Cleanup(func() { _ = limiter.Close() })
	ctx := context.Background()

	if !limiter.Allow(ctx, "ip-1") {
		t.Fatalf("first attempt should pass")
	}
	if limiter.Allow(ctx, "ip-1") {
		t.Fatalf("second attempt should be blocked")
	}
	time.Sleep(40 * time.Millisecond)
	if !limiter.Allow(ctx, "ip-1") {
		t.Fatalf("bucket should refill after the interval")
	}
}

func TestNewLocalLimiterValidation(t *testing.T) {
	if _, err := NewLocalLimiter(0, time.Minute); err == nil {
		t.Fatalf("expected error for zero limit")
	}
	var nilLimiter *LocalLimiter
	if nilLimiter.Allow(context.Background(), "ip") {
		t.Fatalf("nil limiter must deny")
	}
}
