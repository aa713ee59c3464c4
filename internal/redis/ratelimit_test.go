package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg RateLimitConfig) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRateLimiter(client, cfg), mr
}

func TestRateLimiterBlocksAtLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t, RateLimitConfig{
		MessageLimit:  3,
		MessageWindow: time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.AllowMessage(ctx, "user-1")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !result.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if result.Remaining != 2-i {
			t.Fatalf("request %d: expected %d remaining, got %d", i, 2-i, result.Remaining)
		}
	}

	result, err := limiter.AllowMessage(ctx, "user-1")
	if err != nil {
		t.Fatalf("allow over limit: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected fourth request to be blocked")
	}
}

func TestRateLimiterIsolatesUsers(t *testing.T) {
	limiter, _ := newTestLimiter(t, RateLimitConfig{
		MessageLimit:  1,
		MessageWindow: time.Minute,
	})
	ctx := context.Background()

	if result, _ := limiter.AllowMessage(ctx, "user-1"); !result.Allowed {
		t.Fatal("first user should be allowed")
	}
	if result, _ := limiter.AllowMessage(ctx, "user-1"); result.Allowed {
		t.Fatal("first user should be blocked")
	}
	if result, _ := limiter.AllowMessage(ctx, "user-2"); !result.Allowed {
		t.Fatal("second user must have an independent quota")
	}
}

func TestRateLimiterWindowResets(t *testing.T) {
	limiter, mr := newTestLimiter(t, RateLimitConfig{
		ConnectLimit:  1,
		ConnectWindow: time.Minute,
	})
	ctx := context.Background()

	if result, _ := limiter.AllowConnect(ctx, "user-1"); !result.Allowed {
		t.Fatal("first connect should be allowed")
	}
	if result, _ := limiter.AllowConnect(ctx, "user-1"); result.Allowed {
		t.Fatal("second connect should be blocked")
	}

	mr.FastForward(61 * time.Second)

	if result, _ := limiter.AllowConnect(ctx, "user-1"); !result.Allowed {
		t.Fatal("connect should be allowed after the window expired")
	}
}

func TestRateLimiterResetUser(t *testing.T) {
	limiter, _ := newTestLimiter(t, RateLimitConfig{
		MessageLimit:  1,
		MessageWindow: time.Minute,
	})
	ctx := context.Background()

	if result, _ := limiter.AllowMessage(ctx, "user-1"); !result.Allowed {
		t.Fatal("first message should be allowed")
	}
	if err := limiter.ResetUser(ctx, "user-1"); err != nil {
		t.Fatalf("reset user: %v", err)
	}
	if result, _ := limiter.AllowMessage(ctx, "user-1"); !result.Allowed {
		t.Fatal("message should be allowed after reset")
	}
}
