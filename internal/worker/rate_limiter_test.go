package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testLimiter(t *testing.T, limits map[string]RateLimit) *RateLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRateLimiter(client, limits)
}

func TestRateLimiterAllowsWithinLimit(t *testing.T) {
	rl := testLimiter(t, map[string]RateLimit{
		"prov": {PerSecond: 5, PerMinute: 100, PerDay: 1000},
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, _, err := rl.Allow(ctx, "prov", 1)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("send %d denied within the per-second limit", i)
		}
	}

	ok, wait, err := rl.Allow(ctx, "prov", 1)
	if err != nil {
		t.Fatalf("allow over limit: %v", err)
	}
	if ok {
		t.Fatal("sixth send should be denied")
	}
	if wait != time.Second {
		t.Fatalf("wait = %v, want 1s for a per-second denial", wait)
	}
}

func TestRateLimiterDenialDoesNotConsume(t *testing.T) {
	rl := testLimiter(t, map[string]RateLimit{
		"prov": {PerSecond: 10, PerMinute: 3, PerDay: 1000},
	})
	ctx := context.Background()

	if ok, _, _ := rl.Allow(ctx, "prov", 3); !ok {
		t.Fatal("batch of 3 should pass")
	}
	if ok, _, _ := rl.Allow(ctx, "prov", 1); ok {
		t.Fatal("minute window is full")
	}

	usage, err := rl.Usage(ctx, "prov")
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if usage["minute"] != 3 {
		t.Fatalf("minute counter = %d, denial must not increment", usage["minute"])
	}
}

func TestRateLimiterDailyLimitIsError(t *testing.T) {
	rl := testLimiter(t, map[string]RateLimit{
		"prov": {PerSecond: 100, PerMinute: 100, PerDay: 2},
	})
	ctx := context.Background()

	if ok, _, _ := rl.Allow(ctx, "prov", 2); !ok {
		t.Fatal("first two should pass")
	}
	if _, _, err := rl.Allow(ctx, "prov", 1); err == nil {
		t.Fatal("daily exhaustion should be an error, waiting cannot help")
	}
}

func TestRateLimiterUnknownProviderUsesDefault(t *testing.T) {
	rl := testLimiter(t, nil)
	ok, _, err := rl.Allow(context.Background(), "never-configured", 1)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !ok {
		t.Fatal("default limits should admit a single send")
	}
}
