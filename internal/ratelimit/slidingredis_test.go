package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLimiterAllowSlidingWindow(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	limiter := Limiter{Client: client, Prefix: "ratelimit:orders:"}

	ctx := context.Background()
	window := 2 * time.Second
	max := 2

	for i := 0; i < max; i++ {
		allowed, remaining, _, err := limiter.Allow(ctx, "cart-1", window, max)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !allowed {
			t.Fatalf("expected submission %d to be allowed", i)
		}
		if remaining != max-(i+1) {
			t.Fatalf("unexpected remaining: %d", remaining)
		}
	}

	for i := 0; i < 3; i++ {
		allowed, remaining, reset, err := limiter.Allow(ctx, "cart-1", window, max)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if allowed {
			t.Fatal("expected submission over the limit to be rejected")
		}
		if remaining != 0 {
			t.Fatalf("expected remaining 0, got %d", remaining)
		}
		if reset.After(time.Now().Add(window)) {
			t.Fatalf("reset %v lies beyond the window", reset)
		}
	}

	members, err := client.ZCard(ctx, "ratelimit:orders:cart-1").Result()
	if err != nil {
		t.Fatalf("zcard: %v", err)
	}
	if members != int64(max) {
		t.Fatalf("rejected attempts must not be counted, got %d entries", members)
	}

	mr.FastForward(window)

	allowed, _, _, err := limiter.Allow(ctx, "cart-1", window, max)
	if err != nil {
		t.Fatalf("allow after window: %v", err)
	}
	if !allowed {
		t.Fatal("expected submission after window to be allowed")
	}
}

func TestLimiterWithoutClientAllows(t *testing.T) {
	allowed, remaining, _, err := Limiter{}.Allow(context.Background(), "k", time.Second, 3)
	if err != nil || !allowed || remaining != 3 {
		t.Fatalf("expected pass-through, got allowed=%v remaining=%d err=%v", allowed, remaining, err)
	}
}
