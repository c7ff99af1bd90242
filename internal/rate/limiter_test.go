package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client, Config{Limit: limit, Window: window}), mr
}

func TestCheckAllowsUpToLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.Check(ctx, "login:1.2.3.4"); err != nil {
			t.Fatalf("Check %d: %v", i+1, err)
		}
	}

	if err := limiter.Check(ctx, "login:1.2.3.4"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Check over limit = %v, want ErrRateLimited", err)
	}
}

func TestCheckKeysAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	if err := limiter.Check(ctx, "login:1.2.3.4"); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if err := limiter.Check(ctx, "login:5.6.7.8"); err != nil {
		t.Fatalf("Check other key: %v", err)
	}
	if err := limiter.Check(ctx, "login:1.2.3.4"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Check = %v, want ErrRateLimited", err)
	}
}

func TestWindowExpiryResetsBudget(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	if err := limiter.Check(ctx, "reset:user"); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if err := limiter.Check(ctx, "reset:user"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Check = %v, want ErrRateLimited", err)
	}

	mr.FastForward(61 * time.Second)

	if err := limiter.Check(ctx, "reset:user"); err != nil {
		t.Fatalf("Check after window: %v", err)
	}
}

func TestResetForgivesKey(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	if err := limiter.Check(ctx, "login:u1"); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if err := limiter.Reset(ctx, "login:u1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := limiter.Check(ctx, "login:u1"); err != nil {
		t.Fatalf("Check after reset: %v", err)
	}
}

func TestZeroLimitDisablesGate(t *testing.T) {
	limiter, _ := newTestLimiter(t, 0, time.Minute)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := limiter.Check(ctx, "anything"); err != nil {
			t.Fatalf("Check: %v", err)
		}
	}
}
