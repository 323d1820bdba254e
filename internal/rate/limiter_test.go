package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiterTest(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return New(rdb, cfg), mr
}

func TestLoginBudget(t *testing.T) {
	limiter, _ := newLimiterTest(t, Config{
		MaxLoginAttempts:      3,
		LoginCooldownDuration: time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.CheckLogin(ctx, "alice", ""); err != nil {
			t.Fatalf("CheckLogin attempt %d: %v", i+1, err)
		}
		if err := limiter.IncrementLogin(ctx, "alice", ""); err != nil {
			t.Fatalf("IncrementLogin attempt %d: %v", i+1, err)
		}
	}

	if err := limiter.CheckLogin(ctx, "alice", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("CheckLogin after budget spent = %v, want ErrRateLimited", err)
	}

	// Other identifiers are unaffected.
	if err := limiter.CheckLogin(ctx, "bob", ""); err != nil {
		t.Fatalf("CheckLogin for other identifier: %v", err)
	}
}

func TestResetLoginClearsCounter(t *testing.T) {
	limiter, _ := newLimiterTest(t, Config{
		MaxLoginAttempts:      2,
		LoginCooldownDuration: time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = limiter.IncrementLogin(ctx, "alice", "")
	}
	if err := limiter.CheckLogin(ctx, "alice", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("CheckLogin = %v, want ErrRateLimited", err)
	}

	if err := limiter.ResetLogin(ctx, "alice", ""); err != nil {
		t.Fatalf("ResetLogin: %v", err)
	}
	if err := limiter.CheckLogin(ctx, "alice", ""); err != nil {
		t.Fatalf("CheckLogin after reset: %v", err)
	}

	attempts, err := limiter.LoginAttempts(ctx, "alice")
	if err != nil || attempts != 0 {
		t.Fatalf("LoginAttempts = (%d, %v), want (0, nil)", attempts, err)
	}
}

func TestWindowExpires(t *testing.T) {
	limiter, mr := newLimiterTest(t, Config{
		MaxLoginAttempts:      1,
		LoginCooldownDuration: time.Minute,
	})
	ctx := context.Background()

	if err := limiter.IncrementLogin(ctx, "alice", ""); err != nil {
		t.Fatalf("IncrementLogin: %v", err)
	}
	if err := limiter.CheckLogin(ctx, "alice", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("CheckLogin = %v, want ErrRateLimited", err)
	}

	mr.FastForward(2 * time.Minute)

	if err := limiter.CheckLogin(ctx, "alice", ""); err != nil {
		t.Fatalf("CheckLogin after window: %v", err)
	}
}

func TestIPThrottle(t *testing.T) {
	limiter, _ := newLimiterTest(t, Config{
		EnableIPThrottle:      true,
		MaxLoginAttempts:      2,
		LoginCooldownDuration: time.Minute,
	})
	ctx := context.Background()

	// Spread failures across identifiers from one address.
	_ = limiter.IncrementLogin(ctx, "alice", "10.0.0.1")
	_ = limiter.IncrementLogin(ctx, "bob", "10.0.0.1")

	if err := limiter.CheckLogin(ctx, "carol", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("CheckLogin from throttled IP = %v, want ErrRateLimited", err)
	}
	if err := limiter.CheckLogin(ctx, "carol", "10.0.0.2"); err != nil {
		t.Fatalf("CheckLogin from fresh IP: %v", err)
	}
}
