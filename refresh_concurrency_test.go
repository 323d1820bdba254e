package tokengate

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// One refresh token presented by many goroutines at once: exactly one caller
// may win the rotation, and only the winner's new token may be live.
func TestConcurrentRefreshSingleWinner(t *testing.T) {
	engine, _, _ := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	registered, err := engine.Register(ctx, "alice@example.com", "a strong secret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	contested := registered.Tokens.RefreshToken

	const workers = 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)

	type outcome struct {
		pair *TokenPair
		err  error
	}
	results := make(chan outcome, workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			pair, err := engine.Refresh(ctx, contested)
			results <- outcome{pair: pair, err: err}
		}()
	}

	close(start)
	wg.Wait()
	close(results)

	var winner *TokenPair
	winners := 0
	for res := range results {
		switch {
		case res.err == nil:
			winners++
			winner = res.pair
		case errors.Is(res.err, ErrRefreshNotFound):
		default:
			t.Fatalf("unexpected refresh error: %v", res.err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}

	// The contested token is dead; the winner's token chains.
	if _, err := engine.Refresh(ctx, contested); !errors.Is(err, ErrRefreshNotFound) {
		t.Fatalf("contested token err = %v, want ErrRefreshNotFound", err)
	}
	if _, err := engine.Refresh(ctx, winner.RefreshToken); err != nil {
		t.Fatalf("winner's token failed to refresh: %v", err)
	}
}
