package ratelimit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sophialabs/tripmatch/internal/infrastructure/outbound/ratelimit"
)

func wait(t *testing.T, store *ratelimit.TokenBucketStore, key string, r float64, burst int) {
	t.Helper()
	if err := store.Wait(context.Background(), key, r, burst); err != nil {
		t.Fatalf("Wait(%s) returned error: %v", key, err)
	}
}

func TestTokenBucketStore_WaitWithinBurst(t *testing.T) {
	store := ratelimit.NewTokenBucketStore(time.Minute)
	defer store.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	for i := range 3 {
		if err := store.Wait(ctx, "CAN", 1, 3); err != nil {
			t.Errorf("read %d should pass within burst: %v", i+1, err)
		}
	}
}

func TestTokenBucketStore_OverBurstWaitsPastDeadline(t *testing.T) {
	store := ratelimit.NewTokenBucketStore(time.Minute)
	defer store.Stop()

	for range 5 {
		wait(t, store, "CAN", 1, 5)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := store.Wait(ctx, "CAN", 1, 5); err == nil {
		t.Error("read over burst should not fit before the deadline")
	}
}

func TestTokenBucketStore_PerKeyIsolation(t *testing.T) {
	store := ratelimit.NewTokenBucketStore(time.Minute)
	defer store.Stop()

	for range 2 {
		wait(t, store, "CAN", 1, 2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := store.Wait(ctx, "GPS", 1, 2); err != nil {
		t.Errorf("GPS should pass (separate from CAN): %v", err)
	}
}

func TestTokenBucketStore_UnlimitedWhenRateZero(t *testing.T) {
	store := ratelimit.NewTokenBucketStore(time.Minute)
	defer store.Stop()

	for range 100 {
		if err := store.Wait(context.Background(), "CAN", 0, 0); err != nil {
			t.Fatalf("Wait returned error: %v", err)
		}
	}
	if store.Len() != 0 {
		t.Errorf("unlimited waits should not allocate limiters, got %d", store.Len())
	}
}

func TestTokenBucketStore_WaitCancelled(t *testing.T) {
	store := ratelimit.NewTokenBucketStore(time.Minute)
	defer store.Stop()

	// Drain the single token, then wait with a cancelled context.
	wait(t, store, "BEACON", 0.001, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Wait(ctx, "BEACON", 0.001, 1)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestTokenBucketStore_Len(t *testing.T) {
	store := ratelimit.NewTokenBucketStore(time.Minute)
	defer store.Stop()

	wait(t, store, "a", 1000, 1)
	wait(t, store, "b", 1000, 1)
	wait(t, store, "a", 1000, 1)

	if store.Len() != 2 {
		t.Errorf("expected 2 limiters, got %d", store.Len())
	}
}

func TestTokenBucketStore_Evict(t *testing.T) {
	store := ratelimit.NewTokenBucketStore(1 * time.Millisecond)
	defer store.Stop()

	wait(t, store, "old", 1, 1)
	time.Sleep(10 * time.Millisecond)
	store.Evict()

	if store.Len() != 0 {
		t.Errorf("expected 0 limiters after eviction, got %d", store.Len())
	}
}

func TestTokenBucketStore_StopIdempotent(t *testing.T) {
	store := ratelimit.NewTokenBucketStore(time.Minute)
	store.Stop()
	store.Stop()
}

func TestTokenBucketStore_ConcurrentWait(t *testing.T) {
	store := ratelimit.NewTokenBucketStore(time.Minute)
	defer store.Stop()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Wait(context.Background(), "STABILITY", 1000, 50); err != nil {
				t.Errorf("Wait returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	if store.Len() != 1 {
		t.Errorf("expected 1 limiter, got %d", store.Len())
	}
}
