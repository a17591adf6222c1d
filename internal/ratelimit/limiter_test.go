package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAcquirePacesPerService(t *testing.T) {
	t.Parallel()
	limiter := New(map[string]time.Duration{"oracle": 100 * time.Millisecond})

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := limiter.Acquire(ctx, "oracle"); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 180*time.Millisecond {
		t.Fatalf("three acquires should span two intervals, took %s", elapsed)
	}
}

func TestAcquireDoesNotBlockOtherServices(t *testing.T) {
	t.Parallel()
	limiter := New(map[string]time.Duration{
		"slow": time.Second,
		"fast": time.Millisecond,
	})

	ctx := context.Background()
	if err := limiter.Acquire(ctx, "slow"); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := limiter.Acquire(ctx, "fast"); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("fast service blocked behind slow one: %s", elapsed)
	}
}

func TestAcquireObservesCancellationWithinInterval(t *testing.T) {
	t.Parallel()
	limiter := New(map[string]time.Duration{"oracle": 10 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	if err := limiter.Acquire(ctx, "oracle"); err != nil {
		t.Fatal(err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := limiter.Acquire(ctx, "oracle")
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("cancellation observed too late: %s", elapsed)
	}
}

func TestBackoffDelaysNextAcquire(t *testing.T) {
	t.Parallel()
	limiter := New(map[string]time.Duration{"oracle": 50 * time.Millisecond})

	ctx := context.Background()
	if err := limiter.Acquire(ctx, "oracle"); err != nil {
		t.Fatal(err)
	}
	limiter.Backoff("oracle", 200*time.Millisecond)

	start := time.Now()
	if err := limiter.Acquire(ctx, "oracle"); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Fatalf("backoff not applied, waited only %s", elapsed)
	}
}
