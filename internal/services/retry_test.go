package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIsRetriable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("server returned 503"), true},
		{errors.New("dial tcp: connection refused"), true},
		{context.DeadlineExceeded, true},
		{Wrap(ErrTransient, "oracle", "lookup", "flaky", nil), true},
		{Wrap(ErrNotFound, "oracle", "lookup", "missing", nil), false},
		{Wrap(ErrRateLimited, "oracle", "lookup", "throttled", nil), false},
		{errors.New("parse failure"), false},
	}
	for _, tc := range cases {
		if got := IsRetriable(tc.err); got != tc.want {
			t.Errorf("IsRetriable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return Wrap(ErrNotFound, "oracle", "lookup", "missing", nil)
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("permanent error should not retry, got %d calls", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	t.Parallel()
	calls := 0
	start := time.Now()
	err := Retry(context.Background(), func() error {
		calls++
		return Wrap(ErrTransient, "oracle", "lookup", "flaky", nil)
	})
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	if calls != MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", MaxAttempts, calls)
	}
	if time.Since(start) < InitialBackoff {
		t.Fatal("expected backoff between attempts")
	}
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	err := Retry(ctx, func() error {
		calls++
		return Wrap(ErrTransient, "oracle", "lookup", "flaky", nil)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt before cancellation, got %d", calls)
	}
}

func TestWrapIncludesContext(t *testing.T) {
	err := Wrap(ErrValidation, "organize", "move", "bad path", errors.New("boom"))
	if !errors.Is(err, ErrValidation) {
		t.Fatal("marker lost")
	}
	message := err.Error()
	for _, fragment := range []string{"organize", "move", "bad path", "boom"} {
		if !strings.Contains(message, fragment) {
			t.Fatalf("message %q missing %q", message, fragment)
		}
	}
}
