package pipeline

import "testing"

func TestThrottleBoundsEmissions(t *testing.T) {
	const total = 1000
	throttle := newThrottler(total)

	emitted := 0
	lastEmitted := 0
	for completed := 1; completed <= total; completed++ {
		if throttle.shouldEmit(completed) {
			emitted++
			lastEmitted = completed
		}
	}

	// A fast loop stays within the 1% budget plus a handful of time-based
	// slots.
	if emitted > 110 {
		t.Fatalf("throttle allowed %d events for %d items", emitted, total)
	}
	if lastEmitted != total {
		t.Fatalf("final event must always be emitted, last was %d", lastEmitted)
	}
}

func TestThrottleSmallBatchEmitsEverything(t *testing.T) {
	throttle := newThrottler(3)
	for completed := 1; completed <= 3; completed++ {
		if !throttle.shouldEmit(completed) {
			t.Fatalf("small batches emit every step, %d suppressed", completed)
		}
	}
}

func TestThrottleFinalAlwaysEmits(t *testing.T) {
	throttle := newThrottler(500)
	// Drain the time budget first.
	throttle.shouldEmit(1)
	if !throttle.shouldEmit(500) {
		t.Fatal("completed=total must always emit")
	}
}
