package fingerprint

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tagflow/internal/logging"
	"tagflow/internal/store"
)

type fakeExtractor struct {
	mu       sync.Mutex
	calls    atomic.Int64
	delay    time.Duration
	failWith map[string]error
}

func (f *fakeExtractor) Extract(ctx context.Context, path string) (string, float64, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return "", 0, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	f.mu.Lock()
	err := f.failWith[path]
	f.mu.Unlock()
	if err != nil {
		return "", 0, err
	}
	return "FP:" + path, 180, nil
}

func makeTracks(n int) []*store.Track {
	tracks := make([]*store.Track, n)
	for i := range tracks {
		tracks[i] = &store.Track{SourcePath: fmt.Sprintf("/music/%02d.mp3", i)}
	}
	return tracks
}

func TestRunFingerprintsAllTracks(t *testing.T) {
	extractor := &fakeExtractor{}
	stage := NewStage(extractor, logging.NewNop())
	tracks := makeTracks(8)

	var progressCalls atomic.Int64
	outcomes := stage.Run(context.Background(), tracks, 3, nil, func(completed, total int, track *store.Track) {
		progressCalls.Add(1)
	})

	if len(outcomes) != len(tracks) {
		t.Fatalf("expected %d outcomes, got %d", len(tracks), len(outcomes))
	}
	for _, track := range tracks {
		outcome := outcomes[track]
		if outcome.Kind != OutcomeOK {
			t.Fatalf("track %s: %s (%v)", track.SourcePath, outcome.Kind, outcome.Err)
		}
		if outcome.Fingerprint != "FP:"+track.SourcePath || outcome.Duration != 180 {
			t.Fatalf("unexpected outcome: %+v", outcome)
		}
	}
	if progressCalls.Load() != int64(len(tracks)) {
		t.Fatalf("expected one progress call per track, got %d", progressCalls.Load())
	}
}

func TestRunClassifiesPerFileFailures(t *testing.T) {
	tracks := makeTracks(3)
	extractor := &fakeExtractor{failWith: map[string]error{
		tracks[0].SourcePath: ErrShortAudio,
		tracks[1].SourcePath: ErrDecodeError,
	}}
	stage := NewStage(extractor, logging.NewNop())

	outcomes := stage.Run(context.Background(), tracks, 2, nil, nil)
	if outcomes[tracks[0]].Kind != OutcomeShortAudio {
		t.Fatalf("expected short_audio, got %s", outcomes[tracks[0]].Kind)
	}
	if outcomes[tracks[1]].Kind != OutcomeDecodeError {
		t.Fatalf("expected decode_error, got %s", outcomes[tracks[1]].Kind)
	}
	if outcomes[tracks[2]].Kind != OutcomeOK {
		t.Fatalf("expected ok, got %s", outcomes[tracks[2]].Kind)
	}
}

func TestRunToolMissingDegradesWholeStage(t *testing.T) {
	tracks := makeTracks(5)
	extractor := &fakeExtractor{failWith: map[string]error{
		tracks[0].SourcePath: ErrToolMissing,
		tracks[1].SourcePath: ErrToolMissing,
		tracks[2].SourcePath: ErrToolMissing,
		tracks[3].SourcePath: ErrToolMissing,
		tracks[4].SourcePath: ErrToolMissing,
	}}
	stage := NewStage(extractor, logging.NewNop())

	outcomes := stage.Run(context.Background(), tracks, 2, nil, nil)
	for _, track := range tracks {
		if outcomes[track].Kind != OutcomeToolMissing {
			t.Fatalf("track %s: expected tool_missing, got %s", track.SourcePath, outcomes[track].Kind)
		}
	}
}

func TestRunCancelDropsPendingWithoutJoining(t *testing.T) {
	tracks := makeTracks(16)
	extractor := &fakeExtractor{delay: 200 * time.Millisecond}
	stage := NewStage(extractor, logging.NewNop())

	var cancelled atomic.Bool
	check := func() (bool, bool) { return false, cancelled.Load() }

	done := make(chan map[*store.Track]Outcome, 1)
	start := time.Now()
	go func() {
		done <- stage.Run(context.Background(), tracks, 2, check, func(completed, total int, track *store.Track) {
			if completed >= 2 {
				cancelled.Store(true)
			}
		})
	}()

	var outcomes map[*store.Track]Outcome
	select {
	case outcomes = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stage did not return promptly after cancel")
	}

	// The stage must return well before all 16 extractions (1.6 s of work
	// on 2 workers) could have completed.
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("non-joining teardown took too long: %s", elapsed)
	}

	cancelledCount := 0
	for _, outcome := range outcomes {
		if outcome.Kind == OutcomeCancelled {
			cancelledCount++
		}
	}
	if cancelledCount == 0 {
		t.Fatal("expected pending tracks to be reported as cancelled")
	}
	// No new spawns after cancel: in-flight workers may finish, but the
	// queue is dropped.
	if calls := extractor.calls.Load(); calls > 8 {
		t.Fatalf("too many extractions after cancel: %d", calls)
	}
}

func TestRunPauseHoldsNewSpawns(t *testing.T) {
	tracks := makeTracks(6)
	extractor := &fakeExtractor{delay: 20 * time.Millisecond}
	stage := NewStage(extractor, logging.NewNop())

	var paused, cancelled atomic.Bool
	check := func() (bool, bool) { return paused.Load(), cancelled.Load() }

	done := make(chan struct{})
	go func() {
		stage.Run(context.Background(), tracks, 1, check, func(completed, total int, track *store.Track) {
			if completed == 2 {
				paused.Store(true)
			}
		})
		close(done)
	}()

	// While paused no new extraction starts; then resume and let it finish.
	time.Sleep(300 * time.Millisecond)
	inFlightDuringPause := extractor.calls.Load()
	time.Sleep(200 * time.Millisecond)
	if extractor.calls.Load() > inFlightDuringPause {
		t.Fatalf("extractions continued while paused: %d -> %d", inFlightDuringPause, extractor.calls.Load())
	}

	paused.Store(false)
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("stage did not finish after resume")
	}
	if calls := extractor.calls.Load(); calls != int64(len(tracks)) {
		t.Fatalf("expected all %d tracks extracted after resume, got %d", len(tracks), calls)
	}
}
