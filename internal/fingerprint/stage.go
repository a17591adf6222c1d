package fingerprint

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tagflow/internal/logging"
	"tagflow/internal/store"
)

// OutcomeKind classifies the per-file result of the fingerprint stage.
type OutcomeKind string

const (
	OutcomeOK          OutcomeKind = "ok"
	OutcomeShortAudio  OutcomeKind = "short_audio"
	OutcomeDecodeError OutcomeKind = "decode_error"
	OutcomeToolMissing OutcomeKind = "tool_missing"
	OutcomeCancelled   OutcomeKind = "cancelled"
)

// Outcome is the result of fingerprinting one track.
type Outcome struct {
	Kind        OutcomeKind
	Fingerprint string
	Duration    float64
	Err         error
}

// CancelCheck samples the pipeline's pause/cancel latch.
type CancelCheck func() (paused, cancelled bool)

// ProgressFunc receives (completed, total, track) after each finished file,
// already subject to the caller's throttle.
type ProgressFunc func(completed, total int, track *store.Track)

// pauseCheckInterval is how often a paused worker re-samples the latch.
const pauseCheckInterval = 100 * time.Millisecond

// Stage fingerprints a batch of tracks with a bounded worker pool. The pool
// is manually managed: a cancel drops pending work and returns without
// joining in-flight extractions, because fpcalc can block on I/O for seconds
// per file and joining would defeat responsive cancellation. Results arriving
// after a cancel are discarded.
type Stage struct {
	extractor Extractor
	logger    *slog.Logger
}

// NewStage constructs the fingerprint stage.
func NewStage(extractor Extractor, logger *slog.Logger) *Stage {
	return &Stage{
		extractor: extractor,
		logger:    logging.NewComponentLogger(logger, "fingerprint"),
	}
}

type result struct {
	track   *store.Track
	outcome Outcome
}

// Run fingerprints the tracks with workerCount parallel workers and returns
// an outcome per track. The cancel latch is sampled before every subprocess
// spawn; a missing tool short-circuits the whole stage.
func (s *Stage) Run(ctx context.Context, tracks []*store.Track, workerCount int, check CancelCheck, progress ProgressFunc) map[*store.Track]Outcome {
	outcomes := make(map[*store.Track]Outcome, len(tracks))
	if len(tracks) == 0 {
		return outcomes
	}
	if workerCount <= 0 {
		workerCount = 1
	}
	if workerCount > len(tracks) {
		workerCount = len(tracks)
	}
	if check == nil {
		check = func() (bool, bool) { return false, false }
	}

	jobs := make(chan *store.Track, len(tracks))
	// Buffered to the full batch so orphaned workers never block sending
	// after a non-joining teardown.
	results := make(chan result, len(tracks))

	workCtx, cancelWork := context.WithCancel(ctx)
	defer cancelWork()

	for i := 0; i < workerCount; i++ {
		go s.worker(workCtx, jobs, results, check)
	}
	for _, track := range tracks {
		jobs <- track
	}
	close(jobs)

	completed := 0
	toolMissing := false
	for completed < len(tracks) {
		if _, cancelled := check(); cancelled {
			cancelWork()
			s.logger.Info("fingerprint stage cancelled",
				logging.Int("completed", completed),
				logging.Int("total", len(tracks)))
			for _, track := range tracks {
				if _, done := outcomes[track]; !done {
					outcomes[track] = Outcome{Kind: OutcomeCancelled}
				}
			}
			return outcomes
		}

		select {
		case res := <-results:
			completed++
			outcomes[res.track] = res.outcome
			if res.outcome.Kind == OutcomeToolMissing {
				toolMissing = true
			}
			if progress != nil {
				progress(completed, len(tracks), res.track)
			}
		case <-time.After(pauseCheckInterval):
			// Re-sample the latch while idle.
		}

		if toolMissing {
			// The extractor binary is gone; stop spawning and degrade every
			// remaining track so the pipeline can fall back to tag-based
			// resolution.
			cancelWork()
			for _, track := range tracks {
				if _, done := outcomes[track]; !done {
					outcomes[track] = Outcome{Kind: OutcomeToolMissing}
				}
			}
			s.logger.Warn("fpcalc unavailable; all tracks degrade to tag-based resolution",
				logging.String(logging.FieldEventType, "fingerprint_tool_missing"),
				logging.String(logging.FieldErrorHint, "install chromaprint (fpcalc) and re-run"))
			return outcomes
		}
	}
	return outcomes
}

func (s *Stage) worker(ctx context.Context, jobs <-chan *store.Track, results chan<- result, check CancelCheck) {
	for track := range jobs {
		// Hold before each spawn while paused; bail if cancelled.
		for {
			paused, cancelled := check()
			if cancelled || ctx.Err() != nil {
				return
			}
			if !paused {
				break
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(pauseCheckInterval):
			}
		}

		fp, duration, err := s.extractor.Extract(ctx, track.SourcePath)
		outcome := classify(fp, duration, err)
		select {
		case results <- outcome.toResult(track):
		case <-ctx.Done():
			return
		}
	}
}

func classify(fp string, duration float64, err error) Outcome {
	switch {
	case err == nil:
		return Outcome{Kind: OutcomeOK, Fingerprint: fp, Duration: duration}
	case errors.Is(err, ErrShortAudio):
		return Outcome{Kind: OutcomeShortAudio, Err: err}
	case errors.Is(err, ErrDecodeError):
		return Outcome{Kind: OutcomeDecodeError, Err: err}
	case errors.Is(err, ErrToolMissing):
		return Outcome{Kind: OutcomeToolMissing, Err: err}
	case errors.Is(err, context.Canceled):
		return Outcome{Kind: OutcomeCancelled, Err: err}
	default:
		return Outcome{Kind: OutcomeDecodeError, Err: err}
	}
}

func (o Outcome) toResult(track *store.Track) result {
	return result{track: track, outcome: o}
}
