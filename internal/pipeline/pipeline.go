package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"tagflow/internal/fingerprint"
	"tagflow/internal/identify"
	"tagflow/internal/logging"
	"tagflow/internal/organizer"
	"tagflow/internal/report"
	"tagflow/internal/scanner"
	"tagflow/internal/store"
	"tagflow/internal/textutil"
)

// pauseCheckInterval is how long phase 3 sleeps between latch samples while
// paused.
const pauseCheckInterval = 100 * time.Millisecond

// ArtFetcher downloads cover art for a release. nil disables embedding.
type ArtFetcher interface {
	Front(ctx context.Context, releaseID string) ([]byte, error)
}

// Summary is the outcome of a batch run.
type Summary struct {
	BatchID     string
	Stats       store.BatchStats
	Cancelled   bool
	ToolMissing bool
	Elapsed     time.Duration
}

// Pipeline coordinates a batch through its phases. Tracks are exclusively
// owned by the pipeline for the duration of a batch.
type Pipeline struct {
	db       *store.Store
	scanner  *scanner.Scanner
	fpStage  *fingerprint.Stage
	resolver *identify.Resolver
	detector *identify.CompilationDetector
	art      ArtFetcher
	logger   *slog.Logger

	paused    atomic.Bool
	cancelled atomic.Bool

	mu      sync.Mutex
	sinks   []Sink
	running bool
	cancel  context.CancelFunc
}

// New constructs a pipeline. art may be nil when cover art is disabled.
func New(
	db *store.Store,
	fileScanner *scanner.Scanner,
	fpStage *fingerprint.Stage,
	resolver *identify.Resolver,
	detector *identify.CompilationDetector,
	art ArtFetcher,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		db:       db,
		scanner:  fileScanner,
		fpStage:  fpStage,
		resolver: resolver,
		detector: detector,
		art:      art,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Subscribe registers a progress sink. Sinks receive events already subject
// to the emission throttle.
func (p *Pipeline) Subscribe(sink Sink) {
	if sink == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = append(p.sinks, sink)
}

// Pause holds the pipeline at its next suspension point. Phase 1 keeps its
// pending work scheduled; phase 3 holds between tracks.
func (p *Pipeline) Pause() {
	p.paused.Store(true)
	p.logger.Info("pipeline paused")
}

// Resume releases a pause.
func (p *Pipeline) Resume() {
	p.paused.Store(false)
	p.logger.Info("pipeline resumed")
}

// Cancel stops the batch. Pending fingerprint work is dropped without
// joining; an in-progress mutation completes atomically before the pipeline
// stops. Completed mutations are never rolled back here.
func (p *Pipeline) Cancel() {
	p.cancelled.Store(true)
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.logger.Info("pipeline cancel requested")
}

func (p *Pipeline) latch() (bool, bool) {
	return p.paused.Load(), p.cancelled.Load()
}

func (p *Pipeline) emit(event Progress) {
	p.mu.Lock()
	sinks := make([]Sink, len(p.sinks))
	copy(sinks, p.sinks)
	p.mu.Unlock()
	for _, sink := range sinks {
		sink(event)
	}
}

// RunBatch executes the full pipeline for the given roots. It blocks until
// the batch completes, is cancelled, or fails fatally; Pause/Resume/Cancel
// are safe to call concurrently.
func (p *Pipeline) RunBatch(ctx context.Context, batchID string, roots []string, opts Options) (*Summary, error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil, errors.New("a batch is already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.mu.Unlock()

	p.paused.Store(false)
	p.cancelled.Store(false)

	defer func() {
		cancel()
		p.mu.Lock()
		p.running = false
		p.cancel = nil
		p.mu.Unlock()
	}()

	opts.applyDefaults()
	started := time.Now()
	logger := p.logger.With(logging.String(logging.FieldBatchID, batchID))

	org := organizer.New(opts.organizerOptions(), p.db, logger)
	scorer := identify.NewScorer(opts.thresholds(), logger)

	// Phase 0: scan and resume filter.
	tracks, err := p.scanner.Scan(batchID, roots)
	if err != nil {
		return nil, fmt.Errorf("scan roots: %w", err)
	}
	p.emit(Progress{Phase: PhaseScan, Completed: len(tracks), Total: len(tracks)})

	processed, err := p.db.ProcessedPaths(runCtx, batchID)
	if err != nil {
		return nil, fmt.Errorf("load resume state: %w", err)
	}
	work := tracks[:0]
	skippedResume := 0
	for _, track := range tracks {
		if _, done := processed[track.SourcePath]; done {
			skippedResume++
			continue
		}
		if err := p.db.UpsertTrack(runCtx, track); err != nil {
			return nil, fmt.Errorf("persist scanned track: %w", err)
		}
		work = append(work, track)
	}
	if skippedResume > 0 {
		logger.Info("resume filter applied",
			logging.Int("skipped", skippedResume),
			logging.Int("remaining", len(work)))
	}

	// Phase 1: parallel fingerprint.
	toolMissing := p.runFingerprintPhase(runCtx, work, opts, logger)

	if _, cancelled := p.latch(); cancelled {
		return p.finishBatch(ctx, batchID, opts, started, true, toolMissing, logger)
	}

	// Phase 3: sequential per-track resolution and mutation.
	cancelled := p.runResolvePhase(runCtx, work, opts, scorer, org, logger)

	return p.finishBatch(ctx, batchID, opts, started, cancelled, toolMissing, logger)
}

// runFingerprintPhase runs the parallel stage and applies outcomes to the
// tracks. Returns whether the extractor binary was missing.
func (p *Pipeline) runFingerprintPhase(ctx context.Context, work []*store.Track, opts Options, logger *slog.Logger) bool {
	if len(work) == 0 {
		return false
	}

	throttle := newThrottler(len(work))
	outcomes := p.fpStage.Run(ctx, work, opts.WorkerCount, p.latch, func(completed, total int, track *store.Track) {
		if !throttle.shouldEmit(completed) {
			return
		}
		p.emit(Progress{
			Phase:       PhaseFingerprint,
			Completed:   completed,
			Total:       total,
			ETAHint:     throttle.eta(completed),
			CurrentPath: track.SourcePath,
		})
	})
	p.emit(Progress{Phase: PhaseFingerprint, Completed: len(work), Total: len(work)})

	toolMissing := false
	for _, track := range work {
		outcome := outcomes[track]
		switch outcome.Kind {
		case fingerprint.OutcomeOK:
			track.Fingerprint = outcome.Fingerprint
			track.FingerprintDuration = outcome.Duration
			if track.Duration == 0 {
				track.Duration = outcome.Duration
			}
			track.Status = store.StatusFingerprinted
		case fingerprint.OutcomeToolMissing:
			toolMissing = true
		case fingerprint.OutcomeShortAudio, fingerprint.OutcomeDecodeError:
			// Non-fatal: the track proceeds to tag-based resolution.
			logger.Debug("fingerprint unavailable",
				logging.String(logging.FieldTrackPath, track.SourcePath),
				logging.String("outcome", string(outcome.Kind)))
		}
		if err := p.db.UpsertTrack(ctx, track); err != nil && ctx.Err() == nil {
			logger.Warn("failed to persist fingerprint state", logging.Error(err))
		}
	}
	return toolMissing
}

// runResolvePhase processes tracks sequentially: resolve, score, classify,
// mutate or queue. Returns true when the batch was cancelled.
func (p *Pipeline) runResolvePhase(ctx context.Context, work []*store.Track, opts Options, scorer *identify.Scorer, org *organizer.Organizer, logger *slog.Logger) bool {
	throttle := newThrottler(len(work))
	batch := p.batchContext(work, opts)

	for idx, track := range work {
		// Suspension point: between tracks, never mid-mutation.
		for {
			paused, cancelled := p.latch()
			if cancelled {
				logger.Info("resolution cancelled",
					logging.Int("completed", idx),
					logging.Int("total", len(work)))
				return true
			}
			if !paused {
				break
			}
			select {
			case <-ctx.Done():
				return true
			case <-time.After(pauseCheckInterval):
			}
		}

		if track.Duration > 0 && opts.SkipShortDurationSeconds > 0 && track.Duration < opts.SkipShortDurationSeconds {
			track.Status = store.StatusSkipped
			track.ErrorMessage = fmt.Sprintf("shorter than %.0fs", opts.SkipShortDurationSeconds)
		} else {
			p.processTrack(ctx, track, opts, scorer, batch, org, logger)
		}

		if err := p.db.UpsertTrack(ctx, track); err != nil && ctx.Err() == nil {
			logger.Warn("failed to persist track state",
				logging.String(logging.FieldTrackPath, track.SourcePath),
				logging.Error(err))
		}

		if throttle.shouldEmit(idx + 1) {
			p.emit(Progress{
				Phase:       PhaseResolve,
				Completed:   idx + 1,
				Total:       len(work),
				ETAHint:     throttle.eta(idx + 1),
				CurrentPath: track.SourcePath,
				LastOutcome: string(track.Status),
			})
		}
	}
	p.emit(Progress{Phase: PhaseResolve, Completed: len(work), Total: len(work)})
	return false
}

func (p *Pipeline) processTrack(ctx context.Context, track *store.Track, opts Options, scorer *identify.Scorer, batch *identify.BatchContext, org *organizer.Organizer, logger *slog.Logger) {
	// Compilation detection (and mix-series album normalization) runs
	// before resolution so queries and folder decisions see clean tags.
	p.detector.Detect(track)

	outcome := fingerprint.Outcome{Kind: fingerprint.OutcomeDecodeError}
	if track.Fingerprint != "" {
		outcome = fingerprint.Outcome{
			Kind:        fingerprint.OutcomeOK,
			Fingerprint: track.Fingerprint,
			Duration:    track.FingerprintDuration,
		}
	}

	result, err := p.resolver.Resolve(ctx, track, outcome)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		track.SetFailed(fmt.Sprintf("resolution failed: %v", err))
		return
	}

	scorer.ScoreAll(result, track, batch)
	scorer.BoostExistingTags(result, track)

	if encoded, err := json.Marshal(result); err == nil {
		track.ChosenCandidateJSON = string(encoded)
	}
	track.Confidence = result.Score
	if best := result.Best(); best != nil && best.ReleaseID != "" {
		batch.TopReleaseIDs[track.SourcePath] = best.ReleaseID
	}

	switch result.Tier {
	case identify.TierAutoApply:
		p.applyMatch(ctx, track, result.Best(), org, logger)
	case identify.TierReview, identify.TierManual:
		track.Status = store.StatusReview
	default:
		track.Status = store.StatusUnmatched
		if opts.MoveUnmatched {
			if _, err := org.MoveUnmatched(ctx, track); err != nil {
				logger.Warn("unmatched move failed",
					logging.String(logging.FieldTrackPath, track.SourcePath),
					logging.Error(err))
			}
		}
	}
}

// applyMatch merges the chosen candidate into the track, fetches cover art
// when available, and hands the mutation to the organizer.
func (p *Pipeline) applyMatch(ctx context.Context, track *store.Track, candidate *identify.Candidate, org *organizer.Organizer, logger *slog.Logger) {
	if candidate == nil {
		track.Status = store.StatusUnmatched
		return
	}

	mergeCandidate(track, candidate)
	normalizeMetadata(track, candidate.Source != identify.SourceExistingTags)
	p.detector.Detect(track)

	var coverArt []byte
	if p.art != nil && candidate.ReleaseID != "" && candidate.CoverArtURL != "" {
		art, err := p.art.Front(ctx, candidate.ReleaseID)
		if err != nil {
			logger.Debug("cover art fetch failed",
				logging.String("release_id", candidate.ReleaseID),
				logging.Error(err))
		} else {
			coverArt = art
		}
	}

	if _, err := org.Apply(ctx, track, coverArt); err != nil {
		if errors.Is(err, organizer.ErrDuplicate) {
			track.Status = store.StatusSkipped
			track.ErrorMessage = fmt.Sprintf("duplicate: %v", err)
			return
		}
		track.SetFailed(fmt.Sprintf("apply failed: %v", err))
		return
	}
	track.Status = store.StatusApplied
	track.ErrorMessage = ""
}

func (p *Pipeline) batchContext(work []*store.Track, opts Options) *identify.BatchContext {
	albums := make([]string, 0, len(work))
	for _, track := range work {
		if strings.TrimSpace(track.Album) != "" {
			albums = append(albums, track.Album)
		}
	}
	return &identify.BatchContext{
		Albums:                   albums,
		TopReleaseIDs:            make(map[string]string),
		AlbumSimilarityThreshold: opts.AlbumSimilarityThreshold,
	}
}

func (p *Pipeline) finishBatch(ctx context.Context, batchID string, opts Options, started time.Time, cancelled, toolMissing bool, logger *slog.Logger) (*Summary, error) {
	// Use the caller's context: the run context is already cancelled when
	// the batch was.
	if opts.DryRun {
		if _, err := p.db.PurgeDryRunMoves(ctx, batchID); err != nil {
			logger.Warn("failed to purge dry-run ledger records", logging.Error(err))
		}
	}

	stats, err := p.db.BatchStats(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("batch stats: %w", err)
	}

	if !opts.DryRun && (stats.Unmatched > 0 || stats.Review > 0) {
		tracks, err := p.db.TracksForBatch(ctx, batchID)
		if err == nil {
			if err := report.WriteUnmatched(opts.LibraryRoot, batchID, tracks, stats); err != nil {
				logger.Warn("failed to write unmatched report", logging.Error(err))
			}
		}
	}

	summary := &Summary{
		BatchID:     batchID,
		Stats:       stats,
		Cancelled:   cancelled,
		ToolMissing: toolMissing,
		Elapsed:     time.Since(started),
	}
	logger.Info("batch finished",
		logging.Int("total", stats.Total),
		logging.Int("applied", stats.Applied),
		logging.Int("review", stats.Review),
		logging.Int("unmatched", stats.Unmatched),
		logging.Int("failed", stats.Failed),
		logging.Bool("cancelled", cancelled),
		logging.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

// mergeCandidate overlays candidate fields onto the track, keeping existing
// values where the candidate is silent.
func mergeCandidate(track *store.Track, candidate *identify.Candidate) {
	overlay := func(dst *string, value string) {
		if strings.TrimSpace(value) != "" {
			*dst = value
		}
	}
	overlay(&track.Title, candidate.Title)
	overlay(&track.Artist, candidate.Artist)
	overlay(&track.Album, candidate.Album)
	overlay(&track.AlbumArtist, candidate.AlbumArtist)
	overlay(&track.Genre, candidate.Genre)
	if candidate.Year > 0 {
		track.Year = candidate.Year
	}
	if candidate.TrackNumber > 0 {
		track.TrackNumber = candidate.TrackNumber
	}
	if candidate.TotalTracks > 0 {
		track.TotalTracks = candidate.TotalTracks
	}
	if candidate.DiscNumber > 0 {
		track.DiscNumber = candidate.DiscNumber
	}
	if candidate.TotalDiscs > 0 {
		track.TotalDiscs = candidate.TotalDiscs
	}
	track.Confidence = candidate.Confidence
}

// normalizeMetadata fixes capitalization. Oracle-sourced values keep their
// official casing apart from known artist overrides; tag- or
// filename-derived values get full smart title casing.
func normalizeMetadata(track *store.Track, fromOracle bool) {
	if fromOracle {
		track.Artist = normalizeNonEmpty(track.Artist, true)
		track.AlbumArtist = normalizeNonEmpty(track.AlbumArtist, true)
		return
	}
	track.Title = normalizeNonEmpty(track.Title, false)
	track.Artist = normalizeNonEmpty(track.Artist, true)
	track.Album = normalizeNonEmpty(track.Album, false)
	track.AlbumArtist = normalizeNonEmpty(track.AlbumArtist, true)
}

func normalizeNonEmpty(value string, artist bool) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	if artist {
		return textutil.NormalizeArtistName(value)
	}
	return textutil.SmartTitleCase(value)
}
