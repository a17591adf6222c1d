package identify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tagflow/internal/fingerprint"
	"tagflow/internal/logging"
	"tagflow/internal/ratelimit"
	"tagflow/internal/services"
	"tagflow/internal/services/acoustid"
	"tagflow/internal/services/archive"
	"tagflow/internal/services/musicbrainz"
	"tagflow/internal/store"
	"tagflow/internal/textutil"
)

// Service names used with the rate limiter.
const (
	ServiceAcoustID    = "acoustid"
	ServiceMusicBrainz = "musicbrainz"
	ServiceArchive     = "archive"
)

// rateLimitPenalty is the forced pacing window applied after a 429.
const rateLimitPenalty = 5 * time.Second

// Enrichment limits: when the top fingerprint score is high the first match
// is almost always right, so fewer metadata fetches are needed.
const (
	highConfidenceScore   = 0.95
	mediumConfidenceScore = 0.85
	maxEnrichedMatches    = 3
)

// FingerprintOracle looks up acoustic fingerprints.
type FingerprintOracle interface {
	Lookup(ctx context.Context, fingerprint string, duration float64) ([]acoustid.Match, error)
}

// MetadataOracle fetches and searches recordings.
type MetadataOracle interface {
	Recording(ctx context.Context, recordingID string) (*musicbrainz.Recording, error)
	SearchRecordings(ctx context.Context, title, artist, album string, limit int) ([]musicbrainz.SearchResult, error)
}

// CoverArtOracle resolves image handles for releases.
type CoverArtOracle interface {
	FrontURL(releaseID string) string
}

// ArchiveOracle searches the archive as a fallback source.
type ArchiveOracle interface {
	Search(ctx context.Context, query string, rows int) ([]archive.Doc, error)
	Metadata(ctx context.Context, identifier string) (*archive.ItemMetadata, error)
}

// Resolver fans out to the oracles, consults the response cache, and
// normalizes replies into candidates.
type Resolver struct {
	fingerprints FingerprintOracle
	metadata     MetadataOracle
	coverArt     CoverArtOracle
	archive      ArchiveOracle
	screw        *ScrewHandler
	limiter      *ratelimit.Limiter
	cache        CacheStore
	logger       *slog.Logger
}

// NewResolver constructs a resolver. coverArt, archive, and screw may be nil
// when the corresponding oracles are disabled.
func NewResolver(
	fingerprints FingerprintOracle,
	metadata MetadataOracle,
	coverArt CoverArtOracle,
	archiveOracle ArchiveOracle,
	screw *ScrewHandler,
	limiter *ratelimit.Limiter,
	cache CacheStore,
	logger *slog.Logger,
) *Resolver {
	return &Resolver{
		fingerprints: fingerprints,
		metadata:     metadata,
		coverArt:     coverArt,
		archive:      archiveOracle,
		screw:        screw,
		limiter:      limiter,
		cache:        cache,
		logger:       logging.NewComponentLogger(logger, "resolver"),
	}
}

// Resolve produces the candidate set for a track. Mix-series tracks consult
// the archive oracle with a structured query first; everything else follows
// fingerprint → metadata search → archive fallback, with an existing-tags
// candidate appended last.
func (r *Resolver) Resolve(ctx context.Context, track *store.Track, outcome fingerprint.Outcome) (*MatchResult, error) {
	result := &MatchResult{ChosenIndex: -1}

	if r.screw != nil && r.screw.IsMixSeriesTrack(track) {
		if done := r.resolveMixSeries(ctx, track, result); done {
			return result, nil
		}
	}

	if outcome.Kind == fingerprint.OutcomeOK && r.fingerprints != nil {
		if err := r.resolveByFingerprint(ctx, track, result); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			r.logger.Warn("fingerprint resolution failed",
				logging.String(logging.FieldTrackPath, track.SourcePath),
				logging.Error(err))
		}
	}

	if len(result.Candidates) == 0 {
		if err := r.resolveBySearch(ctx, track, result); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			r.logger.Warn("tag search resolution failed",
				logging.String(logging.FieldTrackPath, track.SourcePath),
				logging.Error(err))
		}
	}

	if len(result.Candidates) == 0 && r.archive != nil {
		r.resolveArchiveFallback(ctx, track, result)
	}

	if existing := r.existingTagsCandidate(track); existing != nil {
		result.Candidates = append(result.Candidates, *existing)
	}
	if result.Source == "" {
		result.Source = "fuzzy"
	}
	return result, nil
}

func (r *Resolver) resolveMixSeries(ctx context.Context, track *store.Track, result *MatchResult) bool {
	chapter, title, ok := r.screw.ExtractChapter(ctx, track)
	var candidates []Candidate
	if ok {
		candidates = r.screw.FetchChapter(ctx, chapter, title)
	}
	if len(candidates) == 0 {
		return false
	}

	track.Album = candidates[0].Album
	track.AlbumArtist = mixSeriesArtist
	track.IsCompilation = true

	if best := r.screw.MatchTrack(track, candidates); best != nil {
		chosen := *best
		// The structured chapter listing identifies the exact recording, so
		// it carries fingerprint-grade certainty into scoring.
		chosen.FingerprintSimilarity = 0.98
		result.Candidates = append(result.Candidates, chosen)
		result.Source = "archive"
		return true
	}

	// No track-level match: surface the chapter candidates for review.
	result.Candidates = append(result.Candidates, candidates...)
	result.Source = "archive"
	return true
}

func (r *Resolver) resolveByFingerprint(ctx context.Context, track *store.Track, result *MatchResult) error {
	matches, err := oracleCall(ctx, r, ServiceAcoustID,
		acoustid.CacheKey(track.Fingerprint, track.FingerprintDuration),
		func(callCtx context.Context) ([]acoustid.Match, error) {
			return r.fingerprints.Lookup(callCtx, track.Fingerprint, track.FingerprintDuration)
		})
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return nil
	}

	fetchLimit := maxEnrichedMatches
	switch {
	case matches[0].Score >= highConfidenceScore:
		fetchLimit = 1
	case matches[0].Score >= mediumConfidenceScore:
		fetchLimit = 2
	}
	if fetchLimit > len(matches) {
		fetchLimit = len(matches)
	}

	for _, match := range matches[:fetchLimit] {
		if match.RecordingID == "" {
			continue
		}
		recording, err := oracleCall(ctx, r, ServiceMusicBrainz,
			musicbrainz.RecordingCacheKey(match.RecordingID),
			func(callCtx context.Context) (*musicbrainz.Recording, error) {
				return r.metadata.Recording(callCtx, match.RecordingID)
			})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			r.logger.Debug("recording enrichment failed",
				logging.String("recording_id", match.RecordingID),
				logging.Error(err))
			continue
		}
		if recording == nil {
			continue
		}
		candidate := r.candidateFromRecording(recording)
		candidate.FingerprintSimilarity = match.Score
		result.Candidates = append(result.Candidates, candidate)
	}
	if len(result.Candidates) > 0 {
		result.Source = "fingerprint"
	}
	return nil
}

func (r *Resolver) resolveBySearch(ctx context.Context, track *store.Track, result *MatchResult) error {
	title := strings.TrimSpace(track.Title)
	artist := strings.TrimSpace(track.Artist)
	if title == "" && artist == "" {
		return nil
	}

	album := strings.TrimSpace(track.Album)
	if album != "" && AlbumLooksLikeCompilation(album) {
		// Oracles only know original releases, not compilations; the album
		// would poison the query.
		album = ""
	}

	results, err := r.searchRecordings(ctx, title, artist, album)
	if err != nil {
		return err
	}
	if len(results) == 0 && album != "" {
		results, err = r.searchRecordings(ctx, title, artist, "")
		if err != nil {
			return err
		}
	}

	for _, hit := range results {
		candidate := r.candidateFromRecording(&hit.Recording)
		candidate.Source = SourceMetadata
		result.Candidates = append(result.Candidates, candidate)
	}
	return nil
}

func (r *Resolver) searchRecordings(ctx context.Context, title, artist, album string) ([]musicbrainz.SearchResult, error) {
	return oracleCall(ctx, r, ServiceMusicBrainz,
		musicbrainz.SearchCacheKey(title, artist, album),
		func(callCtx context.Context) ([]musicbrainz.SearchResult, error) {
			return r.metadata.SearchRecordings(callCtx, title, artist, album, 5)
		})
}

func (r *Resolver) resolveArchiveFallback(ctx context.Context, track *store.Track, result *MatchResult) {
	title := strings.TrimSpace(track.Title)
	artist := strings.TrimSpace(track.Artist)
	if title == "" && artist == "" {
		return
	}

	var terms []string
	if title != "" {
		terms = append(terms, fmt.Sprintf("title:(%s)", title))
	}
	if artist != "" {
		terms = append(terms, fmt.Sprintf("creator:(%s)", artist))
	}
	query := strings.Join(terms, " AND ") + " AND mediatype:(audio)"

	docs, err := oracleCall(ctx, r, ServiceArchive,
		archive.SearchCacheKey(query),
		func(callCtx context.Context) ([]archive.Doc, error) {
			return r.archive.Search(callCtx, query, 5)
		})
	if err != nil || len(docs) == 0 {
		return
	}

	// Inspect the top hits and keep files that plausibly match the track.
	for _, doc := range docs[:min(2, len(docs))] {
		item, err := oracleCall(ctx, r, ServiceArchive,
			archive.MetadataCacheKey(doc.Identifier),
			func(callCtx context.Context) (*archive.ItemMetadata, error) {
				return r.archive.Metadata(callCtx, doc.Identifier)
			})
		if err != nil || item == nil {
			continue
		}
		for _, file := range item.Files {
			if title != "" && textutil.Similarity(title, file.Title) < 0.6 {
				continue
			}
			result.Candidates = append(result.Candidates, Candidate{
				Title:       file.Title,
				Artist:      firstNonEmpty(file.Artist, item.Creator),
				Album:       item.Title,
				Year:        item.Year,
				TrackNumber: file.Track,
				ReleaseID:   item.Identifier,
				DurationSec: file.Duration,
				Source:      SourceArchive,
			})
		}
	}
	if len(result.Candidates) > 0 && result.Source == "" {
		result.Source = "archive"
	}
}

// existingTagsCandidate synthesizes a candidate from the track's embedded
// tags so scoring can weigh "what the file already says" against oracle
// replies. Well-tagged compilations often beat the oracles here.
func (r *Resolver) existingTagsCandidate(track *store.Track) *Candidate {
	if !track.HasBasicTags() {
		return nil
	}
	return &Candidate{
		Title:       track.Title,
		Artist:      track.Artist,
		Album:       track.Album,
		AlbumArtist: track.AlbumArtist,
		Genre:       track.Genre,
		Year:        track.Year,
		TrackNumber: track.TrackNumber,
		TotalTracks: track.TotalTracks,
		DiscNumber:  track.DiscNumber,
		TotalDiscs:  track.TotalDiscs,
		DurationSec: track.Duration,
		Source:      SourceExistingTags,
	}
}

func (r *Resolver) candidateFromRecording(recording *musicbrainz.Recording) Candidate {
	candidate := Candidate{
		Title:       recording.Title,
		Artist:      recording.Artist,
		RecordingID: recording.ID,
		DurationSec: recording.DurationSec,
		Source:      SourceFingerprint,
	}
	if len(recording.Releases) > 0 {
		release := recording.Releases[0]
		candidate.Album = release.Title
		candidate.Year = release.Year
		candidate.TrackNumber = release.TrackNumber
		candidate.TotalTracks = release.TotalTracks
		candidate.DiscNumber = release.DiscNumber
		candidate.TotalDiscs = release.TotalDiscs
		candidate.ReleaseID = release.ID
		if r.coverArt != nil && release.ID != "" {
			candidate.CoverArtURL = r.coverArt.FrontURL(release.ID)
		}
	}
	return candidate
}

// oracleCall routes an oracle request through the response cache and the
// rate limiter. Cache lookup precedes network; successes and definitive
// empty replies are cached (negatives expire faster). A 429 applies a
// pacing penalty and retries once; transient failures retry with backoff.
func oracleCall[T any](ctx context.Context, r *Resolver, service, key string, fetch func(context.Context) (T, error)) (T, error) {
	var zero T

	if r.cache != nil {
		entry, err := r.cache.CacheGet(ctx, key)
		if err == nil && entry != nil {
			if entry.Kind == store.CacheNegative {
				return zero, nil
			}
			var cached T
			if err := json.Unmarshal([]byte(entry.Value), &cached); err == nil {
				return cached, nil
			}
		}
	}

	attempt := func() (T, error) {
		if r.limiter != nil {
			if err := r.limiter.Acquire(ctx, service); err != nil {
				return zero, err
			}
		}
		var value T
		err := services.Retry(ctx, func() error {
			var callErr error
			value, callErr = fetch(ctx)
			return callErr
		})
		return value, err
	}

	value, err := attempt()
	if errors.Is(err, services.ErrRateLimited) {
		if r.limiter != nil {
			r.limiter.Backoff(service, rateLimitPenalty)
		}
		value, err = attempt()
	}

	switch {
	case err == nil:
		if r.cache != nil {
			kind := store.CachePositive
			if isEmptyValue(value) {
				kind = store.CacheNegative
			}
			if encoded, marshalErr := json.Marshal(value); marshalErr == nil {
				_ = r.cache.CachePut(ctx, key, string(encoded), kind)
			}
		}
		return value, nil
	case services.IsPermanent(err):
		if r.cache != nil {
			_ = r.cache.CachePut(ctx, key, "null", store.CacheNegative)
		}
		return zero, nil
	default:
		return zero, err
	}
}

func isEmptyValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case []acoustid.Match:
		return len(v) == 0
	case []musicbrainz.SearchResult:
		return len(v) == 0
	case []archive.Doc:
		return len(v) == 0
	case *musicbrainz.Recording:
		return v == nil
	case *archive.ItemMetadata:
		return v == nil
	default:
		return false
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
