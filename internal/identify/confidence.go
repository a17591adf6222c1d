package identify

import (
	"log/slog"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"tagflow/internal/logging"
	"tagflow/internal/store"
	"tagflow/internal/textutil"
)

// Factor weights. They sum to 1.0 so the aggregate stays in 0..100.
const (
	weightFingerprint      = 0.40
	weightTitle            = 0.20
	weightArtist           = 0.20
	weightDuration         = 0.10
	weightAlbumConsistency = 0.10
)

// durationFalloffSeconds is the delta at which the duration factor reaches
// zero.
const durationFalloffSeconds = 10.0

// fullConsistencyFraction is the batch fraction at or above which album
// consistency counts as full credit.
const fullConsistencyFraction = 0.80

// neutralConsistency is used when the batch offers no context (single-track
// batch or album-less candidate).
const neutralConsistency = 0.5

// BatchContext carries what the scorer needs to know about the other tracks
// in the batch.
type BatchContext struct {
	// Albums holds the album tag of every other track in the batch.
	Albums []string
	// TopReleaseIDs maps source path -> the release handle of that track's
	// current top candidate.
	TopReleaseIDs map[string]string
	// AlbumSimilarityThreshold is the 0..100 similarity below which another
	// track's album does not contribute to consistency.
	AlbumSimilarityThreshold float64
}

// Thresholds classify an aggregate score into a tier. Scores exactly at a
// boundary resolve to the lower tier.
type Thresholds struct {
	AutoApply float64
	Review    float64
}

// Scorer computes weighted confidence scores for candidates.
type Scorer struct {
	thresholds Thresholds
	logger     *slog.Logger
}

// NewScorer constructs a scorer.
func NewScorer(thresholds Thresholds, logger *slog.Logger) *Scorer {
	return &Scorer{
		thresholds: thresholds,
		logger:     logging.NewComponentLogger(logger, "scorer"),
	}
}

// Score computes the aggregate 0..100 confidence for one candidate and
// stores the per-factor inputs on it.
func (s *Scorer) Score(candidate *Candidate, track *store.Track, batch *BatchContext) float64 {
	trackTitle := track.Title
	if strings.TrimSpace(trackTitle) == "" {
		base := filepath.Base(track.SourcePath)
		trackTitle = strings.TrimSuffix(base, filepath.Ext(base))
	}

	candidate.TitleSimilarity = textutil.Similarity(candidate.Title, trackTitle)
	candidate.ArtistSimilarity = textutil.Similarity(candidate.Artist, track.Artist)

	durationScore := 0.5
	if track.Duration > 0 && candidate.DurationSec > 0 {
		candidate.DurationDelta = math.Abs(track.Duration - candidate.DurationSec)
		durationScore = math.Max(0, 1-math.Min(candidate.DurationDelta/durationFalloffSeconds, 1))
	}

	candidate.AlbumConsistency = albumConsistency(candidate, track, batch)

	overall := (candidate.FingerprintSimilarity*weightFingerprint +
		candidate.TitleSimilarity*weightTitle +
		candidate.ArtistSimilarity*weightArtist +
		durationScore*weightDuration +
		candidate.AlbumConsistency*weightAlbumConsistency) * 100

	overall = math.Max(0, math.Min(100, overall))
	candidate.Confidence = overall

	s.logger.Debug("scored candidate",
		logging.String("track", track.DisplayTitle()),
		logging.String("candidate", candidate.Artist+" - "+candidate.Title),
		logging.String("source", string(candidate.Source)),
		logging.Float64("fingerprint", candidate.FingerprintSimilarity),
		logging.Float64("title", candidate.TitleSimilarity),
		logging.Float64("artist", candidate.ArtistSimilarity),
		logging.Float64("duration", durationScore),
		logging.Float64("album", candidate.AlbumConsistency),
		logging.Float64("overall", overall))
	return overall
}

// ScoreAll scores every candidate and sorts them stably by aggregate score
// descending, breaking ties by provenance priority then title similarity.
func (s *Scorer) ScoreAll(result *MatchResult, track *store.Track, batch *BatchContext) {
	for i := range result.Candidates {
		s.Score(&result.Candidates[i], track, batch)
	}
	s.finalize(result)
}

// BoostExistingTags clamps the existing-tags candidate into a confidence
// band: a floor keeps well-tagged files competitive with oracle replies, a
// ceiling keeps wrong tags from auto-applying unchecked. Files with an album
// land in 75..95, album-less files in 50..75.
func (s *Scorer) BoostExistingTags(result *MatchResult, track *store.Track) {
	adjusted := false
	for i := range result.Candidates {
		candidate := &result.Candidates[i]
		if candidate.Source != SourceExistingTags {
			continue
		}
		floor, ceiling := 50.0, 75.0
		if strings.TrimSpace(track.Album) != "" {
			floor, ceiling = 75.0, 95.0
		}
		candidate.Confidence = math.Max(candidate.Confidence, floor)
		candidate.Confidence = math.Min(candidate.Confidence, ceiling)
		adjusted = true
	}
	if adjusted {
		s.finalize(result)
	}
}

func (s *Scorer) finalize(result *MatchResult) {
	sort.SliceStable(result.Candidates, func(i, j int) bool {
		a, b := result.Candidates[i], result.Candidates[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if provenancePriority[a.Source] != provenancePriority[b.Source] {
			return provenancePriority[a.Source] < provenancePriority[b.Source]
		}
		return a.TitleSimilarity > b.TitleSimilarity
	})
	if len(result.Candidates) > 0 {
		result.ChosenIndex = 0
		result.Score = result.Candidates[0].Confidence
	}
	result.Tier = s.Classify(result.Score, result.HasMatch())
}

// Classify maps a score to a tier. Boundary scores resolve to the lower
// tier; a track without any candidate is unmatched regardless of score.
func (s *Scorer) Classify(score float64, hasMatch bool) Tier {
	if !hasMatch {
		return TierUnmatched
	}
	switch {
	case score > s.thresholds.AutoApply:
		return TierAutoApply
	case score > s.thresholds.Review:
		return TierReview
	case score > 0:
		return TierManual
	default:
		return TierUnmatched
	}
}

func albumConsistency(candidate *Candidate, track *store.Track, batch *BatchContext) float64 {
	if batch == nil || strings.TrimSpace(candidate.Album) == "" {
		return neutralConsistency
	}

	threshold := batch.AlbumSimilarityThreshold
	if threshold <= 0 {
		threshold = 80
	}

	matches, total := 0, 0
	for _, album := range batch.Albums {
		if strings.TrimSpace(album) == "" {
			continue
		}
		total++
		if textutil.Similarity(candidate.Album, album)*100 >= threshold {
			matches++
		}
	}
	if candidate.ReleaseID != "" {
		for path, releaseID := range batch.TopReleaseIDs {
			if path == track.SourcePath || releaseID == "" {
				continue
			}
			if releaseID == candidate.ReleaseID {
				matches++
				total++
			}
		}
	}
	if total == 0 {
		return neutralConsistency
	}

	fraction := float64(matches) / float64(total)
	if fraction >= fullConsistencyFraction {
		return 1
	}
	return fraction
}
