package identify

import (
	"testing"

	"tagflow/internal/logging"
	"tagflow/internal/store"
)

func newTestScorer() *Scorer {
	return NewScorer(Thresholds{AutoApply: 90, Review: 70}, logging.NewNop())
}

func abbeyRoadTrack() *store.Track {
	return &store.Track{
		SourcePath: "/music/incoming/07 - Here Comes th Sun.mp3",
		Title:      "Here Comes th Sun",
		Artist:     "The beatls",
		Album:      "Abby Road",
		Duration:   185,
	}
}

func TestScoreHighConfidenceFingerprintMatch(t *testing.T) {
	scorer := newTestScorer()
	track := abbeyRoadTrack()
	candidate := &Candidate{
		Title:                 "Here Comes The Sun",
		Artist:                "The Beatles",
		Album:                 "Abbey Road",
		Year:                  1969,
		TrackNumber:           7,
		DurationSec:           186,
		FingerprintSimilarity: 0.95,
		Source:                SourceFingerprint,
	}
	batch := &BatchContext{
		Albums:                   []string{"Abby Road", "Abbey Road", "Abbey Road"},
		TopReleaseIDs:            map[string]string{},
		AlbumSimilarityThreshold: 80,
	}

	score := scorer.Score(candidate, track, batch)
	if score < 88 || score > 100 {
		t.Fatalf("expected a high-confidence score, got %f", score)
	}
	if scorer.Classify(score, true) != TierAutoApply {
		t.Fatalf("expected auto_apply at score %f", score)
	}
}

func TestScoreMidConfidenceFallsInMidBand(t *testing.T) {
	scorer := newTestScorer()
	track := abbeyRoadTrack()
	candidate := &Candidate{
		Title:                 "Here Comes The Sun",
		Artist:                "Unrelated Band Entirely",
		Album:                 "Some Other Album",
		DurationSec:           189,
		FingerprintSimilarity: 0.70,
		Source:                SourceFingerprint,
	}
	batch := &BatchContext{
		Albums:                   []string{"Abby Road", "Another Record"},
		TopReleaseIDs:            map[string]string{},
		AlbumSimilarityThreshold: 80,
	}

	score := scorer.Score(candidate, track, batch)
	if score <= 50 || score >= 90 {
		t.Fatalf("expected a mid-band score, got %f", score)
	}
}

func TestScoreMonotonicInFingerprintFactor(t *testing.T) {
	scorer := newTestScorer()
	track := abbeyRoadTrack()
	batch := &BatchContext{TopReleaseIDs: map[string]string{}}

	base := Candidate{
		Title:       "Here Comes The Sun",
		Artist:      "The Beatles",
		Album:       "Abbey Road",
		DurationSec: 185,
		Source:      SourceFingerprint,
	}
	previous := -1.0
	for _, fp := range []float64{0, 0.25, 0.5, 0.75, 1.0} {
		candidate := base
		candidate.FingerprintSimilarity = fp
		score := scorer.Score(&candidate, track, batch)
		if score < previous {
			t.Fatalf("score decreased when fingerprint factor rose: %f -> %f", previous, score)
		}
		previous = score
	}
}

func TestClassifyBoundariesResolveToLowerTier(t *testing.T) {
	scorer := newTestScorer()
	cases := []struct {
		score float64
		want  Tier
	}{
		{95, TierAutoApply},
		{90, TierReview},
		{89.9, TierReview},
		{70, TierManual},
		{70.1, TierReview},
		{1, TierManual},
		{0, TierUnmatched},
	}
	for _, tc := range cases {
		if got := scorer.Classify(tc.score, true); got != tc.want {
			t.Errorf("Classify(%f) = %s, want %s", tc.score, got, tc.want)
		}
	}
	if got := scorer.Classify(99, false); got != TierUnmatched {
		t.Fatalf("no candidates must classify unmatched, got %s", got)
	}
}

func TestScoreAllSortsAndTieBreaksByProvenance(t *testing.T) {
	scorer := newTestScorer()
	track := abbeyRoadTrack()
	batch := &BatchContext{TopReleaseIDs: map[string]string{}}

	result := &MatchResult{
		Candidates: []Candidate{
			{Title: "Here Comes The Sun", Artist: "The Beatles", Album: "Abbey Road", DurationSec: 185, Source: SourceExistingTags},
			{Title: "Here Comes The Sun", Artist: "The Beatles", Album: "Abbey Road", DurationSec: 185, Source: SourceFingerprint},
		},
	}
	scorer.ScoreAll(result, track, batch)

	if result.Candidates[0].Source != SourceFingerprint {
		t.Fatalf("equal scores must prefer fingerprint provenance, got %s first", result.Candidates[0].Source)
	}
	if result.ChosenIndex != 0 || result.Score != result.Candidates[0].Confidence {
		t.Fatalf("chosen index/score not set: %+v", result)
	}
}

func TestBoostExistingTagsClampsBand(t *testing.T) {
	scorer := newTestScorer()
	track := abbeyRoadTrack()
	batch := &BatchContext{TopReleaseIDs: map[string]string{}}

	result := &MatchResult{
		Candidates: []Candidate{
			{Title: "Nothing Alike", Artist: "Someone Else", Album: "Elsewhere", Source: SourceExistingTags},
		},
	}
	scorer.ScoreAll(result, track, batch)
	scorer.BoostExistingTags(result, track)

	got := result.Candidates[0].Confidence
	if got < 75 || got > 95 {
		t.Fatalf("existing-tags candidate with album should land in 75..95, got %f", got)
	}

	track.Album = ""
	result2 := &MatchResult{
		Candidates: []Candidate{
			{Title: "Nothing Alike", Artist: "Someone Else", Source: SourceExistingTags},
		},
	}
	scorer.ScoreAll(result2, track, batch)
	scorer.BoostExistingTags(result2, track)
	got2 := result2.Candidates[0].Confidence
	if got2 < 50 || got2 > 75 {
		t.Fatalf("album-less existing-tags candidate should land in 50..75, got %f", got2)
	}
}

func TestAlbumConsistencySingleTrackBatchIsNeutral(t *testing.T) {
	scorer := newTestScorer()
	track := abbeyRoadTrack()
	candidate := &Candidate{
		Title:  "Here Comes The Sun",
		Artist: "The Beatles",
		Album:  "Abbey Road",
		Source: SourceFingerprint,
	}
	scorer.Score(candidate, track, &BatchContext{TopReleaseIDs: map[string]string{}})
	if candidate.AlbumConsistency != 0.5 {
		t.Fatalf("single-track batch should be neutral, got %f", candidate.AlbumConsistency)
	}
}
