package identify_test

import (
	"context"
	"sync/atomic"
	"testing"

	"tagflow/internal/fingerprint"
	"tagflow/internal/identify"
	"tagflow/internal/logging"
	"tagflow/internal/ratelimit"
	"tagflow/internal/services/acoustid"
	"tagflow/internal/services/musicbrainz"
	"tagflow/internal/store"
	"tagflow/internal/testsupport"
)

type countingFingerprintOracle struct {
	calls   atomic.Int64
	matches []acoustid.Match
}

func (o *countingFingerprintOracle) Lookup(ctx context.Context, fp string, duration float64) ([]acoustid.Match, error) {
	o.calls.Add(1)
	return o.matches, nil
}

type countingMetadataOracle struct {
	recordingCalls atomic.Int64
	searchCalls    atomic.Int64
	recording      *musicbrainz.Recording
	searchResults  []musicbrainz.SearchResult
}

func (o *countingMetadataOracle) Recording(ctx context.Context, id string) (*musicbrainz.Recording, error) {
	o.recordingCalls.Add(1)
	return o.recording, nil
}

func (o *countingMetadataOracle) SearchRecordings(ctx context.Context, title, artist, album string, limit int) ([]musicbrainz.SearchResult, error) {
	o.searchCalls.Add(1)
	return o.searchResults, nil
}

func newResolverEnv(t *testing.T, fp *countingFingerprintOracle, mb *countingMetadataOracle) *identify.Resolver {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenStore(t, cfg)
	return identify.NewResolver(fp, mb, nil, nil, nil, ratelimit.New(nil), db, logging.NewNop())
}

func fingerprintedTrack() *store.Track {
	return &store.Track{
		BatchID:             "batch-1",
		SourcePath:          "/music/song.mp3",
		Title:               "Here Comes The Sun",
		Artist:              "The Beatles",
		Fingerprint:         "AQAAFAKE",
		FingerprintDuration: 185,
		Duration:            185,
	}
}

func okOutcome(track *store.Track) fingerprint.Outcome {
	return fingerprint.Outcome{
		Kind:        fingerprint.OutcomeOK,
		Fingerprint: track.Fingerprint,
		Duration:    track.FingerprintDuration,
	}
}

func TestResolveEnrichesFingerprintMatches(t *testing.T) {
	fp := &countingFingerprintOracle{matches: []acoustid.Match{{Score: 0.96, RecordingID: "rec-1"}}}
	mb := &countingMetadataOracle{recording: &musicbrainz.Recording{
		ID:          "rec-1",
		Title:       "Here Comes The Sun",
		Artist:      "The Beatles",
		DurationSec: 185,
		Releases:    []musicbrainz.Release{{ID: "rel-1", Title: "Abbey Road", Year: 1969, TrackNumber: 7}},
	}}
	resolver := newResolverEnv(t, fp, mb)
	track := fingerprintedTrack()

	result, err := resolver.Resolve(context.Background(), track, okOutcome(track))
	if err != nil {
		t.Fatal(err)
	}
	if result.Source != "fingerprint" {
		t.Fatalf("lookup source = %q", result.Source)
	}

	var oracleCandidate *identify.Candidate
	for i := range result.Candidates {
		if result.Candidates[i].Source == identify.SourceFingerprint {
			oracleCandidate = &result.Candidates[i]
		}
	}
	if oracleCandidate == nil {
		t.Fatalf("no fingerprint candidate in %+v", result.Candidates)
	}
	if oracleCandidate.Album != "Abbey Road" || oracleCandidate.Year != 1969 || oracleCandidate.ReleaseID != "rel-1" {
		t.Fatalf("release enrichment missing: %+v", oracleCandidate)
	}
	if oracleCandidate.FingerprintSimilarity != 0.96 {
		t.Fatalf("fingerprint similarity not propagated: %f", oracleCandidate.FingerprintSimilarity)
	}
}

func TestResolveWarmCacheSkipsOracles(t *testing.T) {
	fp := &countingFingerprintOracle{matches: []acoustid.Match{{Score: 0.96, RecordingID: "rec-1"}}}
	mb := &countingMetadataOracle{recording: &musicbrainz.Recording{ID: "rec-1", Title: "Song", Artist: "Artist"}}
	resolver := newResolverEnv(t, fp, mb)
	track := fingerprintedTrack()

	first, err := resolver.Resolve(context.Background(), track, okOutcome(track))
	if err != nil {
		t.Fatal(err)
	}
	second, err := resolver.Resolve(context.Background(), track, okOutcome(track))
	if err != nil {
		t.Fatal(err)
	}

	if fp.calls.Load() != 1 || mb.recordingCalls.Load() != 1 {
		t.Fatalf("warm cache still hit oracles: fp=%d mb=%d", fp.calls.Load(), mb.recordingCalls.Load())
	}
	if len(first.Candidates) != len(second.Candidates) {
		t.Fatalf("cached resolve differs: %d vs %d candidates", len(first.Candidates), len(second.Candidates))
	}
	for i := range first.Candidates {
		if first.Candidates[i].Title != second.Candidates[i].Title ||
			first.Candidates[i].Source != second.Candidates[i].Source {
			t.Fatalf("candidate %d differs between identical resolves", i)
		}
	}
}

func TestResolveFallsBackToTagSearch(t *testing.T) {
	fp := &countingFingerprintOracle{}
	mb := &countingMetadataOracle{searchResults: []musicbrainz.SearchResult{{
		Recording: musicbrainz.Recording{ID: "rec-2", Title: "Here Comes The Sun", Artist: "The Beatles"},
		Score:     100,
	}}}
	resolver := newResolverEnv(t, fp, mb)

	track := fingerprintedTrack()
	track.Fingerprint = ""

	result, err := resolver.Resolve(context.Background(), track, fingerprint.Outcome{Kind: fingerprint.OutcomeShortAudio})
	if err != nil {
		t.Fatal(err)
	}
	if fp.calls.Load() != 0 {
		t.Fatal("fingerprint oracle consulted without a fingerprint")
	}
	if mb.searchCalls.Load() == 0 {
		t.Fatal("tag search not attempted")
	}

	foundMetadata := false
	for _, candidate := range result.Candidates {
		if candidate.Source == identify.SourceMetadata {
			foundMetadata = true
		}
	}
	if !foundMetadata {
		t.Fatalf("no metadata candidate in %+v", result.Candidates)
	}
}

func TestResolveAppendsExistingTagsCandidate(t *testing.T) {
	fp := &countingFingerprintOracle{}
	mb := &countingMetadataOracle{}
	resolver := newResolverEnv(t, fp, mb)

	track := fingerprintedTrack()
	track.Fingerprint = ""
	track.Album = "Abbey Road"

	result, err := resolver.Resolve(context.Background(), track, fingerprint.Outcome{Kind: fingerprint.OutcomeDecodeError})
	if err != nil {
		t.Fatal(err)
	}

	var existing *identify.Candidate
	for i := range result.Candidates {
		if result.Candidates[i].Source == identify.SourceExistingTags {
			existing = &result.Candidates[i]
		}
	}
	if existing == nil {
		t.Fatalf("existing-tags candidate missing from %+v", result.Candidates)
	}
	if existing.Title != track.Title || existing.Album != "Abbey Road" {
		t.Fatalf("existing-tags candidate incomplete: %+v", existing)
	}
}
