package identify

import (
	"context"
	"testing"

	"tagflow/internal/logging"
	"tagflow/internal/store"
)

func newTestScrewHandler() *ScrewHandler {
	return NewScrewHandler(nil, nil, logging.NewNop())
}

func TestIsMixSeriesTrackDetection(t *testing.T) {
	handler := newTestScrewHandler()

	cases := []struct {
		name  string
		track store.Track
		want  bool
	}{
		{"album artist", store.Track{AlbumArtist: "DJ Screw", SourcePath: "/m/x.mp3"}, true},
		{"chapter album", store.Track{Album: "Chapter 12 - June 27th", SourcePath: "/m/x.mp3"}, true},
		{"keyword album", store.Track{Album: "Diary of the Originator", SourcePath: "/m/x.mp3"}, true},
		{"folder variant", store.Track{SourcePath: "/music/DJ Screw Discography/tape/x.mp3"}, true},
		{"plain track", store.Track{Artist: "The Beatles", Album: "Abbey Road", SourcePath: "/m/x.mp3"}, false},
	}
	for _, tc := range cases {
		if got := handler.IsMixSeriesTrack(&tc.track); got != tc.want {
			t.Errorf("%s: IsMixSeriesTrack = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestExtractChapterFromAlbum(t *testing.T) {
	handler := newTestScrewHandler()
	track := &store.Track{Album: "Chapter 051 - 9 Fo Shit", SourcePath: "/m/x.mp3"}

	num, title, ok := handler.ExtractChapter(context.Background(), track)
	if !ok || num != 51 || title != "9 fo shit" {
		t.Fatalf("got (%d, %q, %v)", num, title, ok)
	}
}

func TestExtractChapterBareNumber(t *testing.T) {
	handler := newTestScrewHandler()
	track := &store.Track{Album: "Chapter 7", SourcePath: "/m/x.mp3"}

	num, title, ok := handler.ExtractChapter(context.Background(), track)
	if !ok || num != 7 || title != "" {
		t.Fatalf("got (%d, %q, %v)", num, title, ok)
	}
}

func TestExtractChapterFromFolder(t *testing.T) {
	handler := newTestScrewHandler()
	track := &store.Track{
		AlbumArtist: "DJ Screw",
		Album:       "June 27th",
		SourcePath:  "/music/dj screw/chapter 012 june 27th/02 freestyle.mp3",
	}

	num, _, ok := handler.ExtractChapter(context.Background(), track)
	if !ok || num != 12 {
		t.Fatalf("got (%d, %v)", num, ok)
	}
}

func TestNormalizeAlbumVariants(t *testing.T) {
	handler := newTestScrewHandler()

	cases := []struct {
		album     string
		wantAlbum string
	}{
		{"Chapter 51 - 9 Fo Shit", "Chapter 051 - 9 Fo Shit"},
		{"DJ Screw - Chapter 12 - June 27th", "Chapter 012 - June 27th"},
		{"Diary of the Originator: Chapter 3 - Wineberry Over Gold", "Chapter 003 - Wineberry Over Gold"},
		{"D.O.T.O. (Chapter 99 - Still a G) (Bootleg)", "Chapter 099 - Still a G"},
	}
	for _, tc := range cases {
		track := &store.Track{Album: tc.album}
		handler.NormalizeAlbum(track)
		if track.Album != tc.wantAlbum {
			t.Errorf("NormalizeAlbum(%q) = %q, want %q", tc.album, track.Album, tc.wantAlbum)
		}
		if track.AlbumArtist != "DJ Screw" {
			t.Errorf("NormalizeAlbum(%q) album artist = %q", tc.album, track.AlbumArtist)
		}
	}
}

func TestNormalizeAlbumLeavesOthersAlone(t *testing.T) {
	handler := newTestScrewHandler()
	track := &store.Track{Album: "Abbey Road"}
	handler.NormalizeAlbum(track)
	if track.Album != "Abbey Road" || track.AlbumArtist != "" {
		t.Fatalf("unrelated album mutated: %+v", track)
	}
}

func TestMatchTrackPicksBestCandidate(t *testing.T) {
	handler := newTestScrewHandler()
	track := &store.Track{
		Title:       "June 27th Freestyle",
		Artist:      "DJ Screw",
		Duration:    2155,
		TrackNumber: 2,
		SourcePath:  "/m/x.mp3",
	}
	candidates := []Candidate{
		{Title: "Intro", Artist: "DJ Screw", TrackNumber: 1, DurationSec: 120, Source: SourceArchive},
		{Title: "June 27th Freestyle", Artist: "DJ Screw", TrackNumber: 2, DurationSec: 2154, Source: SourceArchive},
		{Title: "Outro", Artist: "DJ Screw", TrackNumber: 3, DurationSec: 90, Source: SourceArchive},
	}

	best := handler.MatchTrack(track, candidates)
	if best == nil || best.Title != "June 27th Freestyle" {
		t.Fatalf("got %+v", best)
	}
}

func TestMatchTrackRejectsWeakMatches(t *testing.T) {
	handler := newTestScrewHandler()
	track := &store.Track{Title: "Completely Unrelated Song", Artist: "Nobody", SourcePath: "/m/x.mp3"}
	candidates := []Candidate{
		{Title: "Intro", Artist: "DJ Screw", DurationSec: 120, Source: SourceArchive},
	}
	if best := handler.MatchTrack(track, candidates); best != nil {
		t.Fatalf("weak match accepted: %+v", best)
	}
}
