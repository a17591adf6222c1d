package scanner

import (
	"testing"

	"tagflow/internal/store"
)

func guess(t *testing.T, path string) *store.Track {
	t.Helper()
	track := &store.Track{SourcePath: path}
	GuessFromFilename(track)
	return track
}

func TestGuessArtistDashTitle(t *testing.T) {
	track := guess(t, "/music/The Beatles - Here Comes The Sun.mp3")
	if track.Artist != "The Beatles" || track.Title != "Here Comes The Sun" {
		t.Fatalf("got artist=%q title=%q", track.Artist, track.Title)
	}
}

func TestGuessTrackNumberDashTitle(t *testing.T) {
	track := guess(t, "/music/Abbey Road/07 - Here Comes The Sun.mp3")
	if track.TrackNumber != 7 || track.Title != "Here Comes The Sun" {
		t.Fatalf("got track=%d title=%q", track.TrackNumber, track.Title)
	}
	if track.Artist != "Abbey Road" {
		t.Fatalf("parent folder should stand in for artist, got %q", track.Artist)
	}
}

func TestGuessTrackArtistTitle(t *testing.T) {
	track := guess(t, "/music/mix/03 2Pac - Ambitionz Az a Ridah.mp3")
	if track.TrackNumber != 3 || track.Artist != "2Pac" || track.Title != "Ambitionz Az a Ridah" {
		t.Fatalf("got track=%d artist=%q title=%q", track.TrackNumber, track.Artist, track.Title)
	}
}

func TestGuessDiscTrackPrefix(t *testing.T) {
	track := guess(t, "/music/album/1-04 - Hellraizer.mp3")
	if track.DiscNumber != 1 || track.TrackNumber != 4 || track.Title != "Hellraizer" {
		t.Fatalf("got disc=%d track=%d title=%q", track.DiscNumber, track.TrackNumber, track.Title)
	}
}

func TestGuessBareTitle(t *testing.T) {
	track := guess(t, "/music/unsorted/Hellraizer.mp3")
	if track.Title != "Hellraizer" {
		t.Fatalf("got title=%q", track.Title)
	}
	if track.Artist != "unsorted" {
		t.Fatalf("got artist=%q", track.Artist)
	}
}

func TestGuessNumberTitleWithoutDash(t *testing.T) {
	track := guess(t, "/music/tape/05 Hellraizer.mp3")
	if track.TrackNumber != 5 || track.Title != "Hellraizer" {
		t.Fatalf("got track=%d title=%q", track.TrackNumber, track.Title)
	}
}

func TestGuessDJFolderStructure(t *testing.T) {
	track := guess(t, "/music/DJ Screw Discography/Chapter 012 - June 27th/02 June 27th Freestyle.mp3")
	if track.AlbumArtist != "DJ Screw" {
		t.Fatalf("album artist not inferred: %q", track.AlbumArtist)
	}
	if track.Album != "Chapter 012 - June 27th" {
		t.Fatalf("album not taken from chapter folder: %q", track.Album)
	}
	if track.TrackNumber != 2 || track.Title != "June 27th Freestyle" {
		t.Fatalf("got track=%d title=%q", track.TrackNumber, track.Title)
	}
}

func TestGuessDoesNotOverrideExistingTags(t *testing.T) {
	track := &store.Track{
		SourcePath:  "/music/x/01 - Wrong Title.mp3",
		Title:       "Right Title",
		TrackNumber: 9,
	}
	GuessFromFilename(track)
	if track.Title != "Right Title" || track.TrackNumber != 9 {
		t.Fatalf("existing tags overridden: %+v", track)
	}
}

func TestIsAudioFile(t *testing.T) {
	if !IsAudioFile("/x/song.FLAC") {
		t.Fatal("extension match should be case-insensitive")
	}
	if IsAudioFile("/x/cover.jpg") {
		t.Fatal("non-audio extension accepted")
	}
}
