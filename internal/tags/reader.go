package tags

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
)

// Metadata is the tag set tagflow reads and writes.
type Metadata struct {
	Title       string
	Artist      string
	Album       string
	AlbumArtist string
	Genre       string
	Year        int
	TrackNumber int
	TotalTracks int
	DiscNumber  int
	TotalDiscs  int
}

// ErrNoTags indicates the file carries no recognizable tag block. Callers
// fall back to filename guessing.
var ErrNoTags = errors.New("no tags present")

// Read extracts embedded metadata from an audio file.
func Read(path string) (Metadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	parsed, err := tag.ReadFrom(file)
	if err != nil {
		if errors.Is(err, tag.ErrNoTagsFound) {
			return Metadata{}, ErrNoTags
		}
		return Metadata{}, fmt.Errorf("read tags from %s: %w", path, err)
	}

	meta := Metadata{
		Title:       strings.TrimSpace(parsed.Title()),
		Artist:      strings.TrimSpace(parsed.Artist()),
		Album:       strings.TrimSpace(parsed.Album()),
		AlbumArtist: strings.TrimSpace(parsed.AlbumArtist()),
		Genre:       strings.TrimSpace(parsed.Genre()),
		Year:        parsed.Year(),
	}
	meta.TrackNumber, meta.TotalTracks = parsed.Track()
	meta.DiscNumber, meta.TotalDiscs = parsed.Disc()
	return meta, nil
}

// SupportedWriteFormats lists the extensions Write can mutate.
var SupportedWriteFormats = map[string]struct{}{
	".mp3":  {},
	".flac": {},
}

// CanWrite reports whether tagflow can rewrite tags for the given path.
func CanWrite(path string) bool {
	_, ok := SupportedWriteFormats[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Write rewrites the embedded tags of an audio file. coverArt may be nil.
// Formats without write support return an error so the organizer can record
// a tag-only skip instead of corrupting the file.
func Write(path string, meta Metadata, coverArt []byte) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return writeMP3(path, meta, coverArt)
	case ".flac":
		return writeFLAC(path, meta, coverArt)
	default:
		return fmt.Errorf("tag writing not supported for %s", filepath.Ext(path))
	}
}
