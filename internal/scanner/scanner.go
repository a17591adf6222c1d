package scanner

import (
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"tagflow/internal/logging"
	"tagflow/internal/store"
	"tagflow/internal/tags"
)

// SupportedExtensions lists the audio containers tagflow processes.
var SupportedExtensions = map[string]struct{}{
	".mp3": {}, ".flac": {}, ".m4a": {}, ".aac": {}, ".ogg": {}, ".opus": {},
	".wma": {}, ".aiff": {}, ".aif": {}, ".wav": {}, ".ape": {}, ".wv": {},
}

// IsAudioFile reports whether the path has a supported audio extension.
func IsAudioFile(path string) bool {
	_, ok := SupportedExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Scanner builds Track records from the filesystem.
type Scanner struct {
	logger *slog.Logger
}

// New constructs a scanner.
func New(logger *slog.Logger) *Scanner {
	return &Scanner{logger: logging.NewComponentLogger(logger, "scanner")}
}

// Scan walks the roots and returns one pending Track per audio file, in
// walk order. Unreadable subtrees are skipped with a warning rather than
// failing the batch.
func (s *Scanner) Scan(batchID string, roots []string) ([]*store.Track, error) {
	var tracks []*store.Track
	seen := make(map[string]struct{})

	for _, root := range roots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}
		walkErr := filepath.WalkDir(absRoot, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				s.logger.Warn("skipping unreadable path",
					logging.String("path", path),
					logging.Error(err))
				if entry != nil && entry.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if entry.IsDir() || !IsAudioFile(path) {
				return nil
			}
			if _, dup := seen[path]; dup {
				return nil
			}
			seen[path] = struct{}{}

			track := &store.Track{
				BatchID:    batchID,
				SourcePath: path,
				Format:     strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
				Status:     store.StatusPending,
			}
			if info, err := entry.Info(); err == nil {
				track.SizeBytes = info.Size()
			}
			s.readTags(track)
			tracks = append(tracks, track)
			return nil
		})
		if walkErr != nil {
			return nil, walkErr
		}
	}

	s.logger.Info("scan complete",
		logging.String(logging.FieldBatchID, batchID),
		logging.Int("track_count", len(tracks)))
	return tracks, nil
}

func (s *Scanner) readTags(track *store.Track) {
	meta, err := tags.Read(track.SourcePath)
	if err != nil {
		if !errors.Is(err, tags.ErrNoTags) {
			s.logger.Debug("tag read failed",
				logging.String(logging.FieldTrackPath, track.SourcePath),
				logging.Error(err))
		}
	} else {
		track.Title = meta.Title
		track.Artist = meta.Artist
		track.Album = meta.Album
		track.AlbumArtist = meta.AlbumArtist
		track.Genre = meta.Genre
		track.Year = meta.Year
		track.TrackNumber = meta.TrackNumber
		track.TotalTracks = meta.TotalTracks
		track.DiscNumber = meta.DiscNumber
		track.TotalDiscs = meta.TotalDiscs
	}

	if !track.HasBasicTags() {
		GuessFromFilename(track)
	}
}
