package identify

import (
	"strings"

	"tagflow/internal/store"
)

// Album or album-artist values that indicate a compilation or DJ mix.
var compilationIndicators = []string{
	"various artists", "various", "va", "compilation", "soundtrack",
	"ost", "dj screw", "dj mix", "mixed by",
}

// Known DJ/compiler names that indicate a compilation.
var knownDJs = map[string]struct{}{
	"dj screw": {}, "dj drama": {}, "dj khaled": {}, "dj clue": {},
	"dj kay slay": {}, "dj green lantern": {}, "dj whoo kid": {}, "dj envy": {},
}

// CompilationDetector flags tracks that belong to compilations or DJ mixes
// so the organizer folders them under the album artist.
type CompilationDetector struct {
	screw *ScrewHandler
}

// NewCompilationDetector constructs a detector. screw may be nil.
func NewCompilationDetector(screw *ScrewHandler) *CompilationDetector {
	return &CompilationDetector{screw: screw}
}

// Detect inspects a track's tags and marks it as a compilation when the
// indicators fire. Mix-series tracks additionally get their album normalized
// to the canonical chapter format.
func (d *CompilationDetector) Detect(track *store.Track) {
	if d.screw != nil && d.screw.IsMixSeriesTrack(track) {
		track.IsCompilation = true
		d.screw.NormalizeAlbum(track)
		return
	}

	albumArtist := strings.ToLower(strings.TrimSpace(track.AlbumArtist))
	if albumArtist != "" {
		if _, known := knownDJs[albumArtist]; known {
			track.IsCompilation = true
			return
		}
		for _, indicator := range compilationIndicators {
			if strings.Contains(albumArtist, indicator) {
				track.IsCompilation = true
				return
			}
		}
	}

	if AlbumLooksLikeCompilation(track.Album) {
		track.IsCompilation = true
	}
}

// AlbumLooksLikeCompilation reports whether an album name alone signals a
// compilation or mixtape. The resolver drops such albums from search queries
// because oracles only know original releases.
func AlbumLooksLikeCompilation(album string) bool {
	album = strings.ToLower(strings.TrimSpace(album))
	if album == "" {
		return false
	}
	for _, indicator := range compilationIndicators {
		if strings.Contains(album, indicator) {
			return true
		}
	}
	return strings.HasPrefix(album, "chapter ")
}
