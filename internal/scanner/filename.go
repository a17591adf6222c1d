package scanner

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"tagflow/internal/store"
	"tagflow/internal/textutil"
)

// Folder names that never stand in for an artist or album.
var skipFolderNames = map[string]struct{}{
	"music": {}, "downloads": {}, "desktop": {}, "_unmatched": {}, "unknown": {}, "": {},
}

var (
	trackNumRe     = regexp.MustCompile(`^\d{1,3}$`)
	discTrackRe    = regexp.MustCompile(`^(\d+)-(\d+)$`)
	discTrackLeadRe = regexp.MustCompile(`^(\d+-\d+)\s+(.+)$`)
	trackLeadRe    = regexp.MustCompile(`^(\d{1,3})\s+(.+)$`)
	looseDashRe    = regexp.MustCompile(`\s*-\s*`)
)

// GuessFromFilename fills missing tags from the filename and folder layout.
// Handles "Artist - Title", "NN Title", "NN Artist - Title", "D-NN Title"
// disc-track prefixes, and DJ-compilation folder structures where the parent
// folder is the album and a grandparent names the DJ.
func GuessFromFilename(track *store.Track) {
	base := filepath.Base(track.SourcePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	switch {
	case strings.Contains(stem, " - "):
		first, rest, _ := strings.Cut(stem, " - ")
		first = strings.TrimSpace(first)
		rest = strings.TrimSpace(rest)
		guessDashSplit(track, first, rest)
	case strings.Contains(stem, "- ") || strings.Contains(stem, " -"):
		// Inconsistent dash spacing ("Artist- Title (Ft. Other)").
		parts := looseDashRe.Split(stem, 2)
		if len(parts) == 2 {
			first := strings.TrimSpace(parts[0])
			if m := trackLeadRe.FindStringSubmatch(first); m != nil {
				first = strings.TrimSpace(m[2])
			}
			setIfEmpty(&track.Artist, first)
			setIfEmpty(&track.Title, strings.TrimSpace(parts[1]))
		}
	case trackLeadRe.MatchString(stem):
		m := trackLeadRe.FindStringSubmatch(stem)
		if track.TrackNumber == 0 {
			track.TrackNumber, _ = strconv.Atoi(m[1])
		}
		content := strings.TrimSpace(m[2])
		if artist, title, found := strings.Cut(content, " - "); found {
			setIfEmpty(&track.Artist, strings.TrimSpace(artist))
			setIfEmpty(&track.Title, strings.TrimSpace(title))
		} else {
			setIfEmpty(&track.Title, content)
		}
	case discTrackLeadRe.MatchString(stem):
		m := discTrackLeadRe.FindStringSubmatch(stem)
		parseDiscTrack(m[1], track)
		content := strings.TrimSpace(m[2])
		if artist, title, found := strings.Cut(content, " - "); found {
			setIfEmpty(&track.Artist, strings.TrimSpace(artist))
			setIfEmpty(&track.Title, strings.TrimSpace(title))
		} else {
			setIfEmpty(&track.Title, content)
		}
	default:
		setIfEmpty(&track.Title, stem)
	}

	track.Title = strings.TrimRight(track.Title, ".")
	guessFromFolders(track)
}

func guessDashSplit(track *store.Track, first, rest string) {
	switch {
	case trackNumRe.MatchString(first):
		// "01 - Title"
		if track.TrackNumber == 0 {
			track.TrackNumber, _ = strconv.Atoi(first)
		}
		setIfEmpty(&track.Title, rest)
	case discTrackRe.MatchString(first):
		// "1-04 - Title"
		parseDiscTrack(first, track)
		setIfEmpty(&track.Title, rest)
	case discTrackLeadRe.MatchString(first):
		// "1-01 Artist Name - Title"
		m := discTrackLeadRe.FindStringSubmatch(first)
		parseDiscTrack(m[1], track)
		setIfEmpty(&track.Artist, strings.TrimSpace(m[2]))
		setIfEmpty(&track.Title, rest)
	case trackLeadRe.MatchString(first):
		// "01 Artist Name - Title"
		m := trackLeadRe.FindStringSubmatch(first)
		if track.TrackNumber == 0 {
			track.TrackNumber, _ = strconv.Atoi(m[1])
		}
		setIfEmpty(&track.Artist, strings.TrimSpace(m[2]))
		setIfEmpty(&track.Title, rest)
	default:
		// "Artist - Title"
		setIfEmpty(&track.Artist, first)
		setIfEmpty(&track.Title, rest)
	}
}

// parseDiscTrack interprets a "D-NN" prefix, setting disc and track numbers
// only when not already populated from tags.
func parseDiscTrack(prefix string, track *store.Track) {
	m := discTrackRe.FindStringSubmatch(strings.TrimSpace(prefix))
	if m == nil {
		return
	}
	if track.DiscNumber == 0 {
		track.DiscNumber, _ = strconv.Atoi(m[1])
	}
	if track.TrackNumber == 0 {
		track.TrackNumber, _ = strconv.Atoi(m[2])
	}
}

func guessFromFolders(track *store.Track) {
	parent := filepath.Base(filepath.Dir(track.SourcePath))
	grandparent := filepath.Base(filepath.Dir(filepath.Dir(track.SourcePath)))

	normalizeFolder := func(name string) string {
		name = strings.ToLower(name)
		name = strings.ReplaceAll(name, "_", " ")
		name = strings.ReplaceAll(name, "-", " ")
		return strings.TrimSpace(name)
	}
	parentLower := normalizeFolder(parent)
	gpLower := normalizeFolder(grandparent)

	djArtist := ""
	for _, folder := range []struct{ name, lower string }{
		{grandparent, gpLower},
		{parent, parentLower},
	} {
		switch {
		case strings.Contains(folder.lower, "dj screw"),
			strings.Contains(folder.lower, "djscrew"),
			strings.Contains(folder.lower, "screwed up click"):
			djArtist = "DJ Screw"
		case strings.HasPrefix(folder.lower, "dj "):
			djArtist = textutil.NormalizeArtistName(folder.name)
		}
		if djArtist != "" {
			break
		}
	}

	if djArtist != "" {
		setIfEmpty(&track.AlbumArtist, djArtist)
		if track.Album == "" {
			if _, skip := skipFolderNames[parentLower]; !skip && parentLower != gpLower {
				track.Album = parent
			} else if _, skip := skipFolderNames[gpLower]; !skip && grandparent != "" {
				track.Album = grandparent
			}
		}
		return
	}

	if track.Artist == "" {
		if _, skip := skipFolderNames[parentLower]; !skip {
			track.Artist = parent
		}
	}
}

func setIfEmpty(field *string, value string) {
	if *field == "" && strings.TrimSpace(value) != "" {
		*field = strings.TrimSpace(value)
	}
}
