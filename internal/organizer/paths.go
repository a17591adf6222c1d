package organizer

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"tagflow/internal/logging"
	"tagflow/internal/store"
	"tagflow/internal/textutil"
)

// Default templates used when a configured template is malformed.
const (
	defaultFolderTemplate = "{artist}/{album} ({year})"
	defaultFileTemplate   = "{track:02d} - {title}"
)

// knownPlaceholders lists every placeholder a template may use.
var knownPlaceholders = []string{
	"{artist}", "{album}", "{album_artist}", "{year}", "{disc}",
	"{track}", "{track:02d}", "{title}",
}

// BuildDestination computes the library destination for a track from the
// folder and file templates. Compilations folder under the album artist and
// carry the track artist in the filename; album-less tracks land in the
// singles folder.
func (o *Organizer) BuildDestination(track *store.Track) string {
	title := textutil.SanitizeFileName(track.DisplayTitle())
	artist := textutil.SanitizeFileName(displayArtist(track))
	album := textutil.SanitizeFileName(displayAlbum(track))
	year := "Unknown Year"
	if track.Year > 0 {
		year = strconv.Itoa(track.Year)
	}
	ext := filepath.Ext(track.SourcePath)

	folderArtist := artist
	albumArtist := ""
	if strings.TrimSpace(track.AlbumArtist) != "" {
		albumArtist = textutil.SanitizeFileName(track.AlbumArtist)
	}
	if track.IsCompilation && albumArtist != "" {
		folderArtist = albumArtist
	}

	values := map[string]string{
		"{artist}":       folderArtist,
		"{album}":        album,
		"{album_artist}": albumArtist,
		"{year}":         year,
		"{disc}":         strconv.Itoa(track.DiscNumber),
		"{track}":        strconv.Itoa(track.TrackNumber),
		"{track:02d}":    fmt.Sprintf("%02d", track.TrackNumber),
		"{title}":        title,
	}

	var folder string
	if hasRealAlbum(track) {
		folder = o.renderTemplate(o.folderTemplate, defaultFolderTemplate, values)
		// Multi-disc releases get a disc subfolder.
		if (track.TotalDiscs > 1 || track.DiscNumber >= 2) && track.DiscNumber > 0 {
			folder = filepath.Join(folder, fmt.Sprintf("Disc %d", track.DiscNumber))
		}
	} else {
		folder = filepath.Join(folderArtist, o.singlesFolder)
	}

	var filename string
	switch {
	case track.IsCompilation && albumArtist != "" && artist != albumArtist:
		if track.TrackNumber > 0 {
			filename = fmt.Sprintf("%02d - %s - %s", track.TrackNumber, title, artist)
		} else {
			filename = fmt.Sprintf("%s - %s", title, artist)
		}
	case track.TrackNumber > 0:
		filename = o.renderTemplate(o.fileTemplate, defaultFileTemplate, values)
	default:
		filename = title
	}

	dest := filepath.Join(o.libraryRoot, filepath.FromSlash(folder), filename+ext)
	return textutil.EnforcePathLength(dest, textutil.MaxTotalPathLength)
}

// UnmatchedDestination returns where an unmatched track goes when
// move_unmatched is enabled: the unmatched folder, original filename kept.
func (o *Organizer) UnmatchedDestination(track *store.Track) string {
	dest := filepath.Join(o.libraryRoot, o.unmatchedFolder, filepath.Base(track.SourcePath))
	return textutil.EnforcePathLength(dest, textutil.MaxTotalPathLength)
}

// renderTemplate substitutes placeholders; a template that leaves unknown
// placeholders unexpanded falls back to the default with a warning.
func (o *Organizer) renderTemplate(template, fallback string, values map[string]string) string {
	rendered := substitute(template, values)
	if leftover := findPlaceholder(rendered); leftover != "" {
		logTemplateFallback(o.logger, template, leftover)
		rendered = substitute(fallback, values)
	}
	return cleanRendered(rendered)
}

func substitute(template string, values map[string]string) string {
	result := template
	for placeholder, value := range values {
		result = strings.ReplaceAll(result, placeholder, value)
	}
	return result
}

func findPlaceholder(rendered string) string {
	start := strings.IndexByte(rendered, '{')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(rendered[start:], '}')
	if end < 0 {
		return rendered[start:]
	}
	return rendered[start : start+end+1]
}

// cleanRendered drops empty path segments a template can produce when a
// field is missing ("()", "[]", bare dashes).
func cleanRendered(rendered string) string {
	parts := strings.Split(rendered, "/")
	cleaned := parts[:0]
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" || part == "-" || part == "()" || part == "[]" {
			continue
		}
		cleaned = append(cleaned, part)
	}
	return strings.Join(cleaned, "/")
}

func logTemplateFallback(logger *slog.Logger, template, leftover string) {
	logger.Warn("malformed path template, using default",
		logging.String("template", template),
		logging.String("unresolved", leftover),
		logging.String(logging.FieldErrorHint, "supported placeholders: "+strings.Join(knownPlaceholders, " ")))
}

func displayArtist(track *store.Track) string {
	if strings.TrimSpace(track.Artist) != "" {
		return track.Artist
	}
	return "Unknown Artist"
}

func displayAlbum(track *store.Track) string {
	if strings.TrimSpace(track.Album) != "" {
		return track.Album
	}
	return "Unknown Album"
}

func hasRealAlbum(track *store.Track) bool {
	album := strings.ToLower(strings.TrimSpace(track.Album))
	return album != "" && album != "unknown album"
}

// uniquePath appends " (n)" before the extension until the path is free.
func uniquePath(path string, exists func(string) bool) string {
	if !exists(path) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for counter := 1; ; counter++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, counter, ext)
		if !exists(candidate) {
			return candidate
		}
	}
}
