package identify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"tagflow/internal/logging"
	"tagflow/internal/services/archive"
	"tagflow/internal/store"
	"tagflow/internal/textutil"
)

// The mix series album artist and canonical chapter album format. The series
// catalog spans 363+ chapters; titles on the archive follow
// "Chapter NNN - Title".
const (
	mixSeriesArtist     = "DJ Screw"
	chapterAlbumFormat  = "Chapter %03d - %s"
	trackMatchThreshold = 0.45
)

var screwAlbumKeywords = []string{
	"diary of the originator", "screwed up click",
	"3 n the mornin", "3 'n the mornin", "3 n da morning",
	"screwin up", "screw tape", "d.o.t.o",
	"gray tape", "grey tape", "screwed and chopped",
	"screwed & chopped", "chopped and screwed", "chopped & screwed",
	"chopped not slopped",
}

var screwFolderVariants = []string{
	"dj screw", "djscrew", "dj screw discography",
	"screwed up click", "va dj screw",
}

var (
	chapterLeadRe  = regexp.MustCompile(`^chapter\s*(\d{1,3})`)
	chapterFullRe  = regexp.MustCompile(`chapter\s*(\d{1,3})\s*[-–—:.]\s*(.+?)$`)
	chapterBareRe  = regexp.MustCompile(`^chapter\s*(\d{1,3})$`)
	chapterTitleRe = regexp.MustCompile(`^chapter\s*(\d{1,3})\s*[-–—:.\s]\s*(.+?)(?:\s*bootleg)?\s*$`)
	diaryPrefixRe  = regexp.MustCompile(`^(?:diary\s+of\s+the\s+originator|d\.?o\.?t\.?o\.?)\s*[:_]?\s*chapter\s*(\d{1,3})\s*[-–—:.\s]\s*(.+)$`)
	dotoParenRe    = regexp.MustCompile(`^d\.?o\.?t\.?o\.?\s*[(\[]\s*chapter\s*(\d{1,3})\s*[-–—:.]\s*(.+?)\s*[)\]](?:\s*[(\[]?\s*bootleg\s*[)\]]?)?\s*$`)
	screwPrefixRe  = regexp.MustCompile(`^dj\s*screw\s*[-–—:]\s*(.+)$`)
	trailingYearRe = regexp.MustCompile(`\s*\(\d{4}\)\s*$`)
	trailingBootRe = regexp.MustCompile(`(?i)\s*bootleg\s*$`)
	folderChapterRe = regexp.MustCompile(`chapter\s*(\d{1,3})\s+(.+)`)
)

// ScrewHandler detects tracks from the mix series, extracts chapter numbers,
// normalizes album names to the canonical format, and matches tracks against
// archive chapter candidates.
type ScrewHandler struct {
	client *archive.Client
	cache  CacheStore
	logger *slog.Logger

	// chapterIndex maps normalized chapter title -> chapter number, built
	// lazily from the collection listing.
	chapterIndex map[string]int
	indexTitles  []string
	indexDocs    map[int]archive.Doc
}

// CacheStore is the subset of the response cache the identify package needs.
type CacheStore interface {
	CacheGet(ctx context.Context, key string) (*store.CacheEntry, error)
	CachePut(ctx context.Context, key, value string, kind store.CacheKind) error
}

// NewScrewHandler constructs the handler. client may be nil when the archive
// oracle is disabled; every method then degrades gracefully.
func NewScrewHandler(client *archive.Client, cache CacheStore, logger *slog.Logger) *ScrewHandler {
	return &ScrewHandler{
		client: client,
		cache:  cache,
		logger: logging.NewComponentLogger(logger, "mixseries"),
	}
}

// IsMixSeriesTrack checks whether a track belongs to the mix series, using
// album artist, album patterns, and folder names.
func (h *ScrewHandler) IsMixSeriesTrack(track *store.Track) bool {
	albumArtist := strings.ToLower(strings.TrimSpace(track.AlbumArtist))
	if strings.Contains(albumArtist, "dj screw") || strings.Contains(albumArtist, "djscrew") {
		return true
	}

	album := strings.ToLower(strings.TrimSpace(track.Album))
	if chapterLeadRe.MatchString(album) || strings.HasPrefix(album, "dj screw") {
		return true
	}
	for _, keyword := range screwAlbumKeywords {
		if strings.Contains(album, keyword) {
			return true
		}
	}

	for _, part := range strings.Split(filepath.ToSlash(track.SourcePath), "/") {
		partLower := strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(strings.ToLower(part)))
		for _, variant := range screwFolderVariants {
			if strings.Contains(partLower, variant) {
				return true
			}
		}
	}
	return false
}

// ExtractChapter pulls the chapter number and title from a track's metadata,
// falling back to folder names and a reverse title lookup against the
// collection index.
func (h *ScrewHandler) ExtractChapter(ctx context.Context, track *store.Track) (int, string, bool) {
	album := strings.TrimSpace(track.Album)
	albumLower := strings.ToLower(album)

	if m := chapterFullRe.FindStringSubmatch(albumLower); m != nil {
		num, _ := strconv.Atoi(m[1])
		return num, strings.TrimSpace(m[2]), true
	}
	if m := chapterBareRe.FindStringSubmatch(albumLower); m != nil {
		num, _ := strconv.Atoi(m[1])
		return num, "", true
	}

	albumArtist := strings.ToLower(strings.TrimSpace(track.AlbumArtist))
	if !strings.Contains(albumArtist, "dj screw") && !strings.Contains(albumArtist, "djscrew") {
		return 0, "", false
	}

	// Album artist confirms the series but the album lacks a chapter; try
	// the folder names.
	for _, part := range strings.Split(filepath.ToSlash(track.SourcePath), "/") {
		partLower := strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(strings.ToLower(part)))
		if m := folderChapterRe.FindStringSubmatch(partLower); m != nil {
			num, _ := strconv.Atoi(m[1])
			return num, strings.TrimSpace(m[2]), true
		}
	}

	// Reverse lookup by tape title via the collection index.
	tapeTitle := album
	if m := screwPrefixRe.FindStringSubmatch(albumLower); m != nil {
		tapeTitle = strings.TrimSpace(m[1])
	}
	if tapeTitle != "" {
		if num, ok := h.lookupChapterByTitle(ctx, tapeTitle); ok {
			return num, tapeTitle, true
		}
	}
	return 0, "", false
}

// NormalizeAlbum rewrites a mix-series album name to the canonical
// "Chapter NNN - Title" format and pins the album artist.
func (h *ScrewHandler) NormalizeAlbum(track *store.Track) {
	albumLower := strings.ToLower(strings.TrimSpace(track.Album))
	if albumLower == "" {
		return
	}

	set := func(num int, rawTitle string) {
		title := textutil.SmartTitleCase(cleanChapterTitle(rawTitle))
		track.Album = fmt.Sprintf(chapterAlbumFormat, num, title)
		track.AlbumArtist = mixSeriesArtist
	}

	if m := diaryPrefixRe.FindStringSubmatch(albumLower); m != nil {
		num, _ := strconv.Atoi(m[1])
		set(num, m[2])
		return
	}
	if m := dotoParenRe.FindStringSubmatch(albumLower); m != nil {
		num, _ := strconv.Atoi(m[1])
		set(num, m[2])
		return
	}
	if m := screwPrefixRe.FindStringSubmatch(albumLower); m != nil {
		track.AlbumArtist = mixSeriesArtist
		inner := strings.TrimSpace(m[1])
		if im := chapterTitleRe.FindStringSubmatch(inner); im != nil {
			num, _ := strconv.Atoi(im[1])
			set(num, im[2])
			return
		}
		tape := textutil.SmartTitleCase(trailingYearRe.ReplaceAllString(inner, ""))
		track.Album = "DJ Screw - " + tape
		return
	}
	if m := chapterTitleRe.FindStringSubmatch(albumLower); m != nil {
		num, _ := strconv.Atoi(m[1])
		set(num, m[2])
	}
}

func cleanChapterTitle(raw string) string {
	title := strings.TrimSpace(raw)
	title = trailingYearRe.ReplaceAllString(title, "")
	title = trailingBootRe.ReplaceAllString(title, "")
	title = strings.TrimSpace(title)
	if strings.HasPrefix(title, "(") && strings.HasSuffix(title, ")") {
		title = strings.TrimSuffix(strings.TrimPrefix(title, "("), ")")
	}
	return strings.TrimSpace(title)
}

// FetchChapter returns per-track candidates for a chapter, querying the
// collection and the item's structured metadata.
func (h *ScrewHandler) FetchChapter(ctx context.Context, chapter int, title string) []Candidate {
	if h.client == nil {
		return nil
	}
	if err := h.ensureIndex(ctx); err != nil {
		h.logger.Warn("collection index unavailable", logging.Error(err))
		return nil
	}
	doc, ok := h.indexDocs[chapter]
	if !ok {
		h.logger.Debug("chapter not in collection index", logging.Int("chapter", chapter))
		return nil
	}

	item, err := h.client.Metadata(ctx, doc.Identifier)
	if err != nil {
		h.logger.Warn("chapter metadata fetch failed",
			logging.String("identifier", doc.Identifier),
			logging.Error(err))
		return nil
	}

	album := strings.TrimSpace(item.Title)
	if album == "" {
		album = fmt.Sprintf(chapterAlbumFormat, chapter, textutil.SmartTitleCase(title))
	}

	candidates := make([]Candidate, 0, len(item.Files))
	for _, file := range item.Files {
		candidates = append(candidates, Candidate{
			Title:       file.Title,
			Artist:      file.Artist,
			Album:       album,
			AlbumArtist: mixSeriesArtist,
			Year:        item.Year,
			TrackNumber: file.Track,
			TotalTracks: len(item.Files),
			ReleaseID:   item.Identifier,
			DurationSec: file.Duration,
			Source:      SourceArchive,
		})
	}
	return candidates
}

// MatchTrack finds the best chapter candidate for a specific track using
// fuzzy title/artist matching and duration comparison.
func (h *ScrewHandler) MatchTrack(track *store.Track, candidates []Candidate) *Candidate {
	if !track.HasBasicTags() && strings.TrimSpace(track.Title) == "" {
		return nil
	}

	var best *Candidate
	bestScore := 0.0
	for i := range candidates {
		candidate := &candidates[i]
		titleSim := textutil.Similarity(track.Title, candidate.Title)
		artistSim := 0.5
		if strings.TrimSpace(track.Artist) != "" {
			artistSim = textutil.Similarity(track.Artist, candidate.Artist)
		}

		durSim := 0.5
		if track.Duration > 0 && candidate.DurationSec > 0 {
			diff := track.Duration - candidate.DurationSec
			if diff < 0 {
				diff = -diff
			}
			switch {
			case diff <= 2:
				durSim = 1.0
			case diff <= 10:
				durSim = 0.8
			case diff <= 30:
				durSim = 0.5
			default:
				durSim = 0.1
			}
		}

		trackNumBonus := 0.0
		if track.TrackNumber > 0 && candidate.TrackNumber == track.TrackNumber {
			trackNumBonus = 0.15
		}

		score := titleSim*0.5 + artistSim*0.2 + durSim*0.2 + trackNumBonus
		if score > bestScore {
			bestScore = score
			best = candidate
		}
	}

	if best != nil && bestScore >= trackMatchThreshold {
		h.logger.Debug("chapter track matched",
			logging.String("track", track.DisplayTitle()),
			logging.String("candidate", best.Artist+" - "+best.Title),
			logging.Float64("score", bestScore))
		return best
	}
	return nil
}

func (h *ScrewHandler) lookupChapterByTitle(ctx context.Context, title string) (int, bool) {
	if err := h.ensureIndex(ctx); err != nil {
		return 0, false
	}
	match, ok := textutil.BestMatch(title, h.indexTitles, 0.8)
	if !ok {
		return 0, false
	}
	num, ok := h.chapterIndex[textutil.Normalize(match)]
	return num, ok
}

// ensureIndex loads the collection listing once, through the response cache.
func (h *ScrewHandler) ensureIndex(ctx context.Context) error {
	if h.chapterIndex != nil {
		return nil
	}
	if h.client == nil {
		return fmt.Errorf("archive oracle disabled")
	}

	var docs []archive.Doc
	cacheKey := h.client.CollectionCacheKey()
	if h.cache != nil {
		if entry, err := h.cache.CacheGet(ctx, cacheKey); err == nil && entry != nil && entry.Kind == store.CachePositive {
			_ = json.Unmarshal([]byte(entry.Value), &docs)
		}
	}
	if docs == nil {
		fetched, err := h.client.SearchCollection(ctx)
		if err != nil {
			return err
		}
		docs = fetched
		if h.cache != nil {
			if encoded, err := json.Marshal(docs); err == nil {
				_ = h.cache.CachePut(ctx, cacheKey, string(encoded), store.CachePositive)
			}
		}
	}

	h.chapterIndex = make(map[string]int)
	h.indexDocs = make(map[int]archive.Doc)
	h.indexTitles = h.indexTitles[:0]
	for _, doc := range docs {
		m := chapterFullRe.FindStringSubmatch(strings.ToLower(doc.Title))
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		chapterTitle := strings.TrimSpace(m[2])
		h.indexDocs[num] = doc
		h.chapterIndex[textutil.Normalize(chapterTitle)] = num
		h.indexTitles = append(h.indexTitles, chapterTitle)
	}
	h.logger.Debug("collection index built", logging.Int("chapters", len(h.indexDocs)))
	return nil
}
