// Package musicbrainz implements the metadata oracle client.
package musicbrainz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"tagflow/internal/services"
	"tagflow/internal/store"
)

// Recording is the enriched recording payload tagflow consumes.
type Recording struct {
	ID          string
	Title       string
	Artist      string
	DurationSec float64
	Releases    []Release
}

// Release describes one release a recording appears on.
type Release struct {
	ID          string
	Title       string
	Year        int
	TrackNumber int
	TotalTracks int
	DiscNumber  int
	TotalDiscs  int
}

// SearchResult is one scored recording from a text search.
type SearchResult struct {
	Recording
	Score int
}

// Client talks to the MusicBrainz web service.
type Client struct {
	baseURL    string
	userAgent  string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a MusicBrainz client. contact is embedded in the User-Agent as
// the service's terms require; token is optional.
func New(baseURL, contact, token string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("musicbrainz base url required")
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  fmt.Sprintf("tagflow/1.0 ( %s )", strings.TrimSpace(contact)),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type recordingPayload struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Length       int    `json:"length"`
	Score        int    `json:"score"`
	ArtistCredit []struct {
		Name       string `json:"name"`
		JoinPhrase string `json:"joinphrase"`
	} `json:"artist-credit"`
	Releases []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Date  string `json:"date"`
		Media []struct {
			Position   int `json:"position"`
			TrackCount int `json:"track-count"`
			Track      []struct {
				Number string `json:"number"`
			} `json:"track"`
		} `json:"media"`
	} `json:"releases"`
}

type searchPayload struct {
	Recordings []recordingPayload `json:"recordings"`
}

// RecordingCacheKey returns the canonical cache key for a recording fetch.
func RecordingCacheKey(recordingID string) string {
	return store.CacheKey("musicbrainz", "recording", map[string]string{"id": recordingID})
}

// SearchCacheKey returns the canonical cache key for a text search.
func SearchCacheKey(title, artist, album string) string {
	return store.CacheKey("musicbrainz", "search", map[string]string{
		"title":  title,
		"artist": artist,
		"album":  album,
	})
}

// Recording fetches a recording with artist and release details.
func (c *Client) Recording(ctx context.Context, recordingID string) (*Recording, error) {
	recordingID = strings.TrimSpace(recordingID)
	if recordingID == "" {
		return nil, errors.New("recording id must not be empty")
	}
	endpoint := fmt.Sprintf("%s/recording/%s", c.baseURL, url.PathEscape(recordingID))
	params := url.Values{}
	params.Set("inc", "artists+releases+media")
	params.Set("fmt", "json")

	var payload recordingPayload
	if err := c.getJSON(ctx, "recording", endpoint+"?"+params.Encode(), &payload); err != nil {
		return nil, err
	}
	recording := payload.toRecording()
	return &recording, nil
}

// Lucene special characters that break term queries.
var luceneSpecialRe = regexp.MustCompile(`[+\-&|!(){}\[\]^"~*?:\\/]`)

func cleanForSearch(text string) string {
	return strings.Join(strings.Fields(luceneSpecialRe.ReplaceAllString(text, " ")), " ")
}

// SearchRecordings performs a term-based recording search. Any of title,
// artist, and album may be empty; at least one of title or artist is
// required.
func (c *Client) SearchRecordings(ctx context.Context, title, artist, album string, limit int) ([]SearchResult, error) {
	title = cleanForSearch(title)
	artist = cleanForSearch(artist)
	album = cleanForSearch(album)
	if title == "" && artist == "" {
		return nil, errors.New("search needs a title or artist")
	}
	if limit <= 0 {
		limit = 5
	}

	var terms []string
	if title != "" {
		terms = append(terms, "recording:("+title+")")
	}
	if artist != "" {
		terms = append(terms, "artist:("+artist+")")
	}
	if album != "" {
		terms = append(terms, "release:("+album+")")
	}

	params := url.Values{}
	params.Set("query", strings.Join(terms, " AND "))
	params.Set("fmt", "json")
	params.Set("limit", strconv.Itoa(limit))

	var payload searchPayload
	if err := c.getJSON(ctx, "search", c.baseURL+"/recording?"+params.Encode(), &payload); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(payload.Recordings))
	for _, rec := range payload.Recordings {
		results = append(results, SearchResult{Recording: rec.toRecording(), Score: rec.Score})
	}
	return results, nil
}

func (c *Client) getJSON(ctx context.Context, operation, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "musicbrainz", operation, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "musicbrainz", operation, "no result", nil)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		// MusicBrainz signals throttling with 503 as well as 429.
		return services.Wrap(services.ErrRateLimited, "musicbrainz", operation, "rate limited", nil)
	case resp.StatusCode >= 500:
		return services.Wrap(services.ErrTransient, "musicbrainz", operation, fmt.Sprintf("server error %d", resp.StatusCode), nil)
	default:
		return services.Wrap(services.ErrValidation, "musicbrainz", operation, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrTransient, "musicbrainz", operation, "decode response", err)
	}
	return nil
}

func (p recordingPayload) toRecording() Recording {
	recording := Recording{
		ID:    p.ID,
		Title: p.Title,
	}
	if p.Length > 0 {
		recording.DurationSec = float64(p.Length) / 1000.0
	}
	var artist strings.Builder
	for _, credit := range p.ArtistCredit {
		artist.WriteString(credit.Name)
		artist.WriteString(credit.JoinPhrase)
	}
	recording.Artist = strings.TrimSpace(artist.String())

	for _, rel := range p.Releases {
		release := Release{ID: rel.ID, Title: rel.Title}
		if len(rel.Date) >= 4 {
			if year, err := strconv.Atoi(rel.Date[:4]); err == nil {
				release.Year = year
			}
		}
		if len(rel.Media) > 0 {
			medium := rel.Media[0]
			release.DiscNumber = medium.Position
			release.TotalDiscs = len(rel.Media)
			release.TotalTracks = medium.TrackCount
			if len(medium.Track) > 0 {
				if number, err := strconv.Atoi(medium.Track[0].Number); err == nil {
					release.TrackNumber = number
				}
			}
		}
		recording.Releases = append(recording.Releases, release)
	}
	return recording
}
