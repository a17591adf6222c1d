// Package archive implements the Internet Archive oracle client used for
// compilation and mix-series resolution.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tagflow/internal/services"
	"tagflow/internal/store"
)

// Doc is one search hit from the advanced search endpoint.
type Doc struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	Creator    string `json:"creator"`
	Year       int    `json:"year"`
}

// File is one audio file within an archive item.
type File struct {
	Name     string
	Title    string
	Artist   string
	Track    int
	Duration float64
}

// ItemMetadata is the structured metadata for one archive item.
type ItemMetadata struct {
	Identifier string
	Title      string
	Creator    string
	Year       int
	Files      []File
}

// Client talks to the Internet Archive.
type Client struct {
	baseURL    string
	collection string
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

// New creates an archive client scoped to a collection for series lookups.
func New(baseURL, collection string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("archive base url required")
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: strings.TrimSpace(collection),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Collection returns the configured series collection identifier.
func (c *Client) Collection() string {
	return c.collection
}

// SearchCacheKey returns the canonical cache key for a text search.
func SearchCacheKey(query string) string {
	return store.CacheKey("archive", "search", map[string]string{"q": query})
}

// MetadataCacheKey returns the canonical cache key for an item fetch.
func MetadataCacheKey(identifier string) string {
	return store.CacheKey("archive", "metadata", map[string]string{"id": identifier})
}

// CollectionCacheKey returns the canonical cache key for the collection index.
func (c *Client) CollectionCacheKey() string {
	return store.CacheKey("archive", "collection", map[string]string{"name": c.collection})
}

type searchPayload struct {
	Response struct {
		Docs []struct {
			Identifier string          `json:"identifier"`
			Title      string          `json:"title"`
			Creator    json.RawMessage `json:"creator"`
			Year       json.RawMessage `json:"year"`
		} `json:"docs"`
	} `json:"response"`
}

// Search runs an advanced search query and returns matching docs.
func (c *Client) Search(ctx context.Context, query string, rows int) ([]Doc, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query must not be empty")
	}
	if rows <= 0 {
		rows = 50
	}

	params := url.Values{}
	params.Set("q", query)
	params.Add("fl[]", "identifier")
	params.Add("fl[]", "title")
	params.Add("fl[]", "creator")
	params.Add("fl[]", "year")
	params.Set("rows", strconv.Itoa(rows))
	params.Set("output", "json")

	var payload searchPayload
	if err := c.getJSON(ctx, "search", c.baseURL+"/advancedsearch.php?"+params.Encode(), &payload); err != nil {
		return nil, err
	}

	docs := make([]Doc, 0, len(payload.Response.Docs))
	for _, raw := range payload.Response.Docs {
		docs = append(docs, Doc{
			Identifier: raw.Identifier,
			Title:      raw.Title,
			Creator:    flattenString(raw.Creator),
			Year:       flattenInt(raw.Year),
		})
	}
	return docs, nil
}

// SearchCollection lists every item in the configured series collection.
func (c *Client) SearchCollection(ctx context.Context) ([]Doc, error) {
	if c.collection == "" {
		return nil, errors.New("no collection configured")
	}
	return c.Search(ctx, fmt.Sprintf("collection:(%s)", c.collection), 500)
}

type metadataPayload struct {
	Metadata struct {
		Identifier string          `json:"identifier"`
		Title      string          `json:"title"`
		Creator    json.RawMessage `json:"creator"`
		Year       json.RawMessage `json:"year"`
	} `json:"metadata"`
	Files []struct {
		Name   string `json:"name"`
		Title  string `json:"title"`
		Artist string `json:"artist"`
		Track  string `json:"track"`
		Length string `json:"length"`
		Format string `json:"format"`
	} `json:"files"`
}

// Metadata fetches the structured metadata for an item, keeping only its
// audio files.
func (c *Client) Metadata(ctx context.Context, identifier string) (*ItemMetadata, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, errors.New("identifier must not be empty")
	}

	var payload metadataPayload
	if err := c.getJSON(ctx, "metadata", c.baseURL+"/metadata/"+url.PathEscape(identifier), &payload); err != nil {
		return nil, err
	}

	item := &ItemMetadata{
		Identifier: payload.Metadata.Identifier,
		Title:      payload.Metadata.Title,
		Creator:    flattenString(payload.Metadata.Creator),
		Year:       flattenInt(payload.Metadata.Year),
	}
	if item.Identifier == "" {
		item.Identifier = identifier
	}
	for _, file := range payload.Files {
		if !isAudioFormat(file.Format) {
			continue
		}
		entry := File{
			Name:   file.Name,
			Title:  file.Title,
			Artist: file.Artist,
		}
		if entry.Title == "" {
			entry.Title = strings.TrimSuffix(file.Name, "."+strings.ToLower(file.Format))
		}
		if track, err := strconv.Atoi(strings.TrimSpace(file.Track)); err == nil {
			entry.Track = track
		}
		entry.Duration = parseLength(file.Length)
		item.Files = append(item.Files, entry)
	}
	return item, nil
}

func (c *Client) getJSON(ctx context.Context, operation, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "archive", operation, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "archive", operation, "no result", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return services.Wrap(services.ErrRateLimited, "archive", operation, "rate limited", nil)
	case resp.StatusCode >= 500:
		return services.Wrap(services.ErrTransient, "archive", operation, fmt.Sprintf("server error %d", resp.StatusCode), nil)
	default:
		return services.Wrap(services.ErrValidation, "archive", operation, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrTransient, "archive", operation, "decode response", err)
	}
	return nil
}

var audioFormats = map[string]struct{}{
	"vbr mp3": {}, "mp3": {}, "flac": {}, "ogg vorbis": {}, "apple lossless audio": {},
}

func isAudioFormat(format string) bool {
	_, ok := audioFormats[strings.ToLower(strings.TrimSpace(format))]
	return ok
}

// parseLength handles both "123.45" and "MM:SS" length encodings.
func parseLength(value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if !strings.Contains(value, ":") {
		seconds, _ := strconv.ParseFloat(value, 64)
		return seconds
	}
	parts := strings.Split(value, ":")
	var seconds float64
	for _, part := range parts {
		component, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return 0
		}
		seconds = seconds*60 + component
	}
	return seconds
}

// flattenString accepts either a JSON string or array-of-strings field.
func flattenString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return strings.Join(many, ", ")
	}
	return ""
}

// flattenInt accepts a JSON number or numeric string field.
func flattenInt(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var number int
	if err := json.Unmarshal(raw, &number); err == nil {
		return number
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if parsed, err := strconv.Atoi(strings.TrimSpace(text)); err == nil {
			return parsed
		}
	}
	return 0
}
