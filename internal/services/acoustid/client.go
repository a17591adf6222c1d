// Package acoustid implements the fingerprint oracle client.
package acoustid

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"tagflow/internal/services"
	"tagflow/internal/store"
)

// MaxMatches caps how many oracle matches a lookup returns.
const MaxMatches = 5

// Match is one scored fingerprint match.
type Match struct {
	Score       float64 `json:"score"`
	RecordingID string  `json:"recording_id"`
	Title       string  `json:"title"`
	Artist      string  `json:"artist"`
}

// Client talks to the AcoustID web service.
type Client struct {
	apiKey     string
	baseURL    string
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

// New creates an AcoustID client.
func New(apiKey, baseURL string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("acoustid api key required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("acoustid base url required")
	}
	client := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type lookupResponse struct {
	Status string `json:"status"`
	Error  struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Results []struct {
		Score      float64 `json:"score"`
		Recordings []struct {
			ID      string `json:"id"`
			Title   string `json:"title"`
			Artists []struct {
				Name string `json:"name"`
			} `json:"artists"`
		} `json:"recordings"`
	} `json:"results"`
}

// CacheKey returns the canonical cache key for a lookup. The fingerprint is
// hashed so keys stay short; duration is truncated to whole seconds so
// re-decodes of the same file hit the cache.
func CacheKey(fingerprint string, duration float64) string {
	digest := sha256.Sum256([]byte(fingerprint))
	return store.CacheKey("acoustid", "lookup", map[string]string{
		"fp":       hex.EncodeToString(digest[:8]),
		"duration": strconv.Itoa(int(duration)),
	})
}

// Lookup queries the fingerprint oracle and returns up to MaxMatches matches
// sorted by score descending.
func (c *Client) Lookup(ctx context.Context, fingerprint string, duration float64) ([]Match, error) {
	if strings.TrimSpace(fingerprint) == "" {
		return nil, errors.New("fingerprint must not be empty")
	}
	form := url.Values{}
	form.Set("client", c.apiKey)
	form.Set("meta", "recordings")
	form.Set("fingerprint", fingerprint)
	form.Set("duration", strconv.Itoa(int(duration)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/lookup", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "acoustid", "lookup", "request failed", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		return nil, err
	}

	var payload lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, services.Wrap(services.ErrTransient, "acoustid", "lookup", "decode response", err)
	}
	if payload.Status != "ok" {
		return nil, services.Wrap(services.ErrValidation, "acoustid", "lookup",
			fmt.Sprintf("api error %d: %s", payload.Error.Code, payload.Error.Message), nil)
	}

	var matches []Match
	for _, result := range payload.Results {
		if len(result.Recordings) == 0 {
			continue
		}
		recording := result.Recordings[0]
		match := Match{
			Score:       result.Score,
			RecordingID: recording.ID,
			Title:       recording.Title,
		}
		if len(recording.Artists) > 0 {
			names := make([]string, 0, len(recording.Artists))
			for _, artist := range recording.Artists {
				names = append(names, artist.Name)
			}
			match.Artist = strings.Join(names, ", ")
		}
		matches = append(matches, match)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > MaxMatches {
		matches = matches[:MaxMatches]
	}
	return matches, nil
}

func statusError(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "acoustid", "lookup", "no result", nil)
	case code == http.StatusTooManyRequests:
		return services.Wrap(services.ErrRateLimited, "acoustid", "lookup", "rate limited", nil)
	case code >= 500:
		return services.Wrap(services.ErrTransient, "acoustid", "lookup", fmt.Sprintf("server error %d", code), nil)
	default:
		return services.Wrap(services.ErrValidation, "acoustid", "lookup", fmt.Sprintf("unexpected status %d", code), nil)
	}
}
