// Package coverart implements the Cover Art Archive oracle client.
package coverart

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"context"

	"tagflow/internal/services"
)

// maxArtBytes caps a downloaded image so a misbehaving server cannot balloon
// memory.
const maxArtBytes = 10 << 20

// Client fetches front cover images by release id.
type Client struct {
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

// New creates a Cover Art Archive client.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("coverart base url required")
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// FrontURL returns the image handle for a release's front cover.
func (c *Client) FrontURL(releaseID string) string {
	return fmt.Sprintf("%s/release/%s/front-500", c.baseURL, url.PathEscape(releaseID))
}

// Front downloads the front cover for a release. A release without art
// returns ErrNotFound.
func (c *Client) Front(ctx context.Context, releaseID string) ([]byte, error) {
	releaseID = strings.TrimSpace(releaseID)
	if releaseID == "" {
		return nil, errors.New("release id must not be empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.FrontURL(releaseID), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "coverart", "front", "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, services.Wrap(services.ErrNotFound, "coverart", "front", "no art for release", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, services.Wrap(services.ErrRateLimited, "coverart", "front", "rate limited", nil)
	case resp.StatusCode >= 500:
		return nil, services.Wrap(services.ErrTransient, "coverart", "front", fmt.Sprintf("server error %d", resp.StatusCode), nil)
	default:
		return nil, services.Wrap(services.ErrValidation, "coverart", "front", fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtBytes))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "coverart", "front", "read image", err)
	}
	return data, nil
}
