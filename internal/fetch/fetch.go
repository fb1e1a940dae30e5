// Package fetch is the HTTP capability the ingestion pipeline retrieves
// remote content through.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultTimeout   = 15 * time.Second
	DefaultUserAgent = "feedsync/1.0"
	maxBodyBytes     = 10 << 20
)

// Client wraps an http.Client with the headers and limits every retrieval
// shares.
type Client struct {
	http      *http.Client
	userAgent string
}

func NewClient(timeout time.Duration, userAgent string) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = DefaultUserAgent
	}

	return &Client{
		http:      &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// GetBytes fetches rawURL and returns the response body, capped at 10 MiB.
func (c *Client) GetBytes(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body from %s: %w", rawURL, err)
	}

	return body, nil
}

// GetText fetches rawURL and returns the response body as text.
func (c *Client) GetText(ctx context.Context, rawURL string) (string, error) {
	body, err := c.GetBytes(ctx, rawURL)
	if err != nil {
		return "", err
	}

	return string(body), nil
}

// NormalizeURL trims raw, defaults the scheme to https, and rejects values
// that do not parse to an absolute URL with a host.
func NormalizeURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("feed URL is required")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	parsed, err := url.ParseRequestURI(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", errors.New("feed URL looks invalid")
	}

	return parsed.String(), nil
}
