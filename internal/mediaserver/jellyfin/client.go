// Package jellyfin implements the media server calls used during playback:
// negotiation, session reports, server identity and token authentication.
package jellyfin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/kinocast/internal/domain"
)

const (
	defaultTimeout = 60 * time.Second
	maxRetries     = 3
	baseRetryDelay = 500 * time.Millisecond
)

// Client talks to a Jellyfin server on behalf of one user and device.
type Client struct {
	baseURL    string
	creds      domain.Credentials
	httpClient *http.Client
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewClient creates a new Jellyfin API client. The credentials are used for
// every request; nothing is read from global state.
func NewClient(creds domain.Credentials, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	creds.ServerURL = strings.TrimRight(creds.ServerURL, "/")
	return &Client{
		baseURL: creds.ServerURL,
		creds:   creds,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		retryDelay: baseRetryDelay,
		logger:     logger,
	}
}

// Credentials returns the credentials the client was created with.
func (c *Client) Credentials() domain.Credentials {
	return c.creds
}

// doRequest performs an authenticated HTTP request to the Jellyfin API.
// Includes retry logic with exponential backoff for 5xx server errors.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	return c.doRequestWithRetries(ctx, method, path, query, body, maxRetries)
}

func (c *Client) doRequestWithRetries(ctx context.Context, method, path string, query url.Values, body any, retries int) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL = fmt.Sprintf("%s?%s", reqURL, query.Encode())
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<(attempt-1)) // 500ms, 1s, 2s
			c.logger.Debug("retrying request", "attempt", attempt, "delay", delay, "path", path)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("X-Emby-Authorization", buildAuthHeader(c.creds))

		c.logger.Debug("jellyfin request", "method", method, "path", path, "attempt", attempt)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Error("jellyfin request failed", "path", path, "error", err)
			return nil, fmt.Errorf("%w: %v", domain.ErrServerUnreachable, err)
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read response: %v", domain.ErrServerUnreachable, err)
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %w", domain.ErrServerUnreachable, domain.ErrAuthFailed)
		}

		// Retry on 5xx server errors
		if resp.StatusCode >= 500 && resp.StatusCode < 600 {
			lastErr = fmt.Errorf("%w: server error: %d", domain.ErrServerUnreachable, resp.StatusCode)
			c.logger.Warn("jellyfin server error, will retry",
				"status", resp.StatusCode,
				"attempt", attempt,
				"maxRetries", retries,
				"path", path,
			)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			c.logger.Error("jellyfin request error", "status", resp.StatusCode, "path", path, "body", string(respBody))
			return nil, fmt.Errorf("%w: unexpected status code: %d", domain.ErrServerUnreachable, resp.StatusCode)
		}

		return respBody, nil
	}

	c.logger.Error("jellyfin request failed after retries", "error", lastErr, "path", path)
	return nil, lastErr
}
