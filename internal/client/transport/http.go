// Package transport owns the two channels to the server: an HTTP
// request/response channel and a persistent websocket stream for push
// notifications. It moves opaque byte bodies; serialization of the typed
// protocol lives with the callers.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Client is the HTTP request channel. There are no retries here: a failed
// request returns its error and the caller decides whether to re-trigger.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates an HTTP transport rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Call POSTs the body to the given API path and returns the response body.
// Any transport-level failure (connect, timeout, non-2xx status) comes
// back as an error; business failures live inside the returned body and
// are the caller's concern.
func (c *Client) Call(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}
	return raw, nil
}

// MakeRequestID generates a correlation token for one outbound call. Only
// uniqueness matters; the format follows the original client.
func MakeRequestID() string {
	return "R" + uuid.New().String()
}
