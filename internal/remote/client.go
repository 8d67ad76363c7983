// Package remote implements the request/response client for the chat
// service's HTTP API. The engine depends on this contract only; every
// failure is surfaced as a typed error, never swallowed.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pedrogbi/palaver/internal/model"
)

// DefaultTimeout bounds every request; no call blocks the caller
// indefinitely.
const DefaultTimeout = 30 * time.Second

// Client talks to the remote chat service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, query map[string]string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", model.ErrRemoteFailure, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s %s", model.ErrNotFound, method, path)
	case resp.StatusCode == http.StatusConflict:
		return nil, fmt.Errorf("%w: %s %s", model.ErrConflict, method, path)
	default:
		return nil, fmt.Errorf("%w: %s %s: status %d: %s", model.ErrRemoteFailure, method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
}

// listEnvelope is the wrapped list shape some endpoints return.
type listEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// decodeList normalizes the two list shapes the service produces: a bare
// JSON array or a {"data": [...]} envelope.
func decodeList(data []byte, out any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var env listEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return fmt.Errorf("decode list envelope: %w", err)
		}
		if len(env.Data) == 0 {
			return nil
		}
		trimmed = env.Data
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("decode list: %w", err)
	}
	return nil
}
