// Package api is the HTTP and WebSocket client for the document-chat backend.
package api

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

	"github.com/gorilla/websocket"
)

// DefaultTimeout bounds non-streaming requests. Ingestion and answer
// generation run inside the request, so it is generous.
const DefaultTimeout = 5 * time.Minute

// TokenSource supplies the bearer token sent with every request.
// An empty token sends no Authorization header.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// ClientConfig holds configuration options for the backend client.
type ClientConfig struct {
	// BaseURL is the backend root, e.g. http://localhost:8000
	BaseURL string

	// Timeout for non-streaming requests (default: DefaultTimeout)
	Timeout time.Duration

	// Tokens supplies the caller's ID token (optional)
	Tokens TokenSource

	// HTTPClient overrides the transport (optional, used by tests)
	HTTPClient *http.Client

	// Dialer overrides the WebSocket dialer for the progress stream (optional)
	Dialer *websocket.Dialer
}

// Client handles communication with the backend.
// The Client is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	tokens     TokenSource
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// NewClient creates a client for the backend at cfg.BaseURL.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing backend url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend url must be http or https: %s", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	return &Client{
		baseURL:    base,
		tokens:     cfg.Tokens,
		httpClient: httpClient,
		dialer:     dialer,
	}, nil
}

// BaseURL returns the backend root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// endpoint builds an absolute URL for path with optional query parameters.
func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// authorize adds the bearer token, if any, to the request headers.
func (c *Client) authorize(ctx context.Context, header http.Header) error {
	if c.tokens == nil {
		return nil
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("getting id token: %w", err)
	}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

// request describes one backend call.
type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
}

// jsonBody encodes v as a JSON request body.
func jsonBody(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}
	return bytes.NewReader(data), nil
}

// do performs the request and decodes a 2xx JSON response into out (which may be nil).
func (c *Client) do(ctx context.Context, r request, out any) error {
	req, err := http.NewRequestWithContext(ctx, r.method, c.endpoint(r.path, r.query), r.body)
	if err != nil {
		return &TransportError{Method: r.method, Path: r.path, Cause: err}
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")
	if err := c.authorize(ctx, req.Header); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Method: r.method, Path: r.path, Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Method: r.method, Path: r.path, StatusCode: resp.StatusCode, Status: resp.Status, Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{
			Method:     r.method,
			Path:       r.path,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Detail:     errorDetail(data),
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &DataError{Path: r.path, Message: fmt.Sprintf("decoding response: %v", err)}
	}
	return nil
}

// errorDetail extracts the error text from a non-2xx body. FastAPI sends
// {"detail": "..."} (or a list of validation errors); some routes send
// {"error": "..."}.
func errorDetail(body []byte) string {
	var payload struct {
		Detail any    `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return strings.TrimSpace(string(body))
	}
	if payload.Error != "" {
		return payload.Error
	}
	switch d := payload.Detail.(type) {
	case string:
		return d
	case nil:
		return ""
	default:
		data, _ := json.Marshal(d)
		return string(data)
	}
}
