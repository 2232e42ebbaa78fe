// Package remote provides a query engine that talks to a contractlens API
// server over HTTP.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/wesm/contractlens/internal/filter"
	"github.com/wesm/contractlens/internal/query"
)

// Client performs authenticated requests against a contractlens server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	// streamClient carries CSV exports, which run for as long as the
	// caller reads and so have no overall timeout.
	streamClient *http.Client
}

// Config holds configuration for creating a remote client.
type Config struct {
	URL           string
	APIKey        string
	AllowInsecure bool
	Timeout       time.Duration
}

// New creates a new remote client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("remote URL is required")
	}

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("URL scheme must be http or https, got: %s", parsedURL.Scheme)
	}

	// Enforce HTTPS unless AllowInsecure is set
	if parsedURL.Scheme == "http" && !cfg.AllowInsecure {
		return nil, fmt.Errorf("HTTPS required for remote connections\n\n" +
			"Options:\n" +
			"  1. Use HTTPS: [remote] url = \"https://analytics:8080\"\n" +
			"  2. For trusted networks: add 'allow_insecure = true' to [remote] in config.toml")
	}

	if parsedURL.Host == "" {
		return nil, fmt.Errorf("remote URL must include a host (e.g., http://analytics:8080)")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		baseURL:      strings.TrimSuffix(cfg.URL, "/"),
		apiKey:       cfg.APIKey,
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
	}, nil
}

// do sends an authenticated request. A non-nil body is encoded as JSON.
// Responses other than 2xx are converted to an *APIError.
func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, params url.Values, body any) (*http.Response, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, handleErrorResponse(resp)
	}
	return resp, nil
}

// getJSON decodes the JSON response of a request into out.
func (c *Client) getJSON(ctx context.Context, method, path string, params url.Values, body, out any) error {
	resp, err := c.do(ctx, c.httpClient, method, path, params, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// APIError is an error response from the server. It unwraps to the
// matching local error so callers can test it with errors.Is and
// errors.As as they would a local engine's error.
type APIError struct {
	Status  int
	Code    string
	Message string
	Field   string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error (%d)", e.Status)
	}
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case "validation_error":
		return &filter.ValidationError{Field: e.Field, Reason: e.Message}
	case "timeout":
		return context.DeadlineExceeded
	case "cancelled":
		return query.ErrCancelled
	}
	return nil
}

// ErrUnauthorized is returned when the server rejects the API key.
var ErrUnauthorized = errors.New("remote server rejected the API key")

// apiError matches the server's error body.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

// handleErrorResponse reads an error response and returns an appropriate error.
func handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w (%d)", ErrUnauthorized, resp.StatusCode)
	}

	var ae apiError
	if err := json.Unmarshal(body, &ae); err == nil && (ae.Error != "" || ae.Message != "") {
		return &APIError{Status: resp.StatusCode, Code: ae.Error, Message: ae.Message, Field: ae.Field}
	}
	return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}
