package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// defaultTimeout is applied when no timeout is configured.
const defaultTimeout = 30 * time.Second

// Auth contains access token credentials sent as a basic authorization
// header on every request. An empty user disables authentication.
type Auth struct {
	User  string
	Token string
}

// Client is a thin JSON-over-HTTP client shared by the registry and twin
// API clients.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	base       *url.URL
	auth       Auth
	httpClient *http.Client
}

// New creates a Client for the API rooted at baseURL.
//
// Parameters:
//   - baseURL: Root URL of the API (e.g. "https://registry.example.com")
//   - auth: Access token credentials (zero value disables auth)
//   - timeout: Per-request timeout; zero selects the default (30s)
//
// Returns:
//   - *Client: Ready-to-use client
//   - error: If baseURL does not parse
func New(baseURL string, auth Auth, timeout time.Duration) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("apiclient: parsing base URL: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		base: base,
		auth: auth,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// URL joins path segments onto the base URL, escaping each segment.
func (c *Client) URL(segments ...string) string {
	return c.base.JoinPath(segments...).String()
}

// Get performs a GET request and decodes the response body into out.
//
// Returns:
//   - bool: true if the resource exists; false on 404 (out untouched)
//   - error: *Error for non-2xx responses, transport errors otherwise
func (c *Client) Get(ctx context.Context, rawURL string, out any) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("apiclient: decoding response: %w", err)
		}
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, errorFromResponse(resp)
	}
}

// Post sends body as JSON with a POST request. Any 2xx response is
// success; the response body is discarded.
func (c *Client) Post(ctx context.Context, rawURL string, body any) error {
	return c.write(ctx, http.MethodPost, rawURL, body)
}

// Put sends body as JSON with a PUT request. Any 2xx response is
// success; the response body is discarded.
func (c *Client) Put(ctx context.Context, rawURL string, body any) error {
	return c.write(ctx, http.MethodPut, rawURL, body)
}

// Delete performs a DELETE request.
//
// Returns:
//   - bool: true if the resource existed, false on 404
//   - error: *Error for other non-2xx responses
func (c *Client) Delete(ctx context.Context, rawURL string) (bool, error) {
	resp, err := c.do(ctx, http.MethodDelete, rawURL, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusAccepted:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, errorFromResponse(resp)
	}
}

// write implements Post and Put.
func (c *Client) write(ctx context.Context, method, rawURL string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("apiclient: encoding request: %w", err)
	}

	resp, err := c.do(ctx, method, rawURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	return errorFromResponse(resp)
}

// do builds and executes a single request.
func (c *Client) do(ctx context.Context, method, rawURL string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("apiclient: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth.User != "" {
		req.SetBasicAuth(c.auth.User, c.auth.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apiclient: %s %s: %w", method, rawURL, err)
	}
	return resp, nil
}
