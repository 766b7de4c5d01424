// Package client is the HTTP client used by the tablesheet CLI.
package client

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

const apiPrefix = "/v1"

// Client talks to the table manager API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// APIError is a non-2xx response from the API.
type APIError struct {
	HTTPStatus int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (HTTP %d): %s", e.HTTPStatus, e.Message)
}

// NewClient creates a Client for baseURL.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Do sends a request to path below /v1. A non-nil body is JSON encoded.
func (c *Client) Do(method, path string, query url.Values, body interface{}) (*http.Response, error) {
	return c.DoContext(context.Background(), method, path, query, body)
}

// DoContext is Do bound to ctx.
func (c *Client) DoContext(ctx context.Context, method, path string, query url.Values, body interface{}) (*http.Response, error) {
	u := strings.TrimRight(c.BaseURL, "/") + apiPrefix + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}

// DoJSON sends a request, checks the status and decodes the response into out.
func (c *Client) DoJSON(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.DoContext(ctx, method, path, nil, body)
	if err != nil {
		return err
	}
	if err := CheckError(resp); err != nil {
		return err
	}
	data, err := ReadBody(resp)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// CheckError returns an *APIError for non-2xx responses and closes the body.
func CheckError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	data, _ := ReadBody(resp)

	apiErr := &APIError{HTTPStatus: resp.StatusCode, Code: resp.StatusCode}
	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		apiErr.Message = body.Message
		if body.Code != 0 {
			apiErr.Code = body.Code
		}
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(data))
	return apiErr
}

// ReadBody reads and closes the response body.
func ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close() //nolint:errcheck
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return data, nil
}

// StreamURL returns the websocket URL for a table's update channel.
func (c *Client) StreamURL(tableID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(c.BaseURL, "/") + apiPrefix + "/tables/" + url.PathEscape(tableID) + "/stream")
	if err != nil {
		return "", fmt.Errorf("parse stream url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// Watch opens the table's update channel and calls fn for every message
// until ctx is done, the server closes the channel or fn returns an error.
func (c *Client) Watch(ctx context.Context, tableID string, fn func(json.RawMessage) error) error {
	u, err := c.StreamURL(tableID)
	if err != nil {
		return err
	}
	header := http.Header{}
	if c.Token != "" {
		header.Set("Authorization", "Bearer "+c.Token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, header)
	if err != nil {
		if resp != nil {
			if apiErr := CheckError(resp); apiErr != nil {
				return apiErr
			}
		}
		return fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close() //nolint:errcheck

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read stream: %w", err)
		}
		if err := fn(json.RawMessage(data)); err != nil {
			return err
		}
	}
}
