// Package httpclient provides basic http functions
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultMaxBodyBytes caps a single download, realtime feeds are a few megabytes at most
const DefaultMaxBodyBytes = 25 * 1024 * 1024

// StatusError is returned when the remote server responds with a non 2xx status
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %s", e.URL, e.Status)
}

// Client retrieves remote files with a bounded timeout and body size
type Client struct {
	httpClient   *http.Client
	maxBodyBytes int64
}

// NewClient creates Client. timeout bounds each request even when the caller's context has no deadline.
func NewClient(timeout time.Duration) *Client {
	var transport *http.Transport
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = t.Clone()
	} else {
		transport = &http.Transport{}
	}
	transport.MaxIdleConnsPerHost = 4
	transport.IdleConnTimeout = 90 * time.Second
	transport.TLSHandshakeTimeout = 10 * time.Second

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		maxBodyBytes: DefaultMaxBodyBytes,
	}
}

// GetBytes pulls bytes from rawURL using a GET request with headers.
// The body is only returned after it has been read completely.
// Errors never include the query string of rawURL, which may carry credentials.
func (c *Client) GetBytes(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid request url")
	}
	for key, value := range headers {
		req.Header.Add(key, value)
	}
	redacted := redactURL(req.URL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("requesting %s: %w", redacted, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: redacted, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body from %s: %w", redacted, err)
	}
	if int64(len(body)) > c.maxBodyBytes {
		return nil, fmt.Errorf("response from %s exceeds size limit of %d bytes", redacted, c.maxBodyBytes)
	}
	return body, nil
}

// redactURL drops the query string and any userinfo password
func redactURL(u *url.URL) string {
	stripped := *u
	stripped.RawQuery = ""
	stripped.ForceQuery = false
	stripped.Fragment = ""
	stripped.RawFragment = ""
	return stripped.Redacted()
}
