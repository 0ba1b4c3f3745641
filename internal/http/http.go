// Package http defines higher level helpers for the net/http package
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-errors/errors"
)

// DefaultTimeout is the timeout of a request when no other timeout is set
const DefaultTimeout = 10 * time.Second

// maxBodySize is the maximum size of a response body that we read
const maxBodySize = 16 << 20

// UserAgent is the user agent that is sent with every request
var UserAgent = "eduvpn-core"

// Client is a wrapper around http.Client with some convenience features
type Client struct {
	// Client is the HTTP client that is used for the requests
	Client *http.Client
	// Timeout is the timeout for a single request
	Timeout time.Duration
}

// NewClient returns a HTTP client with the default timeout
func NewClient() *Client {
	return &Client{
		Client:  &http.Client{},
		Timeout: DefaultTimeout,
	}
}

// Get creates a Get request and returns the body
// A response with a non 2xx status code gives a StatusError
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.WrapPrefix(err, fmt.Sprintf("failed creating HTTP request for url: '%s'", url), 0)
	}
	req.Header.Set("User-Agent", UserAgent)

	res, err := c.Client.Do(req)
	if err != nil {
		return nil, errors.WrapPrefix(err, fmt.Sprintf("failed HTTP request for url: '%s'", url), 0)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return nil, errors.WrapPrefix(err, fmt.Sprintf("failed reading HTTP body for url: '%s'", url), 0)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &StatusError{URL: url, Body: string(body), Status: res.StatusCode}
	}
	return body, nil
}

// StatusError indicates that we have received a HTTP status error
type StatusError struct {
	URL    string
	Body   string
	Status int
}

// Error returns the StatusError as an error string
func (e *StatusError) Error() string {
	return fmt.Sprintf(
		"failed obtaining HTTP resource: '%s' as it gave an unsuccessful status code: %d",
		e.URL,
		e.Status,
	)
}
