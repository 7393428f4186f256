// Package httptap instruments an HTTP client so that every request, response
// and failure passing through it is reported to a monitoring Collector, while
// callers keep the exact semantics of the unwrapped client.
package httptap

import (
	"io"
	"net/http"
)

// Client instruments an inner http.Client so every exchange it performs is
// reported to a Collector. Construct with New; the zero value is not usable.
type Client struct {
	inner     *http.Client
	collector Collector
}

// Option is a functional option for the Client struct.
type Option func(*Client)

// WithHTTPClient bases the instrumented client on c, mirroring its redirect
// policy, cookie jar and timeout and wrapping its transport. c itself is left
// untouched and keeps working uninstrumented.
func WithHTTPClient(c *http.Client) Option {
	return func(tc *Client) {
		tc.inner = &http.Client{
			Transport:     c.Transport,
			CheckRedirect: c.CheckRedirect,
			Jar:           c.Jar,
			Timeout:       c.Timeout,
		}
	}
}

// WithBaseTransport dispatches requests through rt instead of the inner
// client's transport.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(tc *Client) {
		tc.inner.Transport = rt
	}
}

// New creates a Client reporting to c. Without options it wraps a fresh
// http.Client on the default transport; a nil collector disables reporting.
func New(c Collector, opts ...Option) *Client {
	if c == nil {
		c = NopCollector{}
	}
	tc := &Client{
		inner:     &http.Client{},
		collector: c,
	}

	for _, opt := range opts {
		opt(tc)
	}

	tc.inner.Transport = NewTransport(tc.collector, tc.inner.Transport)

	return tc
}

// Do sends the request through the instrumented client.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.inner.Do(req)
}

// Get issues a GET to the given URL.
func (c *Client) Get(url string) (*http.Response, error) {
	return c.inner.Get(url)
}

// Head issues a HEAD to the given URL.
func (c *Client) Head(url string) (*http.Response, error) {
	return c.inner.Head(url)
}

// Post issues a POST to the given URL with the given content type and body.
func (c *Client) Post(url, contentType string, body io.Reader) (*http.Response, error) {
	return c.inner.Post(url, contentType, body)
}

// HTTPClient returns the instrumented http.Client, for handing to libraries
// that take a plain client.
func (c *Client) HTTPClient() *http.Client {
	return c.inner
}

// Close releases idle connections held by the instrumented client.
func (c *Client) Close() error {
	c.inner.CloseIdleConnections()
	return nil
}
