package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// MaxBodySize is the largest response body Client will read.
const MaxBodySize = 1 << 20 // 1MB

// connection pooling limits for many sources sharing one client
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// DefaultTimeout is applied when Fetch is called with a non-positive timeout.
const DefaultTimeout = 10 * time.Second

// Response holds the result of an HTTP request made by [Client].
type Response struct {
	// Body contains the response body, limited to [MaxBodySize].
	Body []byte

	// StatusCode is the HTTP status code.
	// Zero if the request failed before receiving a response.
	StatusCode int

	// Header holds the response headers. Nil if no response arrived.
	Header http.Header

	// Latency is the total time taken for the request.
	Latency time.Duration

	// Error contains any transport error. A non-nil Error means no usable
	// response was received; the status code is not interpreted here.
	Error error
}

// Client is an HTTP client wrapper for fetching API resources.
//
// Client uses per-request timeouts via context rather than a global
// timeout, so different sources can have different timeouts. The transport
// negotiates HTTP/2 over TLS when the server supports it.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a [Client] with a pooled, HTTP/2-enabled transport.
func NewClient() *Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		MaxConnsPerHost:     defaultMaxConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
	}
	// only fails if the transport was already configured for h2
	_, _ = http2.ConfigureTransports(transport)

	return &Client{
		httpClient: &http.Client{Transport: transport},
	}
}

// NewClientWith wraps an existing [http.Client]. Useful for tests and for
// callers that need their own TLS or proxy settings.
func NewClientWith(hc *http.Client) *Client {
	if hc == nil {
		return NewClient()
	}
	return &Client{httpClient: hc}
}

// Fetch performs one HTTP request and returns a structured [Response].
//
// If method is empty, GET is used. The timeout is applied via context
// cancellation. Fetch always returns a Response; errors are captured in the
// Error field and wrap the underlying cause.
func (c *Client) Fetch(ctx context.Context, method, url string, headers map[string]string, timeout time.Duration) Response {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("failed to create request: %w", err),
		}
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("request failed: %w", err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("failed to read response body: %w", err),
		}
	}

	return Response{
		Body:       body,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Latency:    time.Since(start),
	}
}

// Close closes idle connections in the pool. The client remains usable.
// Safe to call multiple times and on a nil Client.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}
