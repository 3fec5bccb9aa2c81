// Package apiclient performs the single GET request of a scenario.
package apiclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	pkglog "github.com/marutisridharjob/cucumber-rest-api-testing/pkg/log"
	"github.com/marutisridharjob/cucumber-rest-api-testing/pkg/metrics"
)

const defaultUserAgent = "cucumber-rest-api-testing/usercheck"

// Response is the raw outcome of a request.
type Response struct {
	StatusCode  int
	ContentType string
	Header      http.Header
	Body        []byte
	RequestID   string
	URL         string
	Latency     time.Duration
}

// Client issues GET requests against the API under test. Requests are never retried.
type Client struct {
	http      *http.Client
	userAgent string
	headers   map[string]string
	logger    *zap.SugaredLogger
	metrics   *requestMetrics
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) {
		if ua != "" {
			cl.userAgent = ua
		}
	}
}

// WithHeader adds a static header sent on every request. Empty values are ignored.
func WithHeader(key, value string) Option {
	return func(cl *Client) {
		if key != "" && value != "" {
			cl.headers[key] = value
		}
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// WithMetrics records request counts and latency in registry.
func WithMetrics(registry *metrics.Registry) Option {
	return func(cl *Client) {
		if registry != nil {
			cl.metrics = newRequestMetrics(registry)
		}
	}
}

// New constructs a Client. Without options it uses http.DefaultClient.
func New(opts ...Option) *Client {
	c := &Client{
		http:      http.DefaultClient,
		userAgent: defaultUserAgent,
		headers:   make(map[string]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.logger = pkglog.Or(c.logger)
	return c
}

// Get sends GET baseURL+path and reads the whole body. path may carry a query
// string or be an absolute URL.
func (c *Client) Get(ctx context.Context, baseURL, path string) (Response, error) {
	target, err := ResolveURL(baseURL, path)
	if err != nil {
		return Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-Id", requestID)
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	latency := time.Since(start)
	if err != nil {
		c.metrics.observe("error", latency)
		c.logger.Errorw("request failed", "url", target, "requestId", requestID, "error", err)
		return Response{}, fmt.Errorf("GET %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.observe("error", latency)
		return Response{}, fmt.Errorf("read body of GET %s: %w", target, err)
	}

	c.metrics.observe(strconv.Itoa(resp.StatusCode), latency)
	c.logger.Infow("request completed",
		"url", target,
		"status", resp.StatusCode,
		"requestId", requestID,
		"latencyMs", latency.Milliseconds(),
		"bytes", len(body),
	)

	return Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Header:      resp.Header.Clone(),
		Body:        body,
		RequestID:   requestID,
		URL:         target,
		Latency:     latency,
	}, nil
}

// ResolveURL joins baseURL and path, keeping any query string on path.
func ResolveURL(baseURL, path string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if !base.IsAbs() {
		return "", fmt.Errorf("base url %q must be absolute", baseURL)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse path: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}
