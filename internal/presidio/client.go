// Package presidio holds the HTTP plumbing shared by the analyzer and
// anonymizer clients: JSON POSTs with a bounded timeout, health probes, and
// classification of every transport or protocol failure as a dependency
// outage.
package presidio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/veil-pii/veil/internal/types"
)

// DefaultTimeout bounds every request when no option overrides it.
const DefaultTimeout = 30 * time.Second

const maxResponseBytes = 32 << 20

// Observer is notified after every request. err is nil on success.
type Observer func(service, endpoint string, d time.Duration, err error)

// Client talks to one Presidio-compatible service.
type Client struct {
	service string
	base    string
	http    *http.Client
	timeout time.Duration
	observe Observer
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithObserver installs a request observer, typically a metrics hook.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observe = o }
}

// New returns a client for the named service at baseURL
// (e.g. "http://localhost:5002").
func New(service, baseURL string, opts ...Option) *Client {
	c := &Client{
		service: service,
		base:    strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: DefaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Service returns the service name used in errors and logs.
func (c *Client) Service() string { return c.service }

// BaseURL returns the service root.
func (c *Client) BaseURL() string { return c.base }

// UnavailableError reports a failed call. It matches
// types.ErrDependencyUnavailable under errors.Is.
type UnavailableError struct {
	Service  string
	Endpoint string
	Status   int
	Err      error
}

func (e *UnavailableError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: unexpected status %d: %v", e.Service, e.Endpoint, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Service, e.Endpoint, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool {
	return target == types.ErrDependencyUnavailable
}

// PostJSON sends in as JSON to path and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", c.service, err)
	}
	return c.do(ctx, http.MethodPost, path, body, out)
}

// Health probes GET /health. Any 2xx status counts as healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) (err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if c.observe != nil {
			c.observe(c.service, path, time.Since(start), err)
		}
	}()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return c.unavailable(path, 0, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	log.Debug().Str("service", c.service).Str("method", method).Str("url", req.URL.String()).Msg("request")
	resp, err := c.http.Do(req)
	if err != nil {
		return c.unavailable(path, 0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return c.unavailable(path, resp.StatusCode, err)
	}
	log.Debug().Str("service", c.service).Int("status", resp.StatusCode).Int("bytes", len(raw)).Msg("response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.unavailable(path, resp.StatusCode, fmt.Errorf("%s", snippet(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return c.unavailable(path, 0, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) unavailable(path string, status int, err error) error {
	return &UnavailableError{Service: c.service, Endpoint: path, Status: status, Err: err}
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		return "empty body"
	}
	return s
}
