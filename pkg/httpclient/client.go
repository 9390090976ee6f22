// Package httpclient is the HTTP client shared by the crawl transport and
// the proxy vendor client: redirect policy, default headers, an optional
// cookie jar and capped body reads.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// DefaultMaxBodyBytes caps Get responses when Config.MaxBodyBytes is unset.
const DefaultMaxBodyBytes = 8 << 20

// Config defines the setup for the HTTP Client.
type Config struct {
	Timeout time.Duration
	// MaxRedirects < 0 returns 3xx responses to the caller unfollowed.
	MaxRedirects int
	UseCookieJar bool
	// DefaultHeaders are applied to every request that does not set them.
	DefaultHeaders http.Header
	// MaxBodyBytes caps how much of a body Get reads.
	MaxBodyBytes int64
	// Provide a custom Transport, e.g. for proxies or uTLS fingerprinting
	Transport http.RoundTripper
}

// Client wraps a standard http.Client.
type Client struct {
	*http.Client
	defaults http.Header
	maxBody  int64
}

// Response is a fully read response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Truncated is set when the body was longer than the client's cap.
	Truncated bool
	Duration  time.Duration
}

// New creates a new HTTP client based on the provided configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	c := &http.Client{
		Timeout:       cfg.Timeout,
		CheckRedirect: redirectPolicy(cfg.MaxRedirects),
	}

	if cfg.UseCookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		c.Jar = jar
	}

	if cfg.Transport != nil {
		c.Transport = cfg.Transport
	}

	return &Client{Client: c, defaults: cfg.DefaultHeaders.Clone(), maxBody: cfg.MaxBodyBytes}, nil
}

func redirectPolicy(limit int) func(*http.Request, []*http.Request) error {
	if limit < 0 {
		// Security gateways answer with a redirect; callers inspect it.
		return func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= limit {
			return fmt.Errorf("stopped after %d redirects", limit)
		}
		return nil
	}
}

// Do executes an HTTP request. The provided context.Context should control
// the overarching request timeout/cancellation independent of the client timeout.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, errors.New("httpclient: context cannot be nil")
	}

	reqWithCtx := req.Clone(ctx)
	for k, vs := range c.defaults {
		if reqWithCtx.Header.Get(k) == "" {
			reqWithCtx.Header[k] = append([]string(nil), vs...)
		}
	}

	resp, err := c.Client.Do(reqWithCtx)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	return resp, nil
}

// Get sends a GET with the given headers and reads at most MaxBodyBytes of
// the body. Non-2xx statuses are returned as responses, not errors.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		req.Header[k] = append([]string(nil), vs...)
	}

	start := time.Now()
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// One extra byte tells a body that fits exactly from one that was cut.
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Duration:   time.Since(start),
	}
	if int64(len(body)) > c.maxBody {
		out.Body = body[:c.maxBody]
		out.Truncated = true
	}
	return out, nil
}
