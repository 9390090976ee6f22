package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/FranksOps/jobscout/internal/fingerprint"
	"github.com/FranksOps/jobscout/internal/middleware"
	"github.com/FranksOps/jobscout/pkg/httpclient"
	"github.com/FranksOps/jobscout/pkg/proxy"
	"github.com/FranksOps/jobscout/pkg/ratelimit"
)

// maxProxyClients bounds the per-proxy client cache. Evicted proxies are
// never used again, so the cache is reset once it grows past this.
const maxProxyClients = 256

// DefaultHeaders are sent with every listing request unless overridden.
var DefaultHeaders = http.Header{
	"Accept":           {"application/json, text/plain, */*"},
	"Accept-Language":  {"zh-CN,zh;q=0.9,en;q=0.8"},
	"Referer":          {"https://24365.ncss.cn/student/jobs/jobslist/"},
	"X-Requested-With": {"XMLHttpRequest"},
}

// FetchConfig configures how attempts are sent.
type FetchConfig struct {
	// Timeout bounds attempts that carry no timeout of their own.
	Timeout      time.Duration
	UseCookieJar bool
	Fingerprint  fingerprint.Profile
	// InsecureSkipVerify disables certificate checks; tests only.
	InsecureSkipVerify bool
	Limiter            *ratelimit.Limiter
	Headers            http.Header
	// MaxBodyBytes caps how much of a response is read. Defaults to 8MB.
	MaxBodyBytes int64
}

// Fetcher sends middleware attempts over the network. Attempts routed
// through a proxy get a client of their own so each proxy keeps an isolated
// connection pool and the TLS fingerprint survives the CONNECT hop.
type Fetcher struct {
	config FetchConfig
	direct *httpclient.Client

	mu      sync.Mutex
	proxied map[string]*httpclient.Client
}

var _ middleware.Transport = (*Fetcher)(nil)

// NewFetcher initializes a new Fetcher with the given configuration.
// By holding clients across requests, cookie jars (if configured) persist for the lifetime of the Fetcher.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if string(cfg.Fingerprint) == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}
	if cfg.Headers == nil {
		cfg.Headers = DefaultHeaders
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 8 << 20
	}

	f := &Fetcher{config: cfg, proxied: make(map[string]*httpclient.Client)}
	direct, err := f.newClient(nil)
	if err != nil {
		return nil, err
	}
	f.direct = direct
	return f, nil
}

func (f *Fetcher) newClient(proxyURL *url.URL) (*httpclient.Client, error) {
	transport, err := fingerprint.Transport(f.config.Fingerprint, fingerprint.Options{
		Proxy:              proxyURL,
		InsecureSkipVerify: f.config.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout: f.config.Timeout,
		// Redirects are handed back so security gateway bounces can be seen.
		MaxRedirects:   -1,
		UseCookieJar:   f.config.UseCookieJar,
		DefaultHeaders: f.config.Headers,
		MaxBodyBytes:   f.config.MaxBodyBytes,
		Transport:      transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}

func (f *Fetcher) clientFor(endpoint string) (*httpclient.Client, error) {
	if endpoint == "" {
		return f.direct, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.proxied[endpoint]; ok {
		return c, nil
	}

	u, err := proxy.EndpointURL(endpoint)
	if err != nil {
		return nil, fmt.Errorf("proxy %s: %w", endpoint, err)
	}
	c, err := f.newClient(u)
	if err != nil {
		return nil, err
	}

	if len(f.proxied) >= maxProxyClients {
		for _, old := range f.proxied {
			old.CloseIdleConnections()
		}
		f.proxied = make(map[string]*httpclient.Client)
	}
	f.proxied[endpoint] = c
	return c, nil
}

// RoundTrip waits for the rate limiter and sends a GET for the attempt
// through its proxy (or direct). Non-2xx statuses are not errors; bodies
// over MaxBodyBytes are reported as middleware.ErrBodyTooLarge.
func (f *Fetcher) RoundTrip(ctx context.Context, a middleware.Attempt) (*middleware.Response, error) {
	if f.config.Limiter != nil {
		if err := f.config.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	client, err := f.clientFor(a.Proxy)
	if err != nil {
		return nil, err
	}

	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	resp, err := client.Get(ctx, a.URL, a.Header)
	if err != nil {
		return nil, err
	}
	if resp.Truncated {
		return nil, fmt.Errorf("%w: %s read %d bytes", middleware.ErrBodyTooLarge, a.URL, len(resp.Body))
	}

	return &middleware.Response{
		URL:        a.URL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
		Duration:   resp.Duration,
	}, nil
}

// Close releases idle connections held by every client.
func (f *Fetcher) Close() {
	f.direct.CloseIdleConnections()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.proxied {
		c.CloseIdleConnections()
	}
}
