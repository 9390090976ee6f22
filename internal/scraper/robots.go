package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/FranksOps/jobscout/internal/middleware"
	"github.com/temoto/robotstxt"
)

// RobotsTxtAuditor fetches each host's robots.txt once and answers whether
// listing URLs may be requested. Any failure to obtain the file allows
// everything.
type RobotsTxtAuditor struct {
	fetcher   *Fetcher
	userAgent string
	logger    *slog.Logger

	mu    sync.Mutex
	hosts map[string]*robotsEntry
}

// robotsEntry is filled exactly once; concurrent callers for the same host
// wait on the first fetch instead of issuing their own.
type robotsEntry struct {
	once sync.Once
	data *robotstxt.RobotsData
	err  error
}

// NewRobotsTxtAuditor creates a new instance. robots.txt is fetched direct,
// never through the proxy pool.
func NewRobotsTxtAuditor(fetcher *Fetcher, logger *slog.Logger) *RobotsTxtAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsTxtAuditor{
		fetcher:   fetcher,
		userAgent: "jobscout",
		logger:    logger,
		hosts:     make(map[string]*robotsEntry),
	}
}

// IsAllowed reports whether userAgent may fetch targetURL. The query string
// is part of the tested path, so rules on listing query strings apply.
func (r *RobotsTxtAuditor) IsAllowed(ctx context.Context, targetURL string, userAgent string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("invalid url: %w", err)
	}

	group := r.group(ctx, u, userAgent)
	if group == nil {
		return true, nil
	}
	return group.Test(u.RequestURI()), nil
}

// CrawlDelay returns the Crawl-delay the host asks of userAgent, or zero.
func (r *RobotsTxtAuditor) CrawlDelay(ctx context.Context, targetURL string, userAgent string) time.Duration {
	u, err := url.Parse(targetURL)
	if err != nil {
		return 0
	}
	if group := r.group(ctx, u, userAgent); group != nil {
		return group.CrawlDelay
	}
	return 0
}

func (r *RobotsTxtAuditor) group(ctx context.Context, u *url.URL, userAgent string) *robotstxt.Group {
	origin := u.Scheme + "://" + u.Host

	r.mu.Lock()
	e, ok := r.hosts[origin]
	if !ok {
		e = &robotsEntry{}
		r.hosts[origin] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		e.data, e.err = r.fetch(ctx, origin)
		if e.err != nil {
			r.logger.Debug("robots.txt fetch failed, defaulting to allow", "host", origin, "err", e.err)
		}
	})
	if e.data == nil {
		return nil
	}
	return e.data.FindGroup(userAgent)
}

func (r *RobotsTxtAuditor) fetch(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	a := middleware.NewAttempt(origin+"/robots.txt", nil).WithHeader("User-Agent", r.userAgent)
	resp, err := r.fetcher.RoundTrip(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("fetch error: %w", err)
	}

	// Missing, redirected or forbidden robots.txt allows everything.
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	parsed, err := robotstxt.FromBytes(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return parsed, nil
}
