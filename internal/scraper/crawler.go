package scraper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FranksOps/jobscout/internal/metrics"
	"github.com/FranksOps/jobscout/internal/middleware"
	"github.com/FranksOps/jobscout/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// CrawlConfig provides parameters for the paginating crawler.
type CrawlConfig struct {
	Concurrency int
	Backend     storage.Backend
	// BaseURL is the listing endpoint. Defaults to DefaultBaseURL.
	BaseURL  string
	PageSize int
	// RespectRobots specifies whether to check robots.txt before fetching
	RespectRobots bool
	// UserAgent is the User-Agent string to use when checking robots.txt
	UserAgent string
	// QueueSize is the buffer of the internal job queue (0 = default 1024)
	QueueSize int
}

// Stats summarizes a crawl run.
type Stats struct {
	Facets     int
	Pages      int64
	EmptyPages int64
	Items      int64
	// Failed counts facet streams that ended on an error before their last page.
	Failed  int64
	Skipped int64
}

// Crawler walks every facet's pages through the middleware engine and
// hands the parsed items to the storage backend.
type Crawler struct {
	cfg     CrawlConfig
	engine  *middleware.Engine
	logger  *slog.Logger
	auditor *RobotsTxtAuditor
	now     func() time.Time

	// Requests already scheduled, keyed without the cache buster
	seenMu sync.Mutex
	seen   map[string]struct{}

	pages, empty, items, failed, skipped atomic.Int64
}

// NewCrawler creates a crawler. fetcher is only used for robots.txt checks
// and may be nil when RespectRobots is off.
func NewCrawler(cfg CrawlConfig, engine *middleware.Engine, fetcher *Fetcher, logger *slog.Logger) *Crawler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 16
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "*" // default generic user-agent for robots.txt
	}
	if logger == nil {
		logger = slog.Default()
	}

	var auditor *RobotsTxtAuditor
	if cfg.RespectRobots && fetcher != nil {
		auditor = NewRobotsTxtAuditor(fetcher, logger)
	}

	return &Crawler{
		cfg:     cfg,
		engine:  engine,
		logger:  logger,
		auditor: auditor,
		now:     time.Now,
		seen:    make(map[string]struct{}),
	}
}

// Run crawls every facet until each stream runs out of pages, fails
// terminally, or ctx is cancelled.
func (c *Crawler) Run(ctx context.Context, facets []Facet) (Stats, error) {
	queueSize := c.cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	queue := make(chan middleware.Attempt, queueSize)

	if c.auditor != nil {
		if d := c.auditor.CrawlDelay(ctx, c.cfg.BaseURL, c.cfg.UserAgent); d > 0 {
			c.logger.Warn("robots.txt asks for a crawl delay", "crawl_delay", d)
		}
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	// We use an errgroup to manage concurrent workers
	g, gCtx := errgroup.WithContext(runCtx)

	// Every scheduled attempt, first pages included, holds one count until a
	// worker finishes with it. Follow-ups are counted before the current
	// attempt is released, so reaching zero means every stream is done.
	var jobsWg sync.WaitGroup
	jobsWg.Add(len(facets))

	g.Go(func() error {
		for i, f := range facets {
			a, ok := c.firstPage(f)
			if !ok {
				jobsWg.Done()
				continue
			}
			select {
			case queue <- a:
			case <-gCtx.Done():
				// Release this and every unsent facet.
				for range facets[i:] {
					jobsWg.Done()
				}
				return nil
			}
		}
		return nil
	})

	for i := 0; i < c.cfg.Concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gCtx.Done():
					return nil
				case a := <-queue:
					c.process(gCtx, a, func(next middleware.Attempt) {
						c.enqueue(gCtx, queue, &jobsWg, next)
					})
					jobsWg.Done()
				}
			}
		})
	}

	// Wait for all jobs to complete in a separate goroutine
	done := make(chan struct{})
	go func() {
		jobsWg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
	case <-done:
		// all streams finished
	}
	stop()
	_ = g.Wait()

	// Attempts still buffered, or handed over by pending enqueue sends,
	// hold counts; release them so the waiter exits.
	for drained := false; !drained; {
		select {
		case <-queue:
			jobsWg.Done()
		case <-done:
			drained = true
		}
	}

	stats := c.stats(len(facets))
	c.logger.Info("crawl finished",
		"facets", stats.Facets,
		"pages", stats.Pages,
		"empty_pages", stats.EmptyPages,
		"items", stats.Items,
		"failed_streams", stats.Failed,
	)
	return stats, ctx.Err()
}

func (c *Crawler) stats(facets int) Stats {
	return Stats{
		Facets:     facets,
		Pages:      c.pages.Load(),
		EmptyPages: c.empty.Load(),
		Items:      c.items.Load(),
		Failed:     c.failed.Load(),
		Skipped:    c.skipped.Load(),
	}
}

func (c *Crawler) firstPage(f Facet) (middleware.Attempt, bool) {
	a := c.pageAttempt(PageRequest{Facet: f, Offset: 1})
	if !c.markScheduled(a) {
		c.logger.Debug("duplicate facet skipped", "facet", f.String())
		c.skipped.Add(1)
		return a, false
	}
	c.logger.Info("requesting first page",
		"province", f.Province,
		"city", f.CityName,
		"area_code", f.CityCode,
		"keyword", f.Keyword,
		"category", f.CategoryName,
		"industry", f.IndustryName,
	)
	return a, true
}

func (c *Crawler) pageAttempt(pr PageRequest) middleware.Attempt {
	u := BuildURL(c.cfg.BaseURL, pr.Facet, pr.Offset, c.cfg.PageSize, c.now())
	return middleware.NewAttempt(u, pr)
}

// enqueue schedules a follow-up. A full queue must not block the worker
// that is draining it, so the send falls back to a goroutine.
func (c *Crawler) enqueue(ctx context.Context, queue chan<- middleware.Attempt, wg *sync.WaitGroup, a middleware.Attempt) {
	if !c.markScheduled(a) {
		c.skipped.Add(1)
		return
	}
	wg.Add(1)
	select {
	case queue <- a:
		return
	default:
	}
	go func() {
		select {
		case queue <- a:
		case <-ctx.Done():
			wg.Done() // Context cancelled, give up
		}
	}()
}

// markScheduled records a's request key and reports whether it was new.
// Attempts marked DontFilter always pass.
func (c *Crawler) markScheduled(a middleware.Attempt) bool {
	if a.DontFilter {
		return true
	}
	key := requestKey(a.URL)
	c.seenMu.Lock()
	defer c.seenMu.Unlock()
	if _, ok := c.seen[key]; ok {
		return false
	}
	c.seen[key] = struct{}{}
	return true
}

func (c *Crawler) process(ctx context.Context, a middleware.Attempt, schedule func(middleware.Attempt)) {
	pr, ok := a.Tag.(PageRequest)
	if !ok {
		c.logger.Error("attempt without page request dropped", "url", a.URL)
		return
	}

	if c.auditor != nil && a.RetryCount == 0 {
		allowed, err := c.auditor.IsAllowed(ctx, a.URL, c.cfg.UserAgent)
		if err != nil {
			c.logger.Warn("error checking robots.txt", "url", a.URL, "err", err)
		} else if !allowed {
			c.logger.Warn("url blocked by robots.txt", "url", a.URL)
			return
		}
	}

	res := c.engine.Execute(ctx, a)

	switch {
	case res.Decision.Retry != nil:
		schedule(*res.Decision.Retry)
		return
	case res.Decision.Terminal:
		c.failed.Add(1)
		c.logger.Error("facet stream ended after retries",
			"facet", pr.Facet.String(),
			"offset", pr.Offset,
			"reason", res.Outcome.Reason,
		)
		return
	}

	if errors.Is(res.Err, middleware.ErrBodyTooLarge) {
		c.failed.Add(1)
		c.logger.Error("listing response exceeds size limit",
			"facet", pr.Facet.String(),
			"offset", pr.Offset,
			"err", res.Err,
		)
		return
	}

	switch res.Outcome.Verdict {
	case middleware.ProxySuccess, middleware.Unclassified:
	case middleware.Aborted:
		return
	default:
		c.failed.Add(1)
		c.logger.Error("facet stream ended on error response",
			"facet", pr.Facet.String(),
			"offset", pr.Offset,
			"reason", res.Outcome.Reason,
		)
		return
	}

	if res.Response == nil {
		return
	}
	c.handlePage(ctx, pr, res.Response, schedule)
}

func (c *Crawler) handlePage(ctx context.Context, pr PageRequest, resp *middleware.Response, schedule func(middleware.Attempt)) {
	page, err := ParseListPage(resp.Body)
	if err != nil {
		c.failed.Add(1)
		if errors.Is(err, ErrAPIFailure) {
			c.logger.Error("listing api request failed", "url", resp.URL, "err", err)
		} else {
			c.logger.Error("listing response is not json", "url", resp.URL, "err", err)
		}
		return
	}
	c.pages.Add(1)

	f := pr.Facet
	if len(page.Rows) == 0 {
		c.empty.Add(1)
		c.logger.Info("no jobs on page",
			"offset", pr.Offset,
			"province", f.Province,
			"area_code", f.CityCode,
			"keyword", f.Keyword,
			"category", f.CategoryName,
			"industry", f.IndustryName,
			"url", resp.URL,
		)
	} else {
		c.logger.Info("jobs found",
			"count", len(page.Rows),
			"offset", pr.Offset,
			"province", f.Province,
			"area_code", f.CityCode,
			"keyword", f.Keyword,
		)
		c.save(ctx, page.Rows, f, resp.URL)
	}

	if page.Total > 0 && pr.Offset < page.Total {
		next := PageRequest{Facet: f, Offset: pr.Offset + 1}
		c.logger.Debug("requesting next page", "offset", next.Offset, "total", page.Total, "facet", f.String())
		schedule(c.pageAttempt(next))
		return
	}
	c.logger.Info("no more pages", "offset", pr.Offset, "total", page.Total, "facet", f.String())
}

func (c *Crawler) save(ctx context.Context, rows []map[string]any, f Facet, sourceURL string) {
	crawledAt := c.now().UTC()
	for _, row := range rows {
		item := NewJobItem(row, f, sourceURL)
		item.ID = uuid.New().String()
		item.CrawledAt = crawledAt

		c.items.Add(1)
		metrics.ItemsScraped.Inc()

		if c.cfg.Backend == nil {
			continue
		}
		if err := c.cfg.Backend.Save(ctx, item); err != nil {
			c.logger.Error("failed to save item", "job_id", item.JobID, "url", sourceURL, "err", err)
		}
	}
}
