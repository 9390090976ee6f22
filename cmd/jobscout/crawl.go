package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/FranksOps/jobscout/internal/config"
	"github.com/FranksOps/jobscout/internal/fingerprint"
	"github.com/FranksOps/jobscout/internal/metrics"
	"github.com/FranksOps/jobscout/internal/middleware"
	"github.com/FranksOps/jobscout/internal/scraper"
	"github.com/FranksOps/jobscout/pkg/ratelimit"
	"github.com/spf13/cobra"
)

func newCrawlCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl every configured search facet and store the listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			return runCrawl(cmd.Context(), a)
		},
	}

	f := cmd.Flags()
	f.StringSlice("keywords", nil, "job name keywords, comma separated")
	f.String("cities-json", "", `cities as a JSON array of {"code","name"} objects`)
	f.String("categories-json", "", "job categories as a JSON array")
	f.String("industries-json", "", "industries as a JSON array")
	f.String("targets-file", "data/target_options.json", "search options file")
	f.Int("concurrency", 16, "number of concurrent requests")
	f.Duration("delay", 0, "delay between requests")
	f.Bool("proxy", true, "route requests through the proxy pool")
	f.String("proxy-seed", "", "file with static proxy endpoints, one per line")
	f.Int("max-retries", 3, "retries per request before the facet is abandoned")
	f.Bool("respect-robots", false, "honour robots.txt")
	f.Int("metrics-port", 0, "expose Prometheus metrics on this port (0 disables)")

	a.bind("crawl.keywords", f.Lookup("keywords"))
	a.bind("crawl.cities_json", f.Lookup("cities-json"))
	a.bind("crawl.categories_json", f.Lookup("categories-json"))
	a.bind("crawl.industries_json", f.Lookup("industries-json"))
	a.bind("crawl.targets_file", f.Lookup("targets-file"))
	a.bind("crawl.concurrency", f.Lookup("concurrency"))
	a.bind("crawl.download_delay", f.Lookup("delay"))
	a.bind("proxy.enabled", f.Lookup("proxy"))
	a.bind("proxy.seed_file", f.Lookup("proxy-seed"))
	a.bind("proxy.max_request_retries", f.Lookup("max-retries"))
	a.bind("crawl.respect_robots", f.Lookup("respect-robots"))
	a.bind("metrics.port", f.Lookup("metrics-port"))
	return cmd
}

func runCrawl(ctx context.Context, a *app) error {
	s, logger := a.settings, a.logger

	backend, err := openBackend(ctx, s.Output)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", s.Output.Backend, err)
	}
	defer backend.Close()

	if s.Metrics.Port > 0 {
		srv := metrics.Start(s.Metrics.Port, logger)
		defer srv.Stop(context.Background())
	}

	profile, err := fingerprint.ParseProfile(s.Crawl.Fingerprint)
	if err != nil {
		return err
	}
	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:      s.Crawl.DownloadTimeout,
		UseCookieJar: s.Crawl.UseCookieJar,
		Fingerprint:  profile,
		Limiter:      ratelimit.FromDelay(s.Crawl.DownloadDelay, s.Crawl.Jitter),
	})
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}
	defer fetcher.Close()

	engine, err := middleware.New(s.MiddlewareConfig(), fetcher, logger)
	if err != nil {
		return err
	}
	if res := engine.Warm(ctx); res.Err != nil {
		// The pool refills on demand; an empty start only means direct requests.
		logger.Warn("initial proxy fetch failed", "err", res.Err)
	}

	facets := scraper.Facets(config.LoadTargets(s.Crawl, logger))
	logger.Info("starting crawl", "facets", len(facets), "backend", s.Output.Backend)

	crawler := scraper.NewCrawler(scraper.CrawlConfig{
		Concurrency:   s.Crawl.Concurrency,
		Backend:       backend,
		BaseURL:       s.Crawl.BaseURL,
		PageSize:      s.Crawl.PageSize,
		RespectRobots: s.Crawl.RespectRobots,
	}, engine, fetcher, logger)

	stats, err := crawler.Run(ctx, facets)
	if errors.Is(err, context.Canceled) {
		logger.Warn("crawl interrupted", "items", stats.Items, "pages", stats.Pages)
		return nil
	}
	return err
}
