package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/FranksOps/jobscout/internal/middleware"
	"github.com/FranksOps/jobscout/internal/scraper"
	"github.com/spf13/cobra"
)

func newProxiesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxies",
		Short: "Inspect the proxy vendor",
	}

	fetch := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch one batch from the proxy vendor and print the pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			a.v.Set("proxy.enabled", true)
			if err := a.load(); err != nil {
				return err
			}

			fetcher, err := scraper.NewFetcher(scraper.FetchConfig{})
			if err != nil {
				return err
			}
			defer fetcher.Close()

			engine, err := middleware.New(a.settings.MiddlewareConfig(), fetcher, a.logger)
			if err != nil {
				return err
			}
			if engine.Refiller() != nil {
				res := engine.Refiller().Refill(cmd.Context())
				if res.Err != nil {
					return fmt.Errorf("vendor fetch: %w", res.Err)
				}
				a.logger.Info("vendor fetch finished",
					"received", res.Received, "added", res.Added, "malformed", res.Malformed)
			}

			pool := engine.Pool()
			if pool == nil {
				return errors.New("proxy pool is disabled")
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ENDPOINT\tSCORE\tSUCCESSES\tFAILURES\tLAST USED")
			for _, p := range pool.Snapshot() {
				last := "-"
				if !p.LastUsed.IsZero() {
					last = p.LastUsed.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%.2f\t%d\t%d\t%s\n", p.Endpoint, p.Score, p.Successes, p.Failures, last)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(fetch)
	return cmd
}
