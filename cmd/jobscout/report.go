package main

import (
	"os"
	"time"

	"github.com/FranksOps/jobscout/internal/report"
	"github.com/FranksOps/jobscout/internal/storage"
	"github.com/spf13/cobra"
)

func newReportCmd(a *app) *cobra.Command {
	var (
		format string
		filter storage.Filter
		since  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize stored job listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Reports never touch the network.
			a.v.Set("proxy.enabled", false)
			if err := a.load(); err != nil {
				return err
			}

			backend, err := openBackend(cmd.Context(), a.settings.Output)
			if err != nil {
				return err
			}
			defer backend.Close()

			if since > 0 {
				t := time.Now().Add(-since)
				filter.Since = &t
			}
			items, err := backend.Query(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return report.Write(os.Stdout, format, report.GenerateSummary(items))
		},
	}

	f := cmd.Flags()
	f.StringVarP(&format, "format", "f", "text", "report format: text, json or html")
	f.StringVar(&filter.Keyword, "keyword", "", "only items found with this search keyword")
	f.StringVar(&filter.Province, "province", "", "only items in this province")
	f.StringVar(&filter.AreaCode, "area-code", "", "only items found with this area code")
	f.DurationVar(&since, "since", 0, "only items crawled within this window")
	f.IntVar(&filter.Limit, "limit", 0, "maximum items to read (0 reads all)")
	return cmd
}
