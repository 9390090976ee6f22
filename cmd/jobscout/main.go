// Command jobscout crawls the job listing API through a rotating proxy pool
// and stores the listings in a configurable backend.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/FranksOps/jobscout/internal/config"
	"github.com/FranksOps/jobscout/internal/storage"
	"github.com/FranksOps/jobscout/internal/storage/csvbackend"
	"github.com/FranksOps/jobscout/internal/storage/jsonbackend"
	"github.com/FranksOps/jobscout/internal/storage/postgres"
	"github.com/FranksOps/jobscout/internal/storage/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type app struct {
	v        *viper.Viper
	cfgFile  string
	settings *config.Settings
	logger   *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:           "jobscout",
		Short:         "Crawl job listings through a rotating proxy pool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "config file (yaml, json or toml)")
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	pf.String("log-format", "text", "log format: text or json")
	pf.String("backend", "json", "storage backend: json, csv, sqlite or postgres")
	pf.StringP("output", "o", "data/jobs.jsonl", "output file for file based backends")
	pf.String("dsn", "", "database DSN for the postgres backend")
	pf.String("pool-url", "", "proxy vendor API URL")
	a.bind("log.level", pf.Lookup("log-level"))
	a.bind("log.format", pf.Lookup("log-format"))
	a.bind("output.backend", pf.Lookup("backend"))
	a.bind("output.path", pf.Lookup("output"))
	a.bind("output.dsn", pf.Lookup("dsn"))
	a.bind("proxy.pool_url", pf.Lookup("pool-url"))

	root.AddCommand(newCrawlCmd(a), newReportCmd(a), newProxiesCmd(a))
	return root
}

// bind ties a flag to a config key. BindPFlag only fails on a nil flag.
func (a *app) bind(key string, f *pflag.Flag) {
	if err := a.v.BindPFlag(key, f); err != nil {
		panic(fmt.Sprintf("bind %s: %v", key, err))
	}
}

// load reads the settings and builds the logger. It runs after flag
// parsing so bound flags take precedence over the file and environment.
func (a *app) load() error {
	s, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(os.Stderr, s.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	a.settings = s
	a.logger = logger
	return nil
}

func openBackend(ctx context.Context, o config.OutputSettings) (storage.Backend, error) {
	if o.Backend == "postgres" {
		return postgres.New(ctx, o.DSN)
	}

	if dir := filepath.Dir(o.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	switch o.Backend {
	case "sqlite":
		return sqlite.New(o.Path)
	case "csv":
		return csvbackend.New(o.Path)
	case "json":
		return jsonbackend.New(o.Path)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", config.ErrInvalid, o.Backend)
	}
}
