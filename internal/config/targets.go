package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/FranksOps/jobscout/internal/scraper"
)

// targetOptions mirrors the target options file.
type targetOptions struct {
	Provinces  []scraper.Option `json:"provinces"`
	Cities     []scraper.Option `json:"citys"`
	Categories []scraper.Option `json:"jobcategoryItems"`
	Industries []scraper.Option `json:"industriesNew"`
}

// LoadTargets builds the crawl dimensions from the options file and the
// crawl overrides. A missing or unreadable options file is logged and
// treated as empty; an override that is not a JSON array of {code,name}
// falls back to the file's list.
func LoadTargets(c CrawlSettings, logger *slog.Logger) scraper.Targets {
	if logger == nil {
		logger = slog.Default()
	}

	opts, err := readTargetOptions(c.TargetsFile)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Error("target options file not found, province names and default targets are unavailable", "path", c.TargetsFile)
	case err != nil:
		logger.Error("failed to load target options", "path", c.TargetsFile, "err", err)
	}

	provinces := make(map[string]string, len(opts.Provinces))
	for _, p := range opts.Provinces {
		if p.Code != "" && p.Name != "" {
			provinces[p.Code] = p.Name
		}
	}
	if len(provinces) == 0 {
		logger.Warn("province map is empty", "path", c.TargetsFile)
	} else {
		logger.Info("loaded province mappings", "count", len(provinces), "path", c.TargetsFile)
	}

	t := scraper.Targets{
		Cities:     override("cities", c.CitiesJSON, opts.Cities, logger),
		Keywords:   c.Keywords,
		Categories: override("categories", c.CategoriesJSON, opts.Categories, logger),
		Industries: override("industries", c.IndustriesJSON, opts.Industries, logger),
		Provinces:  provinces,
	}

	logger.Info("targets loaded",
		"cities", len(t.Cities),
		"keywords", len(t.Keywords),
		"categories", len(t.Categories),
		"industries", len(t.Industries),
	)
	return t
}

func readTargetOptions(path string) (targetOptions, error) {
	var opts targetOptions
	if path == "" {
		return opts, os.ErrNotExist
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, err
	}
	if err := json.Unmarshal(data, &opts); err != nil {
		return targetOptions{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return opts, nil
}

func override(name, raw string, fallback []scraper.Option, logger *slog.Logger) []scraper.Option {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	var opts []scraper.Option
	if err := json.Unmarshal([]byte(raw), &opts); err != nil {
		logger.Warn("failed to parse target override, using options file", "dimension", name, "err", err)
		return fallback
	}
	return opts
}
