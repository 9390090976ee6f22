package config

import (
	"log/slog"
	"testing"

	"github.com/FranksOps/jobscout/internal/scraper"
)

const optionsJSON = `{
	"provinces": [{"code": "11", "name": "北京市"}, {"code": "44", "name": "广东省"}],
	"citys": [{"code": "110100", "name": "北京市"}, {"code": "440300", "name": "深圳市"}],
	"jobcategoryItems": [{"code": "01", "name": "计算机"}],
	"industriesNew": []
}`

func TestLoadTargets_FromFile(t *testing.T) {
	path := writeFile(t, "target_options.json", optionsJSON)

	targets := LoadTargets(CrawlSettings{TargetsFile: path, Keywords: []string{"go"}}, slog.Default())

	if len(targets.Cities) != 2 || len(targets.Categories) != 1 || len(targets.Industries) != 0 {
		t.Errorf("unexpected targets: %+v", targets)
	}
	if targets.Provinces["44"] != "广东省" {
		t.Errorf("expected province map, got %v", targets.Provinces)
	}

	facets := scraper.Facets(targets)
	if len(facets) != 2 {
		t.Fatalf("expected 2 facets, got %d", len(facets))
	}
	if facets[1].Province != "广东省" || facets[1].IndustryName != scraper.AnyIndustry {
		t.Errorf("unexpected facet: %+v", facets[1])
	}
}

func TestLoadTargets_Overrides(t *testing.T) {
	path := writeFile(t, "target_options.json", optionsJSON)

	targets := LoadTargets(CrawlSettings{
		TargetsFile:    path,
		CitiesJSON:     `[{"code":"440100","name":"广州市"}]`,
		CategoriesJSON: `not json`,
		IndustriesJSON: `[{"code":"I","name":"互联网"}]`,
	}, nil)

	if len(targets.Cities) != 1 || targets.Cities[0].Name != "广州市" {
		t.Errorf("expected city override, got %+v", targets.Cities)
	}
	if len(targets.Categories) != 1 || targets.Categories[0].Code != "01" {
		t.Errorf("expected invalid override to fall back to the file, got %+v", targets.Categories)
	}
	if len(targets.Industries) != 1 || targets.Industries[0].Code != "I" {
		t.Errorf("expected industry override, got %+v", targets.Industries)
	}
}

func TestLoadTargets_MissingFile(t *testing.T) {
	targets := LoadTargets(CrawlSettings{TargetsFile: "/nonexistent/target_options.json"}, nil)

	facets := scraper.Facets(targets)
	if len(facets) != 1 || facets[0].CityName != scraper.AllCities || facets[0].Province != scraper.AllCities {
		t.Errorf("expected a single nationwide facet, got %+v", facets)
	}
}
