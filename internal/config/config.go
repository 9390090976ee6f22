// Package config loads crawler settings from a config file, JOBSCOUT_*
// environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/FranksOps/jobscout/internal/bypass"
	"github.com/FranksOps/jobscout/internal/fingerprint"
	"github.com/FranksOps/jobscout/internal/middleware"
	"github.com/FranksOps/jobscout/pkg/proxy"
	"github.com/spf13/viper"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Backends accepted for output.backend.
var Backends = []string{"json", "csv", "sqlite", "postgres"}

// Settings is the full runtime configuration.
type Settings struct {
	Proxy      ProxySettings      `mapstructure:"proxy"`
	UserAgents []string           `mapstructure:"user_agents"`
	Middleware MiddlewareSettings `mapstructure:"middleware"`
	Crawl      CrawlSettings      `mapstructure:"crawl"`
	Output     OutputSettings     `mapstructure:"output"`
	Metrics    MetricsSettings    `mapstructure:"metrics"`
	Log        LogSettings        `mapstructure:"log"`
}

type ProxySettings struct {
	Enabled             bool          `mapstructure:"enabled"`
	PoolURL             string        `mapstructure:"pool_url"`
	APITimeout          time.Duration `mapstructure:"api_timeout"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	MaxRequestRetries   int           `mapstructure:"max_request_retries"`
	FetchCooldown       time.Duration `mapstructure:"fetch_cooldown"`
	MinPoolSize         int           `mapstructure:"min_pool_size"`
	MaxConsecutiveFails int           `mapstructure:"max_consecutive_fails"`
	MinScore            float64       `mapstructure:"min_score"`
	RetryStatusCodes    []int         `mapstructure:"retry_status_codes"`
	GatewayDomains      []string      `mapstructure:"gateway_domains"`
	SeedFile            string        `mapstructure:"seed_file"`
}

type MiddlewareSettings struct {
	Stages []string `mapstructure:"stages"`
}

type CrawlSettings struct {
	BaseURL         string        `mapstructure:"base_url"`
	PageSize        int           `mapstructure:"page_size"`
	Concurrency     int           `mapstructure:"concurrency"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	DownloadDelay   time.Duration `mapstructure:"download_delay"`
	Jitter          float64       `mapstructure:"jitter"`
	Fingerprint     string        `mapstructure:"fingerprint"`
	UseCookieJar    bool          `mapstructure:"cookie_jar"`
	RespectRobots   bool          `mapstructure:"respect_robots"`
	TargetsFile     string        `mapstructure:"targets_file"`
	Keywords        []string      `mapstructure:"keywords"`
	CitiesJSON      string        `mapstructure:"cities_json"`
	CategoriesJSON  string        `mapstructure:"categories_json"`
	IndustriesJSON  string        `mapstructure:"industries_json"`
}

type OutputSettings struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	DSN     string `mapstructure:"dsn"`
}

type MetricsSettings struct {
	Port int `mapstructure:"port"`
}

type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultUserAgents are the browser strings rotated when none are configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.1.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:89.0) Gecko/20100101 Firefox/89.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.1.1 Mobile/15E148 Safari/604.1",
}

// New returns a viper instance with defaults and JOBSCOUT_* environment
// overrides registered. Callers bind flags to it before Load.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("JOBSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers every key with its default.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("proxy.enabled", true)
	v.SetDefault("proxy.pool_url", "")
	v.SetDefault("proxy.api_timeout", 5*time.Second)
	v.SetDefault("proxy.request_timeout", 10*time.Second)
	v.SetDefault("proxy.max_request_retries", 3)
	v.SetDefault("proxy.fetch_cooldown", 180*time.Second)
	v.SetDefault("proxy.min_pool_size", 5)
	v.SetDefault("proxy.max_consecutive_fails", 3)
	v.SetDefault("proxy.min_score", 0.1)
	v.SetDefault("proxy.retry_status_codes", middleware.DefaultRetryStatusCodes)
	v.SetDefault("proxy.gateway_domains", bypass.DefaultGatewayDomains)
	v.SetDefault("proxy.seed_file", "")

	v.SetDefault("user_agents", DefaultUserAgents)
	v.SetDefault("middleware.stages", middleware.DefaultStages)

	v.SetDefault("crawl.base_url", "https://24365.ncss.cn/student/jobs/jobslist/ajax/")
	v.SetDefault("crawl.page_size", 20)
	v.SetDefault("crawl.concurrency", 16)
	v.SetDefault("crawl.download_timeout", 10*time.Second)
	v.SetDefault("crawl.download_delay", time.Second)
	v.SetDefault("crawl.jitter", 0.5)
	v.SetDefault("crawl.fingerprint", string(fingerprint.ProfileChrome))
	v.SetDefault("crawl.cookie_jar", false)
	v.SetDefault("crawl.respect_robots", false)
	v.SetDefault("crawl.targets_file", "data/target_options.json")
	v.SetDefault("crawl.keywords", []string{})
	v.SetDefault("crawl.cities_json", "")
	v.SetDefault("crawl.categories_json", "")
	v.SetDefault("crawl.industries_json", "")

	v.SetDefault("output.backend", "json")
	v.SetDefault("output.path", "data/jobs.jsonl")
	v.SetDefault("output.dsn", "")

	v.SetDefault("metrics.port", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads path (if set) into v and returns validated settings.
func Load(v *viper.Viper, path string) (*Settings, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	s.Crawl.Keywords = CleanKeywords(s.Crawl.Keywords)

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// CleanKeywords trims keywords and drops empty ones, splitting any entry
// that still holds a comma separated list.
func CleanKeywords(in []string) []string {
	var out []string
	for _, entry := range in {
		for _, kw := range strings.Split(entry, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				out = append(out, kw)
			}
		}
	}
	return out
}

// Validate checks settings that would otherwise fail mid-crawl.
func (s *Settings) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	p := s.Proxy
	if p.Enabled {
		url := strings.TrimSpace(p.PoolURL)
		if (url == "" || url == proxy.PlaceholderURL) && p.SeedFile == "" {
			add("proxy.pool_url must be set when proxy.enabled is true")
		}
		if p.MinScore <= 0 || p.MinScore > 1 {
			add("proxy.min_score must be within (0, 1], got %v", p.MinScore)
		}
		if p.MinPoolSize <= 0 {
			add("proxy.min_pool_size must be positive, got %d", p.MinPoolSize)
		}
		if p.MaxConsecutiveFails <= 0 {
			add("proxy.max_consecutive_fails must be positive, got %d", p.MaxConsecutiveFails)
		}
	}
	if p.MaxRequestRetries < 0 {
		add("proxy.max_request_retries must not be negative")
	}

	c := s.Crawl
	if c.PageSize <= 0 {
		add("crawl.page_size must be positive")
	}
	if c.Concurrency <= 0 {
		add("crawl.concurrency must be positive")
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		add("crawl.jitter must be within [0, 1], got %v", c.Jitter)
	}
	if _, err := fingerprint.ParseProfile(c.Fingerprint); err != nil {
		add("crawl.fingerprint: %v", err)
	}

	if !slices.Contains(Backends, s.Output.Backend) {
		add("output.backend must be one of %s, got %q", strings.Join(Backends, ", "), s.Output.Backend)
	}
	switch s.Output.Backend {
	case "postgres":
		if s.Output.DSN == "" {
			add("output.dsn is required for the postgres backend")
		}
	case "json", "csv":
		if s.Output.Path == "" {
			add("output.path is required for the %s backend", s.Output.Backend)
		}
	}

	if _, err := ParseLevel(s.Log.Level); err != nil {
		add("log.level: %v", err)
	}
	if f := strings.ToLower(s.Log.Format); f != "text" && f != "json" {
		add("log.format must be text or json, got %q", s.Log.Format)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// MiddlewareConfig builds the request pipeline configuration.
func (s *Settings) MiddlewareConfig() middleware.Config {
	p := s.Proxy
	retries := p.MaxRequestRetries
	if retries == 0 {
		// Zero means "use the default" to middleware.New.
		retries = -1
	}
	return middleware.Config{
		ProxyEnabled: p.Enabled,
		Pool: proxy.Config{
			MinScore:               p.MinScore,
			MaxConsecutiveFailures: p.MaxConsecutiveFails,
		},
		Vendor: proxy.VendorConfig{
			URL:         p.PoolURL,
			Timeout:     p.APITimeout,
			Cooldown:    p.FetchCooldown,
			MinPoolSize: p.MinPoolSize,
		},
		SeedFile:            p.SeedFile,
		ProxyRequestTimeout: p.RequestTimeout,
		MaxRetries:          retries,
		Stages:              s.Middleware.Stages,
		UserAgents:          s.UserAgents,
		Validator: middleware.ValidatorConfig{
			RetryStatusCodes: p.RetryStatusCodes,
			GatewayDomains:   p.GatewayDomains,
		},
	}
}
