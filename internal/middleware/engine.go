package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/FranksOps/jobscout/internal/metrics"
	"github.com/FranksOps/jobscout/pkg/proxy"
	"github.com/FranksOps/jobscout/pkg/useragent"
)

// Transport sends a prepared attempt. Implementations route through
// a.Proxy when set and honour a.Timeout.
type Transport interface {
	RoundTrip(ctx context.Context, a Attempt) (*Response, error)
}

// Config wires the whole pipeline.
type Config struct {
	// ProxyEnabled turns the proxy stage on. When off, the pool and vendor
	// are not built and attempts go out direct.
	ProxyEnabled bool
	Pool         proxy.Config
	Vendor       proxy.VendorConfig
	// SeedFile optionally preloads the pool with static endpoints.
	SeedFile string
	// ProxyRequestTimeout is set on attempts routed through a proxy.
	ProxyRequestTimeout time.Duration
	// MaxRetries caps retries per request. Zero means 3; negative disables retries.
	MaxRetries int
	Stages     []string
	UserAgents []string
	Validator  ValidatorConfig
}

// Result is everything known about one executed attempt.
type Result struct {
	// Attempt is the attempt as sent, after all stages ran.
	Attempt  Attempt
	Response *Response
	Err      error
	Outcome  Outcome
	Decision Decision
}

// Engine runs attempts through the stage chain, the transport, the
// validator and the retry orchestrator.
type Engine struct {
	chain        *Chain
	transport    Transport
	validator    *Validator
	orchestrator *Orchestrator
	pool         *proxy.Pool
	refiller     *proxy.Refiller
	logger       *slog.Logger
}

// New builds an engine. Configuration problems (unknown stages, an unset
// vendor URL with no seed list) are returned immediately.
func New(cfg Config, transport Transport, logger *slog.Logger) (*Engine, error) {
	if transport == nil {
		return nil, errors.New("middleware: transport is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = 3
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}

	e := &Engine{
		transport: transport,
		validator: NewValidator(cfg.Validator),
		logger:    logger,
	}

	available := map[string]Stage{
		StageUserAgent: &UserAgentStage{Pool: useragent.NewPool(cfg.UserAgents)},
		StageProxy:     nil,
	}

	if cfg.ProxyEnabled {
		pool := proxy.NewPool(cfg.Pool)
		seeded := 0
		if cfg.SeedFile != "" {
			n, err := pool.LoadFile(cfg.SeedFile)
			if err != nil {
				return nil, fmt.Errorf("seed proxy pool: %w", err)
			}
			seeded = n
			logger.Info("proxy pool seeded", "file", cfg.SeedFile, "count", n)
		}

		refiller, err := proxy.NewRefiller(pool, cfg.Vendor, logger)
		switch {
		case errors.Is(err, proxy.ErrNotConfigured) && seeded > 0:
			logger.Warn("proxy vendor not configured, using static pool only")
			refiller = nil
		case err != nil:
			return nil, fmt.Errorf("proxy middleware: %w", err)
		}

		e.pool = pool
		e.refiller = refiller
		available[StageProxy] = NewDispatcher(pool, refiller, cfg.ProxyRequestTimeout, logger)
	}

	chain, err := NewChain(cfg.Stages, available)
	if err != nil {
		return nil, err
	}
	e.chain = chain
	e.orchestrator = NewOrchestrator(e.pool, cfg.MaxRetries, logger)

	logger.Info("middleware ready",
		"stages", chain.Names(),
		"proxy_enabled", cfg.ProxyEnabled,
		"max_retries", cfg.MaxRetries,
	)
	return e, nil
}

// Pool returns the proxy pool, or nil when proxying is disabled.
func (e *Engine) Pool() *proxy.Pool { return e.pool }

// Refiller returns the vendor refiller, or nil.
func (e *Engine) Refiller() *proxy.Refiller { return e.refiller }

// Warm performs the initial vendor fetch so the first requests find a
// populated pool.
func (e *Engine) Warm(ctx context.Context) proxy.RefillResult {
	if e.refiller == nil {
		return proxy.RefillResult{}
	}
	res := e.refiller.MaybeRefill(ctx)
	if res.Attempted {
		metrics.RecordRefill(res.Added, res.Err)
	}
	metrics.PoolSize.Set(float64(e.pool.Size()))
	return res
}

// Execute prepares, sends and classifies one attempt and decides whether
// it should be retried. It never returns a retry for a cancelled context.
func (e *Engine) Execute(ctx context.Context, a Attempt) Result {
	prepared := e.chain.Prepare(ctx, a)

	start := time.Now()
	resp, err := e.transport.RoundTrip(ctx, prepared)
	elapsed := time.Since(start)

	out := e.validator.Classify(resp, err)
	if err != nil && ctx.Err() != nil {
		// The run itself was cancelled or timed out; the proxy is not to blame.
		out = Outcome{Verdict: Aborted, Reason: "canceled"}
	}
	e.observe(prepared, resp, out, elapsed)

	res := Result{Attempt: prepared, Response: resp, Err: err, Outcome: out}
	if out.Verdict == Aborted {
		return res
	}
	res.Decision = e.orchestrator.Resolve(prepared, out)
	return res
}

func (e *Engine) observe(a Attempt, resp *Response, out Outcome, elapsed time.Duration) {
	host := a.URL
	if u, err := url.Parse(a.URL); err == nil && u.Host != "" {
		host = u.Host
	}
	status, size := 0, 0
	if resp != nil {
		status, size = resp.StatusCode, len(resp.Body)
	}
	metrics.RecordAttempt(host, status, out.Verdict.String(), a.Proxy != "", size, elapsed)
	if out.Detection != "" {
		metrics.BlockDetections.WithLabelValues(out.Detection).Inc()
	}

	switch out.Verdict {
	case ProxySuccess, Unclassified, Aborted:
		e.logger.Debug("attempt finished",
			"url", a.URL, "proxy", a.Proxy, "status", status,
			"verdict", out.Verdict.String(), "duration", elapsed)
	default:
		e.logger.Warn("attempt failed",
			"url", a.URL,
			"proxy", a.Proxy,
			"status", status,
			"verdict", out.Verdict.String(),
			"reason", out.Reason,
			"detection", out.Detection,
			"title", out.Title,
			"retry", a.RetryCount,
		)
	}
}
