package middleware

import (
	"errors"
	"log/slog"

	"github.com/FranksOps/jobscout/internal/metrics"
	"github.com/FranksOps/jobscout/pkg/proxy"
)

// Decision is what the orchestrator wants done with an attempt.
type Decision struct {
	// Retry is the attempt to reschedule, or nil.
	Retry *Attempt
	// Terminal is set when a failing attempt ran out of retries.
	Terminal bool
}

// Orchestrator records proxy health and decides on retries.
type Orchestrator struct {
	pool       *proxy.Pool
	maxRetries int
	logger     *slog.Logger
}

// NewOrchestrator creates an orchestrator. pool may be nil when proxying
// is disabled; retries are still bounded by maxRetries.
func NewOrchestrator(pool *proxy.Pool, maxRetries int, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Orchestrator{pool: pool, maxRetries: maxRetries, logger: logger}
}

// MaxRetries returns the retry cap.
func (o *Orchestrator) MaxRetries() int { return o.maxRetries }

// HandleSuccess rewards the attempt's proxy.
func (o *Orchestrator) HandleSuccess(a Attempt) {
	o.record(a, true)
}

// HandleFailure penalizes the attempt's proxy and returns the retry
// attempt, or false when the retry budget is spent.
func (o *Orchestrator) HandleFailure(a Attempt, reason string) (Attempt, bool) {
	o.record(a, false)
	metrics.ProxyFailures.WithLabelValues(reason).Inc()

	if a.RetryCount < o.maxRetries {
		next := a.Retry()
		metrics.Retries.Inc()
		o.logger.Info("retrying with another proxy",
			"url", a.URL,
			"reason", reason,
			"proxy", a.Proxy,
			"retry", next.RetryCount,
			"max_retries", o.maxRetries,
		)
		return next, true
	}

	metrics.TerminalFailures.WithLabelValues(reason).Inc()
	o.logger.Error("giving up after retries",
		"url", a.URL,
		"reason", reason,
		"proxy", a.Proxy,
		"retries", a.RetryCount,
	)
	return a, false
}

// Resolve applies the retry policy for an outcome.
func (o *Orchestrator) Resolve(a Attempt, out Outcome) Decision {
	switch out.Verdict {
	case ProxySuccess:
		o.HandleSuccess(a)
	case ProxyFailure, ApplicationFailure:
		next, ok := o.HandleFailure(a, out.Reason)
		if !ok {
			return Decision{Terminal: true}
		}
		return Decision{Retry: &next}
	case Degraded:
		o.record(a, false)
		o.logger.Warn("non-retryable response", "url", a.URL, "reason", out.Reason, "proxy", a.Proxy)
	}
	return Decision{}
}

func (o *Orchestrator) record(a Attempt, success bool) {
	if o.pool == nil || a.Proxy == "" {
		return
	}
	u, err := o.pool.RecordOutcome(a.Proxy, success)
	if errors.Is(err, proxy.ErrNotFound) {
		// Evicted while this attempt was in flight.
		o.logger.Debug("outcome for unknown proxy ignored", "proxy", a.Proxy)
		return
	}
	if err != nil {
		o.logger.Warn("recording proxy outcome failed", "proxy", a.Proxy, "err", err)
		return
	}
	if u.Evicted {
		metrics.ProxyEvictions.WithLabelValues(u.Reason).Inc()
		metrics.PoolSize.Set(float64(o.pool.Size()))
		o.logger.Warn("evicting proxy",
			"proxy", u.Proxy.Endpoint,
			"trigger", u.Reason,
			"score", u.Proxy.Score,
			"consecutive_failures", u.Proxy.ConsecutiveFailures,
			"failures", u.Proxy.Failures,
			"successes", u.Proxy.Successes,
		)
	}
}
