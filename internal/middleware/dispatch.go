package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/FranksOps/jobscout/internal/metrics"
	"github.com/FranksOps/jobscout/pkg/proxy"
)

// Dispatcher attaches a pooled proxy to outgoing attempts, refilling the
// pool from the vendor when it runs low.
type Dispatcher struct {
	pool     *proxy.Pool
	refiller *proxy.Refiller
	timeout  time.Duration
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. refiller may be nil when the pool is
// only seeded statically.
func NewDispatcher(pool *proxy.Pool, refiller *proxy.Refiller, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{pool: pool, refiller: refiller, timeout: timeout, logger: logger}
}

func (d *Dispatcher) Name() string { return StageProxy }

// Prepare leaves a retry that already carries a proxy alone. Otherwise it
// tops up a short pool and checks out a proxy other than the one the
// previous try used. With nothing available the attempt goes out direct.
func (d *Dispatcher) Prepare(ctx context.Context, a Attempt) Attempt {
	if a.RetryCount > 0 && a.Proxy != "" {
		return a
	}

	if d.refiller != nil && d.pool.Size() < d.refiller.MinPoolSize() {
		res := d.refiller.MaybeRefill(ctx)
		if res.Attempted {
			metrics.RecordRefill(res.Added, res.Err)
		}
	}
	metrics.PoolSize.Set(float64(d.pool.Size()))

	p, ok := d.pool.CheckoutExcept(a.PriorProxy)
	if !ok {
		d.logger.Warn("no proxy available, sending direct",
			"url", a.URL,
			"retry", a.RetryCount,
			"avoid", a.PriorProxy,
		)
		a.Proxy = ""
		return a
	}

	d.logger.Debug("proxy assigned", "url", a.URL, "proxy", p.Endpoint, "score", p.Score, "retry", a.RetryCount)
	return a.WithProxy(p.Endpoint, d.timeout)
}
