package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobscout_requests_total",
			Help: "Total number of attempts sent, by target host, status and verdict",
		},
		[]string{"host", "status", "verdict", "proxied"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobscout_request_duration_seconds",
			Help:    "Duration of attempts in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"host"},
	)

	ResponseBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobscout_response_bytes_total",
			Help: "Total bytes downloaded across all attempts",
		},
		[]string{"host"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobscout_proxy_failures_total",
			Help: "Proxy-attributable failures by reason",
		},
		[]string{"reason"},
	)

	ProxyEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobscout_proxy_evictions_total",
			Help: "Proxies removed from the pool by trigger",
		},
		[]string{"trigger"},
	)

	PoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobscout_proxy_pool_size",
			Help: "Number of live proxies in the pool",
		},
	)

	VendorRefills = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobscout_proxy_vendor_refills_total",
			Help: "Calls made to the proxy vendor API by result",
		},
		[]string{"result"},
	)

	ProxiesAdded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jobscout_proxy_added_total",
			Help: "New proxies inserted from the vendor API",
		},
	)

	Retries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jobscout_retries_total",
			Help: "Attempts rescheduled with a fresh proxy",
		},
	)

	TerminalFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobscout_terminal_failures_total",
			Help: "Requests that exhausted their retries, by last reason",
		},
		[]string{"reason"},
	)

	BlockDetections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobscout_block_detections_total",
			Help: "Responses matching a bot protection signature",
		},
		[]string{"source"},
	)

	ItemsScraped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jobscout_items_total",
			Help: "Job items emitted to storage",
		},
	)
)

// RecordAttempt updates request metrics for one completed attempt.
// status is 0 when no response was received.
func RecordAttempt(host string, status int, verdict string, proxied bool, bytes int, d time.Duration) {
	statusStr := "error"
	if status > 0 {
		statusStr = strconv.Itoa(status)
	}
	RequestsTotal.WithLabelValues(host, statusStr, verdict, strconv.FormatBool(proxied)).Inc()
	RequestDuration.WithLabelValues(host).Observe(d.Seconds())
	ResponseBytesTotal.WithLabelValues(host).Add(float64(bytes))
}

// RecordRefill counts a vendor call and the proxies it added.
func RecordRefill(added int, err error) {
	if err != nil {
		VendorRefills.WithLabelValues("error").Inc()
		return
	}
	VendorRefills.WithLabelValues("ok").Inc()
	ProxiesAdded.Add(float64(added))
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()
	logger.Info("metrics server listening", "addr", srv.Addr)

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
