package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/FranksOps/jobscout/pkg/httpclient"
)

// PlaceholderURL is the value shipped in sample configs; it is treated as unset.
const PlaceholderURL = "YOUR_NEW_PROXY_POOL_API_URL_HERE"

const maxVendorBody = 1 << 20

var (
	// ErrNotConfigured is returned when no usable vendor URL is set.
	ErrNotConfigured = errors.New("proxy vendor: api url not configured")
	// ErrMalformedList is returned when "list" is present but not an array.
	ErrMalformedList = errors.New("proxy vendor: list is not an array")
	// ErrVendorHTTP wraps non-2xx responses from the vendor.
	ErrVendorHTTP = errors.New("proxy vendor: unexpected http status")
)

// VendorStatusError is returned when the vendor reports a non-zero status,
// typically an exhausted quota or an unwhitelisted IP.
type VendorStatusError struct {
	Status  string
	Message string
}

func (e *VendorStatusError) Error() string {
	return fmt.Sprintf("proxy vendor: status %s: %s", e.Status, e.Message)
}

// MalformedEntry records why one list element was skipped.
type MalformedEntry struct {
	Index  int
	Reason string
}

// VendorList is a successfully parsed vendor response.
type VendorList struct {
	Endpoints []string
	Malformed []MalformedEntry
}

// ParseVendorList decodes a vendor body of the form
// {"status":"0","list":[{"sever":"1.2.3.4","port":8080}],"msg":""}.
// Document-level problems return an error; bad entries are collected in
// Malformed and skipped.
func ParseVendorList(body []byte) (VendorList, error) {
	var doc struct {
		Status json.RawMessage `json:"status"`
		List   json.RawMessage `json:"list"`
		Msg    json.RawMessage `json:"msg"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return VendorList{}, fmt.Errorf("decode vendor response: %w", err)
	}

	status := rawScalar(doc.Status)
	if status != "0" {
		return VendorList{}, &VendorStatusError{Status: status, Message: rawScalar(doc.Msg)}
	}

	var out VendorList
	if len(doc.List) == 0 || string(doc.List) == "null" {
		return out, nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(doc.List, &entries); err != nil {
		return VendorList{}, ErrMalformedList
	}

	for i, raw := range entries {
		endpoint, reason := parseVendorEntry(raw)
		if reason != "" {
			out.Malformed = append(out.Malformed, MalformedEntry{Index: i, Reason: reason})
			continue
		}
		out.Endpoints = append(out.Endpoints, endpoint)
	}
	return out, nil
}

func parseVendorEntry(raw json.RawMessage) (string, string) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var entry map[string]any
	if err := dec.Decode(&entry); err != nil || entry == nil {
		return "", "entry is not an object"
	}

	host, _ := entry["sever"].(string)
	host = strings.TrimSpace(host)
	if host == "" {
		return "", "missing host"
	}

	port, ok := parsePort(entry["port"])
	if !ok {
		return "", fmt.Sprintf("invalid port %v", entry["port"])
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), ""
}

// parsePort accepts integers, integral floats and numeric strings.
func parsePort(v any) (int, bool) {
	var f float64
	switch p := v.(type) {
	case json.Number:
		n, err := p.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if f != math.Trunc(f) || f < 1 || f > 65535 {
		return 0, false
	}
	return int(f), true
}

// rawScalar renders a JSON string or number as plain text.
func rawScalar(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// VendorConfig defines how and when the pool is refilled.
type VendorConfig struct {
	URL string
	// Timeout bounds a single vendor call.
	Timeout time.Duration
	// Cooldown is the minimum gap between two vendor calls.
	Cooldown time.Duration
	// MinPoolSize is the size below which a refill is attempted.
	MinPoolSize int
	UserAgent   string
	// Transport overrides the HTTP transport, mostly for tests.
	Transport http.RoundTripper
}

// RefillResult reports what a refill did. Err carries vendor failures,
// which are never fatal to the crawl.
type RefillResult struct {
	Attempted bool
	// Skipped is "cooldown" or "pool_full" when no call was made.
	Skipped   string
	Received  int
	Added     int
	Malformed int
	Err       error
}

// Refiller tops up a Pool from the vendor API.
type Refiller struct {
	pool   *Pool
	cfg    VendorConfig
	client *httpclient.Client
	logger *slog.Logger

	mu          sync.Mutex
	lastAttempt time.Time
	now         func() time.Time
}

// NewRefiller validates cfg and builds a refiller. It fails fast when the
// vendor URL is empty or still the placeholder.
func NewRefiller(pool *Pool, cfg VendorConfig, logger *slog.Logger) (*Refiller, error) {
	cfg.URL = strings.TrimSpace(cfg.URL)
	if cfg.URL == "" || cfg.URL == PlaceholderURL {
		return nil, ErrNotConfigured
	}
	if pool == nil {
		return nil, errors.New("proxy vendor: pool is nil")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}
	if cfg.MinPoolSize <= 0 {
		cfg.MinPoolSize = 5
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "jobscout-proxy-fetcher/1.0"
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: 3,
		MaxBodyBytes: maxVendorBody,
		Transport:    cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("proxy vendor client: %w", err)
	}

	return &Refiller{
		pool:   pool,
		cfg:    cfg,
		client: client,
		logger: logger,
		now:    time.Now,
	}, nil
}

// MinPoolSize returns the configured refill threshold.
func (r *Refiller) MinPoolSize() int {
	return r.cfg.MinPoolSize
}

// MaybeRefill calls the vendor when the cooldown has elapsed and the pool
// is below MinPoolSize. The attempt time is stamped before the call so
// concurrent callers make at most one request per cooldown window.
func (r *Refiller) MaybeRefill(ctx context.Context) RefillResult {
	r.mu.Lock()
	now := r.now()
	if !r.lastAttempt.IsZero() && now.Sub(r.lastAttempt) < r.cfg.Cooldown {
		r.mu.Unlock()
		return RefillResult{Skipped: "cooldown"}
	}
	if r.pool.Size() >= r.cfg.MinPoolSize {
		r.mu.Unlock()
		return RefillResult{Skipped: "pool_full"}
	}
	r.lastAttempt = now
	r.mu.Unlock()

	return r.fetch(ctx)
}

// Refill calls the vendor unconditionally, still stamping the cooldown.
func (r *Refiller) Refill(ctx context.Context) RefillResult {
	r.mu.Lock()
	r.lastAttempt = r.now()
	r.mu.Unlock()

	return r.fetch(ctx)
}

func (r *Refiller) fetch(ctx context.Context) RefillResult {
	res := RefillResult{Attempted: true}
	start := time.Now()

	body, err := r.get(ctx)
	if err != nil {
		res.Err = err
		r.logger.Warn("proxy vendor request failed", "err", err, "duration", time.Since(start))
		return res
	}

	list, err := ParseVendorList(body)
	if err != nil {
		res.Err = err
		var statusErr *VendorStatusError
		if errors.As(err, &statusErr) {
			r.logger.Warn("proxy vendor rejected request", "status", statusErr.Status, "msg", statusErr.Message)
		} else {
			r.logger.Warn("proxy vendor returned unusable body", "err", err)
		}
		return res
	}

	for _, m := range list.Malformed {
		r.logger.Warn("skipping malformed proxy entry", "index", m.Index, "reason", m.Reason)
	}
	res.Received = len(list.Endpoints)
	res.Malformed = len(list.Malformed)
	for _, ep := range list.Endpoints {
		if r.pool.InsertIfNew(ep) {
			res.Added++
		}
	}

	r.logger.Info("proxy pool refilled",
		"received", res.Received,
		"added", res.Added,
		"malformed", res.Malformed,
		"pool_size", r.pool.Size(),
		"duration", time.Since(start),
	)
	return res
}

func (r *Refiller) get(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	resp, err := r.client.Get(ctx, r.cfg.URL, http.Header{
		"User-Agent": {r.cfg.UserAgent},
		"Accept":     {"application/json"},
	})
	if err != nil {
		return nil, fmt.Errorf("call proxy vendor: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrVendorHTTP, resp.StatusCode)
	}
	if resp.Truncated {
		return nil, fmt.Errorf("proxy vendor: response exceeds %d bytes", maxVendorBody)
	}
	return resp.Body, nil
}
