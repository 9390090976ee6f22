package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	initialScore   = 1.0
	successBonus   = 0.05
	failurePenalty = 0.2
)

var (
	// ErrNotFound is returned when an outcome names an endpoint that is not
	// in the pool, usually because it was already evicted.
	ErrNotFound = errors.New("proxy: endpoint not in pool")
	// ErrEmptyEndpoint is returned for blank endpoint strings.
	ErrEmptyEndpoint = errors.New("proxy: empty endpoint")
)

// Proxy is a snapshot of one pooled endpoint and its health.
type Proxy struct {
	// Endpoint is the pool key, normally host:port.
	Endpoint            string
	Score               float64
	LastUsed            time.Time
	Failures            int
	Successes           int
	ConsecutiveFailures int
}

// URL returns the endpoint as a proxy URL, defaulting the scheme to http.
func (p Proxy) URL() (*url.URL, error) {
	return EndpointURL(p.Endpoint)
}

// EndpointURL converts a pool endpoint into a URL usable by http.Transport.Proxy.
func EndpointURL(endpoint string) (*url.URL, error) {
	if endpoint == "" {
		return nil, ErrEmptyEndpoint
	}
	raw := endpoint
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse proxy endpoint %q: %w", endpoint, err)
	}
	return u, nil
}

// Update describes the result of recording an outcome.
type Update struct {
	Proxy   Proxy
	Evicted bool
	// Reason is set when Evicted is true: "score" or "consecutive_failures".
	Reason string
}

// Config defines thresholds for the pool.
type Config struct {
	// MinScore evicts a proxy whose score drops below it.
	MinScore float64
	// MaxConsecutiveFailures evicts a proxy once reached.
	MaxConsecutiveFailures int
}

// Pool is an in-memory rotation of scored proxies. All mutation happens
// under a single mutex so checkout, scoring and eviction are atomic.
type Pool struct {
	mu             sync.Mutex
	queue          []*Proxy
	byKey          map[string]*Proxy
	minScore       float64
	maxConsecutive int
	now            func() time.Time
}

// NewPool creates an empty pool. Zero config values get defaults.
func NewPool(cfg Config) *Pool {
	if cfg.MinScore <= 0 {
		cfg.MinScore = 0.1
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 3
	}
	return &Pool{
		byKey:          make(map[string]*Proxy),
		minScore:       cfg.MinScore,
		maxConsecutive: cfg.MaxConsecutiveFailures,
		now:            time.Now,
	}
}

// NormalizeEndpoint trims whitespace and a default http:// scheme so that
// "1.2.3.4:80" and "http://1.2.3.4:80/" share one key.
func NormalizeEndpoint(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "http://")
	return strings.TrimSuffix(s, "/")
}

// InsertIfNew adds endpoint with a full score unless it is already pooled.
func (p *Pool) InsertIfNew(endpoint string) bool {
	key := NormalizeEndpoint(endpoint)
	if key == "" {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byKey[key]; ok {
		return false
	}
	prx := &Proxy{Endpoint: key, Score: initialScore}
	p.byKey[key] = prx
	p.queue = append(p.queue, prx)
	return true
}

// Add inserts each endpoint and returns how many were new.
func (p *Pool) Add(endpoints ...string) int {
	added := 0
	for _, e := range endpoints {
		if p.InsertIfNew(e) {
			added++
		}
	}
	return added
}

// LoadFile reads endpoints from a file, one per line.
// Lines starting with '#' or empty lines are ignored.
func (p *Pool) LoadFile(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open proxy file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var endpoints []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := EndpointURL(line); err != nil {
			return 0, err
		}
		endpoints = append(endpoints, line)
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read proxy file: %w", err)
	}

	return p.Add(endpoints...), nil
}

// Checkout takes the proxy at the front of the rotation, moves it to the
// back and stamps LastUsed. It returns false on an empty pool.
func (p *Pool) Checkout() (Proxy, bool) {
	return p.CheckoutExcept("")
}

// CheckoutExcept behaves like Checkout but skips avoid. It returns false
// when avoid is the only proxy left. The skipped proxy keeps its place.
func (p *Pool) CheckoutExcept(avoid string) (Proxy, bool) {
	avoid = NormalizeEndpoint(avoid)

	p.mu.Lock()
	defer p.mu.Unlock()

	for i, prx := range p.queue {
		if avoid != "" && prx.Endpoint == avoid {
			continue
		}
		p.queue = append(p.queue[:i], p.queue[i+1:]...)
		p.queue = append(p.queue, prx)
		prx.LastUsed = p.now()
		return *prx, true
	}
	return Proxy{}, false
}

// RecordOutcome adjusts the endpoint's score and counters and evicts it
// when it falls under the thresholds.
func (p *Pool) RecordOutcome(endpoint string, success bool) (Update, error) {
	key := NormalizeEndpoint(endpoint)

	p.mu.Lock()
	defer p.mu.Unlock()

	prx, ok := p.byKey[key]
	if !ok {
		return Update{}, ErrNotFound
	}

	if success {
		prx.Score = math.Min(1.0, prx.Score+successBonus)
		prx.Successes++
		prx.ConsecutiveFailures = 0
	} else {
		prx.Score = math.Max(0.0, prx.Score-failurePenalty)
		prx.Failures++
		prx.ConsecutiveFailures++
	}

	u := Update{Proxy: *prx}
	switch {
	case prx.Score < p.minScore:
		u.Evicted, u.Reason = true, "score"
	case prx.ConsecutiveFailures >= p.maxConsecutive:
		u.Evicted, u.Reason = true, "consecutive_failures"
	}
	if u.Evicted {
		p.remove(key)
	}
	return u, nil
}

// remove deletes key from the rotation. Must be called with lock held.
func (p *Pool) remove(key string) {
	delete(p.byKey, key)
	for i, prx := range p.queue {
		if prx.Endpoint == key {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			return
		}
	}
}

// Size returns the number of live proxies.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Snapshot returns copies of the live proxies in rotation order.
func (p *Pool) Snapshot() []Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Proxy, 0, len(p.queue))
	for _, prx := range p.queue {
		out = append(out, *prx)
	}
	return out
}
