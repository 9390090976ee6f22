package useragent

import (
	"crypto/rand"
	"math/big"
	"net/http"
	"sync/atomic"
)

// DefaultPool is used when no User-Agent list is configured.
var DefaultPool = []string{
	// Chrome desktop
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	// Mobile Safari
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_3 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Mobile/15E148 Safari/604.1",
	// Firefox
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:124.0) Gecko/20100101 Firefox/124.0",
	// Edge
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36 Edg/123.0.0.0",
}

// Pool holds the User-Agents a crawl rotates through.
type Pool struct {
	uas     []string
	counter atomic.Uint64
}

// NewPool creates a new User-Agent pool. If the provided slice is empty,
// it falls back to DefaultPool. Blank entries are dropped.
func NewPool(uas []string) *Pool {
	copied := make([]string, 0, len(uas))
	for _, ua := range uas {
		if ua != "" {
			copied = append(copied, ua)
		}
	}
	if len(copied) == 0 {
		copied = append(copied, DefaultPool...)
	}
	return &Pool{uas: copied}
}

// GetSequential returns the next User-Agent in round-robin order.
func (p *Pool) GetSequential() string {
	if len(p.uas) == 0 {
		return ""
	}
	idx := p.counter.Add(1) - 1
	return p.uas[idx%uint64(len(p.uas))]
}

// GetRandom returns a uniformly chosen User-Agent. It is safe for concurrent use.
func (p *Pool) GetRandom() string {
	if len(p.uas) == 0 {
		return ""
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(p.uas))))
	if err != nil {
		return p.GetSequential()
	}
	return p.uas[n.Int64()]
}

// Assign sets a random User-Agent on h unless one is already present.
// It reports whether the header was changed.
func (p *Pool) Assign(h http.Header) bool {
	if h == nil || h.Get("User-Agent") != "" {
		return false
	}
	ua := p.GetRandom()
	if ua == "" {
		return false
	}
	h.Set("User-Agent", ua)
	return true
}

// GetAll returns a copy of all User-Agents currently in the pool.
func (p *Pool) GetAll() []string {
	copied := make([]string, len(p.uas))
	copy(copied, p.uas)
	return copied
}
