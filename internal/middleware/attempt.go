// Package middleware implements the request pipeline that sits between the
// crawler and the network: User-Agent rotation, proxy dispatch, response
// classification and bounded retries with proxy rotation.
package middleware

import (
	"errors"
	"net/http"
	"time"
)

// ErrBodyTooLarge is returned by transports when a response body exceeds
// the configured read limit. The proxy delivered the response, so it is
// neither penalized nor retried.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// Attempt describes one try at fetching a URL. Values are never mutated in
// place; stages and retries return modified copies.
type Attempt struct {
	URL    string
	Header http.Header
	// RetryCount is 0 for the first try.
	RetryCount int
	// Proxy is the pool endpoint this attempt is routed through, or "".
	Proxy string
	// PriorProxy is the endpoint used by the attempt this one retries.
	PriorProxy string
	// Timeout bounds the round trip when non-zero.
	Timeout time.Duration
	// DontFilter exempts the attempt from duplicate-URL filtering.
	DontFilter bool
	// Tag is opaque caller data carried unchanged across retries.
	Tag any
}

// NewAttempt returns a first attempt at url.
func NewAttempt(url string, tag any) Attempt {
	return Attempt{URL: url, Header: http.Header{}, Tag: tag}
}

// WithHeader returns a copy with key set to value.
func (a Attempt) WithHeader(key, value string) Attempt {
	a.Header = a.Header.Clone()
	if a.Header == nil {
		a.Header = http.Header{}
	}
	a.Header.Set(key, value)
	return a
}

// WithProxy returns a copy routed through endpoint with the given timeout.
func (a Attempt) WithProxy(endpoint string, timeout time.Duration) Attempt {
	a.Proxy = endpoint
	a.Timeout = timeout
	return a
}

// Retry returns the next attempt: the count is bumped, the current proxy
// becomes PriorProxy and is detached so dispatch picks a fresh one.
func (a Attempt) Retry() Attempt {
	next := a
	next.Header = a.Header.Clone()
	next.RetryCount = a.RetryCount + 1
	next.PriorProxy = a.Proxy
	next.Proxy = ""
	next.Timeout = 0
	next.DontFilter = true
	return next
}

// Response is what the transport observed for an attempt.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}
