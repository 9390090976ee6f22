package middleware

import (
	"testing"
	"time"
)

func TestAttempt_Retry(t *testing.T) {
	a := NewAttempt("https://jobs.example/list?offset=1", "facet-1").
		WithHeader("User-Agent", "ua").
		WithProxy("1.1.1.1:80", 10*time.Second)

	next := a.Retry()

	if next.RetryCount != 1 {
		t.Errorf("expected retry count 1, got %d", next.RetryCount)
	}
	if next.Proxy != "" || next.Timeout != 0 {
		t.Errorf("expected proxy and timeout cleared, got %q %v", next.Proxy, next.Timeout)
	}
	if next.PriorProxy != "1.1.1.1:80" {
		t.Errorf("expected prior proxy to be remembered, got %q", next.PriorProxy)
	}
	if !next.DontFilter {
		t.Error("expected retries to bypass duplicate filtering")
	}
	if next.Tag != "facet-1" || next.URL != a.URL {
		t.Errorf("expected URL and tag carried over, got %q %v", next.URL, next.Tag)
	}

	next.Header.Set("User-Agent", "changed")
	if a.Header.Get("User-Agent") != "ua" {
		t.Error("expected retry header to be a copy")
	}
	if a.RetryCount != 0 || a.Proxy != "1.1.1.1:80" {
		t.Error("expected original attempt to be unchanged")
	}
}

func TestAttempt_WithHeader(t *testing.T) {
	a := NewAttempt("u", nil)
	b := a.WithHeader("Accept", "application/json")

	if a.Header.Get("Accept") != "" {
		t.Error("expected WithHeader to leave the receiver untouched")
	}
	if b.Header.Get("Accept") != "application/json" {
		t.Error("expected header on the copy")
	}

	var zero Attempt
	if zero.WithHeader("X", "1").Header.Get("X") != "1" {
		t.Error("expected WithHeader to work on a zero attempt")
	}
}
