package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseVendorList(t *testing.T) {
	body := []byte(`{"status":"0","list":[
		{"sever":"1.2.3.4","port":8080},
		{"sever":"5.6.7.8","port":"3128"},
		{"sever":"9.9.9.9","port":80.0},
		{"sever":"","port":80},
		{"port":80},
		{"sever":"2.2.2.2","port":70000},
		{"sever":"3.3.3.3","port":"abc"},
		"not-an-object"
	],"msg":""}`)

	list, err := ParseVendorList(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"1.2.3.4:8080", "5.6.7.8:3128", "9.9.9.9:80"}
	if len(list.Endpoints) != len(want) {
		t.Fatalf("expected %d endpoints, got %v", len(want), list.Endpoints)
	}
	for i, w := range want {
		if list.Endpoints[i] != w {
			t.Errorf("endpoint %d: expected %s, got %s", i, w, list.Endpoints[i])
		}
	}
	if len(list.Malformed) != 5 {
		t.Errorf("expected 5 malformed entries, got %+v", list.Malformed)
	}
	if list.Malformed[0].Index != 3 {
		t.Errorf("expected first malformed index 3, got %d", list.Malformed[0].Index)
	}
}

func TestParseVendorList_Status(t *testing.T) {
	if _, err := ParseVendorList([]byte(`{"status":0,"list":[]}`)); err != nil {
		t.Errorf("expected numeric zero status to be accepted, got %v", err)
	}

	_, err := ParseVendorList([]byte(`{"status":"1","msg":"quota exhausted"}`))
	var statusErr *VendorStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected VendorStatusError, got %v", err)
	}
	if statusErr.Status != "1" || statusErr.Message != "quota exhausted" {
		t.Errorf("unexpected status error: %+v", statusErr)
	}

	if _, err := ParseVendorList([]byte(`{"status":"0","list":{"sever":"x"}}`)); !errors.Is(err, ErrMalformedList) {
		t.Errorf("expected ErrMalformedList, got %v", err)
	}

	if _, err := ParseVendorList([]byte(`<html>blocked</html>`)); err == nil {
		t.Error("expected decode error for non-JSON body")
	}

	list, err := ParseVendorList([]byte(`{"status":"0"}`))
	if err != nil || len(list.Endpoints) != 0 {
		t.Errorf("expected empty list without error, got %v, %v", list, err)
	}
}

func TestNewRefiller_NotConfigured(t *testing.T) {
	pool := NewPool(Config{})
	for _, u := range []string{"", "   ", PlaceholderURL} {
		if _, err := NewRefiller(pool, VendorConfig{URL: u}, nil); !errors.Is(err, ErrNotConfigured) {
			t.Errorf("url %q: expected ErrNotConfigured, got %v", u, err)
		}
	}
}

func TestRefiller_InsertsNewEndpoints(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if ua := r.Header.Get("User-Agent"); ua == "" {
			t.Errorf("expected vendor request to carry a User-Agent")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"0","list":[{"sever":"1.2.3.4","port":8080},{"sever":"5.6.7.8","port":3128}]}`))
	}))
	defer ts.Close()

	pool := NewPool(Config{})
	pool.Add("1.2.3.4:8080")

	r, err := NewRefiller(pool, VendorConfig{URL: ts.URL, MinPoolSize: 5}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res := r.MaybeRefill(context.Background())
	if !res.Attempted || res.Err != nil {
		t.Fatalf("expected a successful attempt, got %+v", res)
	}
	if res.Received != 2 || res.Added != 1 {
		t.Errorf("expected 2 received and 1 added, got %+v", res)
	}
	if pool.Size() != 2 {
		t.Errorf("expected pool size 2, got %d", pool.Size())
	}
	for _, p := range pool.Snapshot() {
		if p.Score != 1.0 {
			t.Errorf("expected score 1.0 for %s, got %v", p.Endpoint, p.Score)
		}
	}
}

func TestRefiller_Throttling(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"status":"0","list":[]}`))
	}))
	defer ts.Close()

	pool := NewPool(Config{})
	r, err := NewRefiller(pool, VendorConfig{URL: ts.URL, Cooldown: time.Minute, MinPoolSize: 5}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	if res := r.MaybeRefill(context.Background()); !res.Attempted {
		t.Fatalf("expected first refill to call the vendor, got %+v", res)
	}
	now = now.Add(30 * time.Second)
	if res := r.MaybeRefill(context.Background()); res.Attempted || res.Skipped != "cooldown" {
		t.Errorf("expected cooldown skip, got %+v", res)
	}
	now = now.Add(31 * time.Second)
	if res := r.MaybeRefill(context.Background()); !res.Attempted {
		t.Errorf("expected refill after cooldown, got %+v", res)
	}

	now = now.Add(2 * time.Minute)
	pool.Add("a:1", "b:1", "c:1", "d:1", "e:1")
	if res := r.MaybeRefill(context.Background()); res.Skipped != "pool_full" {
		t.Errorf("expected pool_full skip, got %+v", res)
	}

	if got := hits.Load(); got != 2 {
		t.Errorf("expected 2 vendor calls, got %d", got)
	}
}

func TestRefiller_ConcurrentCallersShareOneRequest(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte(`{"status":"0","list":[{"sever":"1.1.1.1","port":80}]}`))
	}))
	defer ts.Close()

	pool := NewPool(Config{})
	r, _ := NewRefiller(pool, VendorConfig{URL: ts.URL, Cooldown: time.Hour}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.MaybeRefill(context.Background())
		}()
	}
	wg.Wait()

	if got := hits.Load(); got != 1 {
		t.Errorf("expected exactly one vendor call, got %d", got)
	}
}

func TestRefiller_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(error) bool
	}{
		{
			name: "quota exhausted",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status":"1","msg":"quota exhausted"}`))
			},
			check: func(err error) bool {
				var se *VendorStatusError
				return errors.As(err, &se)
			},
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			check: func(err error) bool { return errors.Is(err, ErrVendorHTTP) },
		},
		{
			name: "html body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`<html><title>Access denied</title></html>`))
			},
			check: func(err error) bool { return err != nil },
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(200 * time.Millisecond)
				w.Write([]byte(`{"status":"0","list":[]}`))
			},
			check: func(err error) bool { return err != nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			pool := NewPool(Config{})
			r, err := NewRefiller(pool, VendorConfig{URL: ts.URL, Timeout: 50 * time.Millisecond}, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			res := r.MaybeRefill(context.Background())
			if !res.Attempted {
				t.Fatalf("expected an attempt, got %+v", res)
			}
			if !tt.check(res.Err) {
				t.Errorf("unexpected error: %v", res.Err)
			}
			if pool.Size() != 0 {
				t.Errorf("expected pool unchanged, got size %d", pool.Size())
			}
		})
	}
}

func TestRefiller_ForcedRefill(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"status":"0","list":[{"sever":"4.4.4.4","port":80}]}`))
	}))
	defer ts.Close()

	pool := NewPool(Config{})
	pool.Add("a:1", "b:1", "c:1", "d:1", "e:1", "f:1")
	r, _ := NewRefiller(pool, VendorConfig{URL: ts.URL}, nil)

	if res := r.Refill(context.Background()); res.Added != 1 {
		t.Errorf("expected forced refill to add one proxy, got %+v", res)
	}
	if res := r.MaybeRefill(context.Background()); res.Attempted {
		t.Errorf("expected forced refill to start the cooldown, got %+v", res)
	}
}
