package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestMetricsServer(t *testing.T) {
	srv := Start(18931, nil)
	// Give it a tiny bit of time to start up
	time.Sleep(100 * time.Millisecond)
	defer srv.Stop(context.Background())

	RecordAttempt("24365.ncss.cn", 200, "proxy_success", true, 11, time.Second)
	RecordRefill(3, nil)
	RecordRefill(0, errors.New("quota"))
	ProxyEvictions.WithLabelValues("consecutive_failures").Inc()

	resp, err := http.Get("http://localhost:18931/metrics")
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	output := string(body)

	for _, want := range []string{
		`jobscout_requests_total{host="24365.ncss.cn",proxied="true",status="200",verdict="proxy_success"}`,
		`jobscout_request_duration_seconds_bucket`,
		`jobscout_response_bytes_total{host="24365.ncss.cn"} 11`,
		`jobscout_proxy_vendor_refills_total{result="error"} 1`,
		`jobscout_proxy_added_total 3`,
		`jobscout_proxy_evictions_total{trigger="consecutive_failures"} 1`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected metrics output to contain %s", want)
		}
	}
}

func TestServerStop_Nil(t *testing.T) {
	var s *Server
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("expected nil server stop to be a no-op, got %v", err)
	}
}
