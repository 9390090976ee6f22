package fingerprint

import (
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
)

func TestTransport_Profiles(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	profiles := []Profile{
		ProfileChrome,
		ProfileFirefox,
		ProfileSafari,
		ProfileGo,
		ProfileRandom,
	}

	for _, p := range profiles {
		t.Run(string(p), func(t *testing.T) {
			tr, err := Transport(p, Options{InsecureSkipVerify: true})
			if err != nil {
				t.Fatalf("unexpected error creating transport for %s: %v", p, err)
			}
			if p != ProfileGo && tr.DialTLSContext == nil {
				t.Fatalf("expected a uTLS dialer for %s", p)
			}

			client := &http.Client{Transport: tr}
			resp, err := client.Get(ts.URL)
			if err != nil {
				t.Fatalf("request failed for profile %s: %v", p, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Errorf("expected 200 OK, got %d for profile %s", resp.StatusCode, p)
			}
		})
	}
}

func TestTransport_HTTP2Server(t *testing.T) {
	ts := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Proto))
	}))
	ts.EnableHTTP2 = true
	ts.StartTLS()
	defer ts.Close()

	for _, p := range []Profile{ProfileChrome, ProfileFirefox, ProfileSafari, ProfileRandom} {
		t.Run(string(p), func(t *testing.T) {
			tr, err := Transport(p, Options{InsecureSkipVerify: true})
			if err != nil {
				t.Fatalf("unexpected error creating transport for %s: %v", p, err)
			}
			defer tr.CloseIdleConnections()

			resp, err := (&http.Client{Transport: tr}).Get(ts.URL)
			if err != nil {
				t.Fatalf("request to h2-capable server failed for %s: %v", p, err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)

			if resp.StatusCode != http.StatusOK {
				t.Errorf("expected 200 OK, got %d", resp.StatusCode)
			}
			if resp.Proto != "HTTP/1.1" || string(body) != "HTTP/1.1" {
				t.Errorf("expected an HTTP/1.1 exchange, got %s (server saw %q)", resp.Proto, body)
			}
		})
	}
}

func TestParseProfile(t *testing.T) {
	if p, err := ParseProfile(""); err != nil || p != ProfileChrome {
		t.Errorf("expected empty name to default to chrome, got %q, %v", p, err)
	}
	if p, err := ParseProfile("go"); err != nil || p != ProfileGo {
		t.Errorf("expected go profile, got %q, %v", p, err)
	}
	if _, err := ParseProfile("unknown_browser"); err == nil {
		t.Fatal("expected error for unknown profile")
	}
	if _, err := Transport(Profile("unknown_browser"), Options{}); err == nil {
		t.Fatal("expected Transport to reject unknown profile")
	}
}

// connectProxy is a minimal CONNECT-capable forward proxy.
func connectProxy(t *testing.T, status int, tunnels *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodConnect {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		upstream, err := net.Dial("tcp", r.Host)
		if err != nil {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Error("response writer does not support hijacking")
			return
		}
		client, _, err := hj.Hijack()
		if err != nil {
			upstream.Close()
			return
		}
		client.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n"))
		tunnels.Add(1)
		go func() {
			defer upstream.Close()
			defer client.Close()
			go io.Copy(upstream, client)
			io.Copy(client, upstream)
		}()
	}))
}

func TestTransport_TunnelsThroughProxy(t *testing.T) {
	target := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tunnelled"))
	}))
	defer target.Close()

	var tunnels atomic.Int32
	prx := connectProxy(t, http.StatusOK, &tunnels)
	defer prx.Close()

	proxyURL, _ := url.Parse(prx.URL)
	tr, err := Transport(ProfileChrome, Options{Proxy: proxyURL, InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := (&http.Client{Transport: tr}).Get(target.URL)
	if err != nil {
		t.Fatalf("request through tunnel failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if string(body) != "tunnelled" {
		t.Errorf("expected body from target, got %q", body)
	}
	if tunnels.Load() != 1 {
		t.Errorf("expected one CONNECT tunnel, got %d", tunnels.Load())
	}
}

func TestTransport_TunnelRejected(t *testing.T) {
	var tunnels atomic.Int32
	prx := connectProxy(t, http.StatusProxyAuthRequired, &tunnels)
	defer prx.Close()

	proxyURL, _ := url.Parse(prx.URL)
	tr, _ := Transport(ProfileFirefox, Options{Proxy: proxyURL, InsecureSkipVerify: true})

	_, err := (&http.Client{Transport: tr}).Get("https://127.0.0.1:1/")
	if !errors.Is(err, ErrTunnel) {
		t.Fatalf("expected ErrTunnel, got %v", err)
	}
	var te *TunnelError
	if !errors.As(err, &te) || te.StatusCode != http.StatusProxyAuthRequired {
		t.Errorf("expected 407 tunnel error, got %v", err)
	}
}

func TestTransport_PlainHTTPViaProxy(t *testing.T) {
	prx := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer prx.Close()

	proxyURL, _ := url.Parse(prx.URL)
	tr, _ := Transport(ProfileChrome, Options{Proxy: proxyURL})

	resp, err := (&http.Client{Transport: tr}).Get("http://jobs.invalid/list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("expected the proxy to answer plain http requests, got %d", resp.StatusCode)
	}
}
