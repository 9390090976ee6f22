package fingerprint

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	utls "github.com/refraction-networking/utls"
)

// Profile represents a recognized TLS fingerprint profile.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // standard go TLS
	ProfileRandom  Profile = "random" // randomized uTLS profile
)

// ParseProfile validates a profile name from configuration.
func ParseProfile(s string) (Profile, error) {
	p := Profile(s)
	if p == "" {
		return ProfileChrome, nil
	}
	if p == ProfileGo {
		return p, nil
	}
	if _, err := helloID(p); err != nil {
		return "", err
	}
	return p, nil
}

func helloID(p Profile) (utls.ClientHelloID, error) {
	switch p {
	case ProfileChrome:
		return utls.HelloChrome_Auto, nil
	case ProfileFirefox:
		return utls.HelloFirefox_Auto, nil
	case ProfileSafari:
		return utls.HelloIOS_Auto, nil
	case ProfileRandom:
		return utls.HelloRandomizedNoALPN, nil
	default:
		return utls.ClientHelloID{}, fmt.Errorf("fingerprint: unknown profile %q", p)
	}
}

// Options tune a fingerprinted transport.
type Options struct {
	// Proxy routes every request through one upstream proxy. Nil dials direct
	// (honouring the environment's proxy settings).
	Proxy *url.URL
	// InsecureSkipVerify disables certificate checks; tests only.
	InsecureSkipVerify bool
	// DialTimeout bounds TCP connect and the CONNECT handshake. Defaults to 10s.
	DialTimeout time.Duration
}

// Transport returns an http.Transport presenting the given TLS fingerprint.
// The "go" profile uses crypto/tls. Other profiles perform a uTLS handshake;
// when an http:// proxy is set, HTTPS targets are tunnelled with CONNECT first
// so the fingerprint survives the proxy hop. Other proxy schemes fall back to
// the standard TLS stack.
func Transport(p Profile, opts Options) (*http.Transport, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	dialer := &net.Dialer{Timeout: opts.DialTimeout, KeepAlive: 30 * time.Second}
	transport.DialContext = dialer.DialContext
	transport.Proxy = http.ProxyFromEnvironment
	if opts.Proxy != nil {
		transport.Proxy = http.ProxyURL(opts.Proxy)
	}

	if p == ProfileGo {
		if opts.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		return transport, nil
	}

	id, err := helloID(p)
	if err != nil {
		return nil, err
	}
	if _, err := http1Spec(id); err != nil {
		return nil, err
	}

	tunnel := opts.Proxy != nil && opts.Proxy.Scheme == "http"
	if tunnel {
		// Plain http targets go through the proxy as usual; https targets are
		// tunnelled by DialTLSContext below.
		proxyURL := opts.Proxy
		transport.Proxy = func(req *http.Request) (*url.URL, error) {
			if req.URL.Scheme == "https" {
				return nil, nil
			}
			return proxyURL, nil
		}
	}

	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		var conn net.Conn
		var err error
		if tunnel {
			conn, err = dialTunnel(ctx, dialer, opts.Proxy, addr)
		} else {
			conn, err = dialer.DialContext(ctx, network, addr)
		}
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		uConn, err := newUConn(conn, &utls.Config{
			ServerName:         host,
			InsecureSkipVerify: opts.InsecureSkipVerify,
		}, id)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("utls handshake failed: %w", err)
		}
		return uConn, nil
	}

	return transport, nil
}

// newUConn wraps conn in a uTLS client presenting id. http.Transport only
// speaks HTTP/2 over *tls.Conn, so the hello must not let the server pick h2.
func newUConn(conn net.Conn, cfg *utls.Config, id utls.ClientHelloID) (*utls.UConn, error) {
	if id == utls.HelloRandomizedNoALPN {
		return utls.UClient(conn, cfg, id), nil
	}
	spec, err := http1Spec(id)
	if err != nil {
		return nil, err
	}
	uConn := utls.UClient(conn, cfg, utls.HelloCustom)
	if err := uConn.ApplyPreset(spec); err != nil {
		return nil, fmt.Errorf("fingerprint: apply %s preset: %w", id.Str(), err)
	}
	return uConn, nil
}

// http1Spec returns the browser hello for id with ALPN limited to http/1.1.
// Each call builds fresh extensions; a spec must not be shared between
// connections.
func http1Spec(id utls.ClientHelloID) (*utls.ClientHelloSpec, error) {
	if id == utls.HelloRandomizedNoALPN {
		return nil, nil
	}
	spec, err := utls.UTLSIdToSpec(id)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: %s: %w", id.Str(), err)
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}
	return &spec, nil
}
