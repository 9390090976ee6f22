package fingerprint

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// ErrTunnel is returned when a proxy refuses a CONNECT request.
var ErrTunnel = errors.New("proxy tunnel failed")

// TunnelError carries the proxy's CONNECT response status.
type TunnelError struct {
	Proxy      string
	StatusCode int
}

func (e *TunnelError) Error() string {
	return fmt.Sprintf("%s: %s answered CONNECT with %d", ErrTunnel, e.Proxy, e.StatusCode)
}

func (e *TunnelError) Unwrap() error { return ErrTunnel }

// dialTunnel opens a TCP connection to proxy and asks it to CONNECT to addr.
func dialTunnel(ctx context.Context, dialer *net.Dialer, proxy *url.URL, addr string) (net.Conn, error) {
	conn, err := dialer.DialContext(ctx, "tcp", proxyAddr(proxy))
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else if dialer.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(dialer.Timeout))
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if u := proxy.User; u != nil {
		pass, _ := u.Password()
		cred := base64.StdEncoding.EncodeToString([]byte(u.Username() + ":" + pass))
		req.Header.Set("Proxy-Authorization", "Basic "+cred)
	}
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write CONNECT: %w", err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read CONNECT response: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, &TunnelError{Proxy: proxy.Host, StatusCode: resp.StatusCode}
	}
	if br.Buffered() > 0 {
		conn.Close()
		return nil, fmt.Errorf("%w: proxy sent data before handshake", ErrTunnel)
	}

	_ = conn.SetDeadline(time.Time{})
	return conn, nil
}

func proxyAddr(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	return net.JoinHostPort(u.Hostname(), "80")
}
