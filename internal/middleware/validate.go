package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/FranksOps/jobscout/internal/bypass"
	"github.com/FranksOps/jobscout/internal/fingerprint"
)

// Verdict classifies the result of one attempt.
type Verdict int

const (
	// Unclassified responses pass through untouched.
	Unclassified Verdict = iota
	// ProxySuccess is a 200 with an application-level success flag.
	ProxySuccess
	// ProxyFailure is blamed on the proxy and retried with another one.
	ProxyFailure
	// ApplicationFailure is a 200 whose body is not a successful API
	// envelope. It is retried like a proxy failure.
	ApplicationFailure
	// Degraded is a non-retryable HTTP error; the proxy is penalized but
	// the response is handed on.
	Degraded
	// Aborted means the crawl was cancelled; nothing is recorded.
	Aborted
)

func (v Verdict) String() string {
	switch v {
	case ProxySuccess:
		return "proxy_success"
	case ProxyFailure:
		return "proxy_failure"
	case ApplicationFailure:
		return "application_failure"
	case Degraded:
		return "degraded"
	case Aborted:
		return "aborted"
	default:
		return "unclassified"
	}
}

// Outcome is the validator's decision for an attempt.
type Outcome struct {
	Verdict Verdict
	// Reason is a short machine-friendly label, e.g. "http_503".
	Reason string
	// Detection names a bot protection signature found in the response.
	Detection string
	// Title is the page title of an HTML body served instead of JSON.
	Title string
}

// DefaultRetryStatusCodes are statuses blamed on the proxy.
var DefaultRetryStatusCodes = []int{400, 403, 407, 429, 500, 502, 503, 504, 520, 522, 524}

// ValidatorConfig configures response classification.
type ValidatorConfig struct {
	RetryStatusCodes []int
	GatewayDomains   []string
}

// Validator classifies attempt results.
type Validator struct {
	retry     map[int]bool
	gateways  []string
	detectors []bypass.Detector
}

// NewValidator creates a validator; empty lists get defaults.
func NewValidator(cfg ValidatorConfig) *Validator {
	codes := cfg.RetryStatusCodes
	if len(codes) == 0 {
		codes = DefaultRetryStatusCodes
	}
	gateways := cfg.GatewayDomains
	if len(gateways) == 0 {
		gateways = bypass.DefaultGatewayDomains
	}
	v := &Validator{
		retry:     make(map[int]bool, len(codes)),
		gateways:  append([]string(nil), gateways...),
		detectors: bypass.DefaultDetectors(),
	}
	for _, c := range codes {
		v.retry[c] = true
	}
	return v
}

// Classify decides what an attempt's result means. Checks run in order:
// transport error, security gateway redirect, 200 envelope, retryable
// status, other error status.
func (v *Validator) Classify(resp *Response, err error) Outcome {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Outcome{Verdict: Aborted, Reason: "canceled"}
		}
		if errors.Is(err, ErrBodyTooLarge) {
			return Outcome{Verdict: Unclassified, Reason: "body_too_large"}
		}
		return Outcome{Verdict: ProxyFailure, Reason: "network_" + NetworkKind(err)}
	}
	if resp == nil {
		return Outcome{Verdict: ProxyFailure, Reason: "network_error"}
	}

	out := Outcome{
		Detection: bypass.Analyze(bypass.Page{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       resp.Body,
		}, v.detectors),
	}

	if ok, _ := bypass.GatewayRedirect(resp.StatusCode, resp.Header, v.gateways); ok {
		out.Verdict, out.Reason = ProxyFailure, "security_gateway_redirect"
		return out
	}

	if resp.StatusCode == http.StatusOK {
		switch envelopeFlag(resp.Body) {
		case flagTrue:
			out.Verdict, out.Reason = ProxySuccess, "ok"
		case flagFalse:
			out.Verdict, out.Reason = ApplicationFailure, "flag_false"
		default:
			out.Verdict, out.Reason = ApplicationFailure, "non_json"
			out.Title = bypass.PageTitle(resp.Body)
		}
		return out
	}

	if v.retry[resp.StatusCode] {
		out.Verdict, out.Reason = ProxyFailure, fmt.Sprintf("http_%d", resp.StatusCode)
		return out
	}
	if resp.StatusCode >= 400 {
		out.Verdict, out.Reason = Degraded, fmt.Sprintf("http_%d", resp.StatusCode)
		return out
	}

	out.Verdict = Unclassified
	return out
}

type flagState int

const (
	flagInvalid flagState = iota
	flagFalse
	flagTrue
)

// envelopeFlag reads the top-level "flag" of a JSON body. A JSON object
// without a boolean flag counts as false.
func envelopeFlag(body []byte) flagState {
	var env struct {
		Flag any `json:"flag"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return flagInvalid
	}
	if b, ok := env.Flag.(bool); ok && b {
		return flagTrue
	}
	return flagFalse
}

// NetworkKind labels a transport error: timeout, tunnel, dns, refused,
// reset or error.
func NetworkKind(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, fingerprint.ErrTunnel) {
		return "tunnel"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return "refused"
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return "reset"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "proxyconnect" {
		return "tunnel"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	return "error"
}
