package bypass

import (
	"bytes"
	"net/http"
	"strings"
)

// Page is the part of an HTTP response the detectors look at.
type Page struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Detector examines a response to determine if a bot protection mechanism
// blocked or challenged the request.
type Detector func(p Page) (detected bool, source string)

// DefaultDetectors returns the standard list of bot protection detectors.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
		detectAliyunWAF,
		detectJiasule,
	}
}

// Analyze runs the page through the detectors and returns the name of the
// first protection that matched, or "" if none did.
func Analyze(p Page, detectors []Detector) string {
	for _, d := range detectors {
		if detected, source := d(p); detected {
			return source
		}
	}
	return ""
}

func getHeader(headers http.Header, key string) string {
	if v := headers.Get(key); v != "" {
		return v
	}
	// Case-insensitive fallback for maps built without canonical keys
	lowerKey := strings.ToLower(key)
	for k, vals := range headers {
		if strings.ToLower(k) == lowerKey && len(vals) > 0 {
			return vals[0]
		}
	}
	return ""
}

func blocked(code int) bool {
	return code == http.StatusForbidden || code == http.StatusServiceUnavailable
}

// detectCloudflare looks for common Cloudflare challenge/block signatures.
func detectCloudflare(p Page) (bool, string) {
	if !blocked(p.StatusCode) {
		return false, ""
	}
	server := strings.ToLower(getHeader(p.Header, "Server"))
	if strings.Contains(server, "cloudflare") || getHeader(p.Header, "Cf-Mitigated") != "" {
		return true, "Cloudflare"
	}
	if bytes.Contains(p.Body, []byte("cf-browser-verification")) ||
		bytes.Contains(p.Body, []byte("cf-turnstile")) ||
		bytes.Contains(p.Body, []byte("Attention Required! | Cloudflare")) {
		return true, "Cloudflare"
	}
	return false, ""
}

// detectAkamai looks for Akamai Bot Manager signatures.
func detectAkamai(p Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden {
		return false, ""
	}
	server := strings.ToLower(getHeader(p.Header, "Server"))
	if strings.Contains(server, "akamai") {
		return true, "Akamai"
	}
	// Generic "Reference #" block page
	if bytes.Contains(p.Body, []byte("Reference #")) && bytes.Contains(p.Body, []byte("Access Denied")) {
		return true, "Akamai"
	}
	return false, ""
}

func detectDataDome(p Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(strings.ToLower(getHeader(p.Header, "Server")), "datadome") ||
		getHeader(p.Header, "X-DataDome") != "" ||
		getHeader(p.Header, "X-DataDome-Response") != "" {
		return true, "DataDome"
	}
	if bytes.Contains(p.Body, []byte("geo.captcha-delivery.com")) {
		return true, "DataDome"
	}
	return false, ""
}

func detectPerimeterX(p Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if getHeader(p.Header, "X-Px-Captcha") != "" {
		return true, "PerimeterX"
	}
	if bytes.Contains(p.Body, []byte("client.perimeterx.net")) ||
		bytes.Contains(p.Body, []byte("px-captcha")) ||
		bytes.Contains(p.Body, []byte("_pxBlock")) {
		return true, "PerimeterX"
	}
	return false, ""
}

// detectAliyunWAF matches Alibaba Cloud WAF block pages, which are served
// with 405 or 200 as often as 403.
func detectAliyunWAF(p Page) (bool, string) {
	if p.StatusCode < 400 && p.StatusCode != http.StatusOK {
		return false, ""
	}
	if bytes.Contains(p.Body, []byte("errors.aliyun.com")) ||
		bytes.Contains(p.Body, []byte("aliyun_waf_")) {
		return true, "AliyunWAF"
	}
	return false, ""
}

// detectJiasule matches the JiaSuLe (jsl) cookie challenge.
func detectJiasule(p Page) (bool, string) {
	if p.StatusCode != 521 && !blocked(p.StatusCode) {
		return false, ""
	}
	if strings.Contains(getHeader(p.Header, "Set-Cookie"), "__jsluid") ||
		bytes.Contains(p.Body, []byte("__jsl_clearance")) {
		return true, "Jiasule"
	}
	return false, ""
}
