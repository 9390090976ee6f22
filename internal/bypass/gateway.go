package bypass

import (
	"net/http"
	"net/url"
	"strings"
)

// DefaultGatewayDomains are host fragments of corporate security gateways
// and CDN challenge pages. A proxy that redirects to one of them is
// intercepting traffic rather than forwarding it.
var DefaultGatewayDomains = []string{
	"zscaler",
	"fortinet",
	"barracuda",
	"checkpoint",
	"paloaltonetworks",
	"forcepoint",
	"websense",
	"cisco.com",
	"trustwave",
	"sophos",
	"mcafee",
	"imperva",
	"akamai",
	"cloudflare",
}

// IsRedirect reports whether code is one of the redirect statuses that
// carry a Location header.
func IsRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// GatewayRedirect reports whether a redirect response points at a security
// gateway, returning the matched domain fragment. Matching is on the
// Location host, case-insensitively.
func GatewayRedirect(code int, header http.Header, domains []string) (bool, string) {
	if !IsRedirect(code) {
		return false, ""
	}
	loc := header.Get("Location")
	if loc == "" {
		return false, ""
	}
	host := loc
	if u, err := url.Parse(loc); err == nil && u.Host != "" {
		host = u.Host
	}
	host = strings.ToLower(host)
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" && strings.Contains(host, d) {
			return true, d
		}
	}
	return false, ""
}
