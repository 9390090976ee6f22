package bypass

import (
	"net/http"
	"testing"
)

func TestGatewayRedirect(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		location string
		want     bool
		vendor   string
	}{
		{"zscaler 302", http.StatusFound, "https://gateway.zscaler.net/auth?x=1", true, "zscaler"},
		{"cloudflare 307", http.StatusTemporaryRedirect, "https://challenges.cloudflare.com/", true, "cloudflare"},
		{"mixed case host", http.StatusMovedPermanently, "http://Block.Fortinet.COM/", true, "fortinet"},
		{"normal redirect", http.StatusFound, "https://24365.ncss.cn/login", false, ""},
		{"path only mentions vendor", http.StatusFound, "https://example.com/zscaler", false, ""},
		{"not a redirect", http.StatusOK, "https://gateway.zscaler.net/", false, ""},
		{"missing location", http.StatusFound, "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.location != "" {
				h.Set("Location", tt.location)
			}
			got, vendor := GatewayRedirect(tt.code, h, DefaultGatewayDomains)
			if got != tt.want || vendor != tt.vendor {
				t.Errorf("expected (%v, %q), got (%v, %q)", tt.want, tt.vendor, got, vendor)
			}
		})
	}
}

func TestPageTitle(t *testing.T) {
	if got := PageTitle([]byte("<html><head><title>  Access   Denied </title></head></html>")); got != "Access Denied" {
		t.Errorf("expected title, got %q", got)
	}
	if got := PageTitle([]byte("<html><body><h1>Blocked by policy</h1></body></html>")); got != "Blocked by policy" {
		t.Errorf("expected heading fallback, got %q", got)
	}
	if got := PageTitle([]byte(`{"flag":false}`)); got != "" {
		t.Errorf("expected empty title for JSON, got %q", got)
	}
}
