package bypass

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageTitle extracts a short description of an HTML body, used to log what
// a proxy or WAF served instead of JSON. It prefers <title>, then the first
// heading, and returns "" for non-HTML bodies.
func PageTitle(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '<' {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(trimmed))
	if err != nil {
		return ""
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1, h2").First().Text())
	}
	title = strings.Join(strings.Fields(title), " ")
	if r := []rune(title); len(r) > 120 {
		title = string(r[:120])
	}
	return title
}
