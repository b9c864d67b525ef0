package fetcher

import (
	"bytes"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/cosmerank/internal/config"
)

// SoftBlockDetector recognizes 200 responses that are really a login wall
// or a redirect to the wrong page.
type SoftBlockDetector struct {
	cfg config.SoftBlockConfig
}

// NewSoftBlockDetector creates a detector from the configured markers.
func NewSoftBlockDetector(cfg config.SoftBlockConfig) *SoftBlockDetector {
	return &SoftBlockDetector{cfg: cfg}
}

// Check reports whether body should be treated as blocked, with a reason.
// requestURL is the URL that was asked for, not the final URL.
func (d *SoftBlockDetector) Check(requestURL string, body []byte) (bool, string) {
	if len(bytes.TrimSpace(body)) == 0 {
		return true, "empty body"
	}

	doc, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return true, "unparseable html"
	}

	title := ""
	if n := htmlquery.FindOne(doc, "//title"); n != nil {
		title = strings.TrimSpace(htmlquery.InnerText(n))
	}
	for _, marker := range d.cfg.TitleMarkers {
		if marker != "" && strings.Contains(title, marker) {
			return true, "login title: " + marker
		}
	}

	// Canonical and banner checks only apply to the blog pages; ranking
	// pages legitimately carry login links in their header.
	if d.cfg.BlogPathMarker == "" || !strings.Contains(requestURL, d.cfg.BlogPathMarker) {
		return false, ""
	}

	if d.cfg.BlogCanonical != "" {
		if n := htmlquery.FindOne(doc, `//link[@rel="canonical"]`); n != nil {
			canonical := htmlquery.SelectAttr(n, "href")
			if strings.TrimRight(canonical, "/") == strings.TrimRight(d.cfg.BlogCanonical, "/") {
				return true, "canonical points at blog root"
			}
		}
	}

	if len(d.cfg.BannerMarkers) > 0 {
		text := visibleText(doc)
		if containsAll(text, d.cfg.BannerMarkers) &&
			(d.cfg.BannerExemption == "" || !strings.Contains(text, d.cfg.BannerExemption)) {
			return true, "member registration banner"
		}
	}

	return false, ""
}

// visibleText joins the document's text nodes outside script and style.
func visibleText(doc *html.Node) string {
	nodes := htmlquery.Find(doc, "//text()[not(ancestor::script) and not(ancestor::style)]")
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if s := strings.TrimSpace(n.Data); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

func containsAll(s string, subs []string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
