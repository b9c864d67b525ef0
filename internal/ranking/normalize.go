package ranking

import (
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

var (
	spaceRun = regexp.MustCompile(`\s+`)
	// promoToken matches a promotional marker bounded by non-word runes on
	// both sides. Go's \b is ASCII-only, so the boundary is spelled out.
	promoToken = regexp.MustCompile(`(?i)(^|[^\p{L}\p{N}_])(?:NEW|限定|人気|再入荷)($|[^\p{L}\p{N}_])`)
)

// NormalizeName folds full-width forms to their narrow equivalents,
// collapses whitespace and removes the standalone promotional markers
// NEW, 限定, 人気 and 再入荷.
func NormalizeName(s string) string {
	s = width.Fold.String(s)
	s = collapse(s)
	for {
		next := promoToken.ReplaceAllString(s, "${1}${2}")
		if next == s {
			break
		}
		s = next
	}
	return collapse(s)
}

func collapse(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}
