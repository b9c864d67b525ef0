package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/cosmerank/internal/types"
)

const siteOrigin = "https://www.cosme.net"

var (
	productIDPattern = regexp.MustCompile(`/products/(\d+)/`)
	nonDigits        = regexp.MustCompile(`\D`)
)

// statusIcons maps rank-change icon file names to their label.
var statusIcons = []struct{ keyword, label string }{
	{"ico_stay", "順位変わらず"},
	{"ico_up", "順位上昇"},
	{"ico_down", "順位下降"},
	{"ico_new", "NEW"},
}

// ParseOrdered extracts ranked products in document order, capped at limit.
// When none of the usual ranking blocks yield a product it falls back to
// the nearest container of every product link.
func ParseOrdered(doc *goquery.Document, limit int) []types.ParsedProduct {
	var items []types.ParsedProduct

	doc.Find("dl.top3, dl.clearfix").Each(func(_ int, block *goquery.Selection) {
		if p, ok := parseProductBlock(block); ok {
			items = append(items, p)
		}
	})

	if len(items) == 0 {
		seen := make(map[*html.Node]bool)
		doc.Find(`a[href*="/products/"]`).Each(func(_ int, a *goquery.Selection) {
			block := a.Parent().Closest("dl, li, article, section, div")
			if block.Length() == 0 {
				return
			}
			node := block.Get(0)
			if seen[node] {
				return
			}
			seen[node] = true
			if p, ok := parseProductBlock(block); ok {
				items = append(items, p)
			}
		})
	}

	if limit >= 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// ParseGrouped extracts products under each keyword-ranking head. Items
// are the following siblings classed keyword-ranking-item, up to the next
// head or maxEachGroup items. GroupRank is the item's position within its
// group, counted before products without an id are dropped.
func ParseGrouped(doc *goquery.Document, maxEachGroup int) []types.ParsedProduct {
	var rows []types.ParsedProduct

	doc.Find("div.keyword-ranking-head").Each(func(_ int, head *goquery.Selection) {
		groupValue := strings.TrimSpace(head.Find("h4").First().Text())
		if groupValue == "" {
			return
		}

		var blocks []*goquery.Selection
		for node := head.Next(); node.Length() > 0; node = node.Next() {
			if node.HasClass("keyword-ranking-head") {
				break
			}
			if node.HasClass("keyword-ranking-item") {
				blocks = append(blocks, node)
			}
			if len(blocks) >= maxEachGroup {
				break
			}
		}

		for i, block := range blocks {
			p, ok := parseProductBlock(block)
			if !ok {
				continue
			}
			p.GroupValue = groupValue
			p.GroupRank = i + 1
			rows = append(rows, p)
		}
	})

	return rows
}

// parseProductBlock reads one product container. ok is false when the
// block has no product link with a numeric id.
func parseProductBlock(block *goquery.Selection) (types.ParsedProduct, bool) {
	var p types.ParsedProduct

	a := block.Find(`dd.pic a[href*='/products/']`).First()
	if a.Length() == 0 {
		return p, false
	}

	p.ProductURL = Absolutize(a.AttrOr("href", ""))
	if m := productIDPattern.FindStringSubmatch(p.ProductURL); m != nil {
		p.ProductID = m[1]
	}
	if p.ProductID == "" {
		return p, false
	}

	if img := a.Find("img").First(); img.Length() > 0 {
		p.ProductName = img.AttrOr("alt", "")
		p.ImageURL = pickImageURL(img)
	}

	if brand := block.Find("dd.summary span.brand a[href]").First(); brand.Length() > 0 {
		p.BrandName = strings.TrimSpace(brand.Text())
		p.BrandURL = Absolutize(brand.AttrOr("href", ""))
	}

	if rating := block.Find("p.rating").First(); rating.Length() > 0 {
		if v, err := strconv.ParseFloat(strings.TrimSpace(rating.Text()), 64); err == nil {
			p.RatingScore = &v
		}
	}

	if votes := block.Find("p.votes a.count").First(); votes.Length() > 0 {
		if v, err := strconv.Atoi(nonDigits.ReplaceAllString(votes.Text(), "")); err == nil {
			p.ReviewCount = &v
		}
	}

	if price := block.Find("p.price").First(); price.Length() > 0 {
		p.PriceText = joinedText(price)
	}

	p.RankChangeText = rankChangeText(block)
	return p, true
}

// rankChangeText resolves the rank movement label: icon alt, icon title,
// icon file name, then the status text itself.
func rankChangeText(block *goquery.Selection) string {
	status := block.Find("dt span.status").First()
	if status.Length() == 0 {
		status = block.Find("span.status").First()
	}
	if status.Length() == 0 {
		return ""
	}

	if img := status.Find("img").First(); img.Length() > 0 {
		if alt := strings.TrimSpace(img.AttrOr("alt", "")); alt != "" {
			return alt
		}
		if title := strings.TrimSpace(img.AttrOr("title", "")); title != "" {
			return title
		}
		src := strings.ToLower(img.AttrOr("src", ""))
		for _, icon := range statusIcons {
			if strings.Contains(src, icon.keyword) {
				return icon.label
			}
		}
	}

	return joinedText(status)
}

// pickImageURL prefers src, then data-src, then the last srcset candidate.
func pickImageURL(img *goquery.Selection) string {
	if src := img.AttrOr("src", ""); src != "" {
		return Absolutize(src)
	}
	if src := img.AttrOr("data-src", ""); src != "" {
		return Absolutize(src)
	}
	if srcset := img.AttrOr("srcset", ""); srcset != "" {
		candidates := strings.Split(srcset, ",")
		if fields := strings.Fields(candidates[len(candidates)-1]); len(fields) > 0 {
			return Absolutize(fields[0])
		}
	}
	return ""
}

// Absolutize resolves protocol-relative and root-relative links against
// the @cosme origin. Other values are returned trimmed.
func Absolutize(href string) string {
	href = strings.TrimSpace(href)
	switch {
	case href == "":
		return ""
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	case strings.HasPrefix(href, "/"):
		return siteOrigin + href
	default:
		return href
	}
}

// joinedText joins the trimmed text nodes under sel with single spaces.
func joinedText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}
