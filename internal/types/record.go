package types

import (
	"strconv"
	"strings"
)

// ParsedProduct is one product block extracted from a ranking page.
// ProductID is always set; blocks without one are dropped by the parser.
type ParsedProduct struct {
	ProductID      string
	ProductName    string
	ProductURL     string
	BrandName      string
	BrandURL       string
	RatingScore    *float64
	ReviewCount    *int
	PriceText      string
	ImageURL       string
	RankChangeText string

	// Set by the grouped parser only.
	GroupValue string
	GroupRank  int
}

// ProductRecord is one row of a weekly snapshot.
//
// Ordered jobs (topN_pages, topN_query_pages, rise) set GlobalRank and PageRank
// and leave the Group* fields nil. Grouped jobs do the reverse.
type ProductRecord struct {
	Date         string
	CollectedAt  string
	Source       string
	Market       string
	CategoryID   string
	CategoryName string
	RankingType  string
	RankingURL   string

	GlobalRank *int
	PageRank   *int

	GroupType  *string
	GroupValue *string
	GroupRank  *int

	ProductID   string
	ProductName string
	BrandName   string
	ProductURL  string
	ImageURL    string
	ImagePath   string

	RatingScore    *float64
	ReviewCount    *int
	PriceText      string
	RankChangeText string
	BrandURL       string
}

// SnapshotColumns is the snapshot CSV header, in file order.
var SnapshotColumns = []string{
	"date", "collected_at", "source", "market", "category_id", "category_name",
	"ranking_type", "ranking_url", "global_rank", "page_rank",
	"group_type", "group_value", "group_rank",
	"product_id", "product_name", "brand_name", "product_url", "image_url", "image_path",
	"rating_score", "review_count", "price_text", "rank_change_text", "brand_url",
}

// DedupKey is the snapshot uniqueness key.
func (r *ProductRecord) DedupKey() string {
	return strings.Join([]string{r.Date, r.RankingType, r.RankingURL, r.ProductID}, "\x1f")
}

// Rank returns the group rank for grouped rows and the global rank otherwise.
func (r *ProductRecord) Rank() (int, bool) {
	if r.GroupRank != nil {
		return *r.GroupRank, true
	}
	if r.GlobalRank != nil {
		return *r.GlobalRank, true
	}
	return 0, false
}

// ToRow renders the record as CSV cells in SnapshotColumns order.
// Nil values become empty cells.
func (r *ProductRecord) ToRow() []string {
	return []string{
		r.Date, r.CollectedAt, r.Source, r.Market, r.CategoryID, r.CategoryName,
		r.RankingType, r.RankingURL, intCell(r.GlobalRank), intCell(r.PageRank),
		strCell(r.GroupType), strCell(r.GroupValue), intCell(r.GroupRank),
		r.ProductID, r.ProductName, r.BrandName, r.ProductURL, r.ImageURL, r.ImagePath,
		floatCell(r.RatingScore), intCell(r.ReviewCount), r.PriceText, r.RankChangeText, r.BrandURL,
	}
}

// RecordFromMap builds a record from a header-keyed CSV row.
// Unknown columns are ignored and missing ones stay zero.
func RecordFromMap(m map[string]string) ProductRecord {
	return ProductRecord{
		Date:           m["date"],
		CollectedAt:    m["collected_at"],
		Source:         m["source"],
		Market:         m["market"],
		CategoryID:     m["category_id"],
		CategoryName:   m["category_name"],
		RankingType:    m["ranking_type"],
		RankingURL:     m["ranking_url"],
		GlobalRank:     ParseIntCell(m["global_rank"]),
		PageRank:       ParseIntCell(m["page_rank"]),
		GroupType:      ParseStrCell(m["group_type"]),
		GroupValue:     ParseStrCell(m["group_value"]),
		GroupRank:      ParseIntCell(m["group_rank"]),
		ProductID:      m["product_id"],
		ProductName:    m["product_name"],
		BrandName:      m["brand_name"],
		ProductURL:     m["product_url"],
		ImageURL:       m["image_url"],
		ImagePath:      m["image_path"],
		RatingScore:    parseFloatCell(m["rating_score"]),
		ReviewCount:    ParseIntCell(m["review_count"]),
		PriceText:      m["price_text"],
		RankChangeText: m["rank_change_text"],
		BrandURL:       m["brand_url"],
	}
}

// ParseIntCell parses an integer cell. Float-formatted integers such as "3.0"
// are accepted since spreadsheet round-trips produce them.
func ParseIntCell(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return &n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return nil
	}
	n := int(f)
	return &n
}

// ParseStrCell returns nil for an empty cell.
func ParseStrCell(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

func parseFloatCell(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func intCell(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func floatCell(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func strCell(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
