// Package parser extracts ranked products from @cosme ranking pages.
package parser

import (
	"log/slog"

	"github.com/IshaanNene/cosmerank/internal/types"
)

// RankingParser parses fetched ranking pages. Rows without a product id
// are dropped silently; the count is logged at debug level.
type RankingParser struct {
	logger *slog.Logger
}

// NewRankingParser creates a new RankingParser.
func NewRankingParser(logger *slog.Logger) *RankingParser {
	return &RankingParser{logger: logger.With("component", "parser")}
}

// Ordered parses a top-N page into at most limit products in page order.
func (p *RankingParser) Ordered(resp *types.Response, limit int) ([]types.ParsedProduct, error) {
	doc, err := resp.Document()
	if err != nil {
		return nil, err
	}
	items := ParseOrdered(doc, limit)
	p.logger.Debug("parsed ordered page", "url", resp.URL, "items", len(items), "limit", limit)
	return items, nil
}

// Grouped parses a keyword-grouped page keeping at most maxEachGroup
// products per group.
func (p *RankingParser) Grouped(resp *types.Response, maxEachGroup int) ([]types.ParsedProduct, error) {
	doc, err := resp.Document()
	if err != nil {
		return nil, err
	}
	items := ParseGrouped(doc, maxEachGroup)
	p.logger.Debug("parsed grouped page", "url", resp.URL, "items", len(items), "max_each_group", maxEachGroup)
	return items, nil
}
