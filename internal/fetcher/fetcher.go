// Package fetcher retrieves ranking pages: plain HTTP or headless browser,
// wrapped with soft-block detection, retries, throttling and an optional
// on-disk HTML cache.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/cosmerank/internal/config"
	"github.com/IshaanNene/cosmerank/internal/types"
)

// PageFetcher is the interface for all page fetcher implementations.
type PageFetcher interface {
	// Fetch retrieves the page at rawURL.
	Fetch(ctx context.Context, rawURL string) (*types.Response, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns the fetcher type identifier.
	Type() string
}

// New builds the configured base fetcher ("http" or "browser").
func New(cfg *config.Config, logger *slog.Logger) (PageFetcher, error) {
	switch cfg.Fetcher.Type {
	case "http":
		return NewHTTPFetcher(cfg, logger)
	case "browser":
		return NewBrowserFetcher(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown fetcher type %q", cfg.Fetcher.Type)
	}
}
