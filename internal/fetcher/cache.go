package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/IshaanNene/cosmerank/internal/media"
	"github.com/IshaanNene/cosmerank/internal/types"
)

// minCachedSize is the smallest cached page considered complete.
const minCachedSize = 5000

// HTMLCache stores fetched pages on disk so a rerun in the same week can
// skip the network for pages it already has.
type HTMLCache struct {
	dir    string
	logger *slog.Logger
}

// NewHTMLCache creates a cache rooted at dir.
func NewHTMLCache(dir string, logger *slog.Logger) *HTMLCache {
	return &HTMLCache{dir: dir, logger: logger.With("component", "html_cache")}
}

// PathFor returns the cache file for a page of the given job.
func (c *HTMLCache) PathFor(categoryID, rankingType, rawURL string) string {
	key := fmt.Sprintf("%s__%s__%s", categoryID, rankingType, url.QueryEscape(rawURL))
	return filepath.Join(c.dir, media.SafeFilename(key)+".html")
}

// Fetch returns the cached page when it looks complete, otherwise fetches
// through next and writes the body back.
func (c *HTMLCache) Fetch(ctx context.Context, categoryID, rankingType, rawURL string, next func(context.Context, string) (*types.Response, error)) (*types.Response, error) {
	path := c.PathFor(categoryID, rankingType, rawURL)

	if body, err := os.ReadFile(path); err == nil && complete(body) {
		c.logger.Debug("cache hit", "url", rawURL, "path", path)
		return &types.Response{
			URL:         rawURL,
			StatusCode:  200,
			Body:        body,
			ContentType: "text/html",
			FinalURL:    rawURL,
			FromCache:   true,
			FetchedAt:   time.Now(),
		}, nil
	}

	resp, err := next(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, resp.Body, 0o644); err != nil {
		c.logger.Warn("cache write failed", "path", path, "error", err)
	}
	return resp, nil
}

// Remove deletes the cache directory.
func (c *HTMLCache) Remove() error {
	return os.RemoveAll(c.dir)
}

func complete(body []byte) bool {
	return len(body) > minCachedSize && bytes.Contains(bytes.ToLower(body), []byte("</html>"))
}
