// Package media downloads product images into a content-addressed cache.
package media

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/cosmerank/internal/config"
	"github.com/IshaanNene/cosmerank/internal/observability"
	"github.com/IshaanNene/cosmerank/internal/types"
)

// Status is the outcome of one image download.
type Status string

const (
	StatusFetched Status = "fetched"
	StatusCached  Status = "cached"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Result describes an image download. Path is set for fetched and cached
// results; Err for failed ones.
type Result struct {
	URL    string
	Path   string
	Status Status
	Err    error
}

// OK reports whether a local file is available.
func (r Result) OK() bool {
	return r.Status == StatusFetched || r.Status == StatusCached
}

var allowedExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

const maxImageSize = 20 * 1024 * 1024

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_\-]+`)

// SafeFilename replaces runs of characters outside [A-Za-z0-9_-] with a
// single underscore and truncates to 180 bytes.
func SafeFilename(s string) string {
	s = unsafeNameChars.ReplaceAllString(s, "_")
	if len(s) > 180 {
		s = s[:180]
	}
	return s
}

// Downloader fetches images with retries. Failures are reported in the
// Result and never abort the caller.
type Downloader struct {
	client     *http.Client
	setHeaders func(*http.Request)
	attempts   int
	backoff    func(attempt int) time.Duration
	sleep      time.Duration
	downloaded atomic.Int64
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithHeaders sets a hook that decorates every image request, typically the
// page fetcher's header set so images ride the same session.
func WithHeaders(fn func(*http.Request)) Option {
	return func(d *Downloader) { d.setHeaders = fn }
}

// WithBackoff replaces the delay schedule between attempts.
func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(d *Downloader) { d.backoff = fn }
}

// WithMetrics records result statuses.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Downloader) { d.metrics = m }
}

// NewDownloader creates a downloader. A nil client gets a private one with
// the engine request timeout.
func NewDownloader(client *http.Client, cfg *config.Config, logger *slog.Logger, opts ...Option) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: cfg.Engine.RequestTimeout}
	}
	base := cfg.Images.RetryBase
	d := &Downloader{
		client:   client,
		attempts: max(cfg.Images.MaxRetries, 1),
		backoff:  func(i int) time.Duration { return types.Backoff(base, i) },
		sleep:    cfg.Images.Sleep,
		logger:   logger.With("component", "media_downloader"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FileName returns the cache file name for rawURL:
// <stem>_<first 12 hex of sha1(url)><ext>, or <hash><ext> with no stem.
func FileName(rawURL, stem string) string {
	sum := sha1.Sum([]byte(rawURL))
	h := hex.EncodeToString(sum[:])[:12]
	ext := safeExt(rawURL)
	if stem == "" {
		return h + ext
	}
	return stem + "_" + h + ext
}

// Download stores rawURL under outDir. An existing non-empty file is
// reused without touching the network.
func (d *Downloader) Download(ctx context.Context, rawURL, outDir, stem string) Result {
	res := d.download(ctx, rawURL, outDir, stem)
	d.metrics.ObserveImage(string(res.Status))
	if res.Status == StatusFailed {
		d.logger.Warn("image download failed", "url", rawURL, "error", res.Err)
	}
	return res
}

func (d *Downloader) download(ctx context.Context, rawURL, outDir, stem string) Result {
	if rawURL == "" {
		return Result{Status: StatusSkipped}
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Result{URL: rawURL, Status: StatusFailed, Err: fmt.Errorf("create image dir: %w", err)}
	}

	outPath := filepath.Join(outDir, FileName(rawURL, stem))
	if fi, err := os.Stat(outPath); err == nil && fi.Size() > 0 {
		return Result{URL: rawURL, Path: outPath, Status: StatusCached}
	}

	var lastErr error
	for i := 0; i < d.attempts; i++ {
		err := d.fetchTo(ctx, rawURL, outPath)
		if err == nil {
			d.downloaded.Add(1)
			d.logger.Debug("image downloaded", "url", rawURL, "path", outPath)
			_ = sleepCtx(ctx, d.sleep)
			return Result{URL: rawURL, Path: outPath, Status: StatusFetched}
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if err := sleepCtx(ctx, d.backoff(i)); err != nil {
			break
		}
	}

	return Result{URL: rawURL, Status: StatusFailed, Err: lastErr}
}

// fetchTo downloads into a temp file and renames it into place so a
// partial write is never mistaken for a cached image.
func (d *Downloader) fetchTo(ctx context.Context, rawURL, outPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	if d.setHeaders != nil {
		d.setHeaders(req)
		req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
		req.Header.Del("Accept-Encoding")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &types.FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("HTTP %d", resp.StatusCode), Retryable: true}
	}

	tmp, err := os.CreateTemp(filepath.Dir(outPath), ".img-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, maxImageSize))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	if n == 0 {
		return types.ErrEmptyResponse
	}
	return os.Rename(tmp.Name(), outPath)
}

// Downloaded returns the number of images fetched from the network.
func (d *Downloader) Downloaded() int64 {
	return d.downloaded.Load()
}

// safeExt returns the URL path's extension when it is an allowed image
// type, otherwise .jpg.
func safeExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ".jpg"
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if allowedExts[ext] {
		return ext
	}
	return ".jpg"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
