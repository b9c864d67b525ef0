package media

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IshaanNene/cosmerank/internal/config"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func noBackoff(int) time.Duration { return 0 }

func testDownloader() *Downloader {
	cfg := config.DefaultConfig()
	cfg.Images.Sleep = 0
	return NewDownloader(nil, cfg, testLogger, WithBackoff(noBackoff))
}

func TestFileName(t *testing.T) {
	u := "https://photos.cosme.net/p/123.PNG?x=1"
	name := FileName(u, "ALL__products_top100__3__123")
	if !strings.HasPrefix(name, "ALL__products_top100__3__123_") || !strings.HasSuffix(name, ".png") {
		t.Errorf("name = %q", name)
	}
	if len(strings.TrimSuffix(strings.TrimPrefix(name, "ALL__products_top100__3__123_"), ".png")) != 12 {
		t.Errorf("hash part should be 12 hex chars: %q", name)
	}

	if got := FileName("https://x/img.bmp", ""); !strings.HasSuffix(got, ".jpg") || len(got) != 16 {
		t.Errorf("no-stem name = %q", got)
	}
	if FileName("https://x/a.jpg", "s") == FileName("https://x/b.jpg", "s") {
		t.Error("different urls must not collide")
	}
}

func TestDownloadCachesWithoutNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("\xff\xd8jpegdata"))
	}))
	defer srv.Close()

	d := testDownloader()
	dir := t.TempDir()
	u := srv.URL + "/p/1.jpg"

	first := d.Download(context.Background(), u, dir, "stem")
	if first.Status != StatusFetched || !first.OK() {
		t.Fatalf("first = %+v", first)
	}
	second := d.Download(context.Background(), u, dir, "stem")
	if second.Status != StatusCached || second.Path != first.Path {
		t.Fatalf("second = %+v", second)
	}
	if hits.Load() != 1 {
		t.Errorf("network hits = %d, want 1", hits.Load())
	}
	if d.Downloaded() != 1 {
		t.Errorf("downloaded = %d", d.Downloaded())
	}
}

func TestDownloadFailsAfterRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := testDownloader()
	dir := t.TempDir()
	res := d.Download(context.Background(), srv.URL+"/p/2.jpg", dir, "")
	if res.Status != StatusFailed || res.Err == nil || res.Path != "" {
		t.Fatalf("result = %+v", res)
	}
	if hits.Load() != 3 {
		t.Errorf("attempts = %d, want 3", hits.Load())
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("failed download left files: %v", entries)
	}
}

func TestDownloadEmptyBodyNotCached(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	d := testDownloader()
	res := d.Download(context.Background(), srv.URL+"/empty.jpg", t.TempDir(), "x")
	if res.Status != StatusFailed {
		t.Errorf("status = %s, want failed", res.Status)
	}
}

func TestDownloadSkipsEmptyURL(t *testing.T) {
	res := testDownloader().Download(context.Background(), "", t.TempDir(), "x")
	if res.Status != StatusSkipped || res.OK() {
		t.Errorf("result = %+v", res)
	}
}

func TestDownloadSendsHeaders(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		w.Write([]byte("png"))
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Images.Sleep = 0
	d := NewDownloader(srv.Client(), cfg, testLogger,
		WithBackoff(noBackoff),
		WithHeaders(func(r *http.Request) { r.Header.Set("User-Agent", "cosmerank-test") }),
	)
	dir := t.TempDir()
	res := d.Download(context.Background(), srv.URL+"/a.png", dir, "")
	if res.Status != StatusFetched {
		t.Fatalf("result = %+v", res)
	}
	if filepath.Ext(res.Path) != ".png" {
		t.Errorf("path = %s", res.Path)
	}
	if ua != "cosmerank-test" {
		t.Errorf("user agent = %q", ua)
	}
}

func TestSafeFilename(t *testing.T) {
	if got := SafeFilename("1005__cross_top2__cross__20代 / 乾燥肌__1__123"); got != "1005__cross_top2__cross__20___1__123" {
		t.Errorf("got %q", got)
	}
	if got := SafeFilename(strings.Repeat("a", 300)); len(got) != 180 {
		t.Errorf("len = %d", len(got))
	}
}
