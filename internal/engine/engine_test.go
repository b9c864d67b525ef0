package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/IshaanNene/cosmerank/internal/config"
	"github.com/IshaanNene/cosmerank/internal/fetcher"
	"github.com/IshaanNene/cosmerank/internal/jobs"
	"github.com/IshaanNene/cosmerank/internal/pipeline"
	"github.com/IshaanNene/cosmerank/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

var fixedNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

func block(class string, id int) string {
	return fmt.Sprintf(`<dl class="%s"><dd class="pic"><a href="/products/%d/"><img alt="Brand / P%d" src="/img/%d.jpg"></a></dd>
<dd class="summary"><span class="brand"><a href="/brands/1/">Brand</a></span></dd></dl>`, class, id, id, id)
}

func orderedPage(firstID, n int) string {
	var b strings.Builder
	b.WriteString("<html><head><title>ranking</title></head><body>")
	for i := 0; i < n; i++ {
		b.WriteString(block("clearfix", firstID+i))
	}
	b.WriteString("</body></html>")
	return b.String()
}

func groupedPage() string {
	item := func(id int) string {
		return fmt.Sprintf(`<div class="keyword-ranking-item"><dd class="pic"><a href="/products/%d/"><img alt="x"></a></dd></div>`, id)
	}
	return `<html><head><title>ranking</title></head><body><div>
<div class="keyword-ranking-head"><h4>20代</h4></div>` + item(1) + item(2) + item(3) + item(4) + `
<div class="keyword-ranking-head"><h4>30代</h4></div>` + item(5) + `
</div></body></html>`
}

// rankingServer serves ordered pages keyed by ?page= and grouped pages
// under /grouped. Requests are counted.
func rankingServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch {
		case strings.HasPrefix(r.URL.Path, "/grouped"):
			fmt.Fprint(w, groupedPage())
		case strings.HasPrefix(r.URL.Path, "/missing"):
			http.NotFound(w, r)
		case strings.HasPrefix(r.URL.Path, "/big"):
			fmt.Fprint(w, orderedPage(500, 40))
		default:
			page, _ := strconv.Atoi(r.URL.Query().Get("page"))
			if p := strings.TrimPrefix(r.URL.Path, "/top/"); p != r.URL.Path {
				page, _ = strconv.Atoi(p)
			}
			if page < 1 {
				page = 1
			}
			fmt.Fprint(w, orderedPage(page*100, 12))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestEngine(t *testing.T, concurrency int, opts ...Option) *Engine {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Engine.RequestSleep = 0
	cfg.Engine.SessionPause = 0
	cfg.Engine.Concurrency = concurrency

	base, err := fetcher.NewHTTPFetcher(cfg, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	f := fetcher.NewRetryingFetcher(base, fetcher.NewSoftBlockDetector(cfg.Fetcher.SoftBlock), 2, 0, testLogger,
		fetcher.WithBackoff(func(int) time.Duration { return 0 }))
	t.Cleanup(func() { f.Close() })

	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(cfg, f, pipeline.NewDefault(testLogger, nil, nil), testLogger, opts...)
}

func job(kind jobs.Kind, rankingType string, urls ...string) jobs.Job {
	return jobs.Job{
		Source: "cosme", Market: "JP", CategoryID: "800", CategoryName: "skincare",
		RankingType: rankingType, Kind: kind, PageParam: "page", PageSize: 10, URLs: urls,
	}
}

func globalRanks(recs []types.ProductRecord) []int {
	var out []int
	for _, r := range recs {
		if r.GlobalRank != nil {
			out = append(out, *r.GlobalRank)
		}
	}
	return out
}

func seq(from, to int) []int {
	var out []int
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func TestPageOffset(t *testing.T) {
	top100 := job(jobs.KindTopNPages, "products_top100", "a", "b", "c")
	query := job(jobs.KindTopNQueryPages, "latest_review_top50")
	rise := job(jobs.KindRise, "rise_review_top10")

	tests := []struct {
		name       string
		job        jobs.Job
		index      int
		url        string
		wantOffset int
		wantPage   int
	}{
		{"top100 first", top100, 0, "https://www.cosme.net/ranking/products", 0, 1},
		{"top100 third", top100, 2, "https://www.cosme.net/ranking/products/page/2", 20, 3},
		{"query page 3", query, 2, "https://www.cosme.net/categories/item/800/ranking/?page=3", 20, 3},
		{"query no page", query, 0, "https://www.cosme.net/categories/item/800/ranking/", 0, 1},
		{"query bad page", query, 0, "https://www.cosme.net/categories/item/800/ranking/?page=x", 0, 1},
		{"rise", rise, 0, "https://www.cosme.net/categories/item/800/ranking-rise/", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offset, page := PageOffset(tt.job, tt.index, tt.url)
			if offset != tt.wantOffset || page != tt.wantPage {
				t.Errorf("got (%d, %d), want (%d, %d)", offset, page, tt.wantOffset, tt.wantPage)
			}
		})
	}
}

func TestRunQueryPageOffset(t *testing.T) {
	srv, _ := rankingServer(t)
	e := newTestEngine(t, 1)

	recs, err := e.Run(context.Background(), []jobs.Job{
		job(jobs.KindTopNQueryPages, "latest_review_top50", srv.URL+"/ranking/?page=3"),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff(seq(21, 30), globalRanks(recs)); diff != "" {
		t.Errorf("global ranks (-want +got):\n%s", diff)
	}
	first := recs[0]
	if *first.PageRank != 1 || first.GroupType != nil || first.GroupRank != nil {
		t.Errorf("ordered row has wrong rank fields: %+v", first)
	}
	if first.Date != "2025-03-10" || first.CollectedAt != "2025-03-10T09:30:00.000000Z" {
		t.Errorf("date=%q collected_at=%q", first.Date, first.CollectedAt)
	}
	if first.ProductName != "P300" {
		t.Errorf("name split not applied: %q", first.ProductName)
	}
}

func TestRunTop100Contiguous(t *testing.T) {
	srv, _ := rankingServer(t)
	e := newTestEngine(t, 1)

	j := job(jobs.KindTopNPages, "products_top100", srv.URL+"/top/1", srv.URL+"/top/2", srv.URL+"/top/3")
	j.TargetN = 30
	recs, err := e.Run(context.Background(), []jobs.Job{j})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff(seq(1, 30), globalRanks(recs)); diff != "" {
		t.Errorf("global ranks (-want +got):\n%s", diff)
	}
	if err := QualityCheck(recs, j); err != nil {
		t.Errorf("quality check: %v", err)
	}
}

func TestRunGrouped(t *testing.T) {
	srv, _ := rankingServer(t)
	e := newTestEngine(t, 1)

	j := job(jobs.KindGrouped, "age_top3", srv.URL+"/grouped/age")
	j.GroupType = "age"
	recs, err := e.Run(context.Background(), []jobs.Job{j})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	type row struct {
		group string
		rank  int
		id    string
	}
	var got []row
	for _, r := range recs {
		if r.GlobalRank != nil || r.PageRank != nil {
			t.Errorf("grouped row has global rank: %+v", r)
		}
		got = append(got, row{*r.GroupValue, *r.GroupRank, r.ProductID})
	}
	want := []row{{"20代", 1, "1"}, {"20代", 2, "2"}, {"20代", 3, "3"}, {"30代", 1, "5"}}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(row{})); diff != "" {
		t.Errorf("grouped rows (-want +got):\n%s", diff)
	}
}

func TestRunUnknownKindBeforeFetch(t *testing.T) {
	srv, hits := rankingServer(t)
	e := newTestEngine(t, 1)

	_, err := e.Run(context.Background(), []jobs.Job{
		job(jobs.KindRise, "rise_review_top10", srv.URL+"/rise"),
		job("weekly", "weekly_top10", srv.URL+"/weekly"),
	})
	if !errors.Is(err, types.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if hits.Load() != 0 {
		t.Errorf("fetched %d pages before rejecting the catalog", hits.Load())
	}
}

func TestRunFetchFailureAborts(t *testing.T) {
	srv, _ := rankingServer(t)
	e := newTestEngine(t, 1)

	_, err := e.Run(context.Background(), []jobs.Job{
		job(jobs.KindRise, "rise_review_top10", srv.URL+"/missing"),
	})
	if !errors.Is(err, types.ErrRetriesExhausted) {
		t.Fatalf("expected FetchFailure, got %v", err)
	}
}

func TestRunConcurrentMatchesSequential(t *testing.T) {
	srv, _ := rankingServer(t)
	catalog := func() []jobs.Job {
		top := job(jobs.KindTopNPages, "products_top100", srv.URL+"/top/1", srv.URL+"/top/2", srv.URL+"/top/3", srv.URL+"/top/4")
		query := job(jobs.KindTopNQueryPages, "latest_review_top50", srv.URL+"/r/", srv.URL+"/r/?page=2", srv.URL+"/r/?page=3")
		grouped := job(jobs.KindGrouped, "skin_top3", srv.URL+"/grouped/skin")
		grouped.GroupType = "skin"
		return []jobs.Job{top, query, grouped}
	}

	seqRecs, err := newTestEngine(t, 1).Run(context.Background(), catalog())
	if err != nil {
		t.Fatalf("sequential: %v", err)
	}
	parRecs, err := newTestEngine(t, 3).Run(context.Background(), catalog())
	if err != nil {
		t.Fatalf("concurrent: %v", err)
	}
	if diff := cmp.Diff(seqRecs, parRecs); diff != "" {
		t.Errorf("concurrent run differs (-seq +par):\n%s", diff)
	}
}

func TestRunConcurrentFailure(t *testing.T) {
	srv, _ := rankingServer(t)
	e := newTestEngine(t, 3)

	_, err := e.Run(context.Background(), []jobs.Job{
		job(jobs.KindTopNPages, "products_top100", srv.URL+"/top/1", srv.URL+"/missing", srv.URL+"/top/3"),
	})
	if !errors.Is(err, types.ErrRetriesExhausted) {
		t.Fatalf("expected FetchFailure, got %v", err)
	}
}

func TestRunHTMLCache(t *testing.T) {
	srv, hits := rankingServer(t)
	dir := t.TempDir()

	for i := 0; i < 2; i++ {
		e := newTestEngine(t, 1, WithHTMLCache(fetcher.NewHTMLCache(dir, testLogger)))
		recs, err := e.Run(context.Background(), []jobs.Job{
			job(jobs.KindRise, "rise_review_top10", srv.URL+"/big"),
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != 10 {
			t.Errorf("run %d: %d records, want 10", i, len(recs))
		}
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1 (second run served from cache)", hits.Load())
	}
}

func record(date, rtype, url, pid, name string, rank int) types.ProductRecord {
	return types.ProductRecord{
		Date: date, RankingType: rtype, RankingURL: url, ProductID: pid,
		ProductName: name, GlobalRank: types.Ptr(rank),
	}
}

func TestDedupKeepLast(t *testing.T) {
	in := []types.ProductRecord{
		record("d", "t", "u1", "1", "first", 1),
		record("d", "t", "u1", "2", "", 2),
		record("d", "t", "u1", "1", "second", 3),
		record("d", "t", "u2", "1", "other page", 1),
	}
	out := DedupKeepLast(in)

	var names []string
	for _, r := range out {
		names = append(names, r.ProductName)
	}
	if diff := cmp.Diff([]string{"", "second", "other page"}, names); diff != "" {
		t.Errorf("dedup (-want +got):\n%s", diff)
	}

	again := DedupKeepLast(out)
	if diff := cmp.Diff(out, again); diff != "" {
		t.Errorf("dedup not idempotent:\n%s", diff)
	}
}

func ranked(category, rtype string, ranks ...int) []types.ProductRecord {
	var out []types.ProductRecord
	for _, r := range ranks {
		out = append(out, types.ProductRecord{CategoryID: category, RankingType: rtype, GlobalRank: types.Ptr(r)})
	}
	return out
}

func TestQualityCheck(t *testing.T) {
	top := job(jobs.KindTopNPages, "products_top100")
	top.CategoryID = "ALL"
	top.TargetN = 10

	query := job(jobs.KindTopNQueryPages, "latest_review_top50")
	query.TargetN = 30

	rise := job(jobs.KindRise, "rise_review_top10")

	grouped := job(jobs.KindGrouped, "age_top3")
	grouped.GroupType = "age"

	t.Run("top complete", func(t *testing.T) {
		if err := QualityCheck(ranked("ALL", "products_top100", seq(1, 10)...), top); err != nil {
			t.Error(err)
		}
	})

	t.Run("ranks beyond target allowed", func(t *testing.T) {
		if err := QualityCheck(ranked("ALL", "products_top100", seq(1, 20)...), top); err != nil {
			t.Error(err)
		}
	})

	t.Run("top matches ranking type only", func(t *testing.T) {
		if err := QualityCheck(ranked("other", "products_top100", seq(1, 10)...), top); err != nil {
			t.Error(err)
		}
	})

	t.Run("query filters category", func(t *testing.T) {
		recs := append(ranked("800", "latest_review_top50", seq(1, 20)...), ranked("904", "latest_review_top50", seq(21, 30)...)...)
		err := QualityCheck(recs, query)
		var qe *types.QualityError
		if !errors.As(err, &qe) {
			t.Fatalf("expected QualityError, got %v", err)
		}
		if diff := cmp.Diff(seq(21, 30), qe.Missing); diff != "" || qe.Total != 10 {
			t.Errorf("missing (-want +got):\n%s total=%d", diff, qe.Total)
		}
	})

	t.Run("missing list capped", func(t *testing.T) {
		q := query
		q.TargetN = 50
		err := QualityCheck(ranked("800", "latest_review_top50", 1), q)
		var qe *types.QualityError
		if !errors.As(err, &qe) || len(qe.Missing) != 20 || qe.Total != 49 || qe.Missing[0] != 2 {
			t.Errorf("got %+v", qe)
		}
		if !errors.Is(err, types.ErrQualityCheck) {
			t.Error("QualityError should match ErrQualityCheck")
		}
	})

	t.Run("rise empty passes", func(t *testing.T) {
		if err := QualityCheck(nil, rise); err != nil {
			t.Error(err)
		}
	})

	t.Run("rise partial fails", func(t *testing.T) {
		if err := QualityCheck(ranked("800", "rise_review_top10", seq(1, 9)...), rise); err == nil {
			t.Error("expected failure for 9 rise rows")
		}
	})

	t.Run("zero target skips", func(t *testing.T) {
		q := query
		q.TargetN = 0
		if err := QualityCheck(nil, q); err != nil {
			t.Error(err)
		}
	})

	t.Run("grouped not checked", func(t *testing.T) {
		if err := QualityCheckAll(nil, []jobs.Job{grouped}); err != nil {
			t.Error(err)
		}
	})
}
