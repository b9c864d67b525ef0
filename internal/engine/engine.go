// Package engine drives a collection run: it plans page tasks from the job
// catalog, fetches them through the throttle, parses each page by job kind
// and assembles snapshot records through the pipeline.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IshaanNene/cosmerank/internal/config"
	"github.com/IshaanNene/cosmerank/internal/fetcher"
	"github.com/IshaanNene/cosmerank/internal/jobs"
	"github.com/IshaanNene/cosmerank/internal/observability"
	"github.com/IshaanNene/cosmerank/internal/parser"
	"github.com/IshaanNene/cosmerank/internal/pipeline"
	"github.com/IshaanNene/cosmerank/internal/types"
)

const collectedAtLayout = "2006-01-02T15:04:05.000000Z07:00"

// Stats tracks run statistics.
type Stats struct {
	PagesTotal     atomic.Int64
	PagesDone      atomic.Int64
	RecordsEmitted atomic.Int64
	RecordsDropped atomic.Int64
	StartTime      time.Time
}

// Snapshot returns a copy of stats safe for reading.
func (s *Stats) Snapshot() map[string]any {
	return map[string]any{
		"pages_total":     s.PagesTotal.Load(),
		"pages_done":      s.PagesDone.Load(),
		"records_emitted": s.RecordsEmitted.Load(),
		"records_dropped": s.RecordsDropped.Load(),
		"elapsed":         time.Since(s.StartTime).Round(time.Millisecond).String(),
	}
}

// Engine is the collection orchestrator.
type Engine struct {
	cfg      *config.Config
	fetcher  fetcher.PageFetcher
	throttle *fetcher.Throttle
	cache    *fetcher.HTMLCache
	parser   *parser.RankingParser
	pipeline *pipeline.Pipeline
	metrics  *observability.Metrics
	logger   *slog.Logger
	now      func() time.Time
	stats    *Stats
}

// Option configures an Engine.
type Option func(*Engine)

// WithHTMLCache serves pages from an on-disk cache when possible.
func WithHTMLCache(c *fetcher.HTMLCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithMetrics records run metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the clock used for date and collected_at.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine. f should already carry retries and soft-block
// detection; the engine adds throttling.
func New(cfg *config.Config, f fetcher.PageFetcher, p *pipeline.Pipeline, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		fetcher:  f,
		throttle: fetcher.NewThrottle(cfg.Engine, logger),
		parser:   parser.NewRankingParser(logger),
		pipeline: p,
		logger:   logger.With("component", "engine"),
		now:      time.Now,
		stats:    &Stats{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stats returns the current run statistics.
func (e *Engine) Stats() *Stats {
	return e.stats
}

// Run collects every page of every job in catalog order and returns the
// deduplicated records. Any fetch failure aborts the run.
func (e *Engine) Run(ctx context.Context, catalog []jobs.Job) ([]types.ProductRecord, error) {
	tasks, err := Plan(catalog)
	if err != nil {
		return nil, err
	}

	e.stats.StartTime = time.Now()
	e.stats.PagesTotal.Store(int64(len(tasks)))
	date := e.now().Format(time.DateOnly)

	e.logger.Info("run starting",
		"jobs", len(catalog),
		"pages", len(tasks),
		"concurrency", e.cfg.Engine.Concurrency,
		"fetcher", e.fetcher.Type(),
	)

	var records []types.ProductRecord
	handle := func(t PageTask, resp *types.Response) error {
		done := e.stats.PagesDone.Add(1)
		e.logger.Info("page collected",
			"job", t.Job.Key(),
			"page", t.PageNo,
			"pages", fmt.Sprintf("%d/%d", done, len(tasks)),
			"percent", fmt.Sprintf("%.1f", float64(done)/float64(len(tasks))*100),
			"url", t.URL,
			"cached", resp.FromCache,
		)
		recs, err := e.processPage(ctx, t, resp, date)
		if err != nil {
			return err
		}
		records = append(records, recs...)
		return nil
	}

	if e.cfg.Engine.Concurrency > 1 {
		err = e.fetchAhead(ctx, tasks, handle)
	} else {
		err = e.fetchSequential(ctx, tasks, handle)
	}
	if err != nil {
		return nil, err
	}

	out := DedupKeepLast(records)
	e.logger.Info("run finished",
		"records", len(out),
		"duplicates", len(records)-len(out),
		"stats", e.stats.Snapshot(),
	)
	return out, nil
}

type fetchResult struct {
	resp *types.Response
	err  error
}

func (e *Engine) fetchSequential(ctx context.Context, tasks []PageTask, handle func(PageTask, *types.Response) error) error {
	for _, t := range tasks {
		resp, err := e.fetchPage(ctx, t)
		if err != nil {
			return err
		}
		if err := handle(t, resp); err != nil {
			return err
		}
	}
	return nil
}

// fetchAhead fetches up to Concurrency pages in parallel, at most twice
// that many ahead of the consumer, and hands results to handle strictly in
// task order.
func (e *Engine) fetchAhead(ctx context.Context, tasks []PageTask, handle func(PageTask, *types.Response) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := e.cfg.Engine.Concurrency
	results := make([]chan fetchResult, len(tasks))
	for i := range results {
		results[i] = make(chan fetchResult, 1)
	}
	window := make(chan struct{}, workers*2)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	producerDone := make(chan struct{})
	go func() {
		defer close(producerDone)
		for i := range tasks {
			select {
			case window <- struct{}{}:
			case <-gctx.Done():
				for j := i; j < len(tasks); j++ {
					results[j] <- fetchResult{err: gctx.Err()}
				}
				return
			}
			t, ch := tasks[i], results[i]
			g.Go(func() error {
				resp, err := e.fetchPage(gctx, t)
				ch <- fetchResult{resp: resp, err: err}
				return err
			})
		}
	}()

	var runErr error
	for i, t := range tasks {
		r := <-results[i]
		if r.err != nil {
			runErr = r.err
			break
		}
		<-window
		if err := handle(t, r.resp); err != nil {
			runErr = err
			break
		}
	}

	cancel()
	<-producerDone
	// Prefer the fetch failure that cancelled the group over a sibling's
	// cancellation error.
	if err := g.Wait(); err != nil && (runErr == nil || errors.Is(runErr, context.Canceled)) {
		runErr = err
	}
	return runErr
}

// fetchPage fetches one task through the cache (if any) and the throttle.
func (e *Engine) fetchPage(ctx context.Context, t PageTask) (*types.Response, error) {
	fetch := func(ctx context.Context, rawURL string) (*types.Response, error) {
		var resp *types.Response
		err := e.throttle.Do(ctx, func() error {
			var err error
			resp, err = e.fetcher.Fetch(ctx, rawURL)
			return err
		})
		return resp, err
	}

	var (
		resp *types.Response
		err  error
	)
	if e.cache != nil {
		resp, err = e.cache.Fetch(ctx, t.Job.CategoryID, t.Job.RankingType, t.URL, fetch)
	} else {
		resp, err = fetch(ctx, t.URL)
	}
	if err != nil {
		return nil, err
	}
	e.metrics.ObservePage(e.fetcher.Type(), resp.FromCache, resp.FetchDuration)
	return resp, nil
}

// processPage parses a page according to its job kind and runs each row
// through the pipeline.
func (e *Engine) processPage(ctx context.Context, t PageTask, resp *types.Response, date string) ([]types.ProductRecord, error) {
	job := t.Job

	var recs []types.ProductRecord
	switch {
	case job.Kind.Ordered():
		items, err := e.parser.Ordered(resp, job.PageSize)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", t.URL, err)
		}
		for i, item := range items {
			rec := e.newRecord(t, date, item)
			rec.GlobalRank = types.Ptr(t.Offset + i + 1)
			rec.PageRank = types.Ptr(i + 1)
			recs = append(recs, rec)
		}

	case job.Kind == jobs.KindGrouped:
		items, err := e.parser.Grouped(resp, maxEachGroup(job.GroupType))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", t.URL, err)
		}
		for _, item := range items {
			rec := e.newRecord(t, date, item)
			rec.GroupType = types.Ptr(job.GroupType)
			rec.GroupValue = types.Ptr(item.GroupValue)
			rec.GroupRank = types.Ptr(item.GroupRank)
			recs = append(recs, rec)
		}

	default:
		return nil, &types.UnknownKindError{CategoryID: job.CategoryID, RankingType: job.RankingType, Kind: string(job.Kind)}
	}

	out := make([]types.ProductRecord, 0, len(recs))
	for i := range recs {
		rec, err := e.pipeline.Process(ctx, &recs[i])
		if err != nil {
			return nil, err
		}
		if rec == nil {
			e.stats.RecordsDropped.Add(1)
			continue
		}
		e.stats.RecordsEmitted.Add(1)
		e.metrics.ObserveRecord(string(job.Kind))
		out = append(out, *rec)
	}
	return out, nil
}

func (e *Engine) newRecord(t PageTask, date string, item types.ParsedProduct) types.ProductRecord {
	job := t.Job
	return types.ProductRecord{
		Date:           date,
		CollectedAt:    e.now().UTC().Format(collectedAtLayout),
		Source:         job.Source,
		Market:         job.Market,
		CategoryID:     job.CategoryID,
		CategoryName:   job.CategoryName,
		RankingType:    job.RankingType,
		RankingURL:     t.URL,
		ProductID:      item.ProductID,
		ProductName:    item.ProductName,
		BrandName:      item.BrandName,
		ProductURL:     item.ProductURL,
		ImageURL:       item.ImageURL,
		RatingScore:    item.RatingScore,
		ReviewCount:    item.ReviewCount,
		PriceText:      item.PriceText,
		RankChangeText: item.RankChangeText,
		BrandURL:       item.BrandURL,
	}
}
