package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/cosmerank/internal/config"
	"github.com/IshaanNene/cosmerank/internal/engine"
	"github.com/IshaanNene/cosmerank/internal/fetcher"
	"github.com/IshaanNene/cosmerank/internal/jobs"
	"github.com/IshaanNene/cosmerank/internal/media"
	"github.com/IshaanNene/cosmerank/internal/observability"
	"github.com/IshaanNene/cosmerank/internal/pipeline"
	"github.com/IshaanNene/cosmerank/internal/storage"
	"github.com/IshaanNene/cosmerank/internal/types"
)

var (
	collectWeek        int
	collectTest        bool
	collectCatalog     string
	collectNoImages    bool
	collectHTMLCache   bool
	collectConcurrency int
	collectSplitDir    string
)

// collectCmd creates the "collect" subcommand.
func collectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect this week's rankings into a snapshot CSV",
		Long: `Fetch every page of every job in the catalog, in catalog order, and write
<output_dir>/cosme/week<N>_cosme.csv. Any page that still fails after its
retries, or any ranking with missing ranks, aborts the run without writing
the snapshot.`,
		Args: cobra.NoArgs,
		RunE: runCollect,
	}

	cmd.Flags().IntVarP(&collectWeek, "week", "w", 0, "collection week number (required)")
	cmd.Flags().BoolVar(&collectTest, "test", false, "use the smoke catalog (top 10 only)")
	cmd.Flags().StringVar(&collectCatalog, "catalog", "", "job catalog YAML file (overrides --test)")
	cmd.Flags().BoolVar(&collectNoImages, "no-images", false, "skip product image downloads")
	cmd.Flags().BoolVar(&collectHTMLCache, "html-cache", false, "cache fetched pages on disk until the run succeeds")
	cmd.Flags().IntVarP(&collectConcurrency, "concurrency", "n", 0, "pages fetched ahead in parallel (0 = config value)")
	cmd.Flags().StringVar(&collectSplitDir, "split-dir", "", "also write one CSV per ranking type into this directory")
	_ = cmd.MarkFlagRequired("week")

	return cmd
}

// applyCollectOverrides applies command-line flag values to the config.
func applyCollectOverrides(cfg *config.Config) {
	if collectNoImages {
		cfg.Images.Enabled = false
	}
	if collectHTMLCache {
		cfg.Fetcher.HTMLCache = true
	}
	if collectConcurrency > 0 {
		cfg.Engine.Concurrency = collectConcurrency
	}
}

func runCollect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyCollectOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	runID := uuid.NewString()
	logger := setupLogger(cfg).With("run_id", runID)

	catalog, err := jobs.Select(collectCatalog, collectTest)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	paths, err := config.BuildPaths(cfg, collectWeek)
	if err != nil {
		return err
	}

	logger.Info("starting collection",
		"week", collectWeek,
		"jobs", len(catalog.Jobs),
		"pages", catalog.TotalPages(),
		"output", paths.WeekCSV,
		"images", cfg.Images.Enabled,
	)

	metrics := observability.NewMetrics(logger)
	if cfg.Metrics.Enabled {
		if err := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metrics.Shutdown(ctx)
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	base, err := fetcher.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}
	pages := fetcher.NewRetryingFetcher(base,
		fetcher.NewSoftBlockDetector(cfg.Fetcher.SoftBlock),
		cfg.Engine.MaxRetries, cfg.Engine.RetryBase, logger,
		fetcher.WithMetrics(metrics),
	)
	defer pages.Close()

	image, closeImages, err := imageStage(cfg, base, paths.ImageDir, metrics, logger)
	if err != nil {
		return err
	}
	defer closeImages()

	opts := []engine.Option{engine.WithMetrics(metrics)}
	var cache *fetcher.HTMLCache
	if cfg.Fetcher.HTMLCache {
		cache = fetcher.NewHTMLCache(paths.HTMLCacheDir, logger)
		opts = append(opts, engine.WithHTMLCache(cache))
	}

	eng := engine.New(cfg, pages, pipeline.NewDefault(logger, metrics, image), logger, opts...)

	start := time.Now()
	records, err := eng.Run(ctx, catalog.Jobs)
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}

	if err := engine.QualityCheckAll(records, catalog.Jobs); err != nil {
		var qe *types.QualityError
		if errors.As(err, &qe) {
			metrics.ObserveQualityFailure(qe.RankingType)
		}
		return err
	}

	if err := storage.WriteSnapshot(ctx, paths.WeekCSV, records, logger); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if collectSplitDir != "" {
		files, err := storage.WriteSplit(ctx, collectSplitDir, records, logger)
		if err != nil {
			return fmt.Errorf("write split CSVs: %w", err)
		}
		logger.Info("split CSVs written", "dir", collectSplitDir, "files", len(files))
	}
	if err := storeSinks(ctx, cfg, runID, records, logger); err != nil {
		return err
	}

	if cache != nil {
		if err := cache.Remove(); err != nil {
			logger.Warn("failed to remove html cache", "dir", paths.HTMLCacheDir, "error", err)
		}
	}

	stats := eng.Stats().Snapshot()
	fmt.Printf("\n✅ Week %d collected in %s\n", collectWeek, time.Since(start).Round(time.Millisecond))
	fmt.Printf("   Pages:    %v\n", stats["pages_done"])
	fmt.Printf("   Records:  %d (%v dropped)\n", len(records), stats["records_dropped"])
	fmt.Printf("   Output:   %s\n", paths.WeekCSV)
	return nil
}

// imageStage builds the image download stage, or nil when images are
// disabled. Downloads reuse the page fetcher's HTTP client and headers; a
// browser run gets a separate HTTP client for images.
func imageStage(cfg *config.Config, base fetcher.PageFetcher, dir string, metrics *observability.Metrics, logger *slog.Logger) (*pipeline.ImageMiddleware, func(), error) {
	noop := func() {}
	if !cfg.Images.Enabled {
		return nil, noop, nil
	}

	closeFn := noop
	httpFetcher, ok := base.(*fetcher.HTTPFetcher)
	if !ok {
		var err error
		httpFetcher, err = fetcher.NewHTTPFetcher(cfg, logger)
		if err != nil {
			return nil, noop, fmt.Errorf("create image client: %w", err)
		}
		closeFn = func() { httpFetcher.Close() }
	}

	dl := media.NewDownloader(httpFetcher.Client(), cfg, logger,
		media.WithHeaders(httpFetcher.SetHeaders),
		media.WithMetrics(metrics),
	)
	image, err := pipeline.NewImageMiddleware(dl, cfg, dir)
	if err != nil {
		closeFn()
		return nil, noop, err
	}
	return image, closeFn, nil
}

// storeSinks writes records to the optional SQLite and MongoDB sinks.
func storeSinks(ctx context.Context, cfg *config.Config, runID string, records []types.ProductRecord, logger *slog.Logger) error {
	var backends []storage.Storage
	if cfg.Storage.SQLitePath != "" {
		s, err := storage.NewSQLiteStorage(cfg.Storage.SQLitePath, cfg.Output.Source, logger)
		if err != nil {
			return fmt.Errorf("open sqlite sink: %w", err)
		}
		backends = append(backends, s)
	}
	if cfg.Storage.Mongo.URI != "" {
		s, err := storage.NewMongoStorage(ctx, cfg.Storage.Mongo, runID, logger)
		if err != nil {
			for _, b := range backends {
				b.Close()
			}
			return fmt.Errorf("open mongodb sink: %w", err)
		}
		backends = append(backends, s)
	}
	if len(backends) == 0 {
		return nil
	}

	sinks := storage.NewMultiStorage(backends, logger)
	err := sinks.Store(ctx, records)
	if cerr := sinks.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("store records: %w", err)
	}
	return nil
}
