package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/IshaanNene/cosmerank/internal/observability"
	"github.com/IshaanNene/cosmerank/internal/types"
)

// RetryingFetcher wraps a PageFetcher with soft-block detection and a
// linear backoff retry loop.
type RetryingFetcher struct {
	next     PageFetcher
	detector *SoftBlockDetector
	attempts int
	backoff  func(attempt int) time.Duration
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// RetryOption configures a RetryingFetcher.
type RetryOption func(*RetryingFetcher)

// WithBackoff replaces the delay schedule between attempts.
func WithBackoff(fn func(attempt int) time.Duration) RetryOption {
	return func(f *RetryingFetcher) { f.backoff = fn }
}

// WithMetrics records attempt outcomes.
func WithMetrics(m *observability.Metrics) RetryOption {
	return func(f *RetryingFetcher) { f.metrics = m }
}

// NewRetryingFetcher wraps next. attempts is the total number of tries;
// after failed try i (0-based) it waits base + i seconds.
func NewRetryingFetcher(next PageFetcher, detector *SoftBlockDetector, attempts int, base time.Duration, logger *slog.Logger, opts ...RetryOption) *RetryingFetcher {
	if attempts < 1 {
		attempts = 1
	}
	f := &RetryingFetcher{
		next:     next,
		detector: detector,
		attempts: attempts,
		backoff:  func(i int) time.Duration { return types.Backoff(base, i) },
		logger:   logger.With("component", "retry"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the first response that is neither an error nor a soft
// block. When every attempt fails it returns *types.FetchFailure wrapping
// the last cause.
func (f *RetryingFetcher) Fetch(ctx context.Context, rawURL string) (*types.Response, error) {
	var lastErr error
	tries := 0

	for i := 0; i < f.attempts; i++ {
		tries++
		resp, err := f.try(ctx, rawURL)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		var fe *types.FetchError
		if errors.As(err, &fe) && !fe.IsRetryable() {
			f.logger.Warn("fetch failed, not retrying", "url", rawURL, "error", err)
			break
		}

		wait := f.backoff(i)
		f.logger.Warn("fetch attempt failed",
			"url", rawURL,
			"attempt", i+1,
			"of", f.attempts,
			"backoff", wait,
			"error", err,
		)
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, err
		}
	}

	return nil, &types.FetchFailure{URL: rawURL, Attempts: tries, Err: lastErr}
}

func (f *RetryingFetcher) try(ctx context.Context, rawURL string) (*types.Response, error) {
	resp, err := f.next.Fetch(ctx, rawURL)
	if err != nil {
		f.metrics.ObserveAttempt("error")
		return nil, err
	}
	if f.detector != nil {
		if blocked, reason := f.detector.Check(rawURL, resp.Body); blocked {
			f.metrics.ObserveAttempt("soft_block")
			return nil, &types.SoftBlockError{URL: rawURL, FinalURL: resp.FinalURL, Reason: reason}
		}
	}
	f.metrics.ObserveAttempt("ok")
	return resp, nil
}

// Close closes the wrapped fetcher.
func (f *RetryingFetcher) Close() error {
	return f.next.Close()
}

// Type returns the wrapped fetcher's type.
func (f *RetryingFetcher) Type() string {
	return f.next.Type()
}
