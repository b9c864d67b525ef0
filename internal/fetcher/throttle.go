package fetcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/IshaanNene/cosmerank/internal/config"
)

// Throttle spaces requests for the whole run. Every request increments a
// shared counter and every pauseEvery-th request first waits out the
// session pause. A request may not start until `sleep` has passed since
// both the previous start and the previous completion, so a sequential run
// sleeps after each fetch and concurrent callers keep the same rate.
type Throttle struct {
	mu         sync.Mutex
	count      int
	next       time.Time
	sleep      time.Duration
	pauseEvery int
	pause      time.Duration
	logger     *slog.Logger
}

// NewThrottle creates a throttle from the engine settings.
func NewThrottle(cfg config.EngineConfig, logger *slog.Logger) *Throttle {
	return &Throttle{
		sleep:      cfg.RequestSleep,
		pauseEvery: cfg.SessionPauseEvery,
		pause:      cfg.SessionPause,
		logger:     logger.With("component", "throttle"),
	}
}

// Do runs fn once the throttle admits it.
func (t *Throttle) Do(ctx context.Context, fn func() error) error {
	if err := t.acquire(ctx); err != nil {
		return err
	}
	err := fn()
	t.release()
	return err
}

func (t *Throttle) acquire(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	t.count++
	if t.pauseEvery > 0 && t.count%t.pauseEvery == 0 && t.pause > 0 {
		t.logger.Info("session pause", "duration", t.pause, "every", t.pauseEvery)
		if err := sleepCtx(ctx, t.pause); err != nil {
			return err
		}
	}

	if wait := time.Until(t.next); wait > 0 {
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
	t.next = time.Now().Add(t.sleep)
	return nil
}

func (t *Throttle) release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if done := time.Now().Add(t.sleep); done.After(t.next) {
		t.next = done
	}
}

// Count returns the number of requests admitted so far.
func (t *Throttle) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// sleepCtx sleeps for d or until ctx is done.
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
