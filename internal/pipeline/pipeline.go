// Package pipeline assembles snapshot rows through a chain of middleware.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/IshaanNene/cosmerank/internal/observability"
	"github.com/IshaanNene/cosmerank/internal/types"
)

// Middleware processes a record and returns the (possibly modified) record.
// Return nil to drop the record from the pipeline.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a record. Return nil to drop the record.
	Process(ctx context.Context, rec *types.ProductRecord) (*types.ProductRecord, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		metrics: metrics,
		logger:  logger.With("component", "pipeline"),
	}
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the record through all middleware in order.
func (p *Pipeline) Process(ctx context.Context, rec *types.ProductRecord) (*types.ProductRecord, error) {
	current := rec

	for _, mw := range p.middlewares {
		result, err := mw.Process(ctx, current)
		if err != nil {
			return nil, &types.PipelineError{
				Stage:  mw.Name(),
				Record: current,
				Err:    err,
			}
		}
		if result == nil {
			p.metrics.ObserveDrop(mw.Name())
			p.logger.Debug("record dropped", "stage", mw.Name(), "url", rec.RankingURL)
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

// NewDefault builds the row-assembly chain. The image stage runs before the
// name split so brand matching sees the full listing name; pass nil to
// disable image downloads.
func NewDefault(logger *slog.Logger, metrics *observability.Metrics, image *ImageMiddleware) *Pipeline {
	p := New(logger, metrics)
	p.Use(&RequiredFieldsMiddleware{})
	if image != nil {
		p.Use(image)
	}
	p.Use(&RuleSplitMiddleware{})
	p.Use(&TrimMiddleware{})
	return p
}
