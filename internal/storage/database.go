package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/cosmerank/internal/config"
	"github.com/IshaanNene/cosmerank/internal/types"
)

// MongoStorage writes records to a MongoDB collection, one document per row.
type MongoStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
	runID      string
	mu         sync.Mutex
	count      int
	logger     *slog.Logger
}

// NewMongoStorage connects to cfg.URI and pings the server. runID is stored
// on every document so rows of one collection run can be found together.
func NewMongoStorage(ctx context.Context, cfg config.MongoConfig, runID string, logger *slog.Logger) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return &MongoStorage{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		runID:      runID,
		logger:     logger.With("component", "mongo_storage"),
	}, nil
}

func (s *MongoStorage) Name() string { return "mongodb" }

func (s *MongoStorage) Store(ctx context.Context, records []types.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make([]any, len(records))
	for i := range records {
		docs[i] = recordDoc(&records[i], s.runID)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := s.collection.InsertMany(ctx, docs); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("mongodb insert: %w", err)}
	}

	s.count += len(records)
	s.logger.Debug("records stored in mongodb", "count", len(records), "total", s.count)
	return nil
}

func (s *MongoStorage) Close() error {
	s.logger.Info("mongodb storage closing", "total_records", s.count)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// recordDoc keeps numeric columns numeric and nil columns null.
func recordDoc(r *types.ProductRecord, runID string) bson.D {
	doc := bson.D{
		{Key: "date", Value: r.Date},
		{Key: "collected_at", Value: r.CollectedAt},
		{Key: "source", Value: r.Source},
		{Key: "market", Value: r.Market},
		{Key: "category_id", Value: r.CategoryID},
		{Key: "category_name", Value: r.CategoryName},
		{Key: "ranking_type", Value: r.RankingType},
		{Key: "ranking_url", Value: r.RankingURL},
		{Key: "global_rank", Value: nullable(r.GlobalRank)},
		{Key: "page_rank", Value: nullable(r.PageRank)},
		{Key: "group_type", Value: nullable(r.GroupType)},
		{Key: "group_value", Value: nullable(r.GroupValue)},
		{Key: "group_rank", Value: nullable(r.GroupRank)},
		{Key: "product_id", Value: r.ProductID},
		{Key: "product_name", Value: r.ProductName},
		{Key: "brand_name", Value: r.BrandName},
		{Key: "product_url", Value: r.ProductURL},
		{Key: "image_url", Value: r.ImageURL},
		{Key: "image_path", Value: r.ImagePath},
		{Key: "rating_score", Value: nullable(r.RatingScore)},
		{Key: "review_count", Value: nullable(r.ReviewCount)},
		{Key: "price_text", Value: r.PriceText},
		{Key: "rank_change_text", Value: r.RankChangeText},
		{Key: "brand_url", Value: r.BrandURL},
	}
	if runID != "" {
		doc = append(doc, bson.E{Key: "_run_id", Value: runID})
	}
	return doc
}

func nullable[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}

// --- Multi-Storage Fan-Out ---

// MultiStorage writes records to multiple backends.
type MultiStorage struct {
	backends []Storage
	logger   *slog.Logger
}

// NewMultiStorage creates a storage that fans out to multiple backends.
func NewMultiStorage(backends []Storage, logger *slog.Logger) *MultiStorage {
	return &MultiStorage{
		backends: backends,
		logger:   logger.With("component", "multi_storage"),
	}
}

func (s *MultiStorage) Name() string { return "multi" }

// Len returns the number of backends.
func (s *MultiStorage) Len() int { return len(s.backends) }

func (s *MultiStorage) Store(ctx context.Context, records []types.ProductRecord) error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Store(ctx, records); err != nil {
			s.logger.Error("backend store failed", "backend", backend.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *MultiStorage) Close() error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Close(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
