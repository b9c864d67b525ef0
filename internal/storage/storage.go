// Package storage persists snapshot records: the weekly CSV snapshot,
// optional MongoDB and SQLite sinks, and the CSV-to-SQLite loader.
package storage

import (
	"context"

	"github.com/IshaanNene/cosmerank/internal/types"
)

// Storage is the interface for all storage backends.
type Storage interface {
	// Store persists a batch of records.
	Store(ctx context.Context, records []types.ProductRecord) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}
