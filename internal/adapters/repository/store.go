// Package repository persists prediction records.
package repository

import (
	"context"

	"github.com/okian/visiontags/internal/domain/model"
)

// Store provides read/write access to prediction records.
type Store interface {
	// Insert adds a record and returns it with its insertion sequence set.
	// Returns ErrDuplicate if the id already exists.
	Insert(ctx context.Context, r model.Record) (model.Record, error)

	// UpdateCoordinates overwrites the projected coordinates of every listed
	// record in one atomic step. Unknown ids are ignored.
	UpdateCoordinates(ctx context.Context, coords map[string]model.Point) error

	// UpdateGroundTruth sets a record's ground-truth label.
	// Returns ErrNotFound if the id is unknown.
	UpdateGroundTruth(ctx context.Context, id, label string) error

	// LastN returns the n most recent records, oldest first.
	LastN(ctx context.Context, n int) ([]model.Record, error)

	// Get returns one record. Returns ErrNotFound if the id is unknown.
	Get(ctx context.Context, id string) (model.Record, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Close releases resources held by the store.
	Close() error
}

// Backend names.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)
