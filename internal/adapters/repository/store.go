// Package repository stores reference samples as loosely typed rows.
package repository

import (
	"context"

	"github.com/okian/fibertrace/internal/domain/model"
)

// Store provides read/write access to the reference-sample table. Rows are
// returned as the backend produced them; callers coerce them into samples.
type Store interface {
	// List returns every row. The returned records must not be modified.
	List(ctx context.Context) ([]model.Record, error)

	// Get returns the row with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (model.Record, error)

	// Insert adds a row. The row must carry a non-empty id column.
	Insert(ctx context.Context, rec model.Record) error

	// Update replaces the columns present in rec for row id.
	Update(ctx context.Context, id string, rec model.Record) error

	// Delete removes row id. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, id string) error

	// Count returns the number of rows.
	Count(ctx context.Context) (int, error)

	Close() error
}

func recordID(rec model.Record) string {
	return rec.String(model.ColID)
}
