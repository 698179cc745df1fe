// Package seeder orchestrates the offline import: fetching raw search
// results, building the game dataset and storing parsed entries.
package seeder

import (
	"context"

	"github.com/heartmarshall/oeisdb/internal/adapter/provider/oeis"
	"github.com/heartmarshall/oeisdb/internal/domain"
)

// SequenceStore is the write side of the sequence store used by the entries
// phase. Implemented by the postgres and sqlite sequence repositories.
type SequenceStore interface {
	// BulkUpsertEntries returns the number of newly inserted rows.
	BulkUpsertEntries(ctx context.Context, entries []domain.Entry) (int, error)
}

// Source pages through remote search results and fetches single records.
// Implemented by oeis.Client.
type Source interface {
	SearchAll(ctx context.Context, p oeis.SearchParams, fn func(results []domain.RawResult) error) (int, error)
	SearchTextAll(ctx context.Context, p oeis.SearchParams, fn func(blocks []string) error) (int, error)
	GetEntry(ctx context.Context, index string) (*domain.Entry, error)
}
