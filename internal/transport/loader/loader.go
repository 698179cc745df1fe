// Package loader provides per-request DataLoaders that batch sequence lookups
// by A-number into single GetByIndices store calls.
package loader

import (
	"context"
	"net/http"
	"time"

	"github.com/graph-gophers/dataloader/v7"

	"github.com/heartmarshall/oeisdb/internal/domain"
)

const (
	maxBatch = 100
	wait     = 2 * time.Millisecond
)

// sequenceRepo is the batch read the loaders need.
type sequenceRepo interface {
	GetByIndices(ctx context.Context, indices []string) ([]domain.Entry, error)
}

// Loaders holds the per-request DataLoader instances.
type Loaders struct {
	// SequenceByIndex yields nil for an index that is not stored.
	SequenceByIndex *dataloader.Loader[string, *domain.Entry]
}

// NewLoaders creates a new set of DataLoaders backed by repo.
// Must be called per-request (loaders cache results within a single request).
func NewLoaders(repo sequenceRepo) *Loaders {
	return &Loaders{
		SequenceByIndex: dataloader.NewBatchedLoader(
			newSequenceBatchFn(repo),
			dataloader.WithWait[string, *domain.Entry](wait),
			dataloader.WithBatchCapacity[string, *domain.Entry](maxBatch),
		),
	}
}

func newSequenceBatchFn(repo sequenceRepo) dataloader.BatchFunc[string, *domain.Entry] {
	return func(ctx context.Context, keys []string) []*dataloader.Result[*domain.Entry] {
		entries, err := repo.GetByIndices(ctx, keys)
		if err != nil {
			results := make([]*dataloader.Result[*domain.Entry], len(keys))
			for i := range results {
				results[i] = &dataloader.Result[*domain.Entry]{Error: err}
			}
			return results
		}

		byIndex := make(map[string]*domain.Entry, len(entries))
		for i := range entries {
			byIndex[entries[i].Index] = &entries[i]
		}

		results := make([]*dataloader.Result[*domain.Entry], len(keys))
		for i, key := range keys {
			results[i] = &dataloader.Result[*domain.Entry]{Data: byIndex[key]}
		}
		return results
	}
}

// LoadSequences resolves indices through the request's loader, in input
// order, dropping indices that are not stored.
func (l *Loaders) LoadSequences(ctx context.Context, indices []string) ([]domain.Entry, error) {
	found, errs := l.SequenceByIndex.LoadMany(ctx, indices)()
	out := make([]domain.Entry, 0, len(found))
	for i, e := range found {
		if i < len(errs) && errs[i] != nil {
			return nil, errs[i]
		}
		if e != nil {
			out = append(out, *e)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

type contextKey string

const loadersKey contextKey = "loaders"

// WithLoaders stores Loaders in the context.
func WithLoaders(ctx context.Context, l *Loaders) context.Context {
	return context.WithValue(ctx, loadersKey, l)
}

// FromContext retrieves Loaders from the context.
// Panics if loaders are not present (indicates middleware misconfiguration).
func FromContext(ctx context.Context) *Loaders {
	l, ok := ctx.Value(loadersKey).(*Loaders)
	if !ok || l == nil {
		panic("loader: loaders not found in context, is Middleware configured?")
	}
	return l
}

// Middleware creates an HTTP middleware that instantiates per-request
// Loaders and stores them in the request context.
func Middleware(repo sequenceRepo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithLoaders(r.Context(), NewLoaders(repo))))
		})
	}
}
