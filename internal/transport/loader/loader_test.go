package loader_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/oeisdb/internal/domain"
	"github.com/heartmarshall/oeisdb/internal/transport/loader"
)

type mockRepo struct {
	mu      sync.Mutex
	entries map[string]domain.Entry
	err     error
	calls   [][]string
}

func (m *mockRepo) GetByIndices(_ context.Context, indices []string) ([]domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, slices.Clone(indices))
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Entry
	for _, idx := range indices {
		if e, ok := m.entries[idx]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func newRepo() *mockRepo {
	return &mockRepo{entries: map[string]domain.Entry{
		"A000032": {Index: "A000032", Name: "Lucas numbers."},
		"A000045": {Index: "A000045", Name: "Fibonacci numbers."},
	}}
}

func TestLoadSequences_SingleBatchInOrder(t *testing.T) {
	t.Parallel()

	repo := newRepo()
	l := loader.NewLoaders(repo)

	got, err := l.LoadSequences(context.Background(), []string{"A000045", "A999999", "A000032"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A000045", got[0].Index)
	assert.Equal(t, "A000032", got[1].Index)
	assert.Len(t, repo.calls, 1)
}

func TestLoad_ConcurrentLoadsAreBatchedAndCached(t *testing.T) {
	t.Parallel()

	repo := newRepo()
	l := loader.NewLoaders(repo)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, idx := range []string{"A000045", "A000032", "A000045"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := l.SequenceByIndex.Load(ctx, idx)()
			assert.NoError(t, err)
			if assert.NotNil(t, e) {
				assert.Equal(t, idx, e.Index)
			}
		}()
	}
	wg.Wait()

	e, err := l.SequenceByIndex.Load(ctx, "A000032")()
	require.NoError(t, err)
	require.NotNil(t, e)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	total := 0
	for _, c := range repo.calls {
		total += len(c)
	}
	assert.Equal(t, 2, total, "each distinct index fetched once: %v", repo.calls)
}

func TestLoadSequences_Error(t *testing.T) {
	t.Parallel()

	repo := newRepo()
	repo.err = errors.New("db down")
	l := loader.NewLoaders(repo)

	_, err := l.LoadSequences(context.Background(), []string{"A000045"})
	assert.ErrorContains(t, err, "db down")
}

func TestMiddleware_InjectsLoaders(t *testing.T) {
	t.Parallel()

	var got *loader.Loaders
	h := loader.Middleware(newRepo())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = loader.FromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotNil(t, got)
}

func TestFromContext_PanicsWithoutMiddleware(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { loader.FromContext(context.Background()) })
}
