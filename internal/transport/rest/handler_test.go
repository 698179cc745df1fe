package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"

	"github.com/heartmarshall/oeisdb/internal/config"
	"github.com/heartmarshall/oeisdb/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type storeMock struct {
	entries map[string]domain.Entry
	found   []domain.Entry
	err     error

	mu         sync.Mutex
	lastFilter domain.EntryFilter
}

func newStoreMock(entries ...domain.Entry) *storeMock {
	m := &storeMock{entries: make(map[string]domain.Entry)}
	for _, e := range entries {
		m.entries[e.Index] = e
	}
	return m
}

func (m *storeMock) Ping(context.Context) error { return m.err }

func (m *storeMock) GetByIndex(_ context.Context, index string) (*domain.Entry, error) {
	if m.err != nil {
		return nil, m.err
	}
	e, ok := m.entries[index]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &e, nil
}

func (m *storeMock) GetByIndices(_ context.Context, indices []string) ([]domain.Entry, error) {
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

func (m *storeMock) Find(_ context.Context, f domain.EntryFilter) ([]domain.Entry, error) {
	m.mu.Lock()
	m.lastFilter = f
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.found, nil
}

func (m *storeMock) Count(context.Context) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return len(m.entries), nil
}

func fibEntry() domain.Entry {
	return domain.Entry{
		Index:           "A000045",
		Name:            "Fibonacci numbers",
		Offset:          0,
		FirstNonOneTerm: 4,
		TermsLines:      [3]string{"0,1,1,2,", "3,5,8", ""},
		Keywords:        []string{"core", "nonn", "nice"},
		CrossReferences: "Cf. A000032, A000045, A999999.",
	}
}

func lucasEntry() domain.Entry {
	return domain.Entry{
		Index:      "A000032",
		Name:       "Lucas numbers",
		TermsLines: [3]string{"2,1,3,4", "", ""},
		Keywords:   []string{"nonn"},
	}
}

func newTestRouter(store *storeMock, items []domain.DatasetItem) http.Handler {
	return NewRouter(RouterDeps{
		Store:   store,
		Driver:  "sqlite",
		Dataset: items,
		CORS:    config.CORSConfig{AllowedOrigins: "*", AllowedMethods: "GET,OPTIONS", AllowedHeaders: "Content-Type", MaxAge: 60},
		Version: "test",
		Logger:  newTestLogger(),
	})
}

func serve(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func factorialEntry() domain.Entry {
	return domain.Entry{
		Index: "A000142",
		Name:  "Factorial numbers",
		TermsLines: [3]string{
			"1,1,2,6,24,120,720,5040,40320,362880,3628800,39916800,479001600,6227020800,87178291200,",
			"1307674368000,20922789888000,355687428096000,6402373705728000,121645100408832000,",
			"2432902008176640000,51090942171709440000,1124000727777607680000",
		},
		Keywords: []string{"core", "easy", "nonn", "nice"},
	}
}

func termStrings(terms []*big.Int) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = t.String()
	}
	return out
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func TestSequenceGet(t *testing.T) {
	t.Parallel()

	h := newTestRouter(newStoreMock(fibEntry()), nil)

	for _, target := range []string{"/api/sequences/A000045", "/api/sequences/a000045", "/api/sequences/45"} {
		t.Run(target, func(t *testing.T) {
			t.Parallel()

			rec := serve(t, h, target)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
			}

			resp := decode[sequenceResponse](t, rec)
			if resp.Index != "A000045" {
				t.Errorf("index = %q", resp.Index)
			}
			if resp.Query != "id:A000045" {
				t.Errorf("query = %q", resp.Query)
			}
			want := []string{"0", "1", "1", "2", "3", "5", "8"}
			if got := termStrings(resp.Terms); !reflect.DeepEqual(got, want) {
				t.Errorf("terms = %v, want %v", got, want)
			}
			if resp.TermsError != "" {
				t.Errorf("unexpected terms_error %q", resp.TermsError)
			}
			if resp.Links != nil {
				t.Errorf("absent links should stay null, got %v", resp.Links)
			}
		})
	}
}

func TestSequenceGet_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		store    *storeMock
		target   string
		wantCode int
	}{
		{name: "invalid index", store: newStoreMock(), target: "/api/sequences/B12", wantCode: http.StatusBadRequest},
		{name: "too many digits", store: newStoreMock(), target: "/api/sequences/A1234567", wantCode: http.StatusBadRequest},
		{name: "not found", store: newStoreMock(), target: "/api/sequences/A000001", wantCode: http.StatusNotFound},
		{name: "store failure", store: &storeMock{err: errors.New("disk on fire")}, target: "/api/sequences/A000001", wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := serve(t, newTestRouter(tt.store, nil), tt.target)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d", tt.wantCode, rec.Code)
			}
			resp := decode[errorResponse](t, rec)
			if resp.Error == "" {
				t.Error("expected error message")
			}
			if tt.wantCode == http.StatusInternalServerError && resp.Error != "internal server error" {
				t.Errorf("internal detail leaked: %q", resp.Error)
			}
		})
	}
}

func TestSequenceGet_InvalidIndexReportsField(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestRouter(newStoreMock(), nil), "/api/sequences/nope")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	resp := decode[errorResponse](t, rec)
	if len(resp.Fields) != 1 || resp.Fields[0].Field != "index" {
		t.Errorf("fields = %+v", resp.Fields)
	}
}

func TestSequenceGet_MalformedTermsReported(t *testing.T) {
	t.Parallel()

	bad := fibEntry()
	bad.TermsLines = [3]string{"1,2,x", "", ""}

	rec := serve(t, newTestRouter(newStoreMock(bad), nil), "/api/sequences/A000045")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	resp := decode[sequenceResponse](t, rec)
	if resp.TermsError == "" {
		t.Error("expected terms_error")
	}
	if resp.Terms != nil {
		t.Errorf("terms = %v, want null", resp.Terms)
	}
}

func TestSequenceValues(t *testing.T) {
	t.Parallel()

	e := lucasEntry()
	e.Offset = 1
	h := newTestRouter(newStoreMock(e), nil)

	rec := serve(t, h, "/api/sequences/A000032/values")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	got := decode[[][2]int64](t, rec)
	want := [][2]int64{{1, 2}, {2, 1}, {3, 3}, {4, 4}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("values = %v, want %v", got, want)
	}
}

func TestSequenceGet_TermsBeyondInt64(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestRouter(newStoreMock(factorialEntry()), nil), "/api/sequences/A000142")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[sequenceResponse](t, rec)
	if resp.TermsError != "" {
		t.Fatalf("unexpected terms_error %q", resp.TermsError)
	}
	got := termStrings(resp.Terms)
	if len(got) != 23 || got[21] != "51090942171709440000" {
		t.Errorf("terms = %v", got)
	}
}

func TestSequenceValues_TermsBeyondInt64(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestRouter(newStoreMock(factorialEntry()), nil), "/api/sequences/A000142/values")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[[][2]json.Number](t, rec)
	if len(got) != 23 {
		t.Fatalf("len(values) = %d, want 23", len(got))
	}
	if got[22][0] != "22" || got[22][1] != "1124000727777607680000" {
		t.Errorf("values[22] = %v, want [22 1124000727777607680000]", got[22])
	}
}

func TestSequenceValues_MalformedTerms(t *testing.T) {
	t.Parallel()

	bad := lucasEntry()
	bad.TermsLines = [3]string{"2,,3", "", ""}

	rec := serve(t, newTestRouter(newStoreMock(bad), nil), "/api/sequences/A000032/values")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
}

func TestSequenceList(t *testing.T) {
	t.Parallel()

	store := newStoreMock()
	store.found = []domain.Entry{fibEntry(), {Index: "A000001", Name: "No keywords"}}

	rec := serve(t, newTestRouter(store, nil), "/api/sequences?keyword=nice&name=Fib&limit=10&offset=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	resp := decode[listResponse](t, rec)
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(resp.Items))
	}
	if resp.Items[1].Keywords == nil || len(resp.Items[1].Keywords) != 0 {
		t.Errorf("summary keywords should be [], got %v", resp.Items[1].Keywords)
	}
	if resp.Limit != 10 || resp.Offset != 5 {
		t.Errorf("limit/offset = %d/%d", resp.Limit, resp.Offset)
	}

	store.mu.Lock()
	f := store.lastFilter
	store.mu.Unlock()
	want := domain.EntryFilter{Keyword: "nice", Name: "Fib", Limit: 10, Offset: 5}
	if f != want {
		t.Errorf("filter = %+v, want %+v", f, want)
	}
}

func TestSequenceList_DefaultLimit(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestRouter(newStoreMock(), nil), "/api/sequences")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	resp := decode[listResponse](t, rec)
	if resp.Limit != domain.DefaultFilterLimit {
		t.Errorf("limit = %d, want %d", resp.Limit, domain.DefaultFilterLimit)
	}
	if resp.Items == nil {
		t.Error("items should be [] not null")
	}
}

func TestSequenceList_BadPaging(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestRouter(newStoreMock(), nil), "/api/sequences?limit=ten&offset=-1")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	resp := decode[errorResponse](t, rec)
	if len(resp.Fields) != 2 {
		t.Errorf("expected 2 field errors, got %+v", resp.Fields)
	}
}

func TestSequenceXrefs(t *testing.T) {
	t.Parallel()

	h := newTestRouter(newStoreMock(fibEntry(), lucasEntry()), nil)

	rec := serve(t, h, "/api/sequences/A000045/xrefs")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[xrefsResponse](t, rec)
	if !reflect.DeepEqual(resp.Referenced, []string{"A000032", "A999999"}) {
		t.Errorf("referenced = %v", resp.Referenced)
	}
	if len(resp.Items) != 1 || resp.Items[0].Index != "A000032" {
		t.Errorf("items = %+v", resp.Items)
	}
}

func TestSequenceXrefs_None(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestRouter(newStoreMock(lucasEntry()), nil), "/api/sequences/A000032/xrefs")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	resp := decode[xrefsResponse](t, rec)
	if len(resp.Referenced) != 0 || len(resp.Items) != 0 {
		t.Errorf("expected empty xrefs, got %+v", resp)
	}
}

func TestDatasetRandom(t *testing.T) {
	t.Parallel()

	items := []domain.DatasetItem{
		{Number: 45, Name: "Fibonacci numbers", Seq: []int64{0, 1, 1, 2}},
		{Number: 32, Name: "Lucas numbers", Seq: []int64{2, 1, 3, 4}},
	}
	h := NewDatasetHandler(items, newStoreMock(), newTestLogger())
	h.pick = func(n int) int { return n - 1 }

	rec := serve(t, http.HandlerFunc(h.Random), "/api/dataset/random")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	resp := decode[datasetItemResponse](t, rec)
	if resp.Number != 32 || resp.Index != "A000032" || resp.Name != "Lucas numbers" {
		t.Errorf("unexpected item %+v", resp)
	}
}

func TestDatasetRandom_Empty(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestRouter(newStoreMock(), nil), "/api/dataset/random")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	items := []domain.DatasetItem{{Number: 45, Name: "Fibonacci numbers", Seq: []int64{0, 1}}}
	rec := serve(t, newTestRouter(newStoreMock(fibEntry(), lucasEntry()), items), "/api/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	resp := decode[statsResponse](t, rec)
	if resp.Sequences != 2 || resp.DatasetItems != 1 {
		t.Errorf("stats = %+v", resp)
	}
}

func TestStats_StoreError(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestRouter(&storeMock{err: errors.New("boom")}, nil), "/api/stats")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
}

func TestRouter_Middleware(t *testing.T) {
	t.Parallel()

	h := newTestRouter(newStoreMock(), nil)

	t.Run("request id", func(t *testing.T) {
		t.Parallel()
		rec := serve(t, h, "/live")
		if rec.Header().Get("X-Request-Id") == "" {
			t.Error("expected X-Request-Id header")
		}
	})

	t.Run("unknown route", func(t *testing.T) {
		t.Parallel()
		rec := serve(t, h, "/api/nothing")
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/api/stats", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status 405, got %d", rec.Code)
		}
	})

	t.Run("cors preflight", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodOptions, "/api/stats", nil)
		req.Header.Set("Origin", "https://example.org")
		req.Header.Set("Access-Control-Request-Method", "GET")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Errorf("expected status 204, got %d", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://example.org" {
			t.Errorf("Access-Control-Allow-Origin = %q", got)
		}
	})
}

func TestRouter_NoCORSWithoutOrigins(t *testing.T) {
	t.Parallel()

	h := NewRouter(RouterDeps{Store: newStoreMock(), Driver: "sqlite", Logger: newTestLogger()})

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("Origin", "https://example.org")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS header, got %q", got)
	}
}
