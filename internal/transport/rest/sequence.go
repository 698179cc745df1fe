package rest

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/heartmarshall/oeisdb/internal/domain"
	"github.com/heartmarshall/oeisdb/internal/transport/loader"
)

type sequenceReader interface {
	GetByIndex(ctx context.Context, index string) (*domain.Entry, error)
	Find(ctx context.Context, f domain.EntryFilter) ([]domain.Entry, error)
}

// SequenceHandler serves stored sequence entries.
type SequenceHandler struct {
	store sequenceReader
	log   *slog.Logger
}

// NewSequenceHandler creates a SequenceHandler.
func NewSequenceHandler(store sequenceReader, logger *slog.Logger) *SequenceHandler {
	return &SequenceHandler{
		store: store,
		log:   logger.With("handler", "sequence"),
	}
}

type sequenceSummary struct {
	Index    string   `json:"index"`
	Name     string   `json:"name"`
	Offset   int      `json:"offset"`
	Keywords []string `json:"keywords"`
}

// sequenceResponse keeps nil lists as null: null means the record had no
// such tag, [] means the tag was present and empty.
type sequenceResponse struct {
	Index           string           `json:"index"`
	Query           string           `json:"query"`
	OtherIndices    []string         `json:"other_indices"`
	Name            string           `json:"name"`
	Author          string           `json:"author"`
	Offset          int              `json:"offset"`
	FirstNonOneTerm int              `json:"first_non_one_term"`
	Terms           []*big.Int       `json:"terms"`
	TermsError      string           `json:"terms_error,omitempty"`
	References      []string         `json:"references"`
	Links           []string         `json:"links"`
	Keywords        []string         `json:"keywords"`
	Formula         string           `json:"formula,omitempty"`
	CrossReferences string           `json:"cross_references,omitempty"`
	Extensions      string           `json:"extensions,omitempty"`
	Examples        string           `json:"examples,omitempty"`
	Comments        string           `json:"comments,omitempty"`
	Programs        []domain.Program `json:"programs"`
	FetchedAt       time.Time        `json:"fetched_at"`
}

type listResponse struct {
	Items  []sequenceSummary `json:"items"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

type xrefsResponse struct {
	Index      string            `json:"index"`
	Referenced []string          `json:"referenced"`
	Items      []sequenceSummary `json:"items"`
}

func toSummary(e domain.Entry) sequenceSummary {
	kw := e.Keywords
	if kw == nil {
		kw = []string{}
	}
	return sequenceSummary{Index: e.Index, Name: e.Name, Offset: e.Offset, Keywords: kw}
}

func toSummaries(entries []domain.Entry) []sequenceSummary {
	out := make([]sequenceSummary, len(entries))
	for i, e := range entries {
		out[i] = toSummary(e)
	}
	return out
}

func toResponse(e *domain.Entry) sequenceResponse {
	resp := sequenceResponse{
		Index:           e.Index,
		Query:           e.Query(),
		OtherIndices:    e.OtherIndices,
		Name:            e.Name,
		Author:          e.Author,
		Offset:          e.Offset,
		FirstNonOneTerm: e.FirstNonOneTerm,
		References:      e.References,
		Links:           e.Links,
		Keywords:        e.Keywords,
		Formula:         e.Formula,
		CrossReferences: e.CrossReferences,
		Extensions:      e.Extensions,
		Examples:        e.Examples,
		Comments:        e.Comments,
		Programs:        e.Programs,
		FetchedAt:       e.FetchedAt,
	}
	terms, err := e.Terms()
	if err != nil {
		resp.TermsError = err.Error()
	} else {
		resp.Terms = terms
	}
	return resp
}

// List returns entries matching keyword and name filters.
// GET /api/sequences?keyword=nice&name=fibonacci&limit=50&offset=0
func (h *SequenceHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}

	entries, err := h.store.Find(r.Context(), f)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}

	f.Normalize()
	writeJSON(w, http.StatusOK, listResponse{Items: toSummaries(entries), Limit: f.Limit, Offset: f.Offset})
}

func parseFilter(r *http.Request) (domain.EntryFilter, error) {
	q := r.URL.Query()
	f := domain.EntryFilter{Keyword: q.Get("keyword"), Name: q.Get("name")}

	var errs []domain.FieldError
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, domain.FieldError{Field: "limit", Message: "must be a non-negative integer"})
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, domain.FieldError{Field: "offset", Message: "must be a non-negative integer"})
		}
		f.Offset = n
	}
	if len(errs) > 0 {
		return domain.EntryFilter{}, domain.NewValidationErrors(errs)
	}
	return f, nil
}

func (h *SequenceHandler) load(w http.ResponseWriter, r *http.Request) (*domain.Entry, bool) {
	index, err := parseIndex(r.PathValue("index"))
	if err != nil {
		handleError(h.log, w, r, err)
		return nil, false
	}
	e, err := h.store.GetByIndex(r.Context(), index)
	if err != nil {
		handleError(h.log, w, r, err)
		return nil, false
	}
	return e, true
}

// Get returns one entry with its derived terms and query.
// GET /api/sequences/{index}
func (h *SequenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	e, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toResponse(e))
}

// Values returns the entry's terms paired with their positions.
// GET /api/sequences/{index}/values
func (h *SequenceHandler) Values(w http.ResponseWriter, r *http.Request) {
	e, ok := h.load(w, r)
	if !ok {
		return
	}
	values, err := e.Values()
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}

	pairs := make([][2]any, len(values))
	for i, v := range values {
		pairs[i] = [2]any{v.Position, v.Term}
	}
	writeJSON(w, http.StatusOK, pairs)
}

// Xrefs returns the stored entries whose A-numbers appear in the entry's
// cross references. Lookups go through the request's batching loader.
// GET /api/sequences/{index}/xrefs
func (h *SequenceHandler) Xrefs(w http.ResponseWriter, r *http.Request) {
	e, ok := h.load(w, r)
	if !ok {
		return
	}

	refs := domain.ReferencedIndices(e.CrossReferences, e.Index)
	if refs == nil {
		refs = []string{}
	}
	found, err := loader.FromContext(r.Context()).LoadSequences(r.Context(), refs)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, xrefsResponse{Index: e.Index, Referenced: refs, Items: toSummaries(found)})
}
