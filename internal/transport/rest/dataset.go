package rest

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net/http"

	"github.com/heartmarshall/oeisdb/internal/domain"
)

type sequenceCounter interface {
	Count(ctx context.Context) (int, error)
}

// DatasetHandler serves the exported game dataset and store statistics.
type DatasetHandler struct {
	items []domain.DatasetItem
	store sequenceCounter
	pick  func(n int) int
	log   *slog.Logger
}

// NewDatasetHandler creates a DatasetHandler over items loaded at startup.
func NewDatasetHandler(items []domain.DatasetItem, store sequenceCounter, logger *slog.Logger) *DatasetHandler {
	return &DatasetHandler{
		items: items,
		store: store,
		pick:  rand.IntN,
		log:   logger.With("handler", "dataset"),
	}
}

type datasetItemResponse struct {
	Number int     `json:"number"`
	Index  string  `json:"index"`
	Name   string  `json:"name"`
	Seq    []int64 `json:"seq"`
}

type statsResponse struct {
	Sequences    int `json:"sequences"`
	DatasetItems int `json:"dataset_items"`
}

// Random returns one dataset item chosen uniformly.
// GET /api/dataset/random
func (h *DatasetHandler) Random(w http.ResponseWriter, r *http.Request) {
	if len(h.items) == 0 {
		writeError(w, http.StatusNotFound, "dataset is empty")
		return
	}
	it := h.items[h.pick(len(h.items))]
	writeJSON(w, http.StatusOK, datasetItemResponse{
		Number: it.Number,
		Index:  domain.IndexFromNumber(it.Number),
		Name:   it.Name,
		Seq:    it.Seq,
	})
}

// Stats reports how many entries are stored and how many dataset items are
// loaded.
// GET /api/stats
func (h *DatasetHandler) Stats(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Count(r.Context())
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Sequences: n, DatasetItems: len(h.items)})
}
