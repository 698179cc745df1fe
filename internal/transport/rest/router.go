package rest

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/heartmarshall/oeisdb/internal/config"
	"github.com/heartmarshall/oeisdb/internal/domain"
	"github.com/heartmarshall/oeisdb/internal/transport/loader"
	"github.com/heartmarshall/oeisdb/internal/transport/middleware"
)

// Store is the read side of a sequence store, implemented by both the
// postgres and sqlite adapters.
type Store interface {
	Ping(ctx context.Context) error
	GetByIndex(ctx context.Context, index string) (*domain.Entry, error)
	GetByIndices(ctx context.Context, indices []string) ([]domain.Entry, error)
	Find(ctx context.Context, f domain.EntryFilter) ([]domain.Entry, error)
	Count(ctx context.Context) (int, error)
}

// RouterDeps holds everything NewRouter wires together.
type RouterDeps struct {
	Store   Store
	Driver  string
	Dataset []domain.DatasetItem
	CORS    config.CORSConfig
	Version string
	Logger  *slog.Logger
}

// NewRouter builds the HTTP handler for the read API. Every request passes
// through RequestID, Logger, Recovery and CORS in that order; CORS is left
// out when no origins are allowed. /api routes additionally get per-request
// sequence loaders.
func NewRouter(d RouterDeps) http.Handler {
	health := NewHealthHandler(d.Store, d.Driver, len(d.Dataset), d.Version)
	seqs := NewSequenceHandler(d.Store, d.Logger)
	ds := NewDatasetHandler(d.Dataset, d.Store, d.Logger)

	withLoaders := loader.Middleware(d.Store)
	api := func(h http.HandlerFunc) http.Handler { return withLoaders(h) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /live", health.Live)
	mux.HandleFunc("GET /ready", health.Ready)
	mux.HandleFunc("GET /health", health.Health)

	mux.Handle("GET /api/sequences", api(seqs.List))
	mux.Handle("GET /api/sequences/{index}", api(seqs.Get))
	mux.Handle("GET /api/sequences/{index}/values", api(seqs.Values))
	mux.Handle("GET /api/sequences/{index}/xrefs", api(seqs.Xrefs))
	mux.Handle("GET /api/dataset/random", api(ds.Random))
	mux.Handle("GET /api/stats", api(ds.Stats))

	var cors middleware.Middleware
	if strings.TrimSpace(d.CORS.AllowedOrigins) != "" {
		cors = middleware.CORS(d.CORS)
	}

	chain := middleware.Chain(
		middleware.RequestID(),
		middleware.Logger(d.Logger),
		middleware.Recovery(d.Logger),
		cors,
	)
	return chain(mux)
}
