package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/heartmarshall/oeisdb/internal/config"
	"github.com/heartmarshall/oeisdb/internal/domain"
	"github.com/heartmarshall/oeisdb/internal/seeder/dataset"
	"github.com/heartmarshall/oeisdb/internal/transport/rest"
)

// Run is the server entry point. It loads configuration, opens the sequence
// store, loads the game dataset and serves the read API until ctx is
// cancelled, then shuts the HTTP server down gracefully.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := NewLogger(cfg.Log)

	logger.Info("starting application",
		slog.String("version", BuildVersion()),
		slog.String("log_level", cfg.Log.Level),
		slog.String("storage", cfg.Storage.Driver),
	)

	stopMetrics, err := SetupMetrics(ctx, cfg.Metrics, logger)
	if err != nil {
		return err
	}
	defer stopMetrics()

	store, closeStore, err := OpenStore(ctx, cfg, false, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	items, err := loadDataset(cfg.Dataset.Path, logger)
	if err != nil {
		return err
	}

	handler := rest.NewRouter(rest.RouterDeps{
		Store:   store,
		Driver:  cfg.Storage.Driver,
		Dataset: items,
		CORS:    cfg.CORS,
		Version: BuildVersion(),
		Logger:  logger,
	})

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	return serve(ctx, srv, cfg.Server, logger)
}

func serve(ctx context.Context, srv *http.Server, cfg config.ServerConfig, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", slog.Duration("timeout", cfg.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return <-errCh
}

// loadDataset reads the exported dataset module. A missing file is not an
// error: the server starts with an empty dataset.
func loadDataset(path string, logger *slog.Logger) ([]domain.DatasetItem, error) {
	items, err := dataset.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("dataset file not found, serving empty dataset", slog.String("path", path))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", path, err)
	}
	logger.Info("dataset loaded", slog.String("path", path), slog.Int("items", len(items)))
	return items, nil
}
