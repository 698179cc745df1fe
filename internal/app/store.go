package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/heartmarshall/oeisdb/internal/adapter/postgres"
	pgsequence "github.com/heartmarshall/oeisdb/internal/adapter/postgres/sequence"
	sqlitesequence "github.com/heartmarshall/oeisdb/internal/adapter/sqlite/sequence"
	"github.com/heartmarshall/oeisdb/internal/config"
	"github.com/heartmarshall/oeisdb/internal/domain"
	"github.com/heartmarshall/oeisdb/internal/transport/rest"
)

// SequenceStore is a full sequence store: the read side served over HTTP and
// the bulk write used by the seeder.
type SequenceStore interface {
	rest.Store
	BulkUpsertEntries(ctx context.Context, entries []domain.Entry) (int, error)
}

var (
	_ SequenceStore = (*pgsequence.Repo)(nil)
	_ SequenceStore = (*sqlitesequence.Repo)(nil)
)

// OpenStore opens the store selected by cfg.Storage.Driver. The returned
// func releases it. With migrate set, pending postgres migrations are applied
// first; the sqlite store always migrates on open.
func OpenStore(ctx context.Context, cfg *config.Config, migrate bool, logger *slog.Logger) (SequenceStore, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		repo, err := sqlitesequence.Open(ctx, cfg.Storage.SQLitePath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		closeFn := func() {
			if err := repo.Close(); err != nil {
				logger.Warn("close sqlite store", slog.String("error", err.Error()))
			}
		}
		return repo, closeFn, nil

	case config.DriverPostgres:
		if migrate {
			if err := postgres.Migrate(ctx, cfg.Database.DSN, logger); err != nil {
				return nil, nil, err
			}
		}
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		txm := postgres.NewTxManager(pool)
		return pgsequence.New(pool, txm), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
