package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/heartmarshall/oeisdb/internal/config"
	"github.com/heartmarshall/oeisdb/internal/metrics"
	"github.com/heartmarshall/oeisdb/internal/metrics/datadog"
)

// SetupMetrics installs the configured metrics backend. The returned func
// detaches it and sends the final flush.
func SetupMetrics(ctx context.Context, cfg config.MetricsConfig, logger *slog.Logger) (func(), error) {
	if cfg.Backend != config.MetricsDatadog {
		return func() {}, nil
	}

	b, err := datadog.NewBackend(ctx, datadog.Options{
		JobName:    cfg.JobName,
		Tags:       cfg.TagList(),
		FlushEvery: cfg.FlushEvery,
	})
	if err != nil {
		return nil, fmt.Errorf("datadog metrics: %w", err)
	}
	metrics.SetBackend(b)
	logger.Info("metrics enabled", slog.String("backend", cfg.Backend), slog.String("job", cfg.JobName))

	return func() {
		metrics.SetBackend(nil)
		if err := b.Close(); err != nil {
			logger.Warn("close metrics backend", slog.String("error", err.Error()))
		}
	}, nil
}
