// Command seeder imports integer-sequence data from the remote search
// service. It is intended to be run offline, not as part of the main server.
//
// Phases, in order:
//
//	fetch    page through JSON search results into a JSONL file
//	dataset  build the game dataset module from the JSONL file
//	entries  parse text-format records and upsert them into the store
//
// Flags:
//
//	--phase          comma-separated list of phases to run (default: all)
//	--dry-run        fetch and parse without writing files or the store
//	--seeder-config  path to seeder YAML config file
//	--migrate        apply pending postgres migrations before importing
//
// Exit codes: 0 = success, 1 = error.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/heartmarshall/oeisdb/internal/adapter/provider/oeis"
	"github.com/heartmarshall/oeisdb/internal/app"
	"github.com/heartmarshall/oeisdb/internal/app/seeder"
	"github.com/heartmarshall/oeisdb/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	phaseFlag := flag.String("phase", "", "comma-separated phases to run (default: all)")
	dryRunFlag := flag.Bool("dry-run", false, "fetch and parse without writing files or the store")
	seederConfigFlag := flag.String("seeder-config", "", "path to seeder YAML config file")
	migrateFlag := flag.Bool("migrate", false, "apply pending postgres migrations first")
	flag.Parse()

	// App config supplies storage, remote client and metrics settings.
	appCfg, err := config.Load()
	if err != nil {
		log.Fatalf("load app config: %v", err)
	}

	logger := app.NewLogger(appCfg.Log)

	seederCfg, err := seeder.LoadConfig(*seederConfigFlag)
	if err != nil {
		logger.Error("load seeder config", slog.String("error", err.Error()))
		return 1
	}

	// CLI flags override config.
	if *dryRunFlag {
		seederCfg.DryRun = true
	}

	phases, err := seeder.ParsePhases(*phaseFlag)
	if err != nil {
		logger.Error("parse phases", slog.String("error", err.Error()))
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopMetrics, err := app.SetupMetrics(ctx, appCfg.Metrics, logger)
	if err != nil {
		logger.Error("setup metrics", slog.String("error", err.Error()))
		return 1
	}
	defer stopMetrics()

	// The store is only needed when entries are written.
	var store seeder.SequenceStore
	if !seederCfg.DryRun && (len(phases) == 0 || slices.Contains(phases, seeder.PhaseEntries)) {
		s, closeStore, err := app.OpenStore(ctx, appCfg, *migrateFlag, logger)
		if err != nil {
			logger.Error("open store", slog.String("error", err.Error()))
			return 1
		}
		defer closeStore()
		store = s
	}

	client := oeis.NewClient(appCfg.OEIS, logger)

	pipeline := seeder.NewPipeline(logger, client, store, *seederCfg)
	if err := pipeline.Run(ctx, phases); err != nil {
		logger.Error("pipeline failed",
			slog.String("run_id", pipeline.RunID().String()),
			slog.String("error", err.Error()),
		)
		return 1
	}

	if pipeline.HasErrors() {
		logger.Warn("pipeline completed with errors", slog.String("run_id", pipeline.RunID().String()))
		return 1
	}

	logger.Info("pipeline completed successfully", slog.String("run_id", pipeline.RunID().String()))
	return 0
}
