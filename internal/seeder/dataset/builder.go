package dataset

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/heartmarshall/oeisdb/internal/domain"
)

// Stats holds builder statistics for logging.
type Stats struct {
	Loaded    int
	Malformed int
	Invalid   int
	Kept      int
}

// Builder runs the load, build and write steps against files and logs
// every skipped line or result.
type Builder struct {
	log       *slog.Logger
	termCount int
}

// NewBuilder creates a Builder keeping termCount leading terms per item.
func NewBuilder(logger *slog.Logger, termCount int) *Builder {
	if termCount <= 0 {
		termCount = DefaultTermCount
	}
	return &Builder{log: logger.With("component", "dataset"), termCount: termCount}
}

// LoadFile reads a JSONL file of raw results. Malformed lines are logged
// with their index and skipped.
func (b *Builder) LoadFile(path string) ([]domain.RawResult, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	var stats Stats
	raws, err := LoadJSONL(f, func(line int, err error) {
		stats.Malformed++
		b.log.Warn("skipping malformed line", slog.Int("line", line), slog.String("error", err.Error()))
	})
	if err != nil {
		return nil, stats, err
	}
	stats.Loaded = len(raws)
	return raws, stats, nil
}

// Build filters raws into dataset items, logging results it cannot shorten.
func (b *Builder) Build(raws []domain.RawResult, stats *Stats) []domain.DatasetItem {
	items := Build(raws, b.termCount, func(number int, err error) {
		stats.Invalid++
		b.log.Warn("skipping result", slog.String("index", domain.IndexFromNumber(number)), slog.String("error", err.Error()))
	})
	stats.Kept = len(items)
	return items
}

// WriteFile writes items as a module to path, creating parent directories.
// The file is written to a temporary name and renamed into place.
func (b *Builder) WriteFile(path string, items []domain.DatasetItem) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir: %w", err)
		}
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	if err := WriteModule(f, items); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

// Run loads rawPath, builds the dataset and writes it to outPath.
func (b *Builder) Run(rawPath, outPath string) (Stats, error) {
	raws, stats, err := b.LoadFile(rawPath)
	if err != nil {
		return stats, fmt.Errorf("load %s: %w", rawPath, err)
	}

	items := b.Build(raws, &stats)
	if err := b.WriteFile(outPath, items); err != nil {
		return stats, fmt.Errorf("write %s: %w", outPath, err)
	}

	b.log.Info("dataset written",
		slog.String("path", outPath),
		slog.Int("loaded", stats.Loaded),
		slog.Int("malformed", stats.Malformed),
		slog.Int("invalid", stats.Invalid),
		slog.Int("kept", stats.Kept),
	)
	return stats, nil
}

// ReadFile reads a module written by WriteFile.
func ReadFile(path string) ([]domain.DatasetItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	return ReadModule(f)
}
