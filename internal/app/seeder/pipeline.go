package seeder

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/heartmarshall/oeisdb/internal/adapter/provider/oeis"
	"github.com/heartmarshall/oeisdb/internal/domain"
	"github.com/heartmarshall/oeisdb/internal/metrics"
	"github.com/heartmarshall/oeisdb/internal/seeder/dataset"
	oeisparser "github.com/heartmarshall/oeisdb/internal/seeder/oeis"
)

// Phase names.
const (
	PhaseFetch   = "fetch"
	PhaseDataset = "dataset"
	PhaseEntries = "entries"
)

// allPhases defines the canonical execution order.
var allPhases = []string{PhaseFetch, PhaseDataset, PhaseEntries}

const excerptLen = 120

// PhaseResult holds the outcome of a single pipeline phase.
type PhaseResult struct {
	Inserted int
	Updated  int
	Skipped  int
	Errors   int
	Duration time.Duration
	Err      error
}

// Pipeline orchestrates the fetch, dataset and entries phases.
type Pipeline struct {
	log     *slog.Logger
	source  Source
	store   SequenceStore
	cfg     Config
	runID   uuid.UUID
	results map[string]PhaseResult
}

// NewPipeline creates a new Pipeline. source may be nil when only the dataset
// phase runs or entries come from Config.TextPath; store may be nil in
// dry-run mode.
func NewPipeline(log *slog.Logger, source Source, store SequenceStore, cfg Config) *Pipeline {
	runID := uuid.New()
	return &Pipeline{
		log:     log.With("component", "seeder", slog.String("run_id", runID.String())),
		source:  source,
		store:   store,
		cfg:     cfg,
		runID:   runID,
		results: make(map[string]PhaseResult),
	}
}

// RunID identifies this pipeline run in logs.
func (p *Pipeline) RunID() uuid.UUID {
	return p.runID
}

// Results returns phase results after Run completes.
func (p *Pipeline) Results() map[string]PhaseResult {
	return p.results
}

// HasErrors returns true if any phase recorded errors.
func (p *Pipeline) HasErrors() bool {
	for _, r := range p.results {
		if r.Err != nil || r.Errors > 0 {
			return true
		}
	}
	return false
}

// ParsePhases splits a comma-separated phase list. An empty string selects
// every phase. Unknown names are an error.
func ParsePhases(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var phases []string
	for _, ph := range strings.Split(s, ",") {
		ph = strings.TrimSpace(ph)
		if ph == "" {
			continue
		}
		if !isKnownPhase(ph) {
			return nil, fmt.Errorf("unknown phase %q (want %s)", ph, strings.Join(allPhases, ", "))
		}
		phases = append(phases, ph)
	}
	return phases, nil
}

func isKnownPhase(ph string) bool {
	for _, known := range allPhases {
		if ph == known {
			return true
		}
	}
	return false
}

// Run executes the pipeline. If phases is non-empty, only the listed phases
// run, always in canonical order.
func (p *Pipeline) Run(ctx context.Context, phases []string) error {
	toRun := allPhases
	if len(phases) > 0 {
		filter := make(map[string]bool, len(phases))
		for _, ph := range phases {
			if !isKnownPhase(ph) {
				return fmt.Errorf("unknown phase %q", ph)
			}
			filter[ph] = true
		}
		var filtered []string
		for _, ph := range allPhases {
			if filter[ph] {
				filtered = append(filtered, ph)
			}
		}
		toRun = filtered
	}

	for _, phase := range toRun {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline interrupted before %s: %w", phase, err)
		}

		start := time.Now()
		p.log.Info("starting phase", slog.String("phase", phase), slog.Bool("dry_run", p.cfg.DryRun))

		var result PhaseResult
		switch phase {
		case PhaseFetch:
			result = p.runFetch(ctx)
		case PhaseDataset:
			result = p.runDataset()
		case PhaseEntries:
			result = p.runEntries(ctx)
		}
		result.Duration = time.Since(start)
		p.results[phase] = result

		metrics.RecordPhase(phase, result.Err, result.Duration)
		metrics.RecordRecords("inserted", result.Inserted)
		metrics.RecordRecords("updated", result.Updated)
		metrics.RecordRecords("skipped", result.Skipped)
		metrics.RecordRecords("errors", result.Errors)

		if result.Err != nil {
			p.log.Warn("phase failed",
				slog.String("phase", phase),
				slog.String("error", result.Err.Error()),
				slog.Duration("duration", result.Duration),
			)
		} else {
			p.log.Info("phase completed",
				slog.String("phase", phase),
				slog.Int("inserted", result.Inserted),
				slog.Int("updated", result.Updated),
				slog.Int("skipped", result.Skipped),
				slog.Int("errors", result.Errors),
				slog.Duration("duration", result.Duration),
			)
		}
	}

	p.log.Info("pipeline completed", slog.Int("phases_run", len(toRun)))
	return nil
}

// runFetch streams every search result for the configured query to RawPath,
// one JSON object per line. The file is replaced only when the fetch
// completes.
func (p *Pipeline) runFetch(ctx context.Context) PhaseResult {
	if p.source == nil {
		return PhaseResult{Skipped: 1, Err: fmt.Errorf("search source not configured")}
	}
	if p.cfg.DryRun {
		n := 0
		_, err := p.source.SearchAll(ctx, oeis.SearchParams{Query: p.cfg.Query}, func(results []domain.RawResult) error {
			n += len(results)
			return nil
		})
		if err != nil {
			return PhaseResult{Err: fmt.Errorf("search: %w", err)}
		}
		return PhaseResult{Skipped: n}
	}

	if err := ensureDir(p.cfg.RawPath); err != nil {
		return PhaseResult{Err: err}
	}
	tmp := p.cfg.RawPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return PhaseResult{Err: fmt.Errorf("create raw file: %w", err)}
	}
	defer os.Remove(tmp)

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	n, err := p.source.SearchAll(ctx, oeis.SearchParams{Query: p.cfg.Query}, func(results []domain.RawResult) error {
		for _, r := range results {
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("encode %s: %w", domain.IndexFromNumber(r.Number), err)
			}
		}
		metrics.RecordBatch()
		return nil
	})
	if err != nil {
		f.Close()
		return PhaseResult{Inserted: n, Err: fmt.Errorf("search: %w", err)}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return PhaseResult{Err: fmt.Errorf("flush raw file: %w", err)}
	}
	if err := f.Close(); err != nil {
		return PhaseResult{Err: fmt.Errorf("close raw file: %w", err)}
	}
	if err := os.Rename(tmp, p.cfg.RawPath); err != nil {
		return PhaseResult{Err: fmt.Errorf("rename raw file: %w", err)}
	}

	p.log.Info("raw results written", slog.String("path", p.cfg.RawPath), slog.Int("results", n))
	return PhaseResult{Inserted: n}
}

// runDataset builds the single-digit game dataset from RawPath.
func (p *Pipeline) runDataset() PhaseResult {
	b := dataset.NewBuilder(p.log, p.cfg.TermCount)

	raws, stats, err := b.LoadFile(p.cfg.RawPath)
	if err != nil {
		return PhaseResult{Err: fmt.Errorf("load %s: %w", p.cfg.RawPath, err)}
	}
	items := b.Build(raws, &stats)

	result := PhaseResult{
		Errors:  stats.Malformed + stats.Invalid,
		Skipped: stats.Loaded - stats.Invalid - stats.Kept,
	}
	if p.cfg.DryRun {
		result.Skipped += stats.Kept
		return result
	}

	if err := b.WriteFile(p.cfg.DatasetPath, items); err != nil {
		result.Err = fmt.Errorf("write %s: %w", p.cfg.DatasetPath, err)
		return result
	}
	result.Inserted = stats.Kept

	p.log.Info("dataset written",
		slog.String("path", p.cfg.DatasetPath),
		slog.Int("loaded", stats.Loaded),
		slog.Int("kept", stats.Kept),
	)
	return result
}

// runEntries parses text records page by page and upserts them. A record
// that fails to parse is logged and counted; it never stops the phase.
func (p *Pipeline) runEntries(ctx context.Context) PhaseResult {
	if p.store == nil && !p.cfg.DryRun {
		return PhaseResult{Skipped: 1, Err: fmt.Errorf("sequence store not configured")}
	}

	var result PhaseResult
	position := 0

	if p.cfg.TextPath != "" {
		parsed, err := oeisparser.ParseFile(p.cfg.TextPath)
		if err != nil {
			return PhaseResult{Err: fmt.Errorf("parse %s: %w", p.cfg.TextPath, err)}
		}
		if err := p.storeParsed(ctx, parsed, position, &result); err != nil {
			result.Err = err
		}
		return result
	}

	if p.source == nil {
		return PhaseResult{Skipped: 1, Err: fmt.Errorf("search source not configured")}
	}
	if len(p.cfg.Indices) > 0 {
		return p.fetchIndices(ctx)
	}
	_, err := p.source.SearchTextAll(ctx, oeis.SearchParams{Query: p.cfg.Query}, func(blocks []string) error {
		parsed := oeisparser.ParseMany(blocks)
		if err := p.storeParsed(ctx, parsed, position, &result); err != nil {
			return err
		}
		position += parsed.Stats.TotalRecords
		return nil
	})
	if err != nil {
		result.Err = fmt.Errorf("search text: %w", err)
	}
	return result
}

// fetchIndices fetches each configured record on its own. A record that
// cannot be fetched or parsed is counted as an error; cancellation stops the
// phase.
func (p *Pipeline) fetchIndices(ctx context.Context) PhaseResult {
	var (
		result PhaseResult
		parsed oeisparser.ParseResult
	)
	for i, idx := range p.cfg.Indices {
		e, err := p.source.GetEntry(ctx, idx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				result.Err = fmt.Errorf("get %s: %w", idx, ctxErr)
				return result
			}
			parsed.Failures = append(parsed.Failures, oeisparser.Failure{Position: i, Raw: idx, Err: err})
			continue
		}
		parsed.Entries = append(parsed.Entries, *e)
	}
	if err := p.storeParsed(ctx, parsed, 0, &result); err != nil {
		result.Err = err
	}
	return result
}

// storeParsed logs the failures of one parsed page and upserts its entries
// in BatchSize batches. base is the position of the page's first record.
func (p *Pipeline) storeParsed(ctx context.Context, parsed oeisparser.ParseResult, base int, result *PhaseResult) error {
	for _, f := range parsed.Failures {
		result.Errors++
		p.log.Warn("skipping record",
			slog.Int("position", base+f.Position),
			slog.String("raw", excerpt(f.Raw)),
			slog.String("error", f.Err.Error()),
		)
	}

	if p.cfg.DryRun {
		result.Skipped += len(parsed.Entries)
		return nil
	}

	_, err := batchProcess(parsed.Entries, p.cfg.BatchSize, func(batch []domain.Entry) (int, error) {
		n, err := p.store.BulkUpsertEntries(ctx, batch)
		if err != nil {
			return 0, err
		}
		metrics.RecordBatch()
		result.Inserted += n
		result.Updated += len(batch) - n
		return n, nil
	})
	if err != nil {
		return fmt.Errorf("upsert entries: %w", err)
	}
	return nil
}

// batchProcess splits items into batches and processes each via fn.
func batchProcess[T any](items []T, batchSize int, fn func([]T) (int, error)) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	total := 0
	for i := 0; i < len(items); i += batchSize {
		end := min(i+batchSize, len(items))
		n, err := fn(items[i:end])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// excerpt returns the start of a raw record on one line, for logs.
func excerpt(raw string) string {
	s := strings.Join(strings.Fields(raw), " ")
	if utf8.RuneCountInString(s) <= excerptLen {
		return s
	}
	r := []rune(s)
	return string(r[:excerptLen]) + "..."
}

func ensureDir(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir: %w", err)
		}
	}
	return nil
}
