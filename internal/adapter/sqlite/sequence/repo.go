// Package sequence implements sequence persistence using SQLite.
//
// SQLite has no array or JSONB types, so list columns are stored as JSON
// text. A NULL list column means the record had no such tag; "[]" means it
// had the tag with no items. Timestamps are stored as RFC3339Nano strings.
package sequence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/heartmarshall/oeisdb/internal/domain"
	"github.com/heartmarshall/oeisdb/migrations"
)

var columns = []string{
	`"index"`, "other_indices", "name", "author", `"offset"`, "first_non_one_term",
	"terms_lines", `"references"`, "links", "keywords", "formula", "cross_references",
	"extensions", "examples", "comments", "programs", "fetched_at",
}

var sqlb = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Repo provides sequence persistence backed by SQLite.
type Repo struct {
	db *sql.DB
}

// Open opens (or creates) the database at path, applies migrations and
// returns a Repo. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Repo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One connection: SQLite serialises writers anyway and ":memory:" is
	// per connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: pragmas: %w", err)
	}

	if err := migrate(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.SQLite())
	if err != nil {
		return fmt.Errorf("sqlite: migrate: new provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: migrate: up: %w", err)
	}
	for _, r := range results {
		logger.Info("migration applied",
			slog.Int64("version", r.Source.Version),
			slog.String("path", r.Source.Path),
			slog.Duration("duration", r.Duration),
		)
	}
	return nil
}

// Close releases the database handle.
func (r *Repo) Close() error {
	return r.db.Close()
}

// Ping checks the database connection.
func (r *Repo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const upsertSQL = `INSERT INTO sequences (
	"index", other_indices, name, name_normalized, author, "offset", first_non_one_term,
	terms_lines, "references", links, keywords, formula, cross_references,
	extensions, examples, comments, programs, fetched_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT ("index") DO UPDATE SET
	other_indices      = excluded.other_indices,
	name               = excluded.name,
	name_normalized    = excluded.name_normalized,
	author             = excluded.author,
	"offset"           = excluded."offset",
	first_non_one_term = excluded.first_non_one_term,
	terms_lines        = excluded.terms_lines,
	"references"       = excluded."references",
	links              = excluded.links,
	keywords           = excluded.keywords,
	formula            = excluded.formula,
	cross_references   = excluded.cross_references,
	extensions         = excluded.extensions,
	examples           = excluded.examples,
	comments           = excluded.comments,
	programs           = excluded.programs,
	fetched_at         = excluded.fetched_at`

// BulkUpsertEntries inserts or updates entries by index in one transaction.
// Returns the number of newly inserted rows; the rest were updated.
func (r *Repo) BulkUpsertEntries(ctx context.Context, entries []domain.Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	for _, e := range entries {
		if !domain.ValidIndex(e.Index) {
			return 0, fmt.Errorf("sequence repo: bulk upsert: %w",
				domain.NewValidationError("index", fmt.Sprintf("invalid A-number %q", e.Index)))
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sequence repo: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	indices := make([]string, len(entries))
	for i, e := range entries {
		indices[i] = e.Index
	}
	existing, err := existingIndices(ctx, tx, indices)
	if err != nil {
		return 0, fmt.Errorf("sequence repo: bulk upsert: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return 0, fmt.Errorf("sequence repo: prepare upsert: %w", err)
	}
	defer stmt.Close()

	var inserted int
	for _, e := range entries {
		args, err := upsertArgs(e)
		if err != nil {
			return 0, fmt.Errorf("sequence repo: encode %s: %w", e.Index, err)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, mapError(err, e.Index)
		}
		if _, ok := existing[e.Index]; !ok {
			existing[e.Index] = struct{}{}
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sequence repo: commit: %w", err)
	}
	return inserted, nil
}

func existingIndices(ctx context.Context, tx *sql.Tx, indices []string) (map[string]struct{}, error) {
	query, args, err := sqlb.Select(`"index"`).From("sequences").
		Where(sq.Eq{`"index"`: indices}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build existing query: %w", err)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query existing: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{}, len(indices))
	for rows.Next() {
		var idx string
		if err := rows.Scan(&idx); err != nil {
			return nil, fmt.Errorf("scan existing: %w", err)
		}
		out[idx] = struct{}{}
	}
	return out, rows.Err()
}

func upsertArgs(e domain.Entry) ([]any, error) {
	otherIndices, err := encodeList(nonNil(e.OtherIndices))
	if err != nil {
		return nil, err
	}
	termsLines, err := encodeList(e.TermsLines[:])
	if err != nil {
		return nil, err
	}
	refs, err := encodeList(e.References)
	if err != nil {
		return nil, err
	}
	links, err := encodeList(e.Links)
	if err != nil {
		return nil, err
	}
	keywords, err := encodeList(e.Keywords)
	if err != nil {
		return nil, err
	}
	programs := e.Programs
	if programs == nil {
		programs = []domain.Program{}
	}
	programsJSON, err := json.Marshal(programs)
	if err != nil {
		return nil, err
	}

	fetchedAt := e.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}

	return []any{
		e.Index, otherIndices, e.Name, domain.NormalizeText(e.Name), e.Author,
		e.Offset, e.FirstNonOneTerm, termsLines, refs, links, keywords,
		e.Formula, e.CrossReferences, e.Extensions, e.Examples, e.Comments,
		string(programsJSON), fetchedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

// GetByIndex returns one entry. Returns domain.ErrNotFound if absent.
func (r *Repo) GetByIndex(ctx context.Context, index string) (*domain.Entry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+strings.Join(columns, ", ")+` FROM sequences WHERE "index" = ?`, index)
	e, err := scanEntry(row)
	if err != nil {
		return nil, mapError(err, index)
	}
	return &e, nil
}

// GetByIndices returns the entries that exist among indices, ordered by index.
func (r *Repo) GetByIndices(ctx context.Context, indices []string) ([]domain.Entry, error) {
	if len(indices) == 0 {
		return []domain.Entry{}, nil
	}

	query, args, err := sqlb.Select(columns...).From("sequences").
		Where(sq.Eq{`"index"`: indices}).
		OrderBy(`"index"`).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sequence repo: build batch query: %w", err)
	}
	return r.query(ctx, query, args...)
}

// Find returns entries matching the filter, ordered by index.
func (r *Repo) Find(ctx context.Context, f domain.EntryFilter) ([]domain.Entry, error) {
	f.Normalize()

	qb := sqlb.Select(columns...).From("sequences").
		OrderBy(`"index"`).
		Limit(uint64(f.Limit)).
		Offset(uint64(f.Offset))

	if f.Keyword != "" {
		qb = qb.Where(sq.Expr(`EXISTS (SELECT 1 FROM json_each(keywords) WHERE value = ?)`, f.Keyword))
	}
	if f.Name != "" {
		qb = qb.Where(sq.Expr(`name_normalized LIKE ? ESCAPE '\'`, "%"+escapeLike(f.Name)+"%"))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("sequence repo: build find query: %w", err)
	}
	return r.query(ctx, query, args...)
}

// Count returns the number of stored entries.
func (r *Repo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM sequences`).Scan(&n); err != nil {
		return 0, mapError(err, "count")
	}
	return n, nil
}

func (r *Repo) query(ctx context.Context, query string, args ...any) ([]domain.Entry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "query")
	}
	defer rows.Close()

	entries := []domain.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("sequence repo: scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sequence repo: rows: %w", err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (domain.Entry, error) {
	var (
		e                        domain.Entry
		otherIndices, termsLines string
		refs, links, keywords    sql.NullString
		programs, fetchedAt      string
	)
	err := s.Scan(
		&e.Index, &otherIndices, &e.Name, &e.Author, &e.Offset, &e.FirstNonOneTerm,
		&termsLines, &refs, &links, &keywords, &e.Formula, &e.CrossReferences,
		&e.Extensions, &e.Examples, &e.Comments, &programs, &fetchedAt,
	)
	if err != nil {
		return domain.Entry{}, err
	}

	if e.OtherIndices, err = decodeList(otherIndices); err != nil {
		return domain.Entry{}, fmt.Errorf("other_indices: %w", err)
	}
	e.OtherIndices = nonNil(e.OtherIndices)

	lines, err := decodeList(termsLines)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("terms_lines: %w", err)
	}
	copy(e.TermsLines[:], lines)

	if e.References, err = decodeNullList(refs); err != nil {
		return domain.Entry{}, fmt.Errorf("references: %w", err)
	}
	if e.Links, err = decodeNullList(links); err != nil {
		return domain.Entry{}, fmt.Errorf("links: %w", err)
	}
	if e.Keywords, err = decodeNullList(keywords); err != nil {
		return domain.Entry{}, fmt.Errorf("keywords: %w", err)
	}

	e.Programs = []domain.Program{}
	if err := json.Unmarshal([]byte(programs), &e.Programs); err != nil {
		return domain.Entry{}, fmt.Errorf("programs: %w", err)
	}

	if e.FetchedAt, err = parseTime(fetchedAt); err != nil {
		return domain.Entry{}, fmt.Errorf("fetched_at: %w", err)
	}
	return e, nil
}

// encodeList stores nil as SQL NULL and any other slice as a JSON array.
func encodeList(s []string) (any, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeList(s string) ([]string, error) {
	out := []string{}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeNullList(ns sql.NullString) ([]string, error) {
	if !ns.Valid {
		return nil, nil
	}
	return decodeList(ns.String)
}

// parseTime accepts RFC3339Nano as written by this repo and the plain
// "YYYY-MM-DD HH:MM:SS" form SQLite's own date functions produce.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation(time.DateTime, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("unsupported time %q", s)
	}
	return t, nil
}

func mapError(err error, key string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("sequence %s: %w", key, err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sequence %s: %w", key, domain.ErrNotFound)
	}
	if strings.Contains(err.Error(), "CHECK constraint failed") {
		return fmt.Errorf("sequence %s: %w", key, domain.ErrValidation)
	}
	return fmt.Errorf("sequence %s: %w", key, err)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
