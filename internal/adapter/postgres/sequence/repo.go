// Package sequence implements sequence persistence using PostgreSQL.
package sequence

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/oeisdb/internal/adapter/postgres"
	"github.com/heartmarshall/oeisdb/internal/domain"
)

const entity = "sequence"

var columns = []string{
	`"index"`, "other_indices", "name", "author", `"offset"`, "first_non_one_term",
	"terms_lines", `"references"`, "links", "keywords", "formula", "cross_references",
	"extensions", "examples", "comments", "programs", "fetched_at",
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repo provides sequence persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
	txm  *postgres.TxManager
}

// New creates a new sequence repository.
func New(pool *pgxpool.Pool, txm *postgres.TxManager) *Repo {
	return &Repo{pool: pool, txm: txm}
}

// Ping checks the database connection.
func (r *Repo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// ---------------------------------------------------------------------------
// Write operations
// ---------------------------------------------------------------------------

const upsertSQL = `INSERT INTO sequences (
	"index", other_indices, name, name_normalized, author, "offset", first_non_one_term,
	terms_lines, "references", links, keywords, formula, cross_references,
	extensions, examples, comments, programs, fetched_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
ON CONFLICT ("index") DO UPDATE SET
	other_indices      = EXCLUDED.other_indices,
	name               = EXCLUDED.name,
	name_normalized    = EXCLUDED.name_normalized,
	author             = EXCLUDED.author,
	"offset"           = EXCLUDED."offset",
	first_non_one_term = EXCLUDED.first_non_one_term,
	terms_lines        = EXCLUDED.terms_lines,
	"references"       = EXCLUDED."references",
	links              = EXCLUDED.links,
	keywords           = EXCLUDED.keywords,
	formula            = EXCLUDED.formula,
	cross_references   = EXCLUDED.cross_references,
	extensions         = EXCLUDED.extensions,
	examples           = EXCLUDED.examples,
	comments           = EXCLUDED.comments,
	programs           = EXCLUDED.programs,
	fetched_at         = EXCLUDED.fetched_at
RETURNING (xmax = 0) AS inserted`

// BulkUpsertEntries inserts or updates entries by index in one transaction
// using pgx.Batch. Returns the number of newly inserted rows; the rest were
// updated.
func (r *Repo) BulkUpsertEntries(ctx context.Context, entries []domain.Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		fetchedAt := e.FetchedAt
		if fetchedAt.IsZero() {
			fetchedAt = time.Now().UTC()
		}
		batch.Queue(upsertSQL,
			e.Index, nonNil(e.OtherIndices), e.Name, domain.NormalizeText(e.Name), e.Author,
			e.Offset, e.FirstNonOneTerm, e.TermsLines[:],
			e.References, e.Links, e.Keywords,
			e.Formula, e.CrossReferences, e.Extensions, e.Examples, e.Comments,
			programsOrEmpty(e.Programs), fetchedAt,
		)
	}

	var inserted int
	err := r.txm.RunInTx(ctx, func(txCtx context.Context) error {
		q := postgres.QuerierFromCtx(txCtx, r.pool)
		results := q.SendBatch(txCtx, batch)
		defer results.Close()

		for i := range batch.Len() {
			var isNew bool
			if err := results.QueryRow().Scan(&isNew); err != nil {
				return postgres.MapError(err, entity, entries[i].Index)
			}
			if isNew {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sequence repo: bulk upsert: %w", err)
	}
	return inserted, nil
}

// ---------------------------------------------------------------------------
// Read operations
// ---------------------------------------------------------------------------

// GetByIndex returns one entry. Returns domain.ErrNotFound if absent.
func (r *Repo) GetByIndex(ctx context.Context, index string) (*domain.Entry, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	row := q.QueryRow(ctx,
		`SELECT `+strings.Join(columns, ", ")+` FROM sequences WHERE "index" = $1`, index)
	e, err := scanEntry(row)
	if err != nil {
		return nil, postgres.MapError(err, entity, index)
	}
	return &e, nil
}

// GetByIndices returns the entries that exist among indices, ordered by index.
func (r *Repo) GetByIndices(ctx context.Context, indices []string) ([]domain.Entry, error) {
	if len(indices) == 0 {
		return []domain.Entry{}, nil
	}

	q := postgres.QuerierFromCtx(ctx, r.pool)
	rows, err := q.Query(ctx,
		`SELECT `+strings.Join(columns, ", ")+` FROM sequences WHERE "index" = ANY($1) ORDER BY "index"`, indices)
	if err != nil {
		return nil, postgres.MapError(err, entity, "batch")
	}
	return collect(rows)
}

// Find returns entries matching the filter, ordered by index.
func (r *Repo) Find(ctx context.Context, f domain.EntryFilter) ([]domain.Entry, error) {
	f.Normalize()

	qb := psql.Select(columns...).From("sequences").
		OrderBy(`"index"`).
		Limit(uint64(f.Limit)).
		Offset(uint64(f.Offset))

	if f.Keyword != "" {
		qb = qb.Where(sq.Expr("? = ANY(keywords)", f.Keyword))
	}
	if f.Name != "" {
		qb = qb.Where(sq.Like{"name_normalized": "%" + escapeLike(f.Name) + "%"})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("sequence repo: build find query: %w", err)
	}

	q := postgres.QuerierFromCtx(ctx, r.pool)
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, postgres.MapError(err, entity, "find")
	}
	return collect(rows)
}

// Count returns the number of stored entries.
func (r *Repo) Count(ctx context.Context) (int, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	var n int
	if err := q.QueryRow(ctx, `SELECT count(*) FROM sequences`).Scan(&n); err != nil {
		return 0, postgres.MapError(err, entity, "count")
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func scanEntry(row pgx.Row) (domain.Entry, error) {
	var (
		e     domain.Entry
		terms []string
	)
	err := row.Scan(
		&e.Index, &e.OtherIndices, &e.Name, &e.Author, &e.Offset, &e.FirstNonOneTerm,
		&terms, &e.References, &e.Links, &e.Keywords, &e.Formula, &e.CrossReferences,
		&e.Extensions, &e.Examples, &e.Comments, &e.Programs, &e.FetchedAt,
	)
	if err != nil {
		return domain.Entry{}, err
	}
	copy(e.TermsLines[:], terms)
	e.OtherIndices = nonNil(e.OtherIndices)
	e.Programs = programsOrEmpty(e.Programs)
	return e, nil
}

func collect(rows pgx.Rows) ([]domain.Entry, error) {
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

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func programsOrEmpty(p []domain.Program) []domain.Program {
	if p == nil {
		return []domain.Program{}
	}
	return p
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
