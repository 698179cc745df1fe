package testhelper

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartmarshall/oeisdb/internal/domain"
)

var indexSeq atomic.Int64

func init() {
	indexSeq.Store(int64(uuid.New().ID() % 500000))
}

// UniqueIndex returns an A-number not handed out before in this process.
func UniqueIndex() string {
	return domain.IndexFromNumber(int(100000 + indexSeq.Add(1)%900000))
}

// SeedSequence inserts a minimal sequences row with the given name and
// keywords. Returns the matching domain.Entry.
func SeedSequence(t *testing.T, pool *pgxpool.Pool, name string, keywords ...string) domain.Entry {
	t.Helper()

	e := domain.Entry{
		Index:        UniqueIndex(),
		OtherIndices: []string{},
		Name:         name,
		Offset:       0,
		TermsLines:   [3]string{"0,1,1,2,3,5", "", ""},
		Keywords:     keywords,
		Programs:     []domain.Program{},
		FetchedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}

	_, err := pool.Exec(context.Background(),
		`INSERT INTO sequences ("index", name, name_normalized, "offset", first_non_one_term, terms_lines, keywords, fetched_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.Index, e.Name, domain.NormalizeText(e.Name), e.Offset, e.FirstNonOneTerm, e.TermsLines[:], e.Keywords, e.FetchedAt,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedSequence insert: %v", err)
	}

	return e
}
