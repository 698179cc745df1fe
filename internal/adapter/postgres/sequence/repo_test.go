package sequence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	postgres "github.com/heartmarshall/oeisdb/internal/adapter/postgres"
	"github.com/heartmarshall/oeisdb/internal/adapter/postgres/sequence"
	"github.com/heartmarshall/oeisdb/internal/adapter/postgres/testhelper"
	"github.com/heartmarshall/oeisdb/internal/domain"
)

func newRepo(t *testing.T) *sequence.Repo {
	t.Helper()
	pool := testhelper.SetupTestDB(t)
	return sequence.New(pool, postgres.NewTxManager(pool))
}

func makeEntry(name string, keywords ...string) domain.Entry {
	return domain.Entry{
		Index:           testhelper.UniqueIndex(),
		OtherIndices:    []string{"M0692", "N0256"},
		Name:            name,
		Author:          "N. J. A. Sloane",
		Offset:          0,
		FirstNonOneTerm: 4,
		TermsLines:      [3]string{"0,1,1,2,3,5,", "8,13,21,", "34"},
		References:      []string{"Ref one.", "Ref two."},
		Links:           nil,
		Keywords:        keywords,
		Formula:         "F(n) = F(n-1) + F(n-2).",
		CrossReferences: "Cf. A000032, A001622.",
		Programs: []domain.Program{
			{Language: "Maple", Code: "f := n -> combinat[fibonacci](n);"},
			{Language: "PARI", Code: "a(n)=fibonacci(n)"},
		},
		FetchedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRepo_BulkUpsertEntries_InsertThenUpdate(t *testing.T) {
	t.Parallel()
	repo := newRepo(t)
	ctx := context.Background()

	a := makeEntry("Fibonacci numbers.", "nonn", "nice")
	b := makeEntry("Lucas numbers.", "nonn")

	inserted, err := repo.BulkUpsertEntries(ctx, []domain.Entry{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	a.Name = "Fibonacci numbers: F(n) = F(n-1) + F(n-2)."
	c := makeEntry("Pell numbers.")
	inserted, err = repo.BulkUpsertEntries(ctx, []domain.Entry{a, c})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted, "only c is new")

	got, err := repo.GetByIndex(ctx, a.Index)
	require.NoError(t, err)
	assert.Equal(t, a.Name, got.Name)
}

func TestRepo_BulkUpsertEntries_Empty(t *testing.T) {
	t.Parallel()
	repo := newRepo(t)

	inserted, err := repo.BulkUpsertEntries(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, inserted)
}

func TestRepo_BulkUpsertEntries_InvalidIndexRollsBack(t *testing.T) {
	t.Parallel()
	repo := newRepo(t)
	ctx := context.Background()

	good := makeEntry("good")
	bad := makeEntry("bad")
	bad.Index = "X1"

	_, err := repo.BulkUpsertEntries(ctx, []domain.Entry{good, bad})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = repo.GetByIndex(ctx, good.Index)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRepo_GetByIndex_RoundTrip(t *testing.T) {
	t.Parallel()
	repo := newRepo(t)
	ctx := context.Background()

	e := makeEntry("Fibonacci numbers.", "nonn", "nice", "easy")
	_, err := repo.BulkUpsertEntries(ctx, []domain.Entry{e})
	require.NoError(t, err)

	got, err := repo.GetByIndex(ctx, e.Index)
	require.NoError(t, err)

	assert.Equal(t, e.Index, got.Index)
	assert.Equal(t, e.OtherIndices, got.OtherIndices)
	assert.Equal(t, e.Author, got.Author)
	assert.Equal(t, e.FirstNonOneTerm, got.FirstNonOneTerm)
	assert.Equal(t, e.TermsLines, got.TermsLines)
	assert.Equal(t, e.References, got.References)
	assert.Nil(t, got.Links, "absent links stay nil")
	assert.Equal(t, e.Keywords, got.Keywords)
	assert.Equal(t, e.CrossReferences, got.CrossReferences)
	assert.Equal(t, e.Programs, got.Programs)
	assert.True(t, e.FetchedAt.Equal(got.FetchedAt))

	terms, err := got.Terms()
	require.NoError(t, err)
	require.Len(t, terms, 10)
	assert.Equal(t, "34", terms[9].String())
}

func TestRepo_GetByIndex_NotFound(t *testing.T) {
	t.Parallel()
	repo := newRepo(t)

	_, err := repo.GetByIndex(context.Background(), "A999999")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRepo_GetByIndices(t *testing.T) {
	t.Parallel()
	repo := newRepo(t)
	ctx := context.Background()

	a, b := makeEntry("a"), makeEntry("b")
	_, err := repo.BulkUpsertEntries(ctx, []domain.Entry{a, b})
	require.NoError(t, err)

	got, err := repo.GetByIndices(ctx, []string{b.Index, "A999998", a.Index})
	require.NoError(t, err)
	require.Len(t, got, 2)

	idx := []string{got[0].Index, got[1].Index}
	assert.ElementsMatch(t, []string{a.Index, b.Index}, idx)
	assert.Less(t, got[0].Index, got[1].Index)

	empty, err := repo.GetByIndices(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRepo_Find(t *testing.T) {
	t.Parallel()
	repo := newRepo(t)
	ctx := context.Background()

	marker := testhelper.UniqueIndex()
	entries := []domain.Entry{
		makeEntry("Golden "+marker+" ratio digits", "cons", "nice"),
		makeEntry("Golden "+marker+" spiral", "nonn"),
		makeEntry("Silver "+marker+" ratio", "cons", "nice"),
	}
	_, err := repo.BulkUpsertEntries(ctx, entries)
	require.NoError(t, err)

	byName, err := repo.Find(ctx, domain.EntryFilter{Name: "GOLDEN " + marker})
	require.NoError(t, err)
	assert.Len(t, byName, 2)

	both, err := repo.Find(ctx, domain.EntryFilter{Name: marker + " ratio", Keyword: "nice"})
	require.NoError(t, err)
	assert.Len(t, both, 2)

	page, err := repo.Find(ctx, domain.EntryFilter{Name: marker, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)

	none, err := repo.Find(ctx, domain.EntryFilter{Name: "100%_" + marker})
	require.NoError(t, err)
	assert.Empty(t, none, "LIKE wildcards in input are literal")
}

func TestRepo_Count(t *testing.T) {
	t.Parallel()
	repo := newRepo(t)
	ctx := context.Background()

	before, err := repo.Count(ctx)
	require.NoError(t, err)

	_, err = repo.BulkUpsertEntries(ctx, []domain.Entry{makeEntry("count me")})
	require.NoError(t, err)

	after, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, after, before+1)
}
