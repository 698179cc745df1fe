package seeder_test

import (
	"github.com/heartmarshall/oeisdb/internal/adapter/postgres/sequence"
	"github.com/heartmarshall/oeisdb/internal/adapter/provider/oeis"
	sqlitesequence "github.com/heartmarshall/oeisdb/internal/adapter/sqlite/sequence"
	"github.com/heartmarshall/oeisdb/internal/app/seeder"
)

// Compile-time checks: both stores and the search client satisfy the
// pipeline's interfaces.
var (
	_ seeder.SequenceStore = (*sequence.Repo)(nil)
	_ seeder.SequenceStore = (*sqlitesequence.Repo)(nil)
	_ seeder.Source        = (*oeis.Client)(nil)
)
