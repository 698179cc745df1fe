package domain

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Entry is one integer-sequence database record, identified by its A-number.
// An Entry is built once from a text record and is not mutated afterwards.
type Entry struct {
	Index           string
	OtherIndices    []string
	Name            string
	Author          string
	Offset          int
	FirstNonOneTerm int

	// TermsLines holds the three raw fragments of the term listing
	// (%S/%T/%U or their signed counterparts %V/%W/%X).
	TermsLines [3]string

	// References, Links and Keywords are nil when the record has no such tag.
	References []string
	Links      []string
	Keywords   []string

	Formula         string
	CrossReferences string
	Extensions      string
	Examples        string
	Comments        string

	Programs []Program

	// FetchedAt is zero until the entry is stored; stores use the write time.
	FetchedAt time.Time
}

// Program is one source listing attached to an entry.
type Program struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// Value is a single (position, term) pair of a sequence.
type Value struct {
	Position int
	Term     *big.Int
}

// Terms concatenates TermsLines and parses the comma-separated listing.
// Terms are arbitrary precision; only non-numeric segments are malformed.
// The result is recomputed on every call.
// A single empty segment left by a trailing comma is ignored.
func (e *Entry) Terms() ([]*big.Int, error) {
	all := e.TermsLines[0] + e.TermsLines[1] + e.TermsLines[2]
	if strings.TrimSpace(all) == "" {
		return []*big.Int{}, nil
	}

	parts := strings.Split(all, ",")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}

	terms := make([]*big.Int, 0, len(parts))
	for i, p := range parts {
		n, ok := ParseTerm(p)
		if !ok {
			return nil, fmt.Errorf("%s: term %d %q: %w", e.Index, i, p, ErrMalformedTerms)
		}
		terms = append(terms, n)
	}
	return terms, nil
}

// Query returns the search expression that selects this entry.
func (e *Entry) Query() string {
	return "id:" + e.Index
}

// Values pairs each term with its position, starting at Offset.
func (e *Entry) Values() ([]Value, error) {
	terms, err := e.Terms()
	if err != nil {
		return nil, err
	}
	values := make([]Value, len(terms))
	for i, t := range terms {
		values[i] = Value{Position: e.Offset + i, Term: t}
	}
	return values, nil
}

// ParseTerm parses one decimal term, ignoring surrounding whitespace.
func ParseTerm(s string) (*big.Int, bool) {
	return new(big.Int).SetString(strings.TrimSpace(s), 10)
}

func (e *Entry) String() string {
	return e.Index + " " + e.Name
}
