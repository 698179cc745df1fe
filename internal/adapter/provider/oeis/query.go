package oeis

import (
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/heartmarshall/oeisdb/internal/domain"
)

// SearchPrefixes are the field prefixes the search endpoint understands, in the
// order MakeSearchQuery emits them.
var SearchPrefixes = []string{
	"id", "seq", "signed", "name", "offset", "comment", "ref", "link",
	"formula", "example", "maple", "mathematica", "program", "xref",
	"keyword", "author", "extension", "subseq", "signedsubseq",
}

// SearchParams describes one search request.
type SearchParams struct {
	// Query is a free-form query placed first.
	Query string
	// Sequence terms must appear in this order.
	Sequence []int64
	// Contains terms must appear in any order.
	Contains []int64
	// Sort is passed through as the sort parameter when set.
	Sort string
	// Start is the result offset; nil omits the parameter.
	Start *int
	// Prefixes maps a prefix from SearchPrefixes to its value.
	Prefixes map[string]string
}

// MakeSearchQuery builds the q parameter: the free query, then the sequence
// joined by commas, then the contained terms joined by spaces, then each known
// prefix as prefix:value with the value quoted when it has a space.
func MakeSearchQuery(p SearchParams) (string, error) {
	var unknown []string
	for k := range p.Prefixes {
		if !slices.Contains(SearchPrefixes, k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		errs := make([]domain.FieldError, 0, len(unknown))
		for _, k := range unknown {
			errs = append(errs, domain.FieldError{Field: k, Message: "unknown search prefix"})
		}
		return "", domain.NewValidationErrors(errs)
	}

	var parts []string
	if p.Query != "" {
		parts = append(parts, p.Query)
	}
	if len(p.Sequence) > 0 {
		parts = append(parts, joinInts(p.Sequence, ","))
	}
	if len(p.Contains) > 0 {
		parts = append(parts, joinInts(p.Contains, " "))
	}
	for _, prefix := range SearchPrefixes {
		v, ok := p.Prefixes[prefix]
		if !ok {
			continue
		}
		parts = append(parts, prefix+":"+quoteIfSpaced(v))
	}

	return strings.TrimSpace(strings.Join(parts, " ")), nil
}

func joinInts(vs []int64, sep string) string {
	s := make([]string, len(vs))
	for i, v := range vs {
		s[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(s, sep)
}

func quoteIfSpaced(s string) string {
	if strings.Contains(s, " ") {
		return `"` + s + `"`
	}
	return s
}
