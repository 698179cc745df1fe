// Package oeis parses records in the OEIS internal text format into domain entries.
// Pure function: text in, domain structs out. No network or database dependencies.
//
// A record is a block of tagged lines:
//
//	%I A000045 M0692 N0256
//	%S A000045 0,1,1,2,3,5,8,13,21,34,55,89,144,
//	%N A000045 Fibonacci numbers: F(n) = F(n-1) + F(n-2) with F(0) = 0 and F(1) = 1.
//	%O A000045 0,4
//
// Lines that do not carry a tag are ignored.
package oeis

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/heartmarshall/oeisdb/internal/domain"
)

var (
	reTaggedLine  = regexp.MustCompile(`^%(\w) (A\d{6}) (.*)$`)
	reOffset      = regexp.MustCompile(`^(\d+),(\d+)`)
	reProgramLang = regexp.MustCompile(`(?m)^\((\w+)\)\s*`)
)

// continuationMarker stands in for leading indentation in program listings.
const continuationMarker = '.'

// taggedLine is one matched "%<tag> <index> <content>" line.
type taggedLine struct {
	tag     string
	index   string
	content string
}

// fieldGroup collects the contents of a run of lines sharing one tag.
type fieldGroup struct {
	tag   string
	lines []string
}

// fields resolves tag letters to their joined content.
type fields struct {
	groups []fieldGroup
	byTag  map[string]int
}

func (f fields) has(tag string) bool {
	_, ok := f.byTag[tag]
	return ok
}

// get returns the newline-joined content for tag, or "" when absent.
func (f fields) get(tag string) string {
	i, ok := f.byTag[tag]
	if !ok {
		return ""
	}
	return strings.Join(f.groups[i].lines, "\n")
}

// getOr returns the content for tag, falling back to the content of alt.
func (f fields) getOr(tag, alt string) string {
	if f.has(tag) {
		return f.get(tag)
	}
	return f.get(alt)
}

// Parse builds an Entry from one record.
// It fails with domain.ErrNoTaggedLines if no line carries a tag and with
// domain.ErrMalformedOffset if the %O field is missing or malformed.
func Parse(blob string) (*domain.Entry, error) {
	lines := matchLines(blob)
	if len(lines) == 0 {
		return nil, domain.ErrNoTaggedLines
	}

	f := groupRuns(lines)
	e := &domain.Entry{
		Index:  lines[0].index,
		Name:   f.get("N"),
		Author: f.get("A"),
	}

	if f.has("I") {
		if other := f.get("I"); other != "" {
			e.OtherIndices = strings.Split(other, " ")
		}
	}
	if e.OtherIndices == nil {
		e.OtherIndices = []string{}
	}

	offset, firstNonOne, err := parseOffset(f.get("O"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Index, err)
	}
	e.Offset = offset
	e.FirstNonOneTerm = firstNonOne

	e.TermsLines = [3]string{f.getOr("V", "S"), f.getOr("W", "T"), f.getOr("X", "U")}

	if f.has("D") {
		e.References = strings.Split(f.get("D"), "\n")
	}
	if f.has("H") {
		e.Links = strings.Split(f.get("H"), "\n")
	}

	e.Formula = f.get("F")
	e.CrossReferences = f.get("Y")
	e.Extensions = f.get("E")
	e.Examples = f.get("e")
	e.Comments = f.get("C")

	if f.has("K") {
		e.Keywords = strings.Split(f.get("K"), ",")
	}

	e.Programs = extractPrograms(f)
	return e, nil
}

// matchLines returns the tagged lines of blob in source order.
func matchLines(blob string) []taggedLine {
	raw := strings.Split(blob, "\n")
	out := make([]taggedLine, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSuffix(line, "\r")
		m := reTaggedLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		out = append(out, taggedLine{tag: m[1], index: m[2], content: m[3]})
	}
	return out
}

// groupRuns groups adjacent lines with the same tag into runs, then merges
// runs by tag. A tag that reappears after a different tag is appended to the
// group of its first run.
func groupRuns(lines []taggedLine) fields {
	var runs []fieldGroup
	for _, l := range lines {
		if n := len(runs); n > 0 && runs[n-1].tag == l.tag {
			runs[n-1].lines = append(runs[n-1].lines, l.content)
			continue
		}
		runs = append(runs, fieldGroup{tag: l.tag, lines: []string{l.content}})
	}

	f := fields{byTag: make(map[string]int, len(runs))}
	for _, r := range runs {
		if i, ok := f.byTag[r.tag]; ok {
			f.groups[i].lines = append(f.groups[i].lines, r.lines...)
			continue
		}
		f.byTag[r.tag] = len(f.groups)
		f.groups = append(f.groups, r)
	}
	return f
}

func parseOffset(field string) (int, int, error) {
	m := reOffset.FindStringSubmatch(field)
	if m == nil {
		return 0, 0, fmt.Errorf("%q: %w", field, domain.ErrMalformedOffset)
	}
	offset, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%q: %w", field, domain.ErrMalformedOffset)
	}
	firstNonOne, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, fmt.Errorf("%q: %w", field, domain.ErrMalformedOffset)
	}
	return offset, firstNonOne, nil
}

// extractPrograms collects Maple (%p), Mathematica (%t) and tagged %o
// programs, sorted by language and de-indented.
func extractPrograms(f fields) []domain.Program {
	programs := []domain.Program{}
	if f.has("p") {
		programs = append(programs, domain.Program{Language: "Maple", Code: f.get("p")})
	}
	if f.has("t") {
		programs = append(programs, domain.Program{Language: "Mathematica", Code: f.get("t")})
	}
	if f.has("o") {
		programs = append(programs, splitOtherPrograms(f.get("o"))...)
	}

	sort.SliceStable(programs, func(i, j int) bool {
		return programs[i].Language < programs[j].Language
	})

	for i := range programs {
		programs[i].Code = cleanProgram(programs[i].Code)
	}
	return programs
}

// splitOtherPrograms splits %o content on "(Language)" markers at line starts.
// Text before the first marker is discarded.
func splitOtherPrograms(content string) []domain.Program {
	matches := reProgramLang.FindAllStringSubmatchIndex(content, -1)
	programs := make([]domain.Program, 0, len(matches))
	for i, m := range matches {
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		programs = append(programs, domain.Program{
			Language: content[m[2]:m[3]],
			Code:     content[m[1]:end],
		})
	}
	return programs
}

// cleanProgram replaces the leading run of continuation markers on each
// line with the same number of spaces.
func cleanProgram(code string) string {
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		n := 0
		for n < len(line) && line[n] == continuationMarker {
			n++
		}
		if n > 0 {
			lines[i] = strings.Repeat(" ", n) + line[n:]
		}
	}
	return strings.Join(lines, "\n")
}

// Failure describes a record that could not be parsed.
type Failure struct {
	Position int
	Raw      string
	Err      error
}

// Stats holds parser statistics for logging.
type Stats struct {
	TotalRecords int
	Parsed       int
	Failed       int
}

// ParseResult holds the outcome of parsing a batch of records.
type ParseResult struct {
	Entries  []domain.Entry
	Failures []Failure
	Stats    Stats
}

// ParseMany parses every record independently. A record that fails is
// reported in Failures and does not stop the rest.
func ParseMany(blobs []string) ParseResult {
	result := ParseResult{
		Entries: make([]domain.Entry, 0, len(blobs)),
	}
	for i, blob := range blobs {
		result.Stats.TotalRecords++
		e, err := Parse(blob)
		if err != nil {
			result.Stats.Failed++
			result.Failures = append(result.Failures, Failure{Position: i, Raw: blob, Err: err})
			continue
		}
		result.Stats.Parsed++
		result.Entries = append(result.Entries, *e)
	}
	return result
}

// SplitRecords splits a multi-record text body on blank lines and keeps the
// blocks that contain at least one tagged line.
func SplitRecords(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	blocks := strings.Split(text, "\n\n")
	records := make([]string, 0, len(blocks))
	for _, b := range blocks {
		b = strings.Trim(b, "\n")
		if b == "" || len(matchLines(b)) == 0 {
			continue
		}
		records = append(records, b)
	}
	return records
}

// ParseFile reads a saved text dump of blank-line separated records.
func ParseFile(filePath string) (ParseResult, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return ParseResult{}, fmt.Errorf("read file: %w", err)
	}
	return ParseMany(SplitRecords(string(data))), nil
}
