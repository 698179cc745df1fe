// Package dataset turns raw JSON search results into the compact single-digit
// dataset consumed by the guessing game.
//
// Input is JSONL: one search-result object per line. Output is a JavaScript
// module literal:
//
//	export default [[45,"Fibonacci numbers",0,1,1,2,3,5,8],...];
package dataset

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"

	"github.com/heartmarshall/oeisdb/internal/domain"
)

// DefaultTermCount is the number of leading terms kept per item.
const DefaultTermCount = 10

const (
	modulePrefix = "export default "
	moduleSuffix = ";"

	maxLineSize = 16 * 1024 * 1024
)

var (
	// ErrEmptyData is returned for a result without any terms.
	ErrEmptyData = errors.New("empty data")

	// ErrTermOutOfRange is returned by Shorten for a valid term that does not
	// fit in int64. Such a result can never be single-digit, so Build drops
	// it without reporting.
	ErrTermOutOfRange = errors.New("term out of int64 range")
)

// LoadJSONL reads one JSON object per line. A line that does not decode is
// reported through onParseErr with its 0-based line index and skipped.
// Blank lines are ignored. Read errors abort the load.
func LoadJSONL(r io.Reader, onParseErr func(line int, err error)) ([]domain.RawResult, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var results []domain.RawResult
	for line := 0; scanner.Scan(); line++ {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var res domain.RawResult
		if err := json.Unmarshal(raw, &res); err != nil {
			if onParseErr != nil {
				onParseErr(line, err)
			}
			continue
		}
		results = append(results, res)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %w", err)
	}
	return results, nil
}

// Shorten projects a raw result onto its first n terms.
// n <= 0 means DefaultTermCount.
func Shorten(raw domain.RawResult, n int) (domain.DatasetItem, error) {
	if n <= 0 {
		n = DefaultTermCount
	}

	data := strings.TrimSpace(raw.Data)
	if data == "" {
		return domain.DatasetItem{}, fmt.Errorf("%s: %w", domain.IndexFromNumber(raw.Number), ErrEmptyData)
	}

	parts := strings.Split(data, ",")
	if len(parts) > n {
		parts = parts[:n]
	}

	seq := make([]int64, 0, len(parts))
	for _, p := range parts {
		v, ok := domain.ParseTerm(p)
		if !ok {
			return domain.DatasetItem{}, fmt.Errorf("%s: term %q: %w", domain.IndexFromNumber(raw.Number), p, domain.ErrMalformedTerms)
		}
		if !v.IsInt64() {
			return domain.DatasetItem{}, fmt.Errorf("%s: term %q: %w", domain.IndexFromNumber(raw.Number), p, ErrTermOutOfRange)
		}
		seq = append(seq, v.Int64())
	}

	return domain.DatasetItem{Number: raw.Number, Name: raw.Name, Seq: seq}, nil
}

// SingleDigits reports whether every term lies in [0, 10).
func SingleDigits(item domain.DatasetItem) bool {
	for _, v := range item.Seq {
		if v < 0 || v >= 10 {
			return false
		}
	}
	return true
}

// Build shortens every result and keeps the single-digit ones, in input order.
// Results that cannot be shortened are reported through onErr and skipped.
// Results with a term beyond int64 are filtered like any other multi-digit one.
func Build(raws []domain.RawResult, n int, onErr func(number int, err error)) []domain.DatasetItem {
	items := make([]domain.DatasetItem, 0, len(raws))
	for _, raw := range raws {
		item, err := Shorten(raw, n)
		if errors.Is(err, ErrTermOutOfRange) {
			continue
		}
		if err != nil {
			if onErr != nil {
				onErr(raw.Number, err)
			}
			continue
		}
		if SingleDigits(item) {
			items = append(items, item)
		}
	}
	return items
}

// WriteModule writes items as "export default [[number, name, t0, ...], ...];".
func WriteModule(w io.Writer, items []domain.DatasetItem) error {
	rows := make([][]any, 0, len(items))
	for _, it := range items {
		row := make([]any, 0, 2+len(it.Seq))
		row = append(row, it.Number, it.Name)
		for _, v := range it.Seq {
			row = append(row, v)
		}
		rows = append(rows, row)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}

	if _, err := io.WriteString(w, modulePrefix); err != nil {
		return fmt.Errorf("write dataset: %w", err)
	}
	if _, err := w.Write(bytes.TrimRight(buf.Bytes(), "\n")); err != nil {
		return fmt.Errorf("write dataset: %w", err)
	}
	if _, err := io.WriteString(w, moduleSuffix); err != nil {
		return fmt.Errorf("write dataset: %w", err)
	}
	return nil
}

// ReadModule parses a module written by WriteModule.
func ReadModule(r io.Reader) ([]domain.DatasetItem, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	body := strings.TrimSpace(string(data))
	if !strings.HasPrefix(body, modulePrefix) {
		return nil, fmt.Errorf("read dataset: missing %q prefix", strings.TrimSpace(modulePrefix))
	}
	body = strings.TrimPrefix(body, modulePrefix)
	body = strings.TrimSuffix(strings.TrimSpace(body), moduleSuffix)

	var rows [][]json.RawMessage
	if err := json.Unmarshal([]byte(body), &rows); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}

	items := make([]domain.DatasetItem, 0, len(rows))
	for i, row := range rows {
		item, err := decodeRow(row)
		if err != nil {
			return nil, fmt.Errorf("decode dataset row %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func decodeRow(row []json.RawMessage) (domain.DatasetItem, error) {
	if len(row) < 2 {
		return domain.DatasetItem{}, fmt.Errorf("expected at least 2 columns, got %d", len(row))
	}

	var item domain.DatasetItem
	if err := json.Unmarshal(row[0], &item.Number); err != nil {
		return domain.DatasetItem{}, fmt.Errorf("number: %w", err)
	}
	if err := json.Unmarshal(row[1], &item.Name); err != nil {
		return domain.DatasetItem{}, fmt.Errorf("name: %w", err)
	}

	item.Seq = make([]int64, len(row)-2)
	for i, raw := range row[2:] {
		if err := json.Unmarshal(raw, &item.Seq[i]); err != nil {
			return domain.DatasetItem{}, fmt.Errorf("term %d: %w", i, err)
		}
	}
	return item, nil
}
