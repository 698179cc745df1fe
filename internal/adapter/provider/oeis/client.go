// Package oeis is the HTTP client for the OEIS search endpoint.
package oeis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/heartmarshall/oeisdb/internal/config"
	"github.com/heartmarshall/oeisdb/internal/domain"
	oeisparser "github.com/heartmarshall/oeisdb/internal/seeder/oeis"
)

const (
	defaultBaseURL   = "https://oeis.org"
	defaultTimeout   = 20 * time.Second
	defaultUserAgent = "oeisdb/1.0"
	maxBodySize      = 32 << 20
)

// Client talks to the OEIS search endpoint.
type Client struct {
	baseURL    string
	userAgent  string
	maxRetries int
	baseDelay  time.Duration
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates a Client from configuration. Zero fields fall back to
// defaults.
func NewClient(cfg config.OEISConfig, logger *slog.Logger) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.RetryBaseDelay,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger.With("adapter", "oeis"),
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	if c.baseDelay <= 0 {
		c.baseDelay = 500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		c.httpClient.Timeout = defaultTimeout
	}
	return c
}

// NewClientWithURL creates a Client against baseURL with default settings (for testing).
func NewClientWithURL(baseURL string, logger *slog.Logger) *Client {
	return NewClient(config.OEISConfig{BaseURL: baseURL, MaxRetries: 3}, logger)
}

// Search runs one fmt=json search. A body that is not the expected JSON object
// is logged and reported as zero results without an error.
func (c *Client) Search(ctx context.Context, p SearchParams) (int, []domain.RawResult, error) {
	q, err := c.searchValues(p, "json")
	if err != nil {
		return 0, nil, err
	}

	body, err := c.get(ctx, "/search", q)
	if err != nil {
		return 0, nil, fmt.Errorf("oeis: search: %w", err)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.log.WarnContext(ctx, "oeis unexpected search body",
			slog.String("q", q.Get("q")),
			slog.String("error", err.Error()),
		)
		return 0, nil, nil
	}
	if resp.Results == nil {
		resp.Results = []domain.RawResult{}
	}

	c.log.DebugContext(ctx, "oeis search",
		slog.String("q", q.Get("q")),
		slog.Int("count", resp.Count),
		slog.Int("results", len(resp.Results)),
	)
	return resp.Count, resp.Results, nil
}

// SearchAll pages through every result of p, starting at p.Start, and hands
// each page to fn. It stops when the reported count is reached or a page comes
// back empty. It returns the number of results handed to fn.
func (c *Client) SearchAll(ctx context.Context, p SearchParams, fn func(results []domain.RawResult) error) (int, error) {
	fetched := 0
	if p.Start != nil {
		fetched = *p.Start
	}
	delivered := 0

	for {
		start := fetched
		page := p
		page.Start = &start

		count, results, err := c.Search(ctx, page)
		if err != nil {
			return delivered, err
		}
		if len(results) == 0 {
			break
		}
		if err := fn(results); err != nil {
			return delivered, err
		}

		fetched += len(results)
		delivered += len(results)
		c.log.InfoContext(ctx, "oeis search progress", slog.Int("fetched", fetched), slog.Int("total", count))

		if fetched >= count {
			break
		}
	}
	return delivered, nil
}

var showingRe = regexp.MustCompile(`(?m)^Showing \d+-\d+ of (\d+)`)

// SearchText runs one fmt=text search and returns its record blocks.
func (c *Client) SearchText(ctx context.Context, p SearchParams) ([]string, error) {
	blocks, _, err := c.searchTextPage(ctx, p)
	return blocks, err
}

// SearchTextAll pages through fmt=text results and hands each page of record
// blocks to fn. It stops on an empty page or once the "Showing a-b of N"
// header total is reached.
func (c *Client) SearchTextAll(ctx context.Context, p SearchParams, fn func(blocks []string) error) (int, error) {
	fetched := 0
	if p.Start != nil {
		fetched = *p.Start
	}
	delivered := 0

	for {
		start := fetched
		page := p
		page.Start = &start

		blocks, total, err := c.searchTextPage(ctx, page)
		if err != nil {
			return delivered, err
		}
		if len(blocks) == 0 {
			break
		}
		if err := fn(blocks); err != nil {
			return delivered, err
		}

		fetched += len(blocks)
		delivered += len(blocks)
		c.log.InfoContext(ctx, "oeis text progress", slog.Int("fetched", fetched), slog.Int("total", total))

		if total > 0 && fetched >= total {
			break
		}
	}
	return delivered, nil
}

func (c *Client) searchTextPage(ctx context.Context, p SearchParams) ([]string, int, error) {
	q, err := c.searchValues(p, "text")
	if err != nil {
		return nil, 0, err
	}

	body, err := c.get(ctx, "/search", q)
	if err != nil {
		return nil, 0, fmt.Errorf("oeis: search text: %w", err)
	}

	text := string(body)
	total := 0
	if m := showingRe.FindStringSubmatch(text); m != nil {
		total, _ = strconv.Atoi(m[1])
	}
	return oeisparser.SplitRecords(text), total, nil
}

// GetEntryText fetches the text-format record for index. The body is split on
// blank lines and the third block is the record.
func (c *Client) GetEntryText(ctx context.Context, index string) (string, error) {
	if !domain.ValidIndex(index) {
		return "", domain.NewValidationError("index", "must be A followed by 6 digits")
	}

	q := url.Values{}
	q.Set("q", "id:"+index)
	q.Set("fmt", "text")

	body, err := c.get(ctx, "/search", q)
	if err != nil {
		return "", fmt.Errorf("oeis: get %s: %w", index, err)
	}

	blocks := strings.Split(strings.ReplaceAll(string(body), "\r\n", "\n"), "\n\n")
	if len(blocks) < 3 {
		return "", fmt.Errorf("oeis: get %s: %w", index, domain.ErrNotFound)
	}
	return blocks[2], nil
}

// GetEntry fetches and parses the record for index. When the text search has
// no record it falls back to the HTML internal-format page.
func (c *Client) GetEntry(ctx context.Context, index string) (*domain.Entry, error) {
	text, err := c.GetEntryText(ctx, index)
	if err == nil {
		entry, perr := oeisparser.Parse(text)
		if perr == nil {
			return entry, nil
		}
		if !errors.Is(perr, domain.ErrNoTaggedLines) {
			return nil, fmt.Errorf("oeis: parse %s: %w", index, perr)
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	c.log.DebugContext(ctx, "oeis falling back to internal page", slog.String("index", index))

	text, err = c.GetInternalText(ctx, index)
	if err != nil {
		return nil, err
	}
	entry, err := oeisparser.Parse(text)
	if err != nil {
		if errors.Is(err, domain.ErrNoTaggedLines) {
			return nil, fmt.Errorf("oeis: get %s: %w", index, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("oeis: parse %s: %w", index, err)
	}
	return entry, nil
}

func (c *Client) searchValues(p SearchParams, format string) (url.Values, error) {
	query, err := MakeSearchQuery(p)
	if err != nil {
		return nil, fmt.Errorf("oeis: %w", err)
	}

	q := url.Values{}
	q.Set("fmt", format)
	q.Set("q", query)
	if p.Sort != "" {
		q.Set("sort", p.Sort)
	}
	if p.Start != nil {
		q.Set("start", strconv.Itoa(*p.Start))
	}
	return q, nil
}

// get issues a GET against path and returns the body of a 200 response.
// 404 maps to domain.ErrNotFound.
func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(q) > 0 {
		reqURL += "?" + q.Encode()
	}

	resp, err := c.doWithRetry(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
