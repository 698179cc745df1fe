package oeis

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/heartmarshall/oeisdb/internal/domain"
)

// GetInternalText fetches <base>/<index>/internal and returns the text of its
// <tt> elements, one line per element or <br>.
func (c *Client) GetInternalText(ctx context.Context, index string) (string, error) {
	if !domain.ValidIndex(index) {
		return "", domain.NewValidationError("index", "must be A followed by 6 digits")
	}

	body, err := c.get(ctx, "/"+index+"/internal", nil)
	if err != nil {
		return "", fmt.Errorf("oeis: internal %s: %w", index, err)
	}

	text, err := extractInternalText(body)
	if err != nil {
		return "", fmt.Errorf("oeis: internal %s: %w", index, err)
	}
	return text, nil
}

func extractInternalText(html []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	tt := doc.Find("tt")
	tt.Find("br").ReplaceWithHtml("\n")

	var lines []string
	tt.Each(func(_ int, sel *goquery.Selection) {
		for _, line := range strings.Split(sel.Text(), "\n") {
			line = strings.TrimRight(strings.ReplaceAll(line, "\u00a0", " "), "\r")
			if line != "" {
				lines = append(lines, line)
			}
		}
	})
	return strings.Join(lines, "\n"), nil
}
