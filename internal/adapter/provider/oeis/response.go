package oeis

import "github.com/heartmarshall/oeisdb/internal/domain"

// searchResponse is the fmt=json search body.
type searchResponse struct {
	Count   int                `json:"count"`
	Results []domain.RawResult `json:"results"`
}
