package domain

import "fmt"

// RawResult is the part of a JSON search result that the dataset and
// import code read. Other fields of the upstream object are ignored.
type RawResult struct {
	Number  int    `json:"number"`
	Name    string `json:"name"`
	Data    string `json:"data"`
	Offset  string `json:"offset,omitempty"`
	Keyword string `json:"keyword,omitempty"`
	Author  string `json:"author,omitempty"`
}

// IndexFromNumber renders a sequence number as its A-number, e.g. 45 -> "A000045".
func IndexFromNumber(n int) string {
	return fmt.Sprintf("A%06d", n)
}

// DatasetItem is one row of the exported game dataset.
type DatasetItem struct {
	Number int
	Name   string
	Seq    []int64
}
