package models

import "fmt"

// DefaultTopK is used when a search request does not specify top_k.
const DefaultTopK = 5

// MaxTopK caps top_k for a single request.
const MaxTopK = 100

// SearchQuery represents a similarity search request.
type SearchQuery struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// Validate ensures the query has valid fields and normalizes top_k.
// Returns an error if the query text is empty; top_k at or below zero
// becomes DefaultTopK and values above MaxTopK are capped.
func (q *SearchQuery) Validate() error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.TopK <= 0 {
		q.TopK = DefaultTopK
	}
	if q.TopK > MaxTopK {
		q.TopK = MaxTopK
	}
	return nil
}
