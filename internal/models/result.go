package models

// SearchResult is a single search hit: the record's fields flattened
// into the response plus its similarity score, rounded for display.
type SearchResult struct {
	Record
	Similarity float64 `json:"similarity"`
}

// SearchResponse is the response for a search request. Results are
// ordered by descending similarity, ties by ascending corpus position.
type SearchResponse struct {
	Query     string         `json:"query"`
	Results   []SearchResult `json:"results"`
	QueryTime int64          `json:"query_time_ms"`
}
