// Package models defines core data structures for records, queries, and search results.
package models

// Record is one searchable transcript record. Its position in the corpus
// is the join key to the vector stored for it.
type Record struct {
	RecordKey       string `json:"record_key"`
	Title           string `json:"title"`
	SourceChannel   string `json:"source_channel"`
	PopularityCount int64  `json:"popularity_count"`
	DurationLabel   string `json:"duration_label"`
	BodyText        string `json:"body_text"`
}

// IngestRow is one raw input row for the ingestion pipeline. Numeric
// fields arrive as raw strings and are coerced with parse-or-zero
// semantics; the embedding may be nil, in which case the pipeline
// computes it from BodyText via the embedding service.
type IngestRow struct {
	RecordKey     string    `json:"record_key"`
	Title         string    `json:"title"`
	SourceChannel string    `json:"source_channel"`
	Popularity    string    `json:"popularity_count"`
	Duration      string    `json:"duration_label"`
	BodyText      string    `json:"body_text"`
	Embedding     []float32 `json:"-"`
}

// IngestSummary reports what happened to a batch.
type IngestSummary struct {
	OriginalRows       int `json:"original_rows"`
	RowsAfterFiltering int `json:"rows_after_filtering"`
	VectorsStored      int `json:"vectors_stored"`
}
