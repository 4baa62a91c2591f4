package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyBatch is returned when no rows survive ingestion filtering.
	ErrEmptyBatch = errors.New("no valid rows after filtering")
	// ErrOutOfRange is returned for a positional lookup beyond the store.
	ErrOutOfRange = errors.New("position out of range")
	// ErrNotFound is returned for a key lookup with no matching record.
	ErrNotFound = errors.New("record not found")
	// ErrNoCorpusLoaded is returned when no corpus has ever been built or loaded.
	ErrNoCorpusLoaded = errors.New("no corpus loaded")
	// ErrCorruptState is returned when persisted artifacts disagree or cannot be decoded.
	ErrCorruptState = errors.New("persisted state is corrupt")
	// ErrVersionMismatch is returned when the persisted dimension differs
	// from the dimension the running process expects.
	ErrVersionMismatch = errors.New("persisted dimension mismatch")
	// ErrPersistenceFailed wraps a durability failure after a successful
	// in-memory swap. Serving state is correct; callers should retry
	// persistence rather than re-ingest.
	ErrPersistenceFailed = errors.New("persistence failed")
	// ErrEmbeddingUnavailable is returned when the embedding service fails.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
	// ErrSummarizationFailed is returned when the summarization service fails.
	ErrSummarizationFailed = errors.New("summarization failed")
)

// ErrDimensionMismatch indicates a vector whose length does not match
// the corpus dimension.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrDuplicateKey indicates record keys that collide within a batch or
// with keys already present in the store.
type ErrDuplicateKey struct {
	Keys []string
}

func (e *ErrDuplicateKey) Error() string {
	return fmt.Sprintf("duplicate record keys: %s", strings.Join(e.Keys, ", "))
}
