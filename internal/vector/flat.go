// Package vector provides the flat exact inner-product vector index.
package vector

import (
	"fmt"
	"sort"

	"github.com/clipseek/clipseek/internal/models"
)

// Hit is a single search match: the position of the stored vector and
// its inner-product score against the query.
type Hit struct {
	Position int
	Score    float64
}

// Flat is a brute-force inner-product index over fixed-dimension
// float32 vectors. Stored and query vectors must be unit-normalized by
// the caller, so the inner product equals cosine similarity; the index
// does not renormalize.
//
// Flat is not safe for concurrent mutation. The corpus serializes all
// writers and publishes immutable generations, so concurrent searches
// against a published index need no locking.
type Flat struct {
	dimensions int
	vectors    [][]float32
}

// NewFlat creates an empty index with the given dimension.
func NewFlat(dimensions int) (*Flat, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	return &Flat{dimensions: dimensions}, nil
}

// Dimensions returns the fixed vector dimension.
func (f *Flat) Dimensions() int {
	return f.dimensions
}

// Len returns the number of stored vectors.
func (f *Flat) Len() int {
	return len(f.vectors)
}

// Append adds vectors in order. Each vector is copied. Fails without
// storing anything if any vector's length differs from the index
// dimension.
func (f *Flat) Append(vectors [][]float32) error {
	for _, v := range vectors {
		if len(v) != f.dimensions {
			return &models.ErrDimensionMismatch{Expected: f.dimensions, Actual: len(v)}
		}
	}
	for _, v := range vectors {
		vec := make([]float32, f.dimensions)
		copy(vec, v)
		f.vectors = append(f.vectors, vec)
	}
	return nil
}

// Search scores every stored vector against query by inner product and
// returns the top k hits ordered by descending score. Ties break by
// ascending position so results are deterministic. Returns min(k, Len)
// hits; an empty index yields an empty result, not an error.
func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != f.dimensions {
		return nil, &models.ErrDimensionMismatch{Expected: f.dimensions, Actual: len(query)}
	}
	if k <= 0 || len(f.vectors) == 0 {
		return []Hit{}, nil
	}
	hits := make([]Hit, len(f.vectors))
	for i, vec := range f.vectors {
		var dot float64
		for j := 0; j < f.dimensions; j++ {
			dot += float64(query[j]) * float64(vec[j])
		}
		hits[i] = Hit{Position: i, Score: dot}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Position < hits[j].Position
	})
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Clone returns a new index sharing the stored vectors. The inner
// vectors are never mutated after Append, so sharing them is safe; only
// the outer slice is copied.
func (f *Flat) Clone() *Flat {
	vectors := make([][]float32, len(f.vectors))
	copy(vectors, f.vectors)
	return &Flat{dimensions: f.dimensions, vectors: vectors}
}
