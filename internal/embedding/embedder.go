// Package embedding provides the boundary to the external embedding
// service, which turns text into unit-normalized fixed-dimension
// vectors.
package embedding

import "context"

// Embedder produces vector embeddings for text. Returned vectors are
// unit-normalized and order-preserving with respect to the input.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
