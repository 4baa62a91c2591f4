// Package summarize provides the boundary to the external generation
// service used for transcript summaries.
package summarize

import "context"

// Summarizer produces a natural-language summary for a block of text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}
