// Package search provides the query service over the corpus.
package search

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/clipseek/clipseek/internal/corpus"
	"github.com/clipseek/clipseek/internal/embedding"
	"github.com/clipseek/clipseek/internal/models"
	"github.com/clipseek/clipseek/pkg/utils"
)

// Similarity scores are rounded to a fixed precision for display
// stability across runs.
const scorePrecision = 4

// Service answers similarity queries against the current corpus
// generation. Each query pins one generation and completes entirely
// against it, so concurrent rebuilds never affect an in-flight search.
type Service struct {
	corpus   *corpus.Corpus
	embedder embedding.Embedder
	logger   *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets a logger for query events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a query service.
func NewService(c *corpus.Corpus, e embedding.Embedder, opts ...Option) *Service {
	s := &Service{corpus: c, embedder: e, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search embeds the query text and returns the top-k records with
// similarity scores. Fails with ErrNoCorpusLoaded when nothing has ever
// been built or loaded, and with ErrEmbeddingUnavailable when the
// embedding service fails; neither touches the corpus.
func (s *Service) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	start := time.Now()
	if err := query.Validate(); err != nil {
		return nil, err
	}
	gen, err := s.corpus.Snapshot()
	if err != nil {
		return nil, err
	}
	vec, err := s.embedder.Embed(ctx, query.Query)
	if err != nil {
		return nil, err
	}
	results, err := s.searchGeneration(gen, vec, query.TopK)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("search served",
		zap.String("query", query.Query),
		zap.Int("top_k", query.TopK),
		zap.Int("results", len(results)),
		zap.String("generation", gen.ID))
	return &models.SearchResponse{
		Query:     query.Query,
		Results:   results,
		QueryTime: time.Since(start).Milliseconds(),
	}, nil
}

// SearchVector answers a query for an already-computed embedding.
func (s *Service) SearchVector(ctx context.Context, vec []float32, k int) ([]models.SearchResult, error) {
	gen, err := s.corpus.Snapshot()
	if err != nil {
		return nil, err
	}
	return s.searchGeneration(gen, vec, k)
}

func (s *Service) searchGeneration(gen *corpus.Generation, vec []float32, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		k = 1
	}
	hits, err := gen.Index.Search(vec, k)
	if err != nil {
		return nil, err
	}
	results := make([]models.SearchResult, 0, len(hits))
	for _, hit := range hits {
		record, err := gen.Records.ByPosition(hit.Position)
		if err != nil {
			// The alignment invariant makes this unreachable for a
			// published generation.
			return nil, err
		}
		results = append(results, models.SearchResult{
			Record:     record,
			Similarity: utils.RoundTo(hit.Score, scorePrecision),
		})
	}
	return results, nil
}
