// Package ingest provides the batch ingestion pipeline and the
// lightweight single-record append path.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clipseek/clipseek/internal/corpus"
	"github.com/clipseek/clipseek/internal/embedding"
	"github.com/clipseek/clipseek/internal/models"
	"github.com/clipseek/clipseek/pkg/utils"
)

// Rows failing both length checks carry too little text to embed
// usefully and are dropped, matching the lenient upstream-data policy.
const (
	minBodyLen  = 20
	minTitleLen = 10
)

const embedConcurrency = 4

// Saver persists a published generation. Failures are surfaced as
// ErrPersistenceFailed but never roll back the in-memory swap.
type Saver interface {
	Save(ctx context.Context, gen *corpus.Generation) error
}

// Pipeline validates raw rows and rebuilds the corpus from them.
type Pipeline struct {
	corpus    *corpus.Corpus
	embedder  embedding.Embedder
	saver     Saver
	batchSize int
	logger    *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a logger for ingestion events.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithBatchSize sets the embedding request chunk size.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// NewPipeline creates a pipeline. saver may be nil, in which case
// ingested corpora are not persisted (used by tests and dry runs).
func NewPipeline(c *corpus.Corpus, e embedding.Embedder, saver Saver, opts ...Option) *Pipeline {
	p := &Pipeline{
		corpus:    c,
		embedder:  e,
		saver:     saver,
		batchSize: 32,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest rebuilds the corpus from rows. The previous generation is
// discarded wholesale on success and left fully intact on any failure.
//
// The returned summary is non-nil whenever the swap succeeded, even if
// persistence then failed; in that case the error wraps
// ErrPersistenceFailed and the caller should retry persistence, not
// re-ingest.
func (p *Pipeline) Ingest(ctx context.Context, rows []models.IngestRow) (*models.IngestSummary, error) {
	kept := p.prepare(rows)
	if len(kept) == 0 {
		return nil, models.ErrEmptyBatch
	}

	if err := p.fillEmbeddings(ctx, kept); err != nil {
		return nil, err
	}

	dims := p.corpus.Dimensions()
	vectors := make([][]float32, len(kept))
	records := make([]models.Record, len(kept))
	for i, row := range kept {
		if len(row.Embedding) != dims {
			return nil, &models.ErrDimensionMismatch{Expected: dims, Actual: len(row.Embedding)}
		}
		vectors[i] = row.Embedding
		records[i] = toRecord(row)
	}
	if dups := duplicateKeys(records); len(dups) > 0 {
		return nil, &models.ErrDuplicateKey{Keys: dups}
	}

	gen, err := p.corpus.Replace(vectors, records)
	if err != nil {
		return nil, err
	}
	summary := &models.IngestSummary{
		OriginalRows:       len(rows),
		RowsAfterFiltering: len(kept),
		VectorsStored:      gen.Len(),
	}
	p.logger.Info("batch ingested",
		zap.Int("original_rows", summary.OriginalRows),
		zap.Int("rows_after_filtering", summary.RowsAfterFiltering),
		zap.Int("vectors_stored", summary.VectorsStored),
		zap.String("generation", gen.ID))

	if err := p.persist(ctx, gen); err != nil {
		return summary, err
	}
	return summary, nil
}

// AppendOne normalizes and appends a single record to the current
// generation. Unlike Ingest it applies no length filtering; only a
// non-empty record key is required. Non-atomic with respect to a
// concurrent full rebuild.
func (p *Pipeline) AppendOne(ctx context.Context, row models.IngestRow) error {
	row = normalizeRow(row)
	if row.RecordKey == "" {
		return fmt.Errorf("record_key is required")
	}
	if row.Embedding == nil {
		vec, err := p.embedder.Embed(ctx, embedText(row))
		if err != nil {
			return err
		}
		row.Embedding = vec
	}
	gen, err := p.corpus.AppendOne(toRecord(row), row.Embedding)
	if err != nil {
		return err
	}
	p.logger.Info("record appended",
		zap.String("record_key", row.RecordKey),
		zap.String("generation", gen.ID),
		zap.Int("size", gen.Len()))
	return p.persist(ctx, gen)
}

// prepare normalizes rows and drops the ones that fail the length
// filter or have no record key. Dropped rows are counted by the
// caller via the summary, never reported as errors.
func (p *Pipeline) prepare(rows []models.IngestRow) []models.IngestRow {
	kept := make([]models.IngestRow, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		row = normalizeRow(row)
		if row.RecordKey == "" {
			dropped++
			continue
		}
		if utf8.RuneCountInString(row.BodyText) <= minBodyLen && utf8.RuneCountInString(row.Title) <= minTitleLen {
			dropped++
			continue
		}
		kept = append(kept, row)
	}
	if dropped > 0 {
		p.logger.Debug("rows dropped by filter", zap.Int("dropped", dropped))
	}
	return kept
}

// fillEmbeddings computes embeddings for rows that arrived without one,
// chunked through the embedding service with bounded parallelism.
func (p *Pipeline) fillEmbeddings(ctx context.Context, rows []models.IngestRow) error {
	var missing []int
	for i := range rows {
		if rows[i].Embedding == nil {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for start := 0; start < len(missing); start += p.batchSize {
		end := start + p.batchSize
		if end > len(missing) {
			end = len(missing)
		}
		chunk := missing[start:end]
		g.Go(func() error {
			texts := make([]string, len(chunk))
			for i, idx := range chunk {
				texts[i] = embedText(rows[idx])
			}
			vecs, err := p.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return err
			}
			for i, idx := range chunk {
				rows[idx].Embedding = vecs[i]
			}
			return nil
		})
	}
	return g.Wait()
}

func (p *Pipeline) persist(ctx context.Context, gen *corpus.Generation) error {
	if p.saver == nil {
		return nil
	}
	if err := p.saver.Save(ctx, gen); err != nil {
		p.logger.Error("persistence failed after swap; serving state is correct, retry persistence",
			zap.String("generation", gen.ID), zap.Error(err))
		return fmt.Errorf("%w: %v", models.ErrPersistenceFailed, err)
	}
	return nil
}

func normalizeRow(row models.IngestRow) models.IngestRow {
	row.RecordKey = utils.CleanText(row.RecordKey)
	row.Title = utils.CleanText(row.Title)
	row.SourceChannel = utils.CleanText(row.SourceChannel)
	row.BodyText = utils.CleanText(row.BodyText)
	row.Popularity = utils.CleanText(row.Popularity)
	row.Duration = utils.CleanText(row.Duration)
	return row
}

// embedText is the text the embedding is computed from: the body,
// falling back to the title for rows kept on title length alone.
func embedText(row models.IngestRow) string {
	if row.BodyText != "" {
		return row.BodyText
	}
	return row.Title
}

func toRecord(row models.IngestRow) models.Record {
	return models.Record{
		RecordKey:       row.RecordKey,
		Title:           row.Title,
		SourceChannel:   row.SourceChannel,
		PopularityCount: parseOrZero(row.Popularity),
		DurationLabel:   durationLabel(row.Duration),
		BodyText:        row.BodyText,
	}
}

// parseOrZero coerces a numeric field leniently: anything that fails to
// parse, or parses negative, becomes 0 rather than failing the row.
func parseOrZero(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f < 0 {
			return 0
		}
		return int64(f)
	}
	return n
}

// durationLabel keeps the raw label when it parses as a number,
// otherwise "0", mirroring the numeric coercion of the popularity
// field while preserving the string form.
func durationLabel(s string) string {
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return "0"
	}
	return s
}

func duplicateKeys(records []models.Record) []string {
	seen := make(map[string]bool, len(records))
	var dups []string
	for _, r := range records {
		if seen[r.RecordKey] {
			dups = append(dups, r.RecordKey)
			continue
		}
		seen[r.RecordKey] = true
	}
	return dups
}

// IsValidationError reports whether err is a batch validation failure
// (as opposed to an infrastructure failure).
func IsValidationError(err error) bool {
	var dm *models.ErrDimensionMismatch
	var dup *models.ErrDuplicateKey
	return errors.Is(err, models.ErrEmptyBatch) || errors.As(err, &dm) || errors.As(err, &dup)
}
