// Package corpus owns the aligned pair of vector index and metadata
// store, and publishes immutable generations through an atomic swap.
package corpus

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clipseek/clipseek/internal/metadata"
	"github.com/clipseek/clipseek/internal/models"
	"github.com/clipseek/clipseek/internal/vector"
)

// Generation is one complete, immutable (vectors, records) pair. The
// index and store always have equal length with matching order;
// position i in the index corresponds to record i in the store.
type Generation struct {
	ID      string
	Created time.Time
	Index   *vector.Flat
	Records *metadata.Store
}

// Len returns the number of aligned entries.
func (g *Generation) Len() int {
	return g.Index.Len()
}

// Corpus holds the current generation. Readers pin a generation via
// Snapshot and complete their work against it even if a newer
// generation is published mid-read. Replace and AppendOne are
// serialized by the corpus mutex; publication is a single atomic
// pointer store, so readers observe either the whole old generation or
// the whole new one.
type Corpus struct {
	dimensions int
	mu         sync.Mutex
	current    atomic.Pointer[Generation]
	logger     *zap.Logger
}

// Option configures a Corpus.
type Option func(*Corpus)

// WithLogger sets a logger for generation lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(c *Corpus) { c.logger = l }
}

// New creates a corpus for vectors of the given dimension. No
// generation is loaded until Replace, AppendOne, or Install succeeds.
func New(dimensions int, opts ...Option) *Corpus {
	c := &Corpus{dimensions: dimensions, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dimensions returns the fixed vector dimension.
func (c *Corpus) Dimensions() int {
	return c.dimensions
}

// Loaded reports whether a generation has ever been published.
func (c *Corpus) Loaded() bool {
	return c.current.Load() != nil
}

// Snapshot returns the current generation for reading. Fails with
// ErrNoCorpusLoaded if nothing has been built or loaded yet.
func (c *Corpus) Snapshot() (*Generation, error) {
	gen := c.current.Load()
	if gen == nil {
		return nil, models.ErrNoCorpusLoaded
	}
	return gen, nil
}

// Replace builds a fresh generation from the given aligned slices and
// publishes it, discarding the previous generation. Validation happens
// entirely before publication: on any error the previously published
// generation remains intact and queryable.
func (c *Corpus) Replace(vectors [][]float32, records []models.Record) (*Generation, error) {
	if len(vectors) != len(records) {
		return nil, fmt.Errorf("vectors and records misaligned: %d vs %d", len(vectors), len(records))
	}
	idx, err := vector.NewFlat(c.dimensions)
	if err != nil {
		return nil, err
	}
	if err := idx.Append(vectors); err != nil {
		return nil, err
	}
	store, err := metadata.FromRecords(records)
	if err != nil {
		return nil, err
	}
	gen := c.newGeneration(idx, store)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.publish(gen)
	return gen, nil
}

// AppendOne adds a single record and its embedding to the current
// generation by publishing a copy-on-write successor. It starts a fresh
// generation when none exists. This path is serialized with Replace by
// the corpus mutex, but a full rebuild racing ahead of the caller can
// still discard the appended record; callers that care must serialize
// ingestion themselves.
func (c *Corpus) AppendOne(record models.Record, embedding []float32) (*Generation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var idx *vector.Flat
	var store *metadata.Store
	if cur := c.current.Load(); cur != nil {
		if cur.Records.Has(record.RecordKey) {
			return nil, &models.ErrDuplicateKey{Keys: []string{record.RecordKey}}
		}
		idx = cur.Index.Clone()
		store = cur.Records.Clone()
	} else {
		var err error
		idx, err = vector.NewFlat(c.dimensions)
		if err != nil {
			return nil, err
		}
		store = metadata.NewStore()
	}
	if err := idx.Append([][]float32{embedding}); err != nil {
		return nil, err
	}
	if err := store.Append([]models.Record{record}); err != nil {
		return nil, err
	}
	gen := c.newGeneration(idx, store)
	c.publish(gen)
	return gen, nil
}

// Install publishes a generation reconstructed from persisted state.
// The alignment invariant is re-checked so a corrupt load can never be
// served.
func (c *Corpus) Install(gen *Generation) error {
	if gen.Index.Len() != gen.Records.Len() {
		return fmt.Errorf("%w: index has %d vectors, store has %d records",
			models.ErrCorruptState, gen.Index.Len(), gen.Records.Len())
	}
	if gen.Index.Dimensions() != c.dimensions {
		return fmt.Errorf("%w: index dimension %d, corpus expects %d",
			models.ErrVersionMismatch, gen.Index.Dimensions(), c.dimensions)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publish(gen)
	return nil
}

func (c *Corpus) newGeneration(idx *vector.Flat, store *metadata.Store) *Generation {
	return &Generation{
		ID:      uuid.New().String(),
		Created: time.Now().UTC(),
		Index:   idx,
		Records: store,
	}
}

// publish swaps the current generation. Caller must hold c.mu.
func (c *Corpus) publish(gen *Generation) {
	old := c.current.Swap(gen)
	if old != nil {
		c.logger.Info("corpus generation superseded",
			zap.String("old_generation", old.ID),
			zap.Int("old_size", old.Len()),
			zap.String("new_generation", gen.ID),
			zap.Int("new_size", gen.Len()))
	} else {
		c.logger.Info("corpus generation published",
			zap.String("generation", gen.ID),
			zap.Int("size", gen.Len()))
	}
}
