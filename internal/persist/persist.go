// Package persist stores corpus generations durably. Vectors go to a
// flat binary file, records to a SQLite database; a manifest row ties
// the two together with the dimension, record count, and generation ID
// so load can verify the pair before serving it.
package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/clipseek/clipseek/internal/corpus"
	"github.com/clipseek/clipseek/internal/metadata"
	"github.com/clipseek/clipseek/internal/models"
	"github.com/clipseek/clipseek/internal/vector"
)

// Manager reads and writes the persisted corpus artifacts.
type Manager struct {
	vectorPath string
	dimensions int
	db         *sql.DB
	logger     *zap.Logger
	mu         sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets a logger for persistence events.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager opens (or creates) the metadata database at dbPath and
// prepares the schema. vectorPath is where the vector artifact lives.
// dimensions is the dimension the running process expects; persisted
// state with any other dimension is rejected on load.
func NewManager(vectorPath, dbPath string, dimensions int, opts ...Option) (*Manager, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	m := &Manager{
		vectorPath: vectorPath,
		dimensions: dimensions,
		db:         db,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS manifest (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		generation_id TEXT NOT NULL,
		dimensions INTEGER NOT NULL,
		record_count INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		saved_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS records (
		position INTEGER PRIMARY KEY,
		record_key TEXT NOT NULL,
		title TEXT,
		source_channel TEXT,
		popularity_count INTEGER,
		duration_label TEXT,
		body_text TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_records_key ON records(record_key);
	`
	_, err := db.Exec(schema)
	return err
}

// Save writes both artifacts for the generation: the vector file first
// (atomic rename), then the records and manifest in one transaction.
// If the process dies between the two, Load detects the disagreement.
func (m *Manager) Save(ctx context.Context, gen *corpus.Generation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := gen.Index.Save(m.vectorPath); err != nil {
		return fmt.Errorf("save vectors: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM records"); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (position, record_key, title, source_channel, popularity_count, duration_label, body_text)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for i, r := range gen.Records.Records() {
		if _, err := stmt.ExecContext(ctx, i, r.RecordKey, r.Title, r.SourceChannel, r.PopularityCount, r.DurationLabel, r.BodyText); err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO manifest (id, generation_id, dimensions, record_count, created_at, saved_at)
		VALUES (1, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			generation_id = excluded.generation_id,
			dimensions = excluded.dimensions,
			record_count = excluded.record_count,
			created_at = excluded.created_at,
			saved_at = CURRENT_TIMESTAMP`,
		gen.ID, gen.Index.Dimensions(), gen.Len(), gen.Created); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	m.logger.Info("corpus persisted",
		zap.String("generation", gen.ID),
		zap.Int("records", gen.Len()),
		zap.String("vector_path", m.vectorPath))
	return nil
}

// Load reconstructs the last saved generation. Returns (nil, nil) when
// nothing has ever been persisted. Artifacts that disagree on count
// fail with ErrCorruptState; a dimension other than the one the
// manager expects fails with ErrVersionMismatch. Callers fall back to
// an empty corpus on either error.
func (m *Manager) Load(ctx context.Context) (*corpus.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var genID string
	var dims, count int
	var created time.Time
	err := m.db.QueryRowContext(ctx,
		"SELECT generation_id, dimensions, record_count, created_at FROM manifest WHERE id = 1").
		Scan(&genID, &dims, &count, &created)
	if errors.Is(err, sql.ErrNoRows) {
		if _, statErr := os.Stat(m.vectorPath); statErr == nil {
			return nil, fmt.Errorf("%w: vector artifact exists without a manifest", models.ErrCorruptState)
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	if dims != m.dimensions {
		return nil, fmt.Errorf("%w: persisted dimension %d, process expects %d",
			models.ErrVersionMismatch, dims, m.dimensions)
	}

	idx, err := vector.LoadFlat(m.vectorPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: manifest exists without a vector artifact", models.ErrCorruptState)
		}
		return nil, err
	}
	if idx.Dimensions() != dims {
		return nil, fmt.Errorf("%w: vector artifact dimension %d, manifest says %d",
			models.ErrCorruptState, idx.Dimensions(), dims)
	}
	if idx.Len() != count {
		return nil, fmt.Errorf("%w: vector artifact holds %d vectors, manifest says %d",
			models.ErrCorruptState, idx.Len(), count)
	}

	records, err := m.loadRecords(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) != count {
		return nil, fmt.Errorf("%w: %d records, manifest says %d",
			models.ErrCorruptState, len(records), count)
	}
	store, err := metadata.FromRecords(records)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrCorruptState, err)
	}

	m.logger.Info("corpus loaded from disk",
		zap.String("generation", genID),
		zap.Int("records", count),
		zap.Int("dimensions", dims))
	return &corpus.Generation{ID: genID, Created: created, Index: idx, Records: store}, nil
}

func (m *Manager) loadRecords(ctx context.Context) ([]models.Record, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT record_key, title, source_channel, popularity_count, duration_label, body_text
		FROM records ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var r models.Record
		if err := rows.Scan(&r.RecordKey, &r.Title, &r.SourceChannel, &r.PopularityCount, &r.DurationLabel, &r.BodyText); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close closes the metadata database.
func (m *Manager) Close() error {
	return m.db.Close()
}
