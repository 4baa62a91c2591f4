package persist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/clipseek/clipseek/internal/corpus"
	"github.com/clipseek/clipseek/internal/models"
)

func newTestManager(t *testing.T, dims int) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	m, err := NewManager(filepath.Join(dir, "vectors.bin"), filepath.Join(dir, "records.db"), dims)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m, dir
}

func buildGeneration(t *testing.T, dims int) *corpus.Generation {
	t.Helper()
	c := corpus.New(dims)
	gen, err := c.Replace(
		[][]float32{{1, 0}, {0, 1}, {0.6, 0.8}},
		[]models.Record{
			{RecordKey: "a", Title: "first", SourceChannel: "chan", PopularityCount: 42, DurationLabel: "120", BodyText: "a transcript"},
			{RecordKey: "b", Title: "second", BodyText: "another transcript"},
			{RecordKey: "c", Title: "third"},
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	return gen
}

func TestManager_RoundTrip(t *testing.T) {
	m, _ := newTestManager(t, 2)
	ctx := context.Background()
	gen := buildGeneration(t, 2)

	if err := m.Save(ctx, gen); err != nil {
		t.Fatal(err)
	}
	loaded, err := m.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if loaded == nil {
		t.Fatal("expected a loaded generation")
	}
	if loaded.ID != gen.ID {
		t.Errorf("generation id %q, want %q", loaded.ID, gen.ID)
	}
	if loaded.Len() != gen.Len() {
		t.Fatalf("loaded %d records, want %d", loaded.Len(), gen.Len())
	}
	for i := 0; i < gen.Len(); i++ {
		orig, _ := gen.Records.ByPosition(i)
		got, err := loaded.Records.ByPosition(i)
		if err != nil {
			t.Fatal(err)
		}
		if got != orig {
			t.Errorf("record %d: got %+v, want %+v", i, got, orig)
		}
	}

	// The rebuilt key map resolves the same positions.
	if _, err := loaded.Records.ByKey("b"); err != nil {
		t.Errorf("ByKey after load: %v", err)
	}

	// Identical search results against original and loaded index.
	q := []float32{0.6, 0.8}
	origHits, _ := gen.Index.Search(q, 3)
	loadedHits, err := loaded.Index.Search(q, 3)
	if err != nil {
		t.Fatal(err)
	}
	for i := range origHits {
		if origHits[i] != loadedHits[i] {
			t.Errorf("hit %d differs: %+v vs %+v", i, origHits[i], loadedHits[i])
		}
	}
}

func TestManager_LoadNothingPersisted(t *testing.T) {
	m, _ := newTestManager(t, 2)
	gen, err := m.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if gen != nil {
		t.Errorf("expected nil generation, got %+v", gen)
	}
}

func TestManager_LoadCountDisagreement(t *testing.T) {
	m, _ := newTestManager(t, 2)
	ctx := context.Background()
	if err := m.Save(ctx, buildGeneration(t, 2)); err != nil {
		t.Fatal(err)
	}

	// Tamper the manifest so the artifacts disagree on N.
	if _, err := m.db.Exec("UPDATE manifest SET record_count = record_count - 1"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Load(ctx); !errors.Is(err, models.ErrCorruptState) {
		t.Errorf("want ErrCorruptState, got %v", err)
	}
}

func TestManager_LoadMissingVectorArtifact(t *testing.T) {
	m, dir := newTestManager(t, 2)
	ctx := context.Background()
	if err := m.Save(ctx, buildGeneration(t, 2)); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, "vectors.bin")); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Load(ctx); !errors.Is(err, models.ErrCorruptState) {
		t.Errorf("want ErrCorruptState, got %v", err)
	}
}

func TestManager_LoadVersionMismatch(t *testing.T) {
	m, dir := newTestManager(t, 2)
	ctx := context.Background()
	if err := m.Save(ctx, buildGeneration(t, 2)); err != nil {
		t.Fatal(err)
	}
	_ = m.Close()

	// A process configured for a different embedding dimension must not
	// serve these vectors.
	m2, err := NewManager(filepath.Join(dir, "vectors.bin"), filepath.Join(dir, "records.db"), 384)
	if err != nil {
		t.Fatal(err)
	}
	defer m2.Close()
	if _, err := m2.Load(ctx); !errors.Is(err, models.ErrVersionMismatch) {
		t.Errorf("want ErrVersionMismatch, got %v", err)
	}
}

func TestManager_SaveOverwritesPreviousGeneration(t *testing.T) {
	m, _ := newTestManager(t, 2)
	ctx := context.Background()
	if err := m.Save(ctx, buildGeneration(t, 2)); err != nil {
		t.Fatal(err)
	}

	c := corpus.New(2)
	small, err := c.Replace([][]float32{{0, 1}}, []models.Record{{RecordKey: "only"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Save(ctx, small); err != nil {
		t.Fatal(err)
	}

	loaded, err := m.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != 1 {
		t.Errorf("loaded %d records, want 1", loaded.Len())
	}
	if _, err := loaded.Records.ByKey("a"); !errors.Is(err, models.ErrNotFound) {
		t.Error("previous generation's records should be gone")
	}
}
