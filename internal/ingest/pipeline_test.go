package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/clipseek/clipseek/internal/corpus"
	"github.com/clipseek/clipseek/internal/embedding"
	"github.com/clipseek/clipseek/internal/models"
)

const testDims = 8

func newTestPipeline(saver Saver, opts ...Option) (*Pipeline, *corpus.Corpus) {
	c := corpus.New(testDims)
	e := embedding.NewMockEmbedder(testDims)
	return NewPipeline(c, e, saver, opts...), c
}

func longBody(n int) string {
	return strings.Repeat("w ", n)
}

func row(key string) models.IngestRow {
	return models.IngestRow{
		RecordKey: key,
		Title:     "a title long enough to keep",
		BodyText:  longBody(30),
	}
}

func TestIngest_FilterCounts(t *testing.T) {
	p, c := newTestPipeline(nil)

	// Row 2 fails both length checks and is silently dropped.
	rows := []models.IngestRow{
		row("one"),
		{RecordKey: "two", Title: "abc", BodyText: "short"},
		row("three"),
	}
	summary, err := p.Ingest(context.Background(), rows)
	if err != nil {
		t.Fatal(err)
	}
	if summary.OriginalRows != 3 || summary.RowsAfterFiltering != 2 || summary.VectorsStored != 2 {
		t.Errorf("summary = %+v", summary)
	}

	gen, err := c.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if gen.Len() != 2 {
		t.Errorf("corpus size %d", gen.Len())
	}
	if gen.Records.Has("two") {
		t.Error("filtered row must not be stored")
	}
}

func TestIngest_TitleAloneKeepsRow(t *testing.T) {
	p, _ := newTestPipeline(nil)
	rows := []models.IngestRow{
		{RecordKey: "t", Title: "eleven chars!", BodyText: ""},
	}
	summary, err := p.Ingest(context.Background(), rows)
	if err != nil {
		t.Fatal(err)
	}
	if summary.RowsAfterFiltering != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestIngest_EmptyBatch(t *testing.T) {
	p, c := newTestPipeline(nil)
	rows := []models.IngestRow{
		{RecordKey: "a", Title: "tiny", BodyText: "tiny"},
	}
	if _, err := p.Ingest(context.Background(), rows); !errors.Is(err, models.ErrEmptyBatch) {
		t.Errorf("want ErrEmptyBatch, got %v", err)
	}
	if c.Loaded() {
		t.Error("failed ingest must not publish")
	}
}

func TestIngest_DuplicateKeysLeaveCorpusUntouched(t *testing.T) {
	p, c := newTestPipeline(nil)
	if _, err := p.Ingest(context.Background(), []models.IngestRow{row("keep")}); err != nil {
		t.Fatal(err)
	}
	before, _ := c.Snapshot()

	_, err := p.Ingest(context.Background(), []models.IngestRow{row("abc"), row("abc")})
	var dup *models.ErrDuplicateKey
	if !errors.As(err, &dup) {
		t.Fatalf("want ErrDuplicateKey, got %v", err)
	}
	if len(dup.Keys) != 1 || dup.Keys[0] != "abc" {
		t.Errorf("offending keys: %v", dup.Keys)
	}

	after, _ := c.Snapshot()
	if after != before {
		t.Error("corpus must be unchanged after a failed batch")
	}
}

func TestIngest_DimensionMismatch(t *testing.T) {
	p, c := newTestPipeline(nil)
	r := row("bad")
	r.Embedding = []float32{1, 0} // wrong length for testDims
	_, err := p.Ingest(context.Background(), []models.IngestRow{r})
	var dm *models.ErrDimensionMismatch
	if !errors.As(err, &dm) {
		t.Fatalf("want ErrDimensionMismatch, got %v", err)
	}
	if c.Loaded() {
		t.Error("failed ingest must not publish")
	}
}

func TestIngest_ParseOrZeroCoercion(t *testing.T) {
	p, c := newTestPipeline(nil)
	r := row("dirty")
	r.Popularity = "not-a-number"
	r.Duration = "bogus"
	r2 := row("clean")
	r2.Popularity = "1234"
	r2.Duration = "93.5"
	if _, err := p.Ingest(context.Background(), []models.IngestRow{r, r2}); err != nil {
		t.Fatal(err)
	}

	gen, _ := c.Snapshot()
	dirty, _ := gen.Records.ByKey("dirty")
	if dirty.PopularityCount != 0 || dirty.DurationLabel != "0" {
		t.Errorf("dirty row not coerced to zero: %+v", dirty)
	}
	clean, _ := gen.Records.ByKey("clean")
	if clean.PopularityCount != 1234 || clean.DurationLabel != "93.5" {
		t.Errorf("clean row mangled: %+v", clean)
	}
}

func TestIngest_Idempotent(t *testing.T) {
	p, c := newTestPipeline(nil)
	rows := []models.IngestRow{row("a"), row("b"), row("c")}

	if _, err := p.Ingest(context.Background(), rows); err != nil {
		t.Fatal(err)
	}
	gen1, _ := c.Snapshot()
	q := make([]float32, testDims)
	q[0] = 1
	hits1, _ := gen1.Index.Search(q, 3)

	if _, err := p.Ingest(context.Background(), rows); err != nil {
		t.Fatal(err)
	}
	gen2, _ := c.Snapshot()
	hits2, _ := gen2.Index.Search(q, 3)

	if gen1 == gen2 {
		t.Error("re-ingest must publish a new generation")
	}
	if len(hits1) != len(hits2) {
		t.Fatalf("result lengths differ: %d vs %d", len(hits1), len(hits2))
	}
	for i := range hits1 {
		if hits1[i] != hits2[i] {
			t.Errorf("hit %d differs: %+v vs %+v", i, hits1[i], hits2[i])
		}
	}
}

type failingSaver struct{}

func (failingSaver) Save(ctx context.Context, gen *corpus.Generation) error {
	return fmt.Errorf("disk full")
}

func TestIngest_PersistenceFailureIsNonFatal(t *testing.T) {
	p, c := newTestPipeline(failingSaver{})
	summary, err := p.Ingest(context.Background(), []models.IngestRow{row("a")})
	if !errors.Is(err, models.ErrPersistenceFailed) {
		t.Fatalf("want ErrPersistenceFailed, got %v", err)
	}
	if summary == nil || summary.VectorsStored != 1 {
		t.Errorf("summary should still report the swap: %+v", summary)
	}
	// Queries see the new data despite the durability failure.
	gen, err := c.Snapshot()
	if err != nil || gen.Len() != 1 {
		t.Errorf("in-memory corpus should be swapped: %v, %v", gen, err)
	}
}

func TestAppendOne(t *testing.T) {
	p, c := newTestPipeline(nil)
	ctx := context.Background()

	// No length filter on the single-record path.
	if err := p.AppendOne(ctx, models.IngestRow{RecordKey: "v1", BodyText: "short"}); err != nil {
		t.Fatal(err)
	}
	gen, _ := c.Snapshot()
	if gen.Len() != 1 {
		t.Fatalf("Len=%d", gen.Len())
	}

	err := p.AppendOne(ctx, models.IngestRow{RecordKey: "v1", BodyText: "again"})
	var dup *models.ErrDuplicateKey
	if !errors.As(err, &dup) {
		t.Errorf("want ErrDuplicateKey, got %v", err)
	}

	if err := p.AppendOne(ctx, models.IngestRow{BodyText: "no key"}); err == nil {
		t.Error("missing record_key should fail")
	}
}

func TestParseOrZero(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"42", 42},
		{"93.7", 93},
		{"", 0},
		{"abc", 0},
		{"-5", 0},
		{"1e3", 1000},
	}
	for _, tc := range cases {
		if got := parseOrZero(tc.in); got != tc.want {
			t.Errorf("parseOrZero(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
