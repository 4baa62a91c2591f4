package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clipseek/clipseek/internal/models"
)

func TestHTTPEmbedder_BatchOrderPreserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		// One distinguishable vector per text, in order.
		out := embedResponse{Embeddings: make([][]float32, len(req.Texts))}
		for i := range req.Texts {
			out.Embeddings[i] = []float32{float32(i), 0}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL, 2, time.Second)
	vecs, err := e.EmbedBatch(context.Background(), []string{"first", "second", "third"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors", len(vecs))
	}
	for i, vec := range vecs {
		if vec[0] != float32(i) {
			t.Errorf("vector %d out of order: %v", i, vec)
		}
	}
}

func TestHTTPEmbedder_Failures(t *testing.T) {
	t.Run("non-200 status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()
		e := NewHTTPEmbedder(srv.URL, 2, time.Second)
		if _, err := e.Embed(context.Background(), "hi"); !errors.Is(err, models.ErrEmbeddingUnavailable) {
			t.Errorf("want ErrEmbeddingUnavailable, got %v", err)
		}
	})

	t.Run("wrong dimension", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1, 0, 0}}})
		}))
		defer srv.Close()
		e := NewHTTPEmbedder(srv.URL, 2, time.Second)
		if _, err := e.Embed(context.Background(), "hi"); !errors.Is(err, models.ErrEmbeddingUnavailable) {
			t.Errorf("want ErrEmbeddingUnavailable, got %v", err)
		}
	})

	t.Run("count mismatch", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1, 0}}})
		}))
		defer srv.Close()
		e := NewHTTPEmbedder(srv.URL, 2, time.Second)
		if _, err := e.EmbedBatch(context.Background(), []string{"a", "b"}); !errors.Is(err, models.ErrEmbeddingUnavailable) {
			t.Errorf("want ErrEmbeddingUnavailable, got %v", err)
		}
	})

	t.Run("transport error", func(t *testing.T) {
		e := NewHTTPEmbedder("http://127.0.0.1:0", 2, time.Second)
		if _, err := e.Embed(context.Background(), "hi"); !errors.Is(err, models.ErrEmbeddingUnavailable) {
			t.Errorf("want ErrEmbeddingUnavailable, got %v", err)
		}
	})
}

func TestMockEmbedder_DeterministicAndNormalized(t *testing.T) {
	e := NewMockEmbedder(16)
	a, err := e.Embed(context.Background(), "same text")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := e.Embed(context.Background(), "same text")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("mock embedder is not deterministic")
		}
	}

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("not unit-normalized: |v|^2 = %v", norm)
	}

	c, _ := e.Embed(context.Background(), "different text")
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts should not collide")
	}
}
