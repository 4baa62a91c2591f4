// Package server provides the HTTP API for Clipseek.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/clipseek/clipseek/internal/config"
	"github.com/clipseek/clipseek/internal/corpus"
	"github.com/clipseek/clipseek/internal/ingest"
	"github.com/clipseek/clipseek/internal/search"
	"github.com/clipseek/clipseek/internal/summarize"
)

// Server is the HTTP server for the Clipseek API.
type Server struct {
	search     *search.Service
	pipeline   *ingest.Pipeline
	corpus     *corpus.Corpus
	saver      ingest.Saver
	summarizer summarize.Summarizer
	config     *config.ServerConfig
	logger     *zap.Logger
	server     *http.Server
}

// NewServer creates a server with the given dependencies. saver and
// summarizer may be nil; the corresponding endpoints then answer 501.
func NewServer(
	svc *search.Service,
	pipeline *ingest.Pipeline,
	c *corpus.Corpus,
	saver ingest.Saver,
	summarizer summarize.Summarizer,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		search:     svc,
		pipeline:   pipeline,
		corpus:     c,
		saver:      saver,
		summarizer: summarizer,
		config:     cfg,
		logger:     logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/ingest", s.handleIngest)
	r.Post("/api/v1/ingest/csv", s.handleIngestCSV)
	r.Post("/api/v1/records", s.handleAppendRecord)
	r.Get("/api/v1/records/{key}", s.handleGetRecord)
	r.Post("/api/v1/summarize", s.handleSummarize)
	r.Post("/api/v1/persist", s.handlePersist)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
