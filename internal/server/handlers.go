package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clipseek/clipseek/internal/csvio"
	"github.com/clipseek/clipseek/internal/models"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := query.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	response, err := s.search.Search(r.Context(), &query)
	if err != nil {
		s.logger.Error("search failed", zap.String("query", query.Query), zap.Error(err))
		s.respondError(w, statusForError(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

type ingestRequest struct {
	Rows []models.IngestRow `json:"rows"`
}

type ingestResponse struct {
	models.IngestSummary
	// Warning is set when the batch was swapped in but could not be
	// persisted; the caller should retry via /api/v1/persist.
	Warning string `json:"warning,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.runIngest(w, r, req.Rows)
}

func (s *Server) handleIngestCSV(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing csv file upload")
		return
	}
	defer file.Close()
	rows, err := csvio.Read(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.runIngest(w, r, rows)
}

func (s *Server) runIngest(w http.ResponseWriter, r *http.Request, rows []models.IngestRow) {
	summary, err := s.pipeline.Ingest(r.Context(), rows)
	if err != nil && !errors.Is(err, models.ErrPersistenceFailed) {
		s.logger.Error("ingest failed", zap.Int("rows", len(rows)), zap.Error(err))
		s.respondError(w, statusForError(err), err.Error())
		return
	}
	resp := ingestResponse{IngestSummary: *summary}
	if err != nil {
		resp.Warning = err.Error()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAppendRecord(w http.ResponseWriter, r *http.Request) {
	var row models.IngestRow
	if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(row.RecordKey) == "" {
		s.respondError(w, http.StatusBadRequest, "record_key is required")
		return
	}
	if err := s.pipeline.AppendOne(r.Context(), row); err != nil && !errors.Is(err, models.ErrPersistenceFailed) {
		s.logger.Error("append failed", zap.String("record_key", row.RecordKey), zap.Error(err))
		s.respondError(w, statusForError(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{
		"record_key": row.RecordKey,
		"status":     "stored",
	})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	gen, err := s.corpus.Snapshot()
	if err != nil {
		s.respondError(w, statusForError(err), err.Error())
		return
	}
	record, err := gen.Records.ByKey(key)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "record not found")
		return
	}
	s.respondJSON(w, http.StatusOK, record)
}

type summarizeRequest struct {
	RecordKey string `json:"record_key"`
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	if s.summarizer == nil {
		s.respondError(w, http.StatusNotImplemented, "summarization not configured")
		return
	}
	var req summarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	gen, err := s.corpus.Snapshot()
	if err != nil {
		s.respondError(w, statusForError(err), err.Error())
		return
	}
	record, err := gen.Records.ByKey(req.RecordKey)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "record not found")
		return
	}
	if record.BodyText == "" {
		s.respondError(w, http.StatusUnprocessableEntity, "record has no transcript")
		return
	}
	summary, err := s.summarizer.Summarize(r.Context(), record.BodyText)
	if err != nil {
		s.logger.Error("summarization failed", zap.String("record_key", req.RecordKey), zap.Error(err))
		s.respondError(w, statusForError(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{
		"record_key": record.RecordKey,
		"title":      record.Title,
		"summary":    summary,
	})
}

func (s *Server) handlePersist(w http.ResponseWriter, r *http.Request) {
	if s.saver == nil {
		s.respondError(w, http.StatusNotImplemented, "persistence not configured")
		return
	}
	gen, err := s.corpus.Snapshot()
	if err != nil {
		s.respondError(w, statusForError(err), err.Error())
		return
	}
	if err := s.saver.Save(r.Context(), gen); err != nil {
		s.logger.Error("persist retry failed", zap.String("generation", gen.ID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{
		"generation": gen.ID,
		"status":     "persisted",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"dimensions": s.corpus.Dimensions(),
		"loaded":     s.corpus.Loaded(),
	}
	if gen, err := s.corpus.Snapshot(); err == nil {
		resp["records"] = gen.Len()
		resp["generation"] = gen.ID
		resp["generation_created"] = gen.Created
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusForError maps the shared error kinds to HTTP statuses.
func statusForError(err error) int {
	var dm *models.ErrDimensionMismatch
	var dup *models.ErrDuplicateKey
	switch {
	case errors.As(err, &dup):
		return http.StatusConflict
	case errors.As(err, &dm), errors.Is(err, models.ErrEmptyBatch):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNoCorpusLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrEmbeddingUnavailable), errors.Is(err, models.ErrSummarizationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
