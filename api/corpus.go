package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fabfab/codemind/corpus"
	"github.com/fabfab/codemind/ingestion"
)

type filesResponse struct {
	Files      []corpus.Document `json:"files"`
	Advisories []advisoryView    `json:"advisories,omitempty"`
}

type fileContentResponse struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type ingestRequest struct {
	Dir string `json:"dir"`
}

type ingestResponse struct {
	Message string           `json:"message"`
	Report  ingestion.Report `json:"report"`
}

type clearRequest struct {
	Confirm bool `json:"confirm"`
}

// handleListFiles lists the documents of the primary corpus.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	if s.deps.Files == nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("document corpus is not configured"))
		return
	}
	docs, advisories := s.deps.Files.ListAll(r.Context(), corpus.DefaultGrounding())
	if docs == nil {
		docs = []corpus.Document{}
	}
	s.writeJSON(w, http.StatusOK, filesResponse{Files: docs, Advisories: advisoryViews(advisories)})
}

func (s *Server) handleFileContent(w http.ResponseWriter, r *http.Request) {
	if s.deps.Files == nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("document corpus is not configured"))
		return
	}
	id := chi.URLParam(r, "docID")
	content, err := s.deps.Files.FetchContent(r.Context(), corpus.Document{ID: id, Origin: corpus.SourceCorpus})
	if err != nil {
		s.writeError(w, statusFor(err), fmt.Errorf("fetch content: %w", err))
		return
	}
	s.writeJSON(w, http.StatusOK, fileContentResponse{ID: id, Content: content})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ingest == nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("ingestion is not configured"))
		return
	}
	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	dir := strings.TrimSpace(req.Dir)
	if dir == "" {
		dir = s.deps.DataDir
	}

	s.logger.Info("ingesting documents", zap.String("dir", dir))
	report, err := s.deps.Ingest.IngestDirectory(r.Context(), dir)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("ingestion failed: %w", err))
		return
	}
	s.writeJSON(w, http.StatusOK, ingestResponse{Message: "ingestion complete", Report: report})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ingest == nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("ingestion is not configured"))
		return
	}
	var req clearRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if !req.Confirm {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("confirm must be true to clear data"))
		return
	}

	if err := s.deps.Ingest.Clear(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("clear corpus: %w", err))
		return
	}
	s.logger.Info("rag data removed")
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "rag data cleared"})
}
