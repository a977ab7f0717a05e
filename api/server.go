package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/fabfab/codemind/chat"
	"github.com/fabfab/codemind/ingestion"
	"github.com/fabfab/codemind/llm"
	"github.com/fabfab/codemind/retrieval"
	"github.com/fabfab/codemind/store"
)

// Ingester populates and clears the primary corpus.
type Ingester interface {
	IngestDirectory(ctx context.Context, dir string) (ingestion.Report, error)
	Clear(ctx context.Context) error
}

// Dependencies wires the server. Snapshots, Files and Ingest are optional.
type Dependencies struct {
	Chat                  *chat.Service
	Sessions              *store.Repository
	Snapshots             store.Snapshots
	Files                 *retrieval.FanOut
	Ingest                Ingester
	Catalog               llm.Catalog
	CodeGenerationDefault bool
	DataDir               string
	Logger                *zap.Logger
}

// Server exposes the chat workspace over HTTP.
type Server struct {
	deps    Dependencies
	logger  *zap.Logger
	handler http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Sessions == nil {
		deps.Sessions = store.NewRepository(deps.Catalog)
	}

	s := &Server{deps: deps, logger: deps.Logger}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/openapi.yaml", s.handleOpenAPI)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/models", s.handleModels)
		r.Put("/models/selected", s.handleSelectModel)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Post("/", s.handleCreateSession)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)
				r.Post("/activate", s.handleActivateSession)
				r.Put("/grounding", s.handleSetGrounding)
				r.Put("/code-generation", s.handleSetCodeGeneration)
				r.Post("/messages", s.handleSubmit)
				r.Post("/messages/{index}/suggestion", s.handleSuggestion)
				r.Get("/messages/{index}/suggestion/diff", s.handleSuggestionDiff)
				r.Get("/edits", s.handleListEdits)
				r.Get("/edits/{docID}/diff", s.handleEditDiff)
			})
		})

		r.Get("/files", s.handleListFiles)
		r.Get("/files/{docID}", s.handleFileContent)
		r.Post("/ingest", s.handleIngest)
		r.Post("/clear", s.handleClear)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/yaml; charset=utf-8")
	w.Header().Set("Content-Disposition", "inline; filename=\"openapi.yaml\"")
	_, _ = w.Write(openAPISpecYAML)
}

// persist saves the workspace snapshot when a snapshot store is configured.
// Failures are logged; the in-memory state stays authoritative.
const persistTimeout = 5 * time.Second

// persist saves the workspace snapshot. The save is detached from request
// cancellation so a client hanging up mid-stream does not lose the turn.
func (s *Server) persist(ctx context.Context) {
	if s.deps.Snapshots == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.deps.Snapshots.Save(ctx, s.deps.Sessions.Snapshot()); err != nil {
		s.logger.Warn("persist workspace failed", zap.Error(err))
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("api error", zap.Int("status", status), zap.Error(err))
	} else {
		s.logger.Debug("api error", zap.Int("status", status), zap.Error(err))
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrSessionNotFound),
		errors.Is(err, chat.ErrNoSuggestion),
		errors.Is(err, retrieval.ErrContentNotFound),
		errors.Is(err, retrieval.ErrNoSource):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrSessionBusy),
		errors.Is(err, chat.ErrSuggestionResolved):
		return http.StatusConflict
	case errors.Is(err, chat.ErrEmptyQuery),
		errors.Is(err, store.ErrUnknownModel):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}
