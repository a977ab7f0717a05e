package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fabfab/codemind/chat"
	"github.com/fabfab/codemind/corpus"
	"github.com/fabfab/codemind/diff"
	"github.com/fabfab/codemind/llm"
	"github.com/fabfab/codemind/retrieval"
	"github.com/fabfab/codemind/store"
)

type createSessionRequest struct {
	Name                  string        `json:"name"`
	Files                 []corpus.File `json:"files"`
	CodeGenerationEnabled *bool         `json:"codeGenerationEnabled"`
}

type sessionSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	Busy      bool      `json:"busy"`
}

type sessionListResponse struct {
	Sessions        []sessionSummary `json:"sessions"`
	ActiveSessionID string           `json:"activeSessionId"`
	SelectedModel   string           `json:"selectedModel"`
}

type modelsResponse struct {
	Models        llm.Catalog `json:"models"`
	SelectedModel string      `json:"selectedModel"`
}

type selectModelRequest struct {
	ModelID string `json:"modelId"`
}

type codeGenerationRequest struct {
	Enabled bool `json:"enabled"`
}

type submitRequest struct {
	Query      string           `json:"query"`
	Attachment *chat.Attachment `json:"attachment"`
	ModelID    string           `json:"modelId"`
	Location   *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
}

type advisoryView struct {
	Source  corpus.SourceKind `json:"source"`
	Message string            `json:"message"`
}

// streamLine is one NDJSON line of a message stream: either an update or the
// closing line with done set.
type streamLine struct {
	Update     *chat.Update      `json:"update,omitempty"`
	Done       bool              `json:"done,omitempty"`
	Intent     string            `json:"intent,omitempty"`
	Advisories []advisoryView    `json:"advisories,omitempty"`
	Grounding  *corpus.Grounding `json:"grounding,omitempty"`
}

type suggestionRequest struct {
	Action string `json:"action"`
}

type diffResponse struct {
	Document corpus.Document `json:"file"`
	Status   string          `json:"status,omitempty"`
	Mode     string          `json:"mode"`
	Lines    []diff.Line     `json:"lines,omitempty"`
	Rows     []diff.Row      `json:"rows,omitempty"`
	Added    int             `json:"added"`
	Removed  int             `json:"removed"`
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*chat.Session, bool) {
	sess, ok := s.deps.Sessions.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		s.writeError(w, http.StatusNotFound, store.ErrSessionNotFound)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, modelsResponse{Models: s.deps.Catalog, SelectedModel: s.deps.Sessions.SelectedModel()})
}

func (s *Server) handleSelectModel(w http.ResponseWriter, r *http.Request) {
	var req selectModelRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if err := s.deps.Sessions.SelectModel(req.ModelID); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.persist(r.Context())
	s.writeJSON(w, http.StatusOK, modelsResponse{Models: s.deps.Catalog, SelectedModel: req.ModelID})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.deps.Sessions.List()
	resp := sessionListResponse{
		Sessions:        make([]sessionSummary, 0, len(sessions)),
		ActiveSessionID: s.deps.Sessions.ActiveID(),
		SelectedModel:   s.deps.Sessions.SelectedModel(),
	}
	for _, sess := range sessions {
		resp.Sessions = append(resp.Sessions, sessionSummary{
			ID:        sess.ID(),
			Title:     sess.Title(),
			CreatedAt: sess.CreatedAt(),
			Busy:      sess.Busy(),
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	codeGeneration := s.deps.CodeGenerationDefault
	if req.CodeGenerationEnabled != nil {
		codeGeneration = *req.CodeGenerationEnabled
	}

	var sess *chat.Session
	if len(req.Files) > 0 {
		name := strings.TrimSpace(req.Name)
		if name == "" {
			name = fmt.Sprintf("%d files", len(req.Files))
		}
		sess = chat.NewSessionFromFiles(name, req.Files, codeGeneration)
	} else {
		sess = chat.NewSession(codeGeneration)
	}

	s.deps.Sessions.Save(sess)
	if err := s.deps.Sessions.SetActive(sess.ID()); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.logger.Info("session created", zap.String("session", sess.ID()), zap.Int("files", len(req.Files)))
	s.persist(r.Context())
	s.writeJSON(w, http.StatusCreated, sess.State())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, sess.State())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if sess.Busy() {
		s.writeError(w, http.StatusConflict, chat.ErrSessionBusy)
		return
	}
	s.deps.Sessions.Delete(sess.ID())
	s.persist(r.Context())
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "session deleted"})
}

func (s *Server) handleActivateSession(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Sessions.SetActive(chi.URLParam(r, "sessionID")); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.persist(r.Context())
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "session activated"})
}

func (s *Server) handleSetGrounding(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req corpus.Grounding
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	applied := sess.SetGrounding(req)
	s.persist(r.Context())
	s.writeJSON(w, http.StatusOK, applied)
}

func (s *Server) handleSetCodeGeneration(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req codeGenerationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	sess.SetCodeGenerationEnabled(req.Enabled)
	s.persist(r.Context())
	s.writeJSON(w, http.StatusOK, req)
}

// handleSubmit streams message snapshots as NDJSON. Errors raised before the
// first snapshot are returned as plain JSON errors.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if s.deps.Chat == nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("chat service is not configured"))
		return
	}

	chatReq := chat.Request{Query: req.Query, Attachment: req.Attachment, ModelID: req.ModelID}
	if chatReq.ModelID == "" {
		chatReq.ModelID = s.deps.Sessions.SelectedModel()
	}
	if req.Location != nil {
		chatReq.Location = &llm.LatLng{Latitude: req.Location.Latitude, Longitude: req.Location.Longitude}
	}

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	started := false
	writeLine := func(line streamLine) {
		if !started {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if err := enc.Encode(line); err != nil {
			s.logger.Debug("write stream line", zap.Error(err))
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	reply, err := s.deps.Chat.Submit(r.Context(), sess, chatReq, func(u chat.Update) {
		writeLine(streamLine{Update: &u})
	})
	if err != nil && !started {
		s.writeError(w, statusFor(err), err)
		return
	}

	grounding := sess.Grounding()
	writeLine(streamLine{
		Done:       true,
		Intent:     reply.Decision.Intent.String(),
		Advisories: advisoryViews(reply.Advisories),
		Grounding:  &grounding,
	})
	s.persist(r.Context())
}

func advisoryViews(advisories []retrieval.Advisory) []advisoryView {
	if len(advisories) == 0 {
		return nil
	}
	out := make([]advisoryView, 0, len(advisories))
	for _, a := range advisories {
		out = append(out, advisoryView{Source: a.Source, Message: a.Message()})
	}
	return out
}

func parseAction(raw string) (chat.Action, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "accept", "accepted":
		return chat.Accept, nil
	case "reject", "rejected":
		return chat.Reject, nil
	default:
		return "", fmt.Errorf("action must be accept or reject")
	}
}

func (s *Server) handleSuggestion(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("message index must be a number"))
		return
	}
	var req suggestionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	action, err := parseAction(req.Action)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if s.deps.Chat == nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("chat service is not configured"))
		return
	}

	msg, err := s.deps.Chat.ResolveSuggestion(r.Context(), sess, index, action)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.persist(r.Context())
	s.writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleListEdits(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	edits := sess.Edits()
	if edits == nil {
		edits = []chat.EditedDocumentRecord{}
	}
	s.writeJSON(w, http.StatusOK, edits)
}

func (s *Server) handleEditDiff(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	record, ok := sess.Edit(chi.URLParam(r, "docID"))
	if !ok {
		s.writeError(w, http.StatusNotFound, errors.New("document has no accepted edits"))
		return
	}

	lines := diff.Unified(record.OriginalContent, record.CurrentContent)
	s.writeDiff(w, r, diffResponse{Document: record.Document}, lines)
}

// handleSuggestionDiff previews the change a suggestion makes so a client can
// decide before accepting or rejecting it.
func (s *Server) handleSuggestionDiff(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("message index must be a number"))
		return
	}
	suggestion, lines, err := sess.SuggestionDiff(index)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeDiff(w, r, diffResponse{Document: suggestion.Document, Status: string(suggestion.Status)}, lines)
}

// writeDiff renders lines in the mode named by the query string.
func (s *Server) writeDiff(w http.ResponseWriter, r *http.Request, resp diffResponse, lines []diff.Line) {
	resp.Added, resp.Removed = diff.Stats(lines)
	switch mode := r.URL.Query().Get("mode"); mode {
	case "", "unified":
		resp.Mode = "unified"
		resp.Lines = lines
	case "split":
		resp.Mode = "split"
		resp.Rows = diff.SplitLines(lines)
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown diff mode %q", mode))
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}
