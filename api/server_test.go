package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/codemind/chat"
	"github.com/fabfab/codemind/corpus"
	"github.com/fabfab/codemind/diff"
	"github.com/fabfab/codemind/ingestion"
	"github.com/fabfab/codemind/llm"
	"github.com/fabfab/codemind/retrieval"
	"github.com/fabfab/codemind/store"
)

type scriptedStream struct {
	parts []string
}

func (s *scriptedStream) Recv() (llm.Increment, error) {
	if len(s.parts) == 0 {
		return llm.Increment{}, io.EOF
	}
	part := s.parts[0]
	s.parts = s.parts[1:]
	return llm.Increment{Text: part}, nil
}

func (s *scriptedStream) Close() error { return nil }

type scriptedModel struct {
	parts []string
}

func (m *scriptedModel) Stream(ctx context.Context, req llm.StreamRequest) (llm.Stream, error) {
	return &scriptedStream{parts: append([]string(nil), m.parts...)}, nil
}

type fixedClassifier string

func (c fixedClassifier) Classify(ctx context.Context, query, model string) (string, error) {
	return string(c), nil
}

type corpusSource struct {
	docs    []corpus.Document
	content map[string]string
}

func (s *corpusSource) Kind() corpus.SourceKind { return corpus.SourceCorpus }

func (s *corpusSource) Search(ctx context.Context, query string) (corpus.RankedList, error) {
	list := make(corpus.RankedList, 0, len(s.docs))
	for _, doc := range s.docs {
		list = append(list, corpus.Result{Document: doc, Snippet: s.content[doc.ID]})
	}
	return list, nil
}

func (s *corpusSource) FetchContent(ctx context.Context, doc corpus.Document) (string, error) {
	if content, ok := s.content[doc.ID]; ok {
		return content, nil
	}
	return "", retrieval.ErrContentNotFound
}

func (s *corpusSource) ListAll(ctx context.Context) ([]corpus.Document, error) {
	return s.docs, nil
}

type stubIngester struct {
	dir     string
	cleared bool
}

func (i *stubIngester) IngestDirectory(ctx context.Context, dir string) (ingestion.Report, error) {
	i.dir = dir
	return ingestion.Report{Files: 2, Ingested: 2}, nil
}

func (i *stubIngester) Clear(ctx context.Context) error {
	i.cleared = true
	return nil
}

var testCatalog = llm.Catalog{{ID: "default", Name: "Test", Model: "test-model"}}

func newTestServer(t *testing.T, parts []string, label string) (*Server, *stubIngester) {
	t.Helper()
	source := &corpusSource{
		docs:    []corpus.Document{{ID: "doc-1", DisplayName: "guide.md", Path: "docs/guide.md", Origin: corpus.SourceCorpus}},
		content: map[string]string{"doc-1": "# Guide\nUse the CLI."},
	}
	fanOut := retrieval.NewFanOut(retrieval.Options{}, source)
	ingester := &stubIngester{}
	srv := New(Dependencies{
		Chat: chat.NewService(chat.Options{
			Model:      &scriptedModel{parts: parts},
			Classifier: fixedClassifier(label),
			Sources:    fanOut,
			Catalog:    testCatalog,
		}),
		Sessions: store.NewRepository(testCatalog),
		Files:    fanOut,
		Ingest:   ingester,
		Catalog:  testCatalog,
		DataDir:  "data",
	})
	return srv, ingester
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, srv *Server, body any) chat.SessionState {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/v1/sessions", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var state chat.SessionState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	return state
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil, "")
	rec := do(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"ok"}`, rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/healthz", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSubmitStreamsNDJSON(t *testing.T) {
	srv, _ := newTestServer(t, []string{"Use ", "the CLI."}, "query_documents")
	state := createSession(t, srv, nil)

	rec := do(t, srv, http.MethodPost, "/v1/sessions/"+state.ID+"/messages", map[string]any{"query": "how do I start?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	var lines []streamLine
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		var line streamLine
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.GreaterOrEqual(t, len(lines), 3)

	last := lines[len(lines)-1]
	assert.True(t, last.Done)
	assert.Equal(t, "query_documents", last.Intent)

	final := lines[len(lines)-2].Update
	require.NotNil(t, final)
	assert.Equal(t, 1, final.Index)
	assert.Equal(t, "Use the CLI.", final.Message.Content)
	assert.True(t, final.Message.Complete)
	require.Len(t, final.Message.Sources, 1)

	rec = do(t, srv, http.MethodGet, "/v1/sessions/"+state.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stored chat.SessionState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Len(t, stored.Messages, 2)
	assert.Equal(t, "how do I start?", stored.Title)
}

func TestSubmitErrors(t *testing.T) {
	srv, _ := newTestServer(t, nil, "")
	state := createSession(t, srv, nil)

	rec := do(t, srv, http.MethodPost, "/v1/sessions/"+state.ID+"/messages", map[string]any{"query": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/v1/sessions/missing/messages", map[string]any{"query": "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCodeSuggestionRoundTrip(t *testing.T) {
	reply := `{"thought":"rename","filePath":"src/app.go","newContent":"package app\n\nfunc Run() {}"}`
	srv, _ := newTestServer(t, []string{reply}, "generate_code")
	state := createSession(t, srv, map[string]any{
		"name":                  "project",
		"codeGenerationEnabled": true,
		"files": []map[string]any{
			{"name": "app.go", "relativePath": "src/app.go", "content": "package app\n\nfunc Start() {}"},
		},
	})
	assert.Equal(t, corpus.Grounding{UseLocal: true}, state.Grounding)

	rec := do(t, srv, http.MethodPost, "/v1/sessions/"+state.ID+"/messages", map[string]any{"query": "Start"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	path := "/v1/sessions/" + state.ID + "/messages/1/suggestion"
	rec = do(t, srv, http.MethodGet, path+"/diff", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var preview diffResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &preview))
	assert.Equal(t, "pending", preview.Status)
	assert.Equal(t, "unified", preview.Mode)
	assert.Equal(t, "app.go", preview.Document.DisplayName)
	assert.Equal(t, 1, preview.Added)
	assert.Equal(t, 1, preview.Removed)
	assert.Equal(t, []diff.Line{
		{Op: diff.Same, Text: "package app"},
		{Op: diff.Same, Text: ""},
		{Op: diff.Remove, Text: "func Start() {}"},
		{Op: diff.Add, Text: "func Run() {}"},
	}, preview.Lines)

	rec = do(t, srv, http.MethodGet, path+"/diff?mode=split", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &preview))
	assert.Len(t, preview.Rows, 4)

	rec = do(t, srv, http.MethodPost, path, map[string]any{"action": "accept"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var msg chat.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, "Great! I've applied the changes to `app.go`.", msg.Content)

	rec = do(t, srv, http.MethodPost, path, map[string]any{"action": "reject"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, srv, http.MethodGet, path+"/diff", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"accepted"`)

	rec = do(t, srv, http.MethodGet, "/v1/sessions/"+state.ID+"/edits", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var edits []chat.EditedDocumentRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &edits))
	require.Len(t, edits, 1)

	rec = do(t, srv, http.MethodGet, "/v1/sessions/"+state.ID+"/edits/"+edits[0].Document.ID+"/diff?mode=unified", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var unified diffResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &unified))
	assert.Equal(t, 1, unified.Added)
	assert.Equal(t, 1, unified.Removed)

	rec = do(t, srv, http.MethodGet, "/v1/sessions/"+state.ID+"/edits/"+edits[0].Document.ID+"/diff?mode=split", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"rows"`)

	rec = do(t, srv, http.MethodGet, "/v1/sessions/"+state.ID+"/edits/"+edits[0].Document.ID+"/diff?mode=sideways", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSuggestionValidation(t *testing.T) {
	srv, _ := newTestServer(t, nil, "")
	state := createSession(t, srv, nil)
	base := "/v1/sessions/" + state.ID + "/messages/"

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, base+"x/suggestion", map[string]any{"action": "accept"}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, base+"0/suggestion", map[string]any{"action": "maybe"}).Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPost, base+"0/suggestion", map[string]any{"action": "accept"}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, base+"x/suggestion/diff", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, base+"0/suggestion/diff", nil).Code)
}

func TestGroundingAndModelSelection(t *testing.T) {
	srv, _ := newTestServer(t, nil, "")
	state := createSession(t, srv, nil)

	rec := do(t, srv, http.MethodPut, "/v1/sessions/"+state.ID+"/grounding", map[string]any{"useCorpus": true, "useLocal": true, "useWebSearch": true})
	require.Equal(t, http.StatusOK, rec.Code)
	var applied corpus.Grounding
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &applied))
	assert.Equal(t, corpus.Grounding{UseCorpus: true, UseWebSearch: true}, applied)

	rec = do(t, srv, http.MethodPut, "/v1/sessions/"+state.ID+"/grounding", map[string]any{"useEverything": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodPut, "/v1/models/selected", map[string]any{"modelId": "default"}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPut, "/v1/models/selected", map[string]any{"modelId": "nope"}).Code)
}

func TestSessionListing(t *testing.T) {
	srv, _ := newTestServer(t, nil, "")
	first := createSession(t, srv, nil)
	second := createSession(t, srv, nil)

	rec := do(t, srv, http.MethodGet, "/v1/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list sessionListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Sessions, 2)
	assert.Equal(t, second.ID, list.ActiveSessionID)

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/v1/sessions/"+first.ID+"/activate", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodDelete, "/v1/sessions/"+second.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/v1/sessions/"+second.ID, nil).Code)
}

func TestFilesAndIngestion(t *testing.T) {
	srv, ingester := newTestServer(t, nil, "")

	rec := do(t, srv, http.MethodGet, "/v1/files", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"guide.md"`)

	rec = do(t, srv, http.MethodGet, "/v1/files/doc-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Use the CLI.")

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/v1/files/doc-2", nil).Code)

	rec = do(t, srv, http.MethodPost, "/v1/ingest", map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "data", ingester.dir)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/v1/clear", map[string]any{"confirm": false}).Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/v1/clear", map[string]any{"confirm": true}).Code)
	assert.True(t, ingester.cleared)
}

func TestOpenAPIDocument(t *testing.T) {
	srv, _ := newTestServer(t, nil, "")
	rec := do(t, srv, http.MethodGet, "/openapi.yaml", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "openapi:"))
}

type recordingSnapshots struct {
	saved  []store.Snapshot
	ctxErr error
}

func (r *recordingSnapshots) Load(ctx context.Context) (store.Snapshot, error) {
	return store.Snapshot{}, store.ErrNoSnapshot
}

func (r *recordingSnapshots) Save(ctx context.Context, snap store.Snapshot) error {
	r.ctxErr = ctx.Err()
	r.saved = append(r.saved, snap)
	return r.ctxErr
}

func TestPersistSurvivesCancelledRequest(t *testing.T) {
	srv, _ := newTestServer(t, nil, "")
	snapshots := &recordingSnapshots{}
	srv.deps.Snapshots = snapshots
	state := createSession(t, srv, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	srv.persist(ctx)

	require.NotEmpty(t, snapshots.saved)
	assert.NoError(t, snapshots.ctxErr)
	last := snapshots.saved[len(snapshots.saved)-1]
	require.NotEmpty(t, last.Sessions)
	assert.Equal(t, state.ID, last.Sessions[0].ID)
}
