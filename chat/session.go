package chat

import (
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/fabfab/codemind/corpus"
	"github.com/fabfab/codemind/diff"
)

const titleLength = 30

// Session is one conversation: its messages, its uploaded corpus, its source
// toggles and the record of accepted edits. All access goes through mu; busy
// is set while a query is being answered.
type Session struct {
	mu   sync.Mutex
	busy bool

	id                    string
	title                 string
	createdAt             time.Time
	messages              []Message
	dataSource            *DataSource
	local                 *corpus.LocalStore
	grounding             corpus.Grounding
	codeGenerationEnabled bool
	edits                 map[string]EditedDocumentRecord
	editOrder             []string
}

// SessionState is the serialisable form of a Session.
type SessionState struct {
	ID                    string                 `json:"id"`
	Title                 string                 `json:"title"`
	CreatedAt             time.Time              `json:"createdAt"`
	Messages              []Message              `json:"messages"`
	DataSource            *DataSource            `json:"dataSource,omitempty"`
	Dataset               []corpus.Entry         `json:"dataset"`
	Grounding             corpus.Grounding       `json:"groundingOptions"`
	CodeGenerationEnabled bool                   `json:"codeGenerationEnabled"`
	Edits                 []EditedDocumentRecord `json:"editedFiles,omitempty"`
}

// NewSession starts an empty conversation grounded on the primary corpus.
func NewSession(codeGeneration bool) *Session {
	return RestoreSession(SessionState{
		Grounding:             corpus.DefaultGrounding(),
		CodeGenerationEnabled: codeGeneration,
	})
}

// NewSessionFromFiles starts a conversation over uploaded files. Only the
// uploaded corpus is enabled.
func NewSessionFromFiles(name string, files []corpus.File, codeGeneration bool) *Session {
	store := corpus.LocalStoreFromFiles(files)
	return RestoreSession(SessionState{
		Title:                 name,
		DataSource:            &DataSource{Type: "local", Name: name},
		Dataset:               store.Entries(),
		Grounding:             corpus.Grounding{UseLocal: true},
		CodeGenerationEnabled: codeGeneration,
	})
}

// RestoreSession rebuilds a session from its persisted state. Missing ids and
// timestamps are generated.
func RestoreSession(state SessionState) *Session {
	if state.ID == "" {
		state.ID = uuid.NewString()
	}
	if state.CreatedAt.IsZero() {
		state.CreatedAt = time.Now().UTC()
	}
	if state.Title == "" {
		state.Title = "New Chat"
	}

	s := &Session{
		id:                    state.ID,
		title:                 state.Title,
		createdAt:             state.CreatedAt,
		dataSource:            state.DataSource,
		local:                 corpus.NewLocalStore(state.Dataset),
		grounding:             state.Grounding,
		codeGenerationEnabled: state.CodeGenerationEnabled,
		edits:                 make(map[string]EditedDocumentRecord, len(state.Edits)),
	}
	s.messages = make([]Message, len(state.Messages))
	for i, msg := range state.Messages {
		s.messages[i] = msg.Clone()
	}
	for _, record := range state.Edits {
		if _, ok := s.edits[record.Document.ID]; !ok {
			s.editOrder = append(s.editOrder, record.Document.ID)
		}
		s.edits[record.Document.ID] = record
	}
	return s
}

// State returns a copy of the session suitable for persistence.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := SessionState{
		ID:                    s.id,
		Title:                 s.title,
		CreatedAt:             s.createdAt,
		Messages:              s.messagesLocked(),
		Dataset:               s.local.Entries(),
		Grounding:             s.grounding,
		CodeGenerationEnabled: s.codeGenerationEnabled,
		Edits:                 s.editsLocked(),
	}
	if s.dataSource != nil {
		ds := *s.dataSource
		state.DataSource = &ds
	}
	if state.Dataset == nil {
		state.Dataset = []corpus.Entry{}
	}
	return state
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Local is the session's editable corpus.
func (s *Session) Local() *corpus.LocalStore {
	return s.local
}

func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messagesLocked()
}

func (s *Session) messagesLocked() []Message {
	out := make([]Message, len(s.messages))
	for i, msg := range s.messages {
		out[i] = msg.Clone()
	}
	return out
}

func (s *Session) Grounding() corpus.Grounding {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grounding
}

// SetGrounding replaces the source toggles. The uploaded corpus cannot be
// enabled for a session without a data source.
func (s *Session) SetGrounding(g corpus.Grounding) corpus.Grounding {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dataSource == nil && s.local.Len() == 0 {
		g.UseLocal = false
	}
	s.grounding = g
	return s.grounding
}

func (s *Session) CodeGenerationEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codeGenerationEnabled
}

func (s *Session) SetCodeGenerationEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codeGenerationEnabled = enabled
}

// Edits returns the accepted edit records in the order documents were first edited.
func (s *Session) Edits() []EditedDocumentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editsLocked()
}

func (s *Session) editsLocked() []EditedDocumentRecord {
	if len(s.editOrder) == 0 {
		return nil
	}
	out := make([]EditedDocumentRecord, 0, len(s.editOrder))
	for _, id := range s.editOrder {
		out = append(out, s.edits[id])
	}
	return out
}

func (s *Session) Edit(docID string) (EditedDocumentRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.edits[docID]
	return record, ok
}

// begin marks the session busy. It fails when a query is already running.
func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrSessionBusy
	}
	s.busy = true
	return nil
}

func (s *Session) end() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// appendMessage adds msg and returns its index. The first user message
// names the session.
func (s *Session) appendMessage(msg Message) (int, Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(msg)
}

func (s *Session) appendLocked(msg Message) (int, Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Role == RoleUser && len(s.messages) == 0 {
		s.title = truncateTitle(msg.Content)
	}
	s.messages = append(s.messages, msg.Clone())
	return len(s.messages) - 1, msg.Clone()
}

// SuggestionDiff returns the suggestion of the message at index and its line
// diff against the original content. Resolved suggestions are included.
func (s *Session) SuggestionDiff(index int) (CodeSuggestion, []diff.Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.messages) || s.messages[index].Suggestion == nil {
		return CodeSuggestion{}, nil, ErrNoSuggestion
	}
	suggestion := *s.messages[index].Suggestion
	return suggestion, diff.Unified(suggestion.OriginalContent, suggestion.SuggestedContent), nil
}

func (s *Session) setMessage(index int, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index >= 0 && index < len(s.messages) {
		s.messages[index] = msg.Clone()
	}
}

func (s *Session) message(index int) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.messages) {
		return Message{}, false
	}
	return s.messages[index].Clone(), true
}

func (s *Session) disableSource(kind corpus.SourceKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grounding.Disable(kind)
}

func truncateTitle(query string) string {
	if utf8.RuneCountInString(query) <= titleLength {
		return query
	}
	runes := []rune(query)
	return string(runes[:titleLength])
}
