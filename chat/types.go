package chat

import (
	"strings"
	"time"

	"github.com/fabfab/codemind/corpus"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type ResponseType string

const (
	ResponseRAG            ResponseType = "RAG"
	ResponseWebSearch      ResponseType = "Web Search"
	ResponseCodeGeneration ResponseType = "Code Generation"
	ResponseChitChat       ResponseType = "Chit-Chat"
)

type SuggestionStatus string

const (
	StatusPending  SuggestionStatus = "pending"
	StatusAccepted SuggestionStatus = "accepted"
	StatusRejected SuggestionStatus = "rejected"
)

// Action is the user's decision on a pending suggestion.
type Action string

const (
	Accept Action = "accepted"
	Reject Action = "rejected"
)

// Attachment is a file sent along with a query. Content is base64 encoded.
type Attachment struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Size    int64  `json:"size"`
	Content string `json:"content"`
}

func (a *Attachment) IsImage() bool {
	return a != nil && strings.HasPrefix(a.Type, "image/")
}

type CodeSuggestion struct {
	Document         corpus.Document  `json:"file"`
	Rationale        string           `json:"thought"`
	OriginalContent  string           `json:"originalContent"`
	SuggestedContent string           `json:"suggestedContent"`
	Status           SuggestionStatus `json:"status"`
}

// EditedDocumentRecord tracks an accepted edit. OriginalContent is the
// content before the first accepted edit and never changes afterwards.
type EditedDocumentRecord struct {
	Document        corpus.Document `json:"file"`
	OriginalContent string          `json:"originalContent"`
	CurrentContent  string          `json:"currentContent"`
}

type Message struct {
	ID             string               `json:"id"`
	Role           Role                 `json:"role"`
	Content        string               `json:"content"`
	Attachment     *Attachment          `json:"attachment,omitempty"`
	Sources        []corpus.FusedResult `json:"sources,omitempty"`
	Citations      []corpus.Citation    `json:"groundingChunks,omitempty"`
	Suggestion     *CodeSuggestion      `json:"suggestion,omitempty"`
	EditedDocument *corpus.Document     `json:"editedFile,omitempty"`
	ResponseType   ResponseType         `json:"responseType,omitempty"`
	ModelID        string               `json:"modelId,omitempty"`
	Complete       bool                 `json:"complete"`
	CreatedAt      time.Time            `json:"createdAt"`
}

// Clone returns a deep copy that shares no mutable state with m.
func (m Message) Clone() Message {
	out := m
	if m.Attachment != nil {
		attachment := *m.Attachment
		out.Attachment = &attachment
	}
	if m.Sources != nil {
		out.Sources = append([]corpus.FusedResult(nil), m.Sources...)
	}
	if m.Citations != nil {
		out.Citations = make([]corpus.Citation, len(m.Citations))
		for i, c := range m.Citations {
			c.Reviews = append([]corpus.ReviewSnippet(nil), c.Reviews...)
			out.Citations[i] = c
		}
	}
	if m.Suggestion != nil {
		suggestion := *m.Suggestion
		out.Suggestion = &suggestion
	}
	if m.EditedDocument != nil {
		doc := *m.EditedDocument
		out.EditedDocument = &doc
	}
	return out
}

// DataSource describes the uploaded file set a session was created from.
type DataSource struct {
	Type string `json:"type"`
	Name string `json:"name"`
}
