// Package events publishes code suggestion outcomes to a message bus.
package events

import (
	"context"
	"time"
)

const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// SuggestionResolved is emitted after a pending code suggestion is accepted or rejected.
type SuggestionResolved struct {
	SessionID    string    `json:"session_id"`
	MessageIndex int       `json:"message_index"`
	DocumentID   string    `json:"document_id"`
	Path         string    `json:"path"`
	Status       string    `json:"status"`
	Applied      bool      `json:"applied"`
	ResolvedAt   time.Time `json:"resolved_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event SuggestionResolved) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, SuggestionResolved) error { return nil }
