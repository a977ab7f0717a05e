// Package retrieval queries the enabled document sources concurrently and
// fuses their ranked lists.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/fabfab/codemind/corpus"
)

var (
	// ErrContentNotFound is returned when a source does not hold the requested document.
	ErrContentNotFound = errors.New("document content not found")
	// ErrNoSource is returned when no registered source can serve a document.
	ErrNoSource = errors.New("no source for document")
)

// Source is one retrieval backend. Search returns a list ordered best first.
type Source interface {
	Kind() corpus.SourceKind
	Search(ctx context.Context, query string) (corpus.RankedList, error)
	FetchContent(ctx context.Context, doc corpus.Document) (string, error)
	ListAll(ctx context.Context) ([]corpus.Document, error)
}

// Advisory reports a source that failed during a fan-out and was switched off.
type Advisory struct {
	Source corpus.SourceKind `json:"source"`
	Err    error             `json:"-"`
}

func (a Advisory) Error() string {
	return fmt.Sprintf("%s search failed and was disabled: %v", a.Source, a.Err)
}

func (a Advisory) Unwrap() error {
	return a.Err
}

// Message is the user-facing advisory text.
func (a Advisory) Message() string {
	return fmt.Sprintf("Search in %s failed and has been disabled for this session.", sourceLabel(a.Source))
}

func sourceLabel(kind corpus.SourceKind) string {
	switch kind {
	case corpus.SourceCorpus:
		return "the document corpus"
	case corpus.SourceLocal:
		return "the uploaded files"
	case corpus.SourceGraph:
		return "the knowledge graph"
	default:
		return string(kind)
	}
}
