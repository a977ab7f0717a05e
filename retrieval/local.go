package retrieval

import (
	"context"

	"github.com/fabfab/codemind/corpus"
)

// LocalSource exposes a session's uploaded files as a retrieval source.
type LocalSource struct {
	store *corpus.LocalStore
}

func NewLocalSource(store *corpus.LocalStore) *LocalSource {
	return &LocalSource{store: store}
}

func (s *LocalSource) Kind() corpus.SourceKind {
	return corpus.SourceLocal
}

func (s *LocalSource) Search(ctx context.Context, query string) (corpus.RankedList, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.store.Search(query), nil
}

func (s *LocalSource) FetchContent(ctx context.Context, doc corpus.Document) (string, error) {
	content, ok := s.store.Content(doc.ID)
	if !ok {
		return "", ErrContentNotFound
	}
	return content, nil
}

func (s *LocalSource) ListAll(ctx context.Context) ([]corpus.Document, error) {
	return s.store.ListAll(), nil
}

var _ Source = (*LocalSource)(nil)
