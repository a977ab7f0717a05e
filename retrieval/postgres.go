package retrieval

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/fabfab/codemind/corpus"
	"github.com/fabfab/codemind/embeddings"
)

const (
	defaultSearchLimit = 10
	snippetLimit       = 500
)

// PostgresSource is the primary corpus: chunk embeddings in pgvector, one
// result per document ranked by its nearest chunk.
type PostgresSource struct {
	pool     *pgxpool.Pool
	embedder embeddings.Embedder
	limit    int
}

func NewPostgresSource(pool *pgxpool.Pool, embedder embeddings.Embedder, limit int) *PostgresSource {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return &PostgresSource{pool: pool, embedder: embedder, limit: limit}
}

func (s *PostgresSource) Kind() corpus.SourceKind {
	return corpus.SourceCorpus
}

type chunkHit struct {
	DocumentID string
	Path       string
	Content    string
	Distance   float64
}

func (s *PostgresSource) Search(ctx context.Context, query string) (corpus.RankedList, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	embedding, err := embeddings.EmbedQuery(ctx, s.embedder, query)
	if err != nil {
		return nil, err
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	// Several chunks usually belong to the same document, so over-fetch.
	chunkLimit := s.limit * 4
	probes := chunkLimit * 10
	if probes < 10 {
		probes = 10
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET ivfflat.probes = %d", probes)); err != nil {
		return nil, fmt.Errorf("set ivfflat probes: %w", err)
	}

	rows, err := conn.Query(ctx, `
		SELECT
			rc.document_id::text,
			rd.source_path,
			rc.content,
			(rc.embedding <-> $1::vector) AS distance
		FROM corpus_chunks rc
		JOIN corpus_documents rd ON rd.id = rc.document_id
		ORDER BY rc.embedding <-> $1::vector
		LIMIT $2
	`, pgvector.NewVector(embedding), chunkLimit)
	if err != nil {
		return nil, fmt.Errorf("query similar chunks: %w", err)
	}
	defer rows.Close()

	hits := make([]chunkHit, 0, chunkLimit)
	for rows.Next() {
		var hit chunkHit
		if err := rows.Scan(&hit.DocumentID, &hit.Path, &hit.Content, &hit.Distance); err != nil {
			return nil, fmt.Errorf("scan similar chunk: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similar chunks: %w", err)
	}

	return collapseHits(hits, s.limit), nil
}

// collapseHits keeps the best chunk of each document, preserving the
// distance order of the input.
func collapseHits(hits []chunkHit, limit int) corpus.RankedList {
	seen := make(map[string]struct{}, len(hits))
	results := make(corpus.RankedList, 0, limit)
	for _, hit := range hits {
		if _, ok := seen[hit.DocumentID]; ok {
			continue
		}
		seen[hit.DocumentID] = struct{}{}
		results = append(results, corpus.Result{
			Document: corpusDocument(hit.DocumentID, hit.Path),
			Snippet:  corpus.Clip(hit.Content, snippetLimit),
			Score:    1 / (1 + hit.Distance),
		})
		if len(results) == limit {
			break
		}
	}
	return results
}

func corpusDocument(id, sourcePath string) corpus.Document {
	return corpus.Document{
		ID:          id,
		DisplayName: path.Base(sourcePath),
		Path:        sourcePath,
		Origin:      corpus.SourceCorpus,
	}
}

func (s *PostgresSource) FetchContent(ctx context.Context, doc corpus.Document) (string, error) {
	if s.pool == nil {
		return "", fmt.Errorf("postgres pool is nil")
	}

	var content string
	err := s.pool.QueryRow(ctx, "SELECT COALESCE(content, '') FROM corpus_documents WHERE id::text = $1", doc.ID).Scan(&content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrContentNotFound
		}
		return "", fmt.Errorf("query document content: %w", err)
	}
	return strings.TrimSpace(content), nil
}

func (s *PostgresSource) ListAll(ctx context.Context) ([]corpus.Document, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := s.pool.Query(ctx, "SELECT id::text, source_path FROM corpus_documents ORDER BY source_path")
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []corpus.Document
	for rows.Next() {
		var id, sourcePath string
		if err := rows.Scan(&id, &sourcePath); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, corpusDocument(id, sourcePath))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

var _ Source = (*PostgresSource)(nil)
