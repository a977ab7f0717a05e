package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var errNilPool = errors.New("postgres pool is nil")

// corpusSchema returns the DDL of the primary corpus. Documents keep their
// full text so code suggestions can diff against it.
func corpusSchema(dimension int) []string {
	return []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		`CREATE TABLE IF NOT EXISTS corpus_documents (
			id UUID PRIMARY KEY,
			source_path TEXT UNIQUE NOT NULL,
			title TEXT,
			format TEXT NOT NULL DEFAULT '',
			sha256 TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS corpus_chunks (
			id UUID PRIMARY KEY,
			document_id UUID NOT NULL REFERENCES corpus_documents(id) ON DELETE CASCADE,
			chunk_index INT NOT NULL,
			section_order INT,
			section_level INT,
			section_title TEXT,
			content TEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(document_id, chunk_index)
		)`, dimension),
		"CREATE INDEX IF NOT EXISTS idx_corpus_chunks_embedding ON corpus_chunks USING ivfflat (embedding vector_l2_ops)",
		"CREATE INDEX IF NOT EXISTS idx_corpus_chunks_section ON corpus_chunks(document_id, section_order)",
	}
}

// EnsureCorpusSchema creates the corpus tables in one transaction.
func EnsureCorpusSchema(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", dimension)
	}
	if pool == nil {
		return errNilPool
	}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, stmt := range corpusSchema(dimension) {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply corpus schema: %w", err)
			}
		}
		return nil
	})
}

// ClearCorpus removes every ingested document and chunk.
func ClearCorpus(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return errNilPool
	}
	if _, err := pool.Exec(ctx, "TRUNCATE corpus_chunks, corpus_documents"); err != nil {
		return fmt.Errorf("truncate corpus tables: %w", err)
	}
	return nil
}
