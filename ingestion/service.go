package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	stdpath "path"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/fabfab/codemind/database"
	"github.com/fabfab/codemind/embeddings"
	"github.com/fabfab/codemind/knowledge"
)

type Service struct {
	pool      *pgxpool.Pool
	driver    neo4j.DriverWithContext
	embedder  embeddings.Embedder
	logger    *zap.Logger
	dimension int
}

// Report summarises one ingestion run.
type Report struct {
	Files     int `json:"files"`
	Ingested  int `json:"ingested"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

func NewService(pool *pgxpool.Pool, driver neo4j.DriverWithContext, embedder embeddings.Embedder, logger *zap.Logger, dimension int) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		pool:      pool,
		driver:    driver,
		embedder:  embedder,
		logger:    logger,
		dimension: dimension,
	}
}

// CollectFiles lists the supported documents below dir.
func CollectFiles(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("data directory: %w", err)
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != dir && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if DetectFormat(path) != FormatUnknown {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk data directory: %w", err)
	}
	return files, nil
}

// IngestDirectory parses, embeds and stores every supported file below dir.
// A failing file is logged and counted; the run continues.
func (s *Service) IngestDirectory(ctx context.Context, dir string) (Report, error) {
	var report Report
	if s.embedder == nil {
		return report, fmt.Errorf("embedder not configured")
	}
	if s.pool == nil {
		return report, fmt.Errorf("postgres pool not configured")
	}
	if err := database.EnsureCorpusSchema(ctx, s.pool, s.dimension); err != nil {
		return report, fmt.Errorf("ensure schema: %w", err)
	}

	files, err := CollectFiles(dir)
	if err != nil {
		return report, err
	}
	report.Files = len(files)
	if len(files) == 0 {
		s.logger.Info("no supported documents found", zap.String("dir", dir))
		return report, nil
	}

	for _, path := range files {
		changed, err := s.ingestFile(ctx, dir, path)
		switch {
		case err != nil:
			report.Failed++
			s.logger.Error("ingest failed", zap.String("path", path), zap.Error(err))
		case changed:
			report.Ingested++
		default:
			report.Unchanged++
		}
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
	}

	return report, nil
}

// preparedFile is a parsed file ready to be written.
type preparedFile struct {
	path   string
	folder string
	format DocumentFormat
	sha    string
	parsed *ParsedDocument
}

func prepareFile(ctx context.Context, root, path string) (preparedFile, error) {
	format := DetectFormat(path)
	parser := parserFor(format)
	if parser == nil {
		return preparedFile{}, fmt.Errorf("unsupported format: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return preparedFile{}, fmt.Errorf("read file: %w", err)
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	parsed, err := parser.Parse(ctx, DocumentPayload{Path: rel, Data: data})
	if err != nil {
		return preparedFile{}, fmt.Errorf("parse document: %w", err)
	}

	folder := stdpath.Dir(rel)
	if folder == "." || folder == "/" {
		folder = ""
	}
	sum := sha256.Sum256(data)
	return preparedFile{path: rel, folder: folder, format: format, sha: hex.EncodeToString(sum[:]), parsed: parsed}, nil
}

// ingestFile stores one file. It reports false when the stored hash already
// matches and nothing was written.
func (s *Service) ingestFile(ctx context.Context, root, path string) (bool, error) {
	file, err := prepareFile(ctx, root, path)
	if err != nil {
		return false, err
	}
	if len(file.parsed.Fragments) == 0 {
		s.logger.Info("skip empty document", zap.String("path", file.path))
		return false, nil
	}

	var (
		docID   uuid.UUID
		changed bool
		graph   knowledge.Document
	)
	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		var err error
		docID, changed, err = upsertDocument(ctx, tx, file)
		if err != nil || !changed {
			return err
		}
		graph, err = s.writeChunks(ctx, tx, docID, file)
		return err
	})
	if err != nil {
		return false, err
	}
	if !changed {
		s.logger.Debug("document unchanged", zap.String("path", file.path))
		return false, nil
	}

	if s.driver != nil {
		if err := knowledge.SyncDocument(ctx, s.driver, graph); err != nil {
			return true, fmt.Errorf("sync knowledge graph: %w", err)
		}
	}

	s.logger.Info("ingested document",
		zap.String("path", file.path),
		zap.String("format", string(file.format)),
		zap.Int("chunks", len(graph.Chunks)),
	)
	return true, nil
}

// writeChunks embeds the fragments of file and replaces its chunk rows in one
// batch. It returns the graph mirror of what was written.
func (s *Service) writeChunks(ctx context.Context, tx pgx.Tx, docID uuid.UUID, file preparedFile) (knowledge.Document, error) {
	fragments := file.parsed.Fragments
	texts := make([]string, len(fragments))
	for i, fragment := range fragments {
		texts[i] = fragment.Text
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return knowledge.Document{}, fmt.Errorf("generate embeddings: %w", err)
	}
	if len(vectors) != len(texts) {
		return knowledge.Document{}, fmt.Errorf("embedding count mismatch: have %d chunks, %d embeddings", len(texts), len(vectors))
	}

	graph := graphDocument(docID, file)

	batch := &pgx.Batch{}
	batch.Queue("DELETE FROM corpus_chunks WHERE document_id = $1", docID)
	for i, fragment := range fragments {
		batch.Queue(`
			INSERT INTO corpus_chunks (id, document_id, chunk_index, section_order, section_level, section_title, content, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, graph.Chunks[i].ID, docID, i, fragment.Section.Order, fragment.Section.Level, fragment.Section.Title, fragment.Text, pgvector.NewVector(vectors[i]))
	}

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return knowledge.Document{}, fmt.Errorf("write chunks: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return knowledge.Document{}, fmt.Errorf("write chunks: %w", err)
	}
	return graph, nil
}

// graphDocument assigns node ids to the sections and chunks of file.
func graphDocument(docID uuid.UUID, file preparedFile) knowledge.Document {
	doc := knowledge.Document{
		ID:      docID.String(),
		Path:    file.path,
		Title:   file.parsed.Title,
		SHA:     file.sha,
		Folder:  file.folder,
		Content: file.parsed.Content,
	}

	sectionIDs := make(map[int]string, len(file.parsed.Sections))
	for _, section := range file.parsed.Sections {
		id := uuid.NewString()
		sectionIDs[section.Order] = id
		doc.Sections = append(doc.Sections, knowledge.Section{ID: id, Title: section.Title, Level: section.Level, Order: section.Order})
	}
	for i, fragment := range file.parsed.Fragments {
		doc.Chunks = append(doc.Chunks, knowledge.Chunk{
			ID:        uuid.NewString(),
			Index:     i,
			Text:      fragment.Text,
			SectionID: sectionIDs[fragment.Section.Order],
		})
	}
	for _, topic := range file.parsed.Topics {
		doc.Topics = append(doc.Topics, knowledge.Topic{Name: topic.Name})
	}
	return doc
}

// Clear removes all ingested data from Postgres and, when configured, Neo4j.
func (s *Service) Clear(ctx context.Context) error {
	if err := database.ClearCorpus(ctx, s.pool); err != nil {
		return err
	}
	if s.driver == nil {
		return nil
	}
	if err := knowledge.Clear(ctx, s.driver); err != nil {
		return fmt.Errorf("clear knowledge graph: %w", err)
	}
	return nil
}

// upsertDocument inserts or refreshes the document row of file. Rows whose
// hash already matches are left alone and reported unchanged.
func upsertDocument(ctx context.Context, tx pgx.Tx, file preparedFile) (uuid.UUID, bool, error) {
	var docID uuid.UUID
	err := tx.QueryRow(ctx, `
		INSERT INTO corpus_documents (id, source_path, title, format, sha256, content)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_path) DO UPDATE
		SET title = EXCLUDED.title,
		    format = EXCLUDED.format,
		    sha256 = EXCLUDED.sha256,
		    content = EXCLUDED.content,
		    updated_at = NOW()
		WHERE corpus_documents.sha256 <> EXCLUDED.sha256
		RETURNING id
	`, uuid.New(), file.path, file.parsed.Title, string(file.format), file.sha, file.parsed.Content).Scan(&docID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("upsert document: %w", err)
	}
	return docID, true, nil
}
