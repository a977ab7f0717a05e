package retrieval

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fabfab/codemind/corpus"
)

const maxKeywordTerms = 8

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "was": {}, "with": {}, "this": {},
	"that": {}, "what": {}, "how": {}, "does": {}, "from": {}, "have": {}, "which": {},
	"about": {}, "into": {}, "can": {}, "you": {}, "who": {}, "why": {}, "when": {},
	"where": {}, "there": {}, "their": {}, "them": {}, "will": {}, "would": {}, "should": {},
}

// GraphSource searches the chunk text stored in the knowledge graph. Document
// ids are shared with the primary corpus, so hits in both sources fuse.
type GraphSource struct {
	driver neo4j.DriverWithContext
	limit  int
}

// Insight is what the graph knows about a document beyond its text.
type Insight struct {
	ChunkCount       int               `json:"chunkCount"`
	Folders          []string          `json:"folders,omitempty"`
	RelatedDocuments []RelatedDocument `json:"relatedDocuments,omitempty"`
	Sections         []SectionInfo     `json:"sections,omitempty"`
	Topics           []string          `json:"topics,omitempty"`
}

type RelatedDocument struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Path  string `json:"path"`
}

type SectionInfo struct {
	Title string `json:"title"`
	Level int    `json:"level"`
	Order int    `json:"order"`
}

func NewGraphSource(driver neo4j.DriverWithContext, limit int) *GraphSource {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return &GraphSource{driver: driver, limit: limit}
}

func (s *GraphSource) Kind() corpus.SourceKind {
	return corpus.SourceGraph
}

// keywordTerms lower-cases the query and keeps distinct words of three or
// more characters that are not stop words.
func keywordTerms(query string) []string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' && r != '.'
	})

	seen := make(map[string]struct{}, len(words))
	terms := make([]string, 0, len(words))
	for _, word := range words {
		word = strings.Trim(word, "-.")
		if len(word) < 3 {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		terms = append(terms, word)
		if len(terms) == maxKeywordTerms {
			break
		}
	}
	return terms
}

// Search ranks documents by how many query terms their chunks contain.
func (s *GraphSource) Search(ctx context.Context, query string) (corpus.RankedList, error) {
	if s.driver == nil {
		return nil, fmt.Errorf("neo4j driver is nil")
	}
	terms := keywordTerms(query)
	if len(terms) == 0 {
		return corpus.RankedList{}, nil
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (d:Document)-[:HAS_CHUNK]->(c:Chunk)
		WITH d, c, size([term IN $terms WHERE toLower(c.text) CONTAINS term]) AS hits
		WHERE hits > 0
		ORDER BY hits DESC, c.index ASC
		WITH d, collect(c.text) AS texts, sum(hits) AS score
		RETURN d.id AS id, d.path AS path, texts[0] AS snippet, score
		ORDER BY score DESC, path ASC
		LIMIT $limit
	`, map[string]any{"terms": terms, "limit": s.limit})
	if err != nil {
		return nil, fmt.Errorf("run neo4j keyword search: %w", err)
	}

	results := make(corpus.RankedList, 0, s.limit)
	for result.Next(ctx) {
		record := result.Record()
		idVal, _ := record.Get("id")
		pathVal, _ := record.Get("path")
		snippetVal, _ := record.Get("snippet")
		scoreVal, _ := record.Get("score")

		id, ok := idVal.(string)
		if !ok || id == "" {
			continue
		}
		docPath, _ := pathVal.(string)
		snippet, _ := snippetVal.(string)
		score, _ := toInt(scoreVal)

		doc := corpusDocument(id, docPath)
		doc.Origin = corpus.SourceGraph
		results = append(results, corpus.Result{
			Document: doc,
			Snippet:  corpus.Clip(snippet, snippetLimit),
			Score:    float64(score),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("neo4j keyword search result error: %w", err)
	}
	return results, nil
}

func (s *GraphSource) FetchContent(ctx context.Context, doc corpus.Document) (string, error) {
	if s.driver == nil {
		return "", fmt.Errorf("neo4j driver is nil")
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (d:Document {id: $id})
		OPTIONAL MATCH (d)-[r:HAS_CHUNK]->(c:Chunk)
		WITH d, c ORDER BY c.index
		RETURN d.content AS content, collect(c.text) AS chunks
	`, map[string]any{"id": doc.ID})
	if err != nil {
		return "", fmt.Errorf("run neo4j content query: %w", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return "", fmt.Errorf("neo4j content result error: %w", err)
		}
		return "", ErrContentNotFound
	}
	record := result.Record()
	contentVal, _ := record.Get("content")
	if content, ok := contentVal.(string); ok && strings.TrimSpace(content) != "" {
		return strings.TrimSpace(content), nil
	}
	// Documents synced before content was stored fall back to their chunks.
	chunksVal, _ := record.Get("chunks")
	chunks := convertStringSlice(chunksVal)
	if len(chunks) == 0 {
		return "", ErrContentNotFound
	}
	return strings.Join(chunks, "\n\n"), nil
}

func (s *GraphSource) ListAll(ctx context.Context) ([]corpus.Document, error) {
	if s.driver == nil {
		return nil, fmt.Errorf("neo4j driver is nil")
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (d:Document)
		RETURN d.id AS id, d.path AS path
		ORDER BY d.path
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("run neo4j list query: %w", err)
	}

	var docs []corpus.Document
	for result.Next(ctx) {
		record := result.Record()
		idVal, _ := record.Get("id")
		pathVal, _ := record.Get("path")
		id, ok := idVal.(string)
		if !ok || id == "" {
			continue
		}
		docPath, _ := pathVal.(string)
		doc := corpusDocument(id, docPath)
		doc.Origin = corpus.SourceGraph
		docs = append(docs, doc)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("neo4j list result error: %w", err)
	}
	return docs, nil
}

// Insights returns folder, section, topic and related-document information
// for the given document ids. Unknown ids are absent from the map.
func (s *GraphSource) Insights(ctx context.Context, docIDs []string) (map[string]Insight, error) {
	if s.driver == nil {
		return nil, fmt.Errorf("neo4j driver is nil")
	}
	if len(docIDs) == 0 {
		return map[string]Insight{}, nil
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (d:Document)
		WHERE d.id IN $ids
		OPTIONAL MATCH (d)-[:HAS_CHUNK]->(c:Chunk)
		OPTIONAL MATCH (d)-[:IN_FOLDER]->(folder:Folder)
		OPTIONAL MATCH (folder)<-[:IN_FOLDER]-(related:Document)
		OPTIONAL MATCH (d)-[secRel:HAS_SECTION]->(section:Section)
		OPTIONAL MATCH (d)-[:HAS_TOPIC]->(topic:Topic)
		WITH d,
		     count(DISTINCT c) AS chunkCount,
		     collect(DISTINCT folder.name) AS folders,
		     collect(DISTINCT related) AS relatedNodes,
		     collect(DISTINCT topic.name) AS topicNames,
		     secRel,
		     section
		ORDER BY secRel.order
		WITH d, chunkCount, folders, relatedNodes, topicNames,
		     collect({title: section.title, level: section.level, order: secRel.order}) AS sectionRows
		RETURN d.id AS id,
		       chunkCount,
		       [f IN folders WHERE f IS NOT NULL] AS folders,
		       [r IN relatedNodes WHERE r IS NOT NULL AND r.id <> d.id | {id: r.id, title: r.title, path: r.path}] AS relatedDocuments,
		       [s IN sectionRows WHERE s.title IS NOT NULL] AS sections,
		       [t IN topicNames WHERE t IS NOT NULL] AS topics
	`, map[string]any{"ids": docIDs})
	if err != nil {
		return nil, fmt.Errorf("run neo4j insights query: %w", err)
	}

	insights := make(map[string]Insight, len(docIDs))
	for result.Next(ctx) {
		record := result.Record()
		idVal, _ := record.Get("id")
		docID, ok := idVal.(string)
		if !ok {
			continue
		}
		countVal, _ := record.Get("chunkCount")
		foldersVal, _ := record.Get("folders")
		relatedVal, _ := record.Get("relatedDocuments")
		sectionsVal, _ := record.Get("sections")
		topicsVal, _ := record.Get("topics")

		chunkCount, _ := toInt(countVal)
		insights[docID] = Insight{
			ChunkCount:       chunkCount,
			Folders:          convertStringSlice(foldersVal),
			RelatedDocuments: convertRelated(relatedVal),
			Sections:         convertSections(sectionsVal),
			Topics:           convertStringSlice(topicsVal),
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("neo4j insights result error: %w", err)
	}
	return insights, nil
}

func convertStringSlice(value any) []string {
	raw, ok := value.([]any)
	if !ok {
		if v, ok := value.([]string); ok {
			return v
		}
		return nil
	}

	result := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			result = append(result, s)
		}
	}
	return result
}

func convertRelated(value any) []RelatedDocument {
	raw, ok := value.([]any)
	if !ok {
		return nil
	}

	related := make([]RelatedDocument, 0, len(raw))
	for _, item := range raw {
		data, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := data["id"].(string)
		if id == "" {
			continue
		}
		title, _ := data["title"].(string)
		docPath, _ := data["path"].(string)
		related = append(related, RelatedDocument{ID: id, Title: title, Path: docPath})
	}
	return related
}

func convertSections(value any) []SectionInfo {
	raw, ok := value.([]any)
	if !ok {
		return nil
	}

	sections := make([]SectionInfo, 0, len(raw))
	for _, item := range raw {
		data, ok := item.(map[string]any)
		if !ok {
			continue
		}
		title, _ := data["title"].(string)
		if title == "" {
			continue
		}
		level, _ := toInt(data["level"])
		order, _ := toInt(data["order"])
		sections = append(sections, SectionInfo{Title: title, Level: level, Order: order})
	}
	return sections
}

func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

var _ Source = (*GraphSource)(nil)
