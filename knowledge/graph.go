// Package knowledge mirrors ingested documents into a Neo4j graph of
// folders, sections, topics and chunks. Retrieval reads the same graph back
// as the graph source.
package knowledge

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

var errNoDriver = errors.New("neo4j driver is nil")

type Document struct {
	ID       string
	Path     string
	Title    string
	SHA      string
	Folder   string
	Content  string
	Chunks   []Chunk
	Sections []Section
	Topics   []Topic
}

type Chunk struct {
	ID        string
	Index     int
	Text      string
	SectionID string
}

type Section struct {
	ID    string
	Title string
	Level int
	Order int
}

type Topic struct {
	Name string
}

// statement is one write executed inside the sync transaction.
type statement struct {
	name   string
	cypher string
	params map[string]any
}

const (
	upsertDocument = `
		MERGE (d:Document {id: $id})
		SET d.path = $path, d.title = $title, d.sha256 = $sha,
		    d.content = $content, d.updated_at = datetime()`

	detachDocument = `
		MATCH (d:Document {id: $id})
		OPTIONAL MATCH (d)-[:HAS_SECTION|HAS_CHUNK]->(n)
		WITH d, collect(DISTINCT n) AS owned
		FOREACH (x IN owned | DETACH DELETE x)
		WITH d
		OPTIONAL MATCH (d)-[r:HAS_TOPIC|IN_FOLDER]->()
		DELETE r`

	linkFolder = `
		MATCH (d:Document {id: $id})
		MERGE (f:Folder {name: $folder})
		MERGE (d)-[:IN_FOLDER]->(f)`

	writeSections = `
		MATCH (d:Document {id: $id})
		UNWIND $rows AS row
		MERGE (s:Section {id: row.id})
		SET s.title = row.title, s.level = row.level, s.order = row.order
		MERGE (d)-[:HAS_SECTION {order: row.order}]->(s)`

	writeTopics = `
		MATCH (d:Document {id: $id})
		UNWIND $names AS name
		MERGE (t:Topic {name: name})
		MERGE (d)-[:HAS_TOPIC]->(t)`

	writeChunks = `
		MATCH (d:Document {id: $id})
		UNWIND $rows AS row
		MERGE (c:Chunk {id: row.id})
		SET c.index = row.index, c.text = row.text
		MERGE (d)-[:HAS_CHUNK {order: row.index}]->(c)
		WITH c, row
		WHERE row.section <> ''
		MATCH (s:Section {id: row.section})
		MERGE (s)-[:HAS_CHUNK {order: row.index}]->(c)`

	pruneOrphans = `
		OPTIONAL MATCH (t:Topic) WHERE NOT (t)<-[:HAS_TOPIC]-(:Document)
		WITH collect(t) AS topics
		OPTIONAL MATCH (f:Folder) WHERE NOT (f)<-[:IN_FOLDER]-(:Document)
		WITH topics, collect(f) AS folders
		FOREACH (n IN topics + folders | DETACH DELETE n)`
)

// statements lists the writes that replace the graph of doc, in order.
func (doc Document) statements() []statement {
	id := map[string]any{"id": doc.ID}
	out := []statement{
		{name: "upsert document", cypher: upsertDocument, params: map[string]any{
			"id": doc.ID, "path": doc.Path, "title": doc.Title, "sha": doc.SHA, "content": doc.Content,
		}},
		{name: "detach previous structure", cypher: detachDocument, params: id},
	}

	if doc.Folder != "" {
		out = append(out, statement{name: "link folder", cypher: linkFolder, params: map[string]any{"id": doc.ID, "folder": doc.Folder}})
	}

	if len(doc.Sections) > 0 {
		rows := make([]map[string]any, 0, len(doc.Sections))
		for _, s := range doc.Sections {
			rows = append(rows, map[string]any{"id": s.ID, "title": s.Title, "level": s.Level, "order": s.Order})
		}
		out = append(out, statement{name: "write sections", cypher: writeSections, params: map[string]any{"id": doc.ID, "rows": rows}})
	}

	var names []string
	for _, t := range doc.Topics {
		if t.Name != "" {
			names = append(names, t.Name)
		}
	}
	if len(names) > 0 {
		out = append(out, statement{name: "write topics", cypher: writeTopics, params: map[string]any{"id": doc.ID, "names": names}})
	}

	if len(doc.Chunks) > 0 {
		rows := make([]map[string]any, 0, len(doc.Chunks))
		for _, c := range doc.Chunks {
			rows = append(rows, map[string]any{"id": c.ID, "index": c.Index, "text": c.Text, "section": c.SectionID})
		}
		out = append(out, statement{name: "write chunks", cypher: writeChunks, params: map[string]any{"id": doc.ID, "rows": rows}})
	}

	return append(out, statement{name: "prune orphans", cypher: pruneOrphans})
}

// SyncDocument replaces the graph of a document with the given sections,
// topics and chunks in a single write transaction.
func SyncDocument(ctx context.Context, driver neo4j.DriverWithContext, doc Document) error {
	if driver == nil {
		return errNoDriver
	}
	if doc.ID == "" {
		return fmt.Errorf("sync document: empty id")
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	stmts := doc.statements()
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, stmt := range stmts {
			if _, err := tx.Run(ctx, stmt.cypher, stmt.params); err != nil {
				return nil, fmt.Errorf("%s: %w", stmt.name, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("sync document %s: %w", doc.ID, err)
	}
	return nil
}

// Clear deletes every node created by SyncDocument.
func Clear(ctx context.Context, driver neo4j.DriverWithContext) error {
	if driver == nil {
		return errNoDriver
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	for _, label := range []string{"Document", "Chunk", "Section", "Topic", "Folder"} {
		query := fmt.Sprintf("MATCH (n:%s) DETACH DELETE n", label)
		result, err := session.Run(ctx, query, nil)
		if err != nil {
			return fmt.Errorf("clear %s nodes: %w", label, err)
		}
		if _, err := result.Consume(ctx); err != nil {
			return fmt.Errorf("clear %s nodes: %w", label, err)
		}
	}
	return nil
}
