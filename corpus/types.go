// Package corpus holds the document model shared by retrieval, fusion and chat.
package corpus

import (
	"path"
	"strings"
)

// SourceKind identifies the retrieval source a document or result came from.
type SourceKind string

const (
	SourceCorpus SourceKind = "corpus"
	SourceLocal  SourceKind = "local"
	SourceGraph  SourceKind = "graph"
)

type Document struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"fileName"`
	Path        string     `json:"path"`
	Origin      SourceKind `json:"origin,omitempty"`
}

// FullPath joins Path and DisplayName unless Path already names the file.
func (d Document) FullPath() string {
	if d.Path == "" {
		return d.DisplayName
	}
	if d.DisplayName == "" || path.Base(d.Path) == d.DisplayName {
		return d.Path
	}
	return path.Join(d.Path, d.DisplayName)
}

// Extension returns the lower-cased extension of the display name without the dot.
func (d Document) Extension() string {
	name := d.DisplayName
	if name == "" {
		name = path.Base(d.Path)
	}
	ext := path.Ext(name)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Result is a single hit from one source. Score is only meaningful within that source.
type Result struct {
	Document Document `json:"source"`
	Snippet  string   `json:"contentSnippet"`
	Score    float64  `json:"score"`
}

// RankedList is ordered best first; rank is index+1.
type RankedList []Result

type FusedResult struct {
	Result
	FusedScore float64 `json:"fusedScore"`
}

type CitationKind string

const (
	CitationWeb  CitationKind = "web"
	CitationMaps CitationKind = "maps"
)

type ReviewSnippet struct {
	Text  string `json:"text"`
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Citation is a web page or map entry attached to a streamed answer. URI is the identity key.
type Citation struct {
	Kind    CitationKind    `json:"kind"`
	URI     string          `json:"uri"`
	Title   string          `json:"title"`
	Reviews []ReviewSnippet `json:"reviewSnippets,omitempty"`
}

// Grounding holds the per-session source toggles. A toggle that is on may still
// contribute nothing.
type Grounding struct {
	UseCorpus    bool `json:"useCorpus"`
	UseLocal     bool `json:"useLocal"`
	UseGraph     bool `json:"useGraph"`
	UseWebSearch bool `json:"useWebSearch"`
	UseMaps      bool `json:"useMaps"`
}

// DefaultGrounding enables only the primary corpus.
func DefaultGrounding() Grounding {
	return Grounding{UseCorpus: true}
}

// Any reports whether at least one source is enabled.
func (g Grounding) Any() bool {
	return g.UseCorpus || g.Secondary()
}

// Secondary reports whether any source other than the primary corpus is enabled.
func (g Grounding) Secondary() bool {
	return g.UseLocal || g.UseGraph || g.UseWebSearch || g.UseMaps
}

// Enabled reports the toggle for a retrieval source.
func (g Grounding) Enabled(kind SourceKind) bool {
	switch kind {
	case SourceCorpus:
		return g.UseCorpus
	case SourceLocal:
		return g.UseLocal
	case SourceGraph:
		return g.UseGraph
	default:
		return false
	}
}

// Disable flips the toggle for a retrieval source off.
func (g *Grounding) Disable(kind SourceKind) {
	switch kind {
	case SourceCorpus:
		g.UseCorpus = false
	case SourceLocal:
		g.UseLocal = false
	case SourceGraph:
		g.UseGraph = false
	}
}
