// Package ingestion parses, chunks and embeds documents into the primary
// corpus tables and mirrors them into the knowledge graph.
package ingestion

import (
	"path/filepath"
	"strings"
)

type DocumentFormat string

const (
	FormatUnknown  DocumentFormat = ""
	FormatMarkdown DocumentFormat = "markdown"
	FormatPDF      DocumentFormat = "pdf"
	FormatCSV      DocumentFormat = "csv"
	// FormatSource covers plain-text source and config files. They are the
	// documents code suggestions can target.
	FormatSource DocumentFormat = "source"
)

var sourceLanguages = map[string]string{
	".go": "Go", ".py": "Python", ".js": "JavaScript", ".jsx": "JavaScript", ".ts": "TypeScript",
	".tsx": "TypeScript", ".java": "Java", ".rb": "Ruby", ".rs": "Rust", ".c": "C", ".cpp": "C++",
	".cs": "C#", ".php": "PHP", ".swift": "Swift", ".kt": "Kotlin", ".dart": "Dart", ".sh": "Shell",
	".html": "HTML", ".css": "CSS", ".scss": "SCSS", ".json": "JSON", ".yml": "YAML", ".yaml": "YAML",
	".toml": "TOML", ".ini": "INI", ".txt": "Text",
}

// DetectFormat infers a document format from the extension of path.
func DetectFormat(path string) DocumentFormat {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".md", ".markdown":
		return FormatMarkdown
	case ".pdf":
		return FormatPDF
	case ".csv":
		return FormatCSV
	}
	if _, ok := sourceLanguages[ext]; ok {
		return FormatSource
	}
	return FormatUnknown
}

// Language names the language of a source file, or "" when unknown.
func Language(path string) string {
	return sourceLanguages[strings.ToLower(filepath.Ext(path))]
}

// skipDir reports directories the walk never descends into.
func skipDir(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	return strings.HasPrefix(name, ".") || name == "node_modules" || name == "vendor"
}
