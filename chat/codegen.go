package chat

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/fabfab/codemind/corpus"
)

const (
	thinkingText      = "Thinking about the file..."
	noEditableText    = "I couldn't find any editable files relevant to your request. I can only edit text-based source code and document files, not PDFs or other binary formats."
	parseFailureText  = "Sorry, I couldn't generate the edit correctly."
	discardedText     = "Okay, I've discarded the changes."
	maxCodeCandidates = 3
)

var editableExtensions = map[string]struct{}{
	"js": {}, "ts": {}, "jsx": {}, "tsx": {}, "json": {}, "md": {}, "html": {}, "css": {}, "scss": {}, "less": {},
	"py": {}, "rb": {}, "java": {}, "c": {}, "cpp": {}, "cs": {}, "go": {}, "php": {}, "rs": {}, "swift": {},
	"kt": {}, "kts": {}, "dart": {}, "sh": {}, "yml": {}, "yaml": {}, "toml": {}, "ini": {}, "cfg": {}, "txt": {},
}

// Editable reports whether a document is a text file the assistant may rewrite.
func Editable(doc corpus.Document) bool {
	_, ok := editableExtensions[doc.Extension()]
	return ok
}

func editableResults(results []corpus.FusedResult) []corpus.FusedResult {
	out := make([]corpus.FusedResult, 0, len(results))
	for _, r := range results {
		if Editable(r.Document) {
			out = append(out, r)
		}
	}
	return out
}

// generation is the structured reply of the code generation model.
type generation struct {
	Thought    string `json:"thought"`
	FilePath   string `json:"filePath"`
	NewContent string `json:"newContent"`
	Error      string `json:"error"`
}

// parseGeneration decodes the model's JSON reply. Markdown code fences and
// text around the object are tolerated.
func parseGeneration(text string) (generation, error) {
	raw := strings.TrimSpace(text)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return generation{}, fmt.Errorf("%w: no JSON object in reply", ErrGenerationParse)
	}

	var g generation
	if err := json.Unmarshal([]byte(raw[start:end+1]), &g); err != nil {
		return generation{}, fmt.Errorf("%w: %v", ErrGenerationParse, err)
	}
	if g.Error != "" {
		return g, fmt.Errorf("%w: %s", ErrGenerationParse, g.Error)
	}
	if strings.TrimSpace(g.FilePath) == "" {
		return generation{}, fmt.Errorf("%w: reply names no file", ErrGenerationParse)
	}
	return g, nil
}

// resolveTarget finds the document whose path is exactly filePath.
func resolveTarget(docs []corpus.Document, filePath string) (corpus.Document, bool) {
	want := normalizePath(filePath)
	for _, doc := range docs {
		if normalizePath(doc.FullPath()) == want ||
			normalizePath(doc.Path) == want ||
			normalizePath(path.Join(doc.Path, doc.DisplayName)) == want {
			return doc, true
		}
	}
	return corpus.Document{}, false
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "./")
	return strings.TrimPrefix(p, "/")
}

func suggestionText(doc corpus.Document) string {
	return fmt.Sprintf("I have a suggestion for `%s`. Here are the changes:", doc.DisplayName)
}

func targetNotFoundText(filePath string) string {
	return fmt.Sprintf("The model suggested editing a file I couldn't find: %s", filePath)
}

func appliedText(doc corpus.Document) string {
	return fmt.Sprintf("Great! I've applied the changes to `%s`.", doc.DisplayName)
}

func applyFailedText(doc corpus.Document) string {
	return fmt.Sprintf("Sorry, I failed to apply the changes to `%s`. Could not find the file in the preloaded dataset.", doc.DisplayName)
}

func streamErrorText(err error) string {
	return fmt.Sprintf("Sorry, I encountered an error: %v", err)
}
