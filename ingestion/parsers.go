package ingestion

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

type DocumentParser interface {
	Parse(ctx context.Context, payload DocumentPayload) (*ParsedDocument, error)
}

// ParsedDocument is the text of a file split for embedding. Content is the
// full text kept for display and editing.
type ParsedDocument struct {
	Title     string
	Content   string
	Fragments []ChunkFragment
	Sections  []SectionMeta
	Topics    []TopicMeta
}

// DocumentParserFunc adapts a function to DocumentParser.
type DocumentParserFunc func(ctx context.Context, payload DocumentPayload) (*ParsedDocument, error)

func (f DocumentParserFunc) Parse(ctx context.Context, payload DocumentPayload) (*ParsedDocument, error) {
	return f(ctx, payload)
}

var parsers = map[DocumentFormat]DocumentParser{
	FormatMarkdown: DocumentParserFunc(parseMarkdown),
	FormatPDF:      DocumentParserFunc(parsePDF),
	FormatCSV:      DocumentParserFunc(parseCSV),
	FormatSource:   DocumentParserFunc(parseSource),
}

// parserFor returns the parser of a format, or nil when unsupported.
func parserFor(format DocumentFormat) DocumentParser {
	return parsers[format]
}

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func parseMarkdown(_ context.Context, payload DocumentPayload) (*ParsedDocument, error) {
	content := string(payload.Data)
	fragments, sections, topics := ChunkMarkdown(content, defaultChunkSize, defaultChunkOverlap)
	return &ParsedDocument{
		Title:     ExtractTitle(content, filepath.Base(payload.Path)),
		Content:   content,
		Fragments: fragments,
		Sections:  sections,
		Topics:    topics,
	}, nil
}

func parsePDF(_ context.Context, payload DocumentPayload) (*ParsedDocument, error) {
	doc, err := pdf.NewReader(bytes.NewReader(payload.Data), int64(len(payload.Data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	plain, err := doc.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return nil, fmt.Errorf("read pdf text: %w", err)
	}

	content := normalizeLines(string(raw))
	title := firstLine(content)
	if title == "" {
		title = baseName(payload.Path)
	}
	fragments, sections := ChunkPlainText(content, title, defaultChunkSize, defaultChunkOverlap)
	return &ParsedDocument{Title: title, Content: content, Fragments: fragments, Sections: sections}, nil
}

// parseSource keeps the file byte for byte so accepted edits diff cleanly.
// Blocks separated by blank lines are packed into chunks of one section named
// after the file, and the language becomes the only topic.
func parseSource(_ context.Context, payload DocumentPayload) (*ParsedDocument, error) {
	content := string(payload.Data)
	section := SectionMeta{Title: filepath.Base(payload.Path), Level: 1}

	var blocks []paragraphWithSection
	for _, block := range strings.Split(normalizeLines(content), "\n\n") {
		if strings.TrimSpace(block) != "" {
			blocks = append(blocks, paragraphWithSection{Text: strings.Trim(block, "\n"), Section: section})
		}
	}

	parsed := &ParsedDocument{
		Title:     filepath.Base(payload.Path),
		Content:   content,
		Fragments: chunkParagraphs(blocks, defaultChunkSize, defaultChunkOverlap),
		Sections:  []SectionMeta{section},
	}
	if lang := Language(payload.Path); lang != "" {
		parsed.Topics = []TopicMeta{{Name: lang}}
	}
	return parsed, nil
}

// parseCSV turns every row into a "header: value" paragraph. The first
// non-empty header names the document and every header becomes a topic.
func parseCSV(_ context.Context, payload DocumentPayload) (*ParsedDocument, error) {
	reader := csv.NewReader(bytes.NewReader(payload.Data))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	parsed := &ParsedDocument{Title: baseName(payload.Path), Content: string(payload.Data)}
	if len(records) == 0 {
		return parsed, nil
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
		if headers[i] == "" {
			continue
		}
		if len(parsed.Topics) == 0 {
			parsed.Title = headers[i]
		}
		parsed.Topics = append(parsed.Topics, TopicMeta{Name: headers[i]})
	}

	section := SectionMeta{Title: "Rows", Level: 1}
	rows := make([]paragraphWithSection, 0, len(records)-1)
	for i, record := range records[1:] {
		rows = append(rows, paragraphWithSection{Text: csvRow(headers, record, i+1), Section: section})
	}
	parsed.Sections = []SectionMeta{section}
	parsed.Fragments = chunkParagraphs(rows, defaultChunkSize, defaultChunkOverlap)
	return parsed, nil
}

func csvRow(headers, record []string, number int) string {
	lines := []string{fmt.Sprintf("Row %d", number)}
	for i, value := range record {
		value = strings.TrimSpace(value)
		switch {
		case i >= len(headers):
			lines = append(lines, fmt.Sprintf("Extra %d: %s", i+1, value))
		case headers[i] == "":
			lines = append(lines, fmt.Sprintf("Column %d: %s", i+1, value))
		default:
			lines = append(lines, headers[i]+": "+value)
		}
	}
	return strings.Join(lines, "\n")
}

func normalizeLines(content string) string {
	content = strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(content)
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

func firstLine(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
