package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkMarkdownRespectsOverlap(t *testing.T) {
	text := "# Title\n\n" +
		"## Section One\n\n" +
		"Paragraph one." +
		"\n\n" +
		"Paragraph two is quite a bit longer than the first paragraph and should trigger a split." +
		"\n\n" +
		"Paragraph three." +
		"\n\n" +
		"Paragraph four."

	fragments, sections, topics := ChunkMarkdown(text, 50, 10)
	require.GreaterOrEqual(t, len(fragments), 2)
	assert.NotEqual(t, fragments[0].Text, fragments[1].Text)
	assert.Contains(t, fragments[1].Text, "one.")

	require.Len(t, sections, 2)
	assert.Equal(t, SectionMeta{Title: "Section One", Level: 2, Order: 1}, sections[1])
	assert.Equal(t, []TopicMeta{{Name: "Section One"}}, topics)
	assert.Equal(t, "Title", fragments[0].Section.Title)
}

func TestChunkMarkdownKeepsFencedBlocksTogether(t *testing.T) {
	text := "# Code\n\n```go\nfunc a() {}\n\n# not a heading\n```\n"
	fragments, sections, _ := ChunkMarkdown(text, 1000, 0)
	require.Len(t, sections, 1)
	require.Len(t, fragments, 1)
	assert.Contains(t, fragments[0].Text, "# not a heading")
}

func TestChunkMarkdownHandlesEmpty(t *testing.T) {
	fragments, sections, topics := ChunkMarkdown("\n\n", 100, 20)
	assert.Empty(t, fragments)
	assert.Empty(t, sections)
	assert.Empty(t, topics)
}

func TestChunkPlainText(t *testing.T) {
	fragments, sections := ChunkPlainText("first\n\nsecond", "Report", 1000, 0)
	require.Len(t, fragments, 1)
	assert.Equal(t, "first\n\nsecond", fragments[0].Text)
	assert.Equal(t, []SectionMeta{{Title: "Report", Level: 1}}, sections)

	fragments, sections = ChunkPlainText("  ", "x", 10, 0)
	assert.Nil(t, fragments)
	assert.Nil(t, sections)
}

func TestTail(t *testing.T) {
	assert.Equal(t, "", tail("anything", 0))
	assert.Equal(t, "short", tail("short", 10))
	assert.Equal(t, "brown fox", tail("the quick brown fox", 10))
}

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "Heading One", ExtractTitle("Some intro\n# Heading One\nMore text", "fallback"))
	assert.Equal(t, "fallback", ExtractTitle("no headings", "fallback"))
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatMarkdown, DetectFormat("docs/README.MD"))
	assert.Equal(t, FormatPDF, DetectFormat("a.pdf"))
	assert.Equal(t, FormatCSV, DetectFormat("rows.csv"))
	assert.Equal(t, FormatSource, DetectFormat("cmd/main.go"))
	assert.Equal(t, FormatUnknown, DetectFormat("logo.png"))
	assert.Nil(t, parserFor(FormatUnknown))
	assert.NotNil(t, parserFor(FormatSource))
}

func TestCSVParser(t *testing.T) {
	parsed, err := parseCSV(context.Background(), DocumentPayload{
		Path: "people.csv",
		Data: []byte("name,role\nada,engineer\ngrace,admiral,extra\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, "name", parsed.Title)
	assert.Equal(t, []TopicMeta{{Name: "name"}, {Name: "role"}}, parsed.Topics)
	require.Len(t, parsed.Fragments, 1)
	assert.Equal(t, "Row 1\nname: ada\nrole: engineer\n\nRow 2\nname: grace\nrole: admiral\nExtra 3: extra", parsed.Fragments[0].Text)
}

func TestMarkdownParserKeepsContent(t *testing.T) {
	parsed, err := parseMarkdown(context.Background(), DocumentPayload{Path: "a.md", Data: []byte("# A\n\nbody")})
	require.NoError(t, err)
	assert.Equal(t, "A", parsed.Title)
	assert.Equal(t, "# A\n\nbody", parsed.Content)
}

func TestSourceParserKeepsFileVerbatim(t *testing.T) {
	src := "package main\r\n\r\nfunc main() {}\r\n"
	parsed, err := parseSource(context.Background(), DocumentPayload{Path: "cmd/main.go", Data: []byte(src)})
	require.NoError(t, err)
	assert.Equal(t, "main.go", parsed.Title)
	assert.Equal(t, src, parsed.Content)
	assert.Equal(t, []TopicMeta{{Name: "Go"}}, parsed.Topics)
	require.Len(t, parsed.Fragments, 1)
	assert.Equal(t, "package main\n\nfunc main() {}", parsed.Fragments[0].Text)
	assert.Equal(t, "main.go", parsed.Fragments[0].Section.Title)
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	for _, name := range []string{"a.md", "sub/b.csv", "c.go", "d.png", ".git/config.yml"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	files, err := CollectFiles(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(dir, "a.md"), filepath.Join(dir, "sub", "b.csv"), filepath.Join(dir, "c.go")}, files)

	_, err = CollectFiles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestIngestDirectoryMissingEmbedder(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, 128)
	_, err := svc.IngestDirectory(context.Background(), "./does-not-matter")
	assert.Error(t, err)
}
