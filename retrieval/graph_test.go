package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fabfab/codemind/corpus"
)

func TestKeywordTerms(t *testing.T) {
	assert.Equal(t, []string{"configure", "redis", "cache"}, keywordTerms("How do I configure the Redis cache? redis!"))
	assert.Equal(t, []string{"main.go"}, keywordTerms("what is in main.go"))
	assert.Empty(t, keywordTerms("is it ok"))

	long := keywordTerms("one1 two2 three four five six seven eight nine ten")
	assert.Len(t, long, maxKeywordTerms)
}

func TestConvertHelpers(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, convertStringSlice([]any{"a", "", 3, "b"}))
	assert.Equal(t, []string{"x"}, convertStringSlice([]string{"x"}))
	assert.Nil(t, convertStringSlice(nil))

	related := convertRelated([]any{
		map[string]any{"id": "1", "title": "One", "path": "docs/one.md"},
		map[string]any{"title": "missing id"},
		"junk",
	})
	assert.Equal(t, []RelatedDocument{{ID: "1", Title: "One", Path: "docs/one.md"}}, related)

	sections := convertSections([]any{
		map[string]any{"title": "Intro", "level": int64(1), "order": int64(0)},
		map[string]any{"level": int64(2)},
	})
	assert.Equal(t, []SectionInfo{{Title: "Intro", Level: 1, Order: 0}}, sections)
}

func TestCollapseHitsKeepsBestChunkPerDocument(t *testing.T) {
	hits := []chunkHit{
		{DocumentID: "1", Path: "docs/a.md", Content: "best a", Distance: 0},
		{DocumentID: "2", Path: "b.md", Content: "best b", Distance: 1},
		{DocumentID: "1", Path: "docs/a.md", Content: "worse a", Distance: 2},
		{DocumentID: "3", Path: "c.md", Content: "c", Distance: 3},
	}

	results := collapseHits(hits, 10)
	assert.Len(t, results, 3)
	assert.Equal(t, "best a", results[0].Snippet)
	assert.Equal(t, 1.0, results[0].Score)
	assert.Equal(t, 0.5, results[1].Score)
	assert.Equal(t, corpus.Document{ID: "1", DisplayName: "a.md", Path: "docs/a.md", Origin: corpus.SourceCorpus}, results[0].Document)

	assert.Len(t, collapseHits(hits, 2), 2)
}
