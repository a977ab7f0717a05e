package corpus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStore() *LocalStore {
	modified := time.UnixMilli(1700000000000)
	return LocalStoreFromFiles([]File{
		{Name: "main.go", RelativePath: "app/main.go", Content: "package main\n// Server starts the server", ModifiedAt: modified},
		{Name: "README.md", RelativePath: "app/README.md", Content: "server server SERVER", ModifiedAt: modified},
		{Name: "notes.txt", Content: "nothing relevant", ModifiedAt: modified},
	})
}

func TestLocalStoreFromFilesAssignsIDs(t *testing.T) {
	store := sampleStore()
	docs := store.ListAll()
	require.Len(t, docs, 3)
	assert.Equal(t, "custom-main.go-1700000000000", docs[0].ID)
	assert.Equal(t, "app/main.go", docs[0].Path)
	assert.Equal(t, "notes.txt", docs[2].Path)
	assert.Equal(t, SourceLocal, docs[1].Origin)
}

func TestLocalStoreSearchCountsOccurrences(t *testing.T) {
	results := sampleStore().Search("Server")
	require.Len(t, results, 2)
	assert.Equal(t, "README.md", results[0].Document.DisplayName)
	assert.Equal(t, 3.0, results[0].Score)
	assert.Equal(t, 2.0, results[1].Score)
}

func TestLocalStoreUpdate(t *testing.T) {
	store := sampleStore()
	id := store.ListAll()[0].ID

	assert.True(t, store.Update(id, "package main\n"))
	content, ok := store.Content(id)
	require.True(t, ok)
	assert.Equal(t, "package main", content)

	assert.False(t, store.Update("missing", "x"))
}

func TestLocalStoreJSONRoundTrip(t *testing.T) {
	store := sampleStore()
	data, err := json.Marshal(store)
	require.NoError(t, err)

	var decoded LocalStore
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, store.Entries(), decoded.Entries())
}

func TestDocumentFullPath(t *testing.T) {
	assert.Equal(t, "src/app.ts", Document{DisplayName: "app.ts", Path: "src"}.FullPath())
	assert.Equal(t, "src/app.ts", Document{DisplayName: "app.ts", Path: "src/app.ts"}.FullPath())
	assert.Equal(t, "ts", Document{DisplayName: "app.TS"}.Extension())
}

func TestGroundingToggles(t *testing.T) {
	g := DefaultGrounding()
	assert.True(t, g.Any())
	assert.False(t, g.Secondary())

	g.UseLocal = true
	g.Disable(SourceCorpus)
	assert.False(t, g.Enabled(SourceCorpus))
	assert.True(t, g.Enabled(SourceLocal))
	assert.True(t, g.Secondary())
}
