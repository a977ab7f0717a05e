package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/codemind/chat"
	"github.com/fabfab/codemind/corpus"
	"github.com/fabfab/codemind/llm"
)

var testCatalog = llm.Catalog{
	{ID: "gemini-flash-lite", Model: "gemini-flash-lite-latest"},
	{ID: "gemini-pro", Model: "gemini-2.5-pro"},
}

func TestDecodeMigratesLegacySessions(t *testing.T) {
	data := []byte(`{
		"chats": [
			{"id": "a", "title": "cloud", "groundingSource": "elastic_cloud"},
			{"id": "b", "title": "preloaded", "groundingSource": "preloaded", "dataSource": {"type": "local", "name": "docs"}},
			{"id": "c", "title": "hybrid", "groundingSource": "hybrid"},
			{"id": "d", "title": "plain"},
			{"id": "e", "title": "old options", "groundingOptions": {"useCloud": false, "usePreloaded": true, "useGoogleSearch": true}}
		],
		"model": "gemini-ultra"
	}`)

	snap, err := Decode(data, testCatalog)
	require.NoError(t, err)
	require.Len(t, snap.Sessions, 5)

	assert.Equal(t, corpus.Grounding{UseCorpus: true}, snap.Sessions[0].Grounding)
	assert.Equal(t, corpus.Grounding{UseLocal: true}, snap.Sessions[1].Grounding)
	assert.Equal(t, corpus.Grounding{UseCorpus: true, UseLocal: true}, snap.Sessions[2].Grounding)
	assert.Equal(t, corpus.DefaultGrounding(), snap.Sessions[3].Grounding)
	assert.Equal(t, corpus.Grounding{UseLocal: true, UseWebSearch: true}, snap.Sessions[4].Grounding)
	assert.NotNil(t, snap.Sessions[3].Dataset)

	assert.Equal(t, "a", snap.ActiveSessionID)
	assert.Equal(t, "gemini-flash-lite", snap.SelectedModel)
}

func TestDecodeKeepsCurrentLayout(t *testing.T) {
	sess := chat.NewSession(true)
	sess.SetGrounding(corpus.Grounding{UseCorpus: true, UseGraph: true, UseMaps: true})
	data, err := json.Marshal(Snapshot{
		Sessions:        []chat.SessionState{sess.State()},
		ActiveSessionID: sess.ID(),
		SelectedModel:   "gemini-pro",
	})
	require.NoError(t, err)

	snap, err := Decode(data, testCatalog)
	require.NoError(t, err)
	require.Len(t, snap.Sessions, 1)
	assert.Equal(t, corpus.Grounding{UseCorpus: true, UseGraph: true, UseMaps: true}, snap.Sessions[0].Grounding)
	assert.True(t, snap.Sessions[0].CodeGenerationEnabled)
	assert.Equal(t, sess.ID(), snap.ActiveSessionID)
	assert.Equal(t, "gemini-pro", snap.SelectedModel)
}

func TestDecodeEmptyAndInvalid(t *testing.T) {
	snap, err := Decode([]byte(`{}`), testCatalog)
	require.NoError(t, err)
	assert.Empty(t, snap.Sessions)
	assert.Empty(t, snap.ActiveSessionID)

	_, err = Decode([]byte(`not json`), testCatalog)
	assert.Error(t, err)
}
