package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/codemind/config"
)

func TestNewEmbedderDefaults(t *testing.T) {
	cfg := config.Config{
		Embeddings: config.EmbeddingConfig{
			Provider:  config.ProviderOllama,
			Model:     "nomic-embed-text",
			Dimension: 3,
		},
		OllamaHost: "http://localhost:11434",
	}

	embedder, err := NewEmbedder(cfg)
	require.NoError(t, err)
	require.NotNil(t, embedder)
}

func TestNewEmbedderOpenAIMissingKey(t *testing.T) {
	cfg := config.Config{
		Embeddings: config.EmbeddingConfig{
			Provider:  config.ProviderOpenAI,
			Model:     "text-embedding-3-small",
			Dimension: 1536,
		},
	}

	_, err := NewEmbedder(cfg)
	assert.Error(t, err)
}

func TestOllamaEmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"a", "b"}, req.Input)
		fmt.Fprint(w, `{"embeddings":[[1,0,0],[0,1,0]]}`)
	}))
	defer srv.Close()

	embedder := NewOllamaEmbedder(Options{OllamaHost: srv.URL, Model: "m", Dimension: 3})
	vectors, err := embedder.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0, 0}, {0, 1, 0}}, vectors)
}

func TestOllamaEmbedDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"embeddings":[[1,0]]}`)
	}))
	defer srv.Close()

	_, err := NewOllamaEmbedder(Options{OllamaHost: srv.URL, Dimension: 3}).Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension mismatch")
}

type stubEmbedder struct {
	vectors [][]float32
	err     error
}

func (s stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return s.vectors, s.err
}

func TestEmbedQuery(t *testing.T) {
	vec, err := EmbedQuery(context.Background(), stubEmbedder{vectors: [][]float32{{0.5}}}, "q")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5}, vec)

	_, err = EmbedQuery(context.Background(), stubEmbedder{err: errors.New("down")}, "q")
	assert.Error(t, err)

	_, err = EmbedQuery(context.Background(), stubEmbedder{}, "q")
	assert.Error(t, err)

	_, err = EmbedQuery(context.Background(), nil, "q")
	assert.Error(t, err)
}
