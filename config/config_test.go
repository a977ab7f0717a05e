package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("FUSION_K", "")
	t.Setenv("CODE_GENERATION_ENABLED", "")

	cfg := Load()
	assert.Equal(t, ProviderOllama, cfg.LLM.Provider)
	assert.Equal(t, "llama3.1:8b", cfg.LLM.Model)
	assert.Equal(t, 60, cfg.Chat.FusionK)
	assert.Equal(t, 10, cfg.Chat.MaxResults)
	assert.False(t, cfg.Chat.CodeGenerationEnabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("LLM_MODEL", "")
	t.Setenv("FUSION_K", "20")
	t.Setenv("MAX_RESULTS", "not-a-number")
	t.Setenv("CODE_GENERATION_ENABLED", "true")

	cfg := Load()
	assert.Equal(t, ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, "gemini-flash-lite-latest", cfg.LLM.Model)
	assert.Equal(t, 20, cfg.Chat.FusionK)
	assert.Equal(t, 10, cfg.Chat.MaxResults)
	assert.True(t, cfg.Chat.CodeGenerationEnabled)
}
