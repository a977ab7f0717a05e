package config

import (
	"os"
	"strconv"
	"strings"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	PostgresDSN string
	Neo4jURI    string
	Neo4jUser   string
	Neo4jPass   string
	RedisURL    string
	NatsURL     string
	NatsSubject string

	DataDir  string
	HTTPAddr string

	LogLevel string
	LogFile  string

	LLM        LLMConfig
	Embeddings EmbeddingConfig

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	GeminiAPIKey  string
	GeminiBaseURL string

	Chat ChatConfig
}

type LLMConfig struct {
	Provider string
	Model    string
}

type EmbeddingConfig struct {
	Provider  string
	Model     string
	Dimension int
}

// ChatConfig tunes the grounding pipeline.
type ChatConfig struct {
	CodeGenerationEnabled bool
	FusionK               int
	MaxResults            int
	SearchLimit           int
}

func Load() Config {
	llmProvider := strings.ToLower(getEnv("LLM_PROVIDER", ProviderOllama))
	return Config{
		PostgresDSN: getEnv("POSTGRES_DSN", "postgres://localhost:5432/codemind?sslmode=disable"),
		Neo4jURI:    getEnv("NEO4J_URI", "neo4j://localhost:7687"),
		Neo4jUser:   getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPass:   getEnv("NEO4J_PASSWORD", "password"),
		RedisURL:    getEnv("REDIS_URL", ""),
		NatsURL:     getEnv("NATS_URL", ""),
		NatsSubject: getEnv("NATS_EDIT_SUBJECT", "codemind.documents.edited"),

		DataDir:  getEnv("DATA_DIR", "./data"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		LLM: LLMConfig{
			Provider: llmProvider,
			Model:    getEnv("LLM_MODEL", defaultModel(llmProvider)),
		},
		Embeddings: EmbeddingConfig{
			Provider:  strings.ToLower(getEnv("EMBEDDINGS_PROVIDER", ProviderOllama)),
			Model:     getEnv("EMBEDDINGS_MODEL", "nomic-embed-text"),
			Dimension: getEnvInt("EMBEDDINGS_DIMENSION", 768),
		},

		OllamaHost:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),

		Chat: ChatConfig{
			CodeGenerationEnabled: getEnvBool("CODE_GENERATION_ENABLED", false),
			FusionK:               getEnvInt("FUSION_K", 60),
			MaxResults:            getEnvInt("MAX_RESULTS", 10),
			SearchLimit:           getEnvInt("SEARCH_LIMIT", 10),
		},
	}
}

func defaultModel(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderGemini:
		return "gemini-flash-lite-latest"
	default:
		return "llama3.1:8b"
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := getEnv(key, ""); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := getEnv(key, ""); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
