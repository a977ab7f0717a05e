package llm

import (
	"context"
	"fmt"

	"github.com/fabfab/codemind/config"
	"github.com/fabfab/codemind/corpus"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Image is inline image data attached to a user turn.
type Image struct {
	MIMEType string
	Data     string // base64
}

type Message struct {
	Role    string
	Content string
	Image   *Image
}

type Client interface {
	// Generate answers in one shot. An empty model selects the client default.
	Generate(ctx context.Context, model string, messages []Message) (string, error)
}

// Increment is one piece of a streamed answer.
type Increment struct {
	Text      string
	Citations []corpus.Citation
}

// Stream yields increments in order. Recv returns io.EOF once the answer is
// complete. A stream is consumed once and cannot be restarted.
type Stream interface {
	Recv() (Increment, error)
	Close() error
}

type LatLng struct {
	Latitude  float64
	Longitude float64
}

type StreamRequest struct {
	Model     string
	Messages  []Message
	WebSearch bool
	Maps      bool
	Location  *LatLng
	JSON      bool
}

type StreamClient interface {
	Stream(ctx context.Context, req StreamRequest) (Stream, error)
}

// ChatModel is a client that can both generate and stream.
type ChatModel interface {
	Client
	StreamClient
}

type Options struct {
	Provider string
	Model    string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	GeminiAPIKey  string
	GeminiBaseURL string
}

func NewClient(cfg config.Config) (ChatModel, error) {
	opts := Options{
		Provider:      cfg.LLM.Provider,
		Model:         cfg.LLM.Model,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		GeminiAPIKey:  cfg.GeminiAPIKey,
		GeminiBaseURL: cfg.GeminiBaseURL,
	}

	switch opts.Provider {
	case config.ProviderOllama:
		return NewOllamaClient(opts), nil
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		return NewOpenAIClient(opts), nil
	case config.ProviderGemini:
		if opts.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini provider selected but GEMINI_API_KEY not set")
		}
		return NewGeminiClient(opts)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", opts.Provider)
	}
}

func modelOrDefault(model, fallback string) string {
	if model != "" {
		return model
	}
	return fallback
}
