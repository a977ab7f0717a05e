package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type ollamaClient struct {
	host   string
	model  string
	client *http.Client
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Format   string              `json:"format,omitempty"`
}

type ollamaChatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
	Error   string            `json:"error"`
}

func NewOllamaClient(opts Options) ChatModel {
	host := strings.TrimRight(opts.OllamaHost, "/")
	if host == "" {
		host = "http://localhost:11434"
	}

	return &ollamaClient{
		host:  host,
		model: opts.Model,
		client: &http.Client{Timeout: requestTimeout},
	}
}

func (c *ollamaClient) Generate(ctx context.Context, model string, messages []Message) (string, error) {
	resp, err := c.post(ctx, ollamaChatRequest{
		Model:    modelOrDefault(model, c.model),
		Messages: toOllamaMessages(messages),
		Stream:   false,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}

	if parsed.Error != "" {
		return "", fmt.Errorf("ollama chat error: %s", parsed.Error)
	}

	return parsed.Message.Content, nil
}

// Stream decodes the NDJSON chat stream. Ollama has no search grounding, so
// increments never carry citations.
func (c *ollamaClient) Stream(ctx context.Context, req StreamRequest) (Stream, error) {
	payload := ollamaChatRequest{
		Model:    modelOrDefault(req.Model, c.model),
		Messages: toOllamaMessages(req.Messages),
		Stream:   true,
	}
	if req.JSON {
		payload.Format = "json"
	}

	resp, err := c.post(ctx, payload)
	if err != nil {
		return nil, err
	}
	return &ollamaStream{body: resp.Body, dec: json.NewDecoder(resp.Body)}, nil
}

func (c *ollamaClient) post(ctx context.Context, payload ollamaChatRequest) (*http.Response, error) {
	return postJSON(ctx, c.client, "ollama", c.host+"/api/chat", nil, payload)
}

type ollamaStream struct {
	body io.ReadCloser
	dec  *json.Decoder
	done bool
}

func (s *ollamaStream) Recv() (Increment, error) {
	for {
		if s.done {
			return Increment{}, io.EOF
		}

		var chunk ollamaChatResponse
		if err := s.dec.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				s.done = true
				return Increment{}, io.EOF
			}
			return Increment{}, fmt.Errorf("decode ollama stream response: %w", err)
		}

		if chunk.Error != "" {
			return Increment{}, fmt.Errorf("ollama chat error: %s", chunk.Error)
		}
		if chunk.Done {
			s.done = true
		}
		if chunk.Message.Content != "" {
			return Increment{Text: chunk.Message.Content}, nil
		}
	}
}

func (s *ollamaStream) Close() error {
	return s.body.Close()
}

func toOllamaMessages(messages []Message) []ollamaChatMessage {
	if len(messages) == 0 {
		return nil
	}
	converted := make([]ollamaChatMessage, len(messages))
	for i, msg := range messages {
		converted[i] = ollamaChatMessage{Role: msg.Role, Content: msg.Content}
		if msg.Image != nil {
			converted[i].Images = []string{msg.Image.Data}
		}
	}
	return converted
}
