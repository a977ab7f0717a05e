package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/fabfab/codemind/corpus"
)

type geminiClient struct {
	models *genai.Models
	model  string
}

// NewGeminiClient builds a client on the Gemini API. BaseURL overrides the
// endpoint for tests and proxies.
func NewGeminiClient(opts Options) (ChatModel, error) {
	cfg := &genai.ClientConfig{
		APIKey:     opts.GeminiAPIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: requestTimeout},
	}
	if base := strings.TrimRight(opts.GeminiBaseURL, "/"); base != "" {
		cfg.HTTPOptions.BaseURL = base + "/"
	}

	client, err := genai.NewClient(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &geminiClient{models: client.Models, model: opts.Model}, nil
}

func (c *geminiClient) Generate(ctx context.Context, model string, messages []Message) (string, error) {
	contents, config := buildGeminiRequest(StreamRequest{Messages: messages})
	resp, err := c.models.GenerateContent(ctx, modelOrDefault(model, c.model), contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	return geminiIncrement(resp).Text, nil
}

// Stream pulls the content stream of the SDK one response at a time. Search
// and maps grounding are requested as tools and their grounding chunks
// become citations.
func (c *geminiClient) Stream(ctx context.Context, req StreamRequest) (Stream, error) {
	contents, config := buildGeminiRequest(req)
	seq := c.models.GenerateContentStream(ctx, modelOrDefault(req.Model, c.model), contents, config)
	return newGeminiStream(seq), nil
}

func buildGeminiRequest(req StreamRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{}
	var contents []*genai.Content

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			if config.SystemInstruction == nil {
				config.SystemInstruction = &genai.Content{}
			}
			config.SystemInstruction.Parts = append(config.SystemInstruction.Parts, genai.NewPartFromText(msg.Content))
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			parts := []*genai.Part{genai.NewPartFromText(msg.Content)}
			if msg.Image != nil {
				if data, err := base64.StdEncoding.DecodeString(msg.Image.Data); err == nil {
					parts = append(parts, genai.NewPartFromBytes(data, msg.Image.MIMEType))
				}
			}
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
		}
	}

	if req.WebSearch {
		config.Tools = append(config.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}
	if req.Maps {
		config.Tools = append(config.Tools, &genai.Tool{GoogleMaps: &genai.GoogleMaps{}})
		if req.Location != nil {
			config.ToolConfig = &genai.ToolConfig{
				RetrievalConfig: &genai.RetrievalConfig{
					LatLng: &genai.LatLng{
						Latitude:  genai.Ptr(req.Location.Latitude),
						Longitude: genai.Ptr(req.Location.Longitude),
					},
				},
			}
		}
	}
	if req.JSON && len(config.Tools) == 0 {
		config.ResponseMIMEType = "application/json"
	}
	return contents, config
}

// geminiIncrement maps one response of the first candidate to an increment.
func geminiIncrement(resp *genai.GenerateContentResponse) Increment {
	var inc Increment
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return inc
	}
	candidate := resp.Candidates[0]

	if candidate.Content != nil {
		var sb strings.Builder
		for _, part := range candidate.Content.Parts {
			if part != nil && !part.Thought {
				sb.WriteString(part.Text)
			}
		}
		inc.Text = sb.String()
	}

	if candidate.GroundingMetadata == nil {
		return inc
	}
	for _, chunk := range candidate.GroundingMetadata.GroundingChunks {
		switch {
		case chunk == nil:
		case chunk.Web != nil:
			inc.Citations = append(inc.Citations, corpus.Citation{Kind: corpus.CitationWeb, URI: chunk.Web.URI, Title: chunk.Web.Title})
		case chunk.Maps != nil:
			citation := corpus.Citation{Kind: corpus.CitationMaps, URI: chunk.Maps.URI, Title: chunk.Maps.Title}
			if sources := chunk.Maps.PlaceAnswerSources; sources != nil {
				for _, review := range sources.ReviewSnippets {
					if review == nil {
						continue
					}
					citation.Reviews = append(citation.Reviews, corpus.ReviewSnippet{Text: review.Review, URI: review.GoogleMapsURI, Title: review.Title})
				}
			}
			inc.Citations = append(inc.Citations, citation)
		}
	}
	return inc
}

type geminiStream struct {
	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()
}

func newGeminiStream(seq iter.Seq2[*genai.GenerateContentResponse, error]) *geminiStream {
	next, stop := iter.Pull2(seq)
	return &geminiStream{next: next, stop: stop}
}

func (s *geminiStream) Recv() (Increment, error) {
	for {
		resp, err, ok := s.next()
		if !ok {
			return Increment{}, io.EOF
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Increment{}, io.EOF
			}
			return Increment{}, fmt.Errorf("gemini stream: %w", err)
		}
		inc := geminiIncrement(resp)
		if inc.Text == "" && len(inc.Citations) == 0 {
			continue
		}
		return inc, nil
	}
}

func (s *geminiStream) Close() error {
	s.stop()
	return nil
}
