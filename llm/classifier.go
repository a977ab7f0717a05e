package llm

import (
	"context"
	"fmt"
	"strings"
)

const classifierPrompt = `Classify the user's request into exactly one intent and reply with the intent name only.
- query_documents: questions about documents, code, files or facts that need lookup.
- generate_code: requests to modify, fix, refactor or write code in an existing file.
- chit_chat: greetings, small talk or questions needing no documents.
If unsure, reply unknown.`

// PromptClassifier labels a query through a one-shot completion.
type PromptClassifier struct {
	client Client
}

func NewPromptClassifier(client Client) *PromptClassifier {
	return &PromptClassifier{client: client}
}

// Classify returns the raw label produced by model, the provider model name
// of the selected catalog entry.
func (c *PromptClassifier) Classify(ctx context.Context, query, model string) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("llm client is not configured")
	}
	answer, err := c.client.Generate(ctx, model, []Message{
		{Role: RoleSystem, Content: classifierPrompt},
		{Role: RoleUser, Content: strings.TrimSpace(query)},
	})
	if err != nil {
		return "", fmt.Errorf("classify intent: %w", err)
	}
	fields := strings.Fields(answer)
	if len(fields) == 0 {
		return "", fmt.Errorf("classify intent: empty answer")
	}
	return fields[0], nil
}
