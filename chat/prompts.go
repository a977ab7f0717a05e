package chat

import (
	"fmt"
	"strings"

	"github.com/fabfab/codemind/corpus"
	"github.com/fabfab/codemind/retrieval"
)

func ragSystemPrompt() string {
	return "You are a helpful assistant. Use the supplied context to enrich and support your response, citing Source numbers in brackets (e.g., [Source 1]) when you draw from it. If the context is missing or not useful, rely on your general knowledge, note any uncertainty, and still deliver the best possible answer. Always answer the question first, then optionally add brief context notes."
}

func webSystemPrompt() string {
	return "You are a helpful assistant with access to web search. Search for current, authoritative information, answer the question directly and keep the answer grounded in what you found."
}

func chitChatSystemPrompt() string {
	return "You are a friendly assistant for a code and document workspace. Keep small talk short and natural, and offer help with the user's files when it fits."
}

func codeGenerationSystemPrompt() string {
	return `You edit exactly one file from the candidate files below to satisfy the user's request.
Reply with a single JSON object and nothing else:
{"thought": "<one or two sentences explaining the change>", "filePath": "<path of the file, copied exactly from the candidates>", "newContent": "<the complete new content of the file>"}
If none of the candidates can satisfy the request, reply with {"error": "<short explanation>"}.`
}

func buildContextPrompt(results []corpus.FusedResult, insights map[string]retrieval.Insight) string {
	var sb strings.Builder
	for idx, result := range results {
		doc := result.Document
		sb.WriteString(fmt.Sprintf("Source %d: %s (%s)\n", idx+1, doc.DisplayName, doc.FullPath()))
		if insight, ok := insights[doc.ID]; ok {
			writeInsight(&sb, insight)
		}
		sb.WriteString(strings.TrimSpace(result.Snippet))
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func writeInsight(sb *strings.Builder, insight retrieval.Insight) {
	if insight.ChunkCount > 0 {
		sb.WriteString(fmt.Sprintf("Chunks indexed: %d\n", insight.ChunkCount))
	}
	if len(insight.Sections) > 0 {
		parts := make([]string, 0, len(insight.Sections))
		for _, section := range insight.Sections {
			parts = append(parts, fmt.Sprintf("%s (level %d)", section.Title, section.Level))
		}
		sb.WriteString("Sections: " + strings.Join(parts, "; ") + "\n")
	}
	if len(insight.Topics) > 0 {
		sb.WriteString("Topics: " + strings.Join(insight.Topics, ", ") + "\n")
	}
	if len(insight.Folders) > 0 {
		sb.WriteString("Folders: " + strings.Join(insight.Folders, ", ") + "\n")
	}
	if len(insight.RelatedDocuments) > 0 {
		sb.WriteString("Related documents:\n")
		for _, related := range insight.RelatedDocuments {
			sb.WriteString(fmt.Sprintf("- %s (%s)\n", related.Title, related.Path))
		}
	}
}

func formatUserPrompt(question, context string) string {
	var sb strings.Builder
	sb.WriteString("Question:\n")
	sb.WriteString(question)
	if strings.TrimSpace(context) != "" {
		sb.WriteString("\nContext (optional, may be incomplete):\n")
		sb.WriteString(context)
	}
	sb.WriteString("\nProvide your answer in markdown. Begin with the direct answer. If you reference the context, cite the relevant Source numbers. Conclude with a short 'Context Notes' section only when you actually used the context.")
	return sb.String()
}

type candidateFile struct {
	Document corpus.Document
	Content  string
}

func formatCodeGenerationPrompt(request string, candidates []candidateFile) string {
	var sb strings.Builder
	sb.WriteString("Request:\n")
	sb.WriteString(request)
	sb.WriteString("\n\nCandidate files:\n")
	for _, c := range candidates {
		sb.WriteString(fmt.Sprintf("--- filePath: %s\n", c.Document.FullPath()))
		sb.WriteString(c.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
