// Package intent classifies a query and picks the handler that answers it.
package intent

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fabfab/codemind/corpus"
)

type Intent int

const (
	Unknown Intent = iota
	QueryDocuments
	GenerateCode
	ChitChat
)

func (i Intent) String() string {
	switch i {
	case QueryDocuments:
		return "query_documents"
	case GenerateCode:
		return "generate_code"
	case ChitChat:
		return "chit_chat"
	default:
		return "unknown"
	}
}

// Parse maps classifier output onto an Intent. Unrecognised labels are Unknown.
func Parse(label string) Intent {
	normalized := strings.ToLower(strings.TrimSpace(label))
	normalized = strings.Trim(normalized, "\"'`.")
	switch normalized {
	case "query_documents", "query-documents", "querydocuments":
		return QueryDocuments
	case "generate_code", "generate-code", "generatecode":
		return GenerateCode
	case "chit_chat", "chit-chat", "chitchat":
		return ChitChat
	default:
		return Unknown
	}
}

// Input is the session state the router looks at.
type Input struct {
	Grounding             corpus.Grounding
	HasAttachment         bool
	ImageAttachment       bool
	CodeGenerationEnabled bool
}

// Decision is the routed intent. Classified is what the model said (Unknown
// when classification was skipped or failed).
type Decision struct {
	Intent     Intent
	Classified Intent
	Skipped    bool
}

// Classifier labels a query with one of the intent names.
type Classifier interface {
	Classify(ctx context.Context, query, model string) (string, error)
}

// Resolve applies the override rules to a classified intent. It never returns
// Unknown.
func Resolve(classified Intent, in Input) Intent {
	result := classified

	if result == GenerateCode && !in.CodeGenerationEnabled {
		result = QueryDocuments
	}
	if in.ImageAttachment {
		return QueryDocuments
	}

	switch result {
	case GenerateCode:
		return GenerateCode
	case ChitChat:
		if in.Grounding.Secondary() {
			return QueryDocuments
		}
		return ChitChat
	case QueryDocuments, Unknown:
		return QueryDocuments
	default:
		return QueryDocuments
	}
}

// ShouldClassify reports whether the classifier needs to run at all.
func ShouldClassify(in Input) bool {
	return in.Grounding.Any() || in.HasAttachment
}

// Route classifies the query when needed and resolves the final intent.
// Classifier failures count as Unknown.
func Route(ctx context.Context, classifier Classifier, query, model string, in Input, logger *zap.Logger) Decision {
	if logger == nil {
		logger = zap.NewNop()
	}

	if !ShouldClassify(in) {
		return Decision{Intent: ChitChat, Classified: Unknown, Skipped: true}
	}

	classified := Unknown
	if classifier != nil {
		label, err := classifier.Classify(ctx, query, model)
		if err != nil {
			logger.Warn("intent classification failed, defaulting to document query", zap.Error(err))
		} else {
			classified = Parse(label)
		}
	}

	resolved := Resolve(classified, in)
	logger.Debug("intent routed",
		zap.Stringer("classified", classified),
		zap.Stringer("resolved", resolved),
	)
	return Decision{Intent: resolved, Classified: classified}
}
