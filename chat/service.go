package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fabfab/codemind/corpus"
	"github.com/fabfab/codemind/diff"
	"github.com/fabfab/codemind/events"
	"github.com/fabfab/codemind/intent"
	"github.com/fabfab/codemind/llm"
	"github.com/fabfab/codemind/retrieval"
)

const (
	historyLimit        = 20
	textAttachmentLimit = 20000
)

// InsightProvider adds graph knowledge about retrieved documents to the prompt.
type InsightProvider interface {
	Insights(ctx context.Context, docIDs []string) (map[string]retrieval.Insight, error)
}

type Service struct {
	model      llm.StreamClient
	classifier intent.Classifier
	sources    *retrieval.FanOut
	insights   InsightProvider
	catalog    llm.Catalog
	publisher  events.Publisher
	logger     *zap.Logger
}

type Options struct {
	Model      llm.StreamClient
	Classifier intent.Classifier
	Sources    *retrieval.FanOut
	Insights   InsightProvider
	Catalog    llm.Catalog
	Publisher  events.Publisher
	Logger     *zap.Logger
}

func NewService(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Sources == nil {
		opts.Sources = retrieval.NewFanOut(retrieval.Options{Logger: opts.Logger})
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}

	return &Service{
		model:      opts.Model,
		classifier: opts.Classifier,
		sources:    opts.Sources,
		insights:   opts.Insights,
		catalog:    opts.Catalog,
		publisher:  opts.Publisher,
		logger:     opts.Logger,
	}
}

// Request is one user turn.
type Request struct {
	Query      string
	Attachment *Attachment
	ModelID    string
	Location   *llm.LatLng
}

// Update is a message snapshot emitted while a query is answered.
type Update struct {
	Index   int     `json:"index"`
	Message Message `json:"message"`
}

// Reply describes how a query was handled.
type Reply struct {
	Decision   intent.Decision
	Advisories []retrieval.Advisory
}

type turn struct {
	sess     *Session
	req      Request
	model    llm.ModelDefinition
	sources  *retrieval.FanOut
	onUpdate func(Update)
	reply    *Reply
}

func (t *turn) emit(index int, msg Message) {
	if t.onUpdate != nil {
		t.onUpdate(Update{Index: index, Message: msg.Clone()})
	}
}

// Submit answers a query within sess. Only one query per session runs at a
// time; a concurrent call fails with ErrSessionBusy. Handler failures are
// reported as assistant messages, not as errors.
func (s *Service) Submit(ctx context.Context, sess *Session, req Request, onUpdate func(Update)) (Reply, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return Reply{}, ErrEmptyQuery
	}
	if err := sess.begin(); err != nil {
		return Reply{}, err
	}
	defer sess.end()

	reply := Reply{}
	t := &turn{
		sess:     sess,
		req:      req,
		model:    s.catalog.Resolve(req.ModelID),
		sources:  s.sources.With(retrieval.NewLocalSource(sess.Local())),
		onUpdate: onUpdate,
		reply:    &reply,
	}

	index, userMsg := sess.appendMessage(Message{
		Role:       RoleUser,
		Content:    req.Query,
		Attachment: req.Attachment,
		Complete:   true,
	})
	t.emit(index, userMsg)

	in := intent.Input{
		Grounding:             sess.Grounding(),
		HasAttachment:         req.Attachment != nil,
		ImageAttachment:       req.Attachment.IsImage(),
		CodeGenerationEnabled: sess.CodeGenerationEnabled(),
	}
	reply.Decision = intent.Route(ctx, s.classifier, req.Query, t.model.Model, in, s.logger)

	var err error
	switch reply.Decision.Intent {
	case intent.GenerateCode:
		err = s.generateCode(ctx, t)
	case intent.ChitChat:
		err = s.chitChat(ctx, t)
	case intent.QueryDocuments, intent.Unknown:
		err = s.queryDocuments(ctx, t)
	}

	if err != nil {
		s.logger.Warn("query failed", zap.String("session", sess.ID()), zap.Error(err))
		index, msg := sess.appendMessage(Message{
			Role:     RoleModel,
			Content:  streamErrorText(err),
			ModelID:  t.model.ID,
			Complete: true,
		})
		t.emit(index, msg)
	}
	return reply, nil
}

func (s *Service) startModelMessage(t *turn, responseType ResponseType, content string) (int, Message) {
	index, msg := t.sess.appendMessage(Message{
		Role:         RoleModel,
		Content:      content,
		ResponseType: responseType,
		ModelID:      t.model.ID,
	})
	t.emit(index, msg)
	return index, msg
}

func (s *Service) retrieve(ctx context.Context, t *turn) retrieval.Outcome {
	grounding := t.sess.Grounding()
	outcome := t.sources.Retrieve(ctx, t.req.Query, &grounding)
	for _, advisory := range outcome.Advisories {
		t.sess.disableSource(advisory.Source)
	}
	t.reply.Advisories = append(t.reply.Advisories, outcome.Advisories...)
	return outcome
}

func (s *Service) queryDocuments(ctx context.Context, t *turn) error {
	index, msg := s.startModelMessage(t, ResponseRAG, "")
	grounding := t.sess.Grounding()

	var fused []corpus.FusedResult
	if grounding.UseCorpus || grounding.UseLocal || grounding.UseGraph {
		fused = s.retrieve(ctx, t).Fused
		grounding = t.sess.Grounding()
	}

	if len(fused) == 0 && grounding.UseWebSearch {
		s.logger.Debug("no documents retrieved, answering from web search")
		msg.ResponseType = ResponseWebSearch
		t.sess.setMessage(index, msg)
		t.emit(index, msg)

		return s.stream(ctx, t, index, msg, llm.StreamRequest{
			Model:     t.model.Model,
			Messages:  s.history(t, webSystemPrompt(), t.req.Query),
			WebSearch: true,
			Maps:      grounding.UseMaps,
			Location:  t.req.Location,
		})
	}

	msg.Sources = fused
	t.sess.setMessage(index, msg)
	t.emit(index, msg)

	var contextPrompt string
	if len(fused) > 0 {
		contextPrompt = buildContextPrompt(fused, s.documentInsights(ctx, fused))
	}

	return s.stream(ctx, t, index, msg, llm.StreamRequest{
		Model:     t.model.Model,
		Messages:  s.history(t, ragSystemPrompt(), formatUserPrompt(t.req.Query, contextPrompt)),
		WebSearch: grounding.UseWebSearch,
		Maps:      grounding.UseMaps,
		Location:  t.req.Location,
	})
}

func (s *Service) documentInsights(ctx context.Context, fused []corpus.FusedResult) map[string]retrieval.Insight {
	if s.insights == nil {
		return nil
	}
	ids := make([]string, 0, len(fused))
	for _, r := range fused {
		if r.Document.Origin != corpus.SourceLocal {
			ids = append(ids, r.Document.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	insights, err := s.insights.Insights(ctx, ids)
	if err != nil {
		s.logger.Warn("graph insights failed", zap.Error(err))
		return nil
	}
	return insights
}

func (s *Service) chitChat(ctx context.Context, t *turn) error {
	index, msg := s.startModelMessage(t, ResponseChitChat, "")
	return s.stream(ctx, t, index, msg, llm.StreamRequest{
		Model:    t.model.Model,
		Messages: s.history(t, chitChatSystemPrompt(), t.req.Query),
	})
}

func (s *Service) generateCode(ctx context.Context, t *turn) error {
	index, msg := s.startModelMessage(t, ResponseCodeGeneration, thinkingText)

	finish := func(content string, suggestion *CodeSuggestion) error {
		msg.Content = content
		msg.Suggestion = suggestion
		msg.Complete = true
		t.sess.setMessage(index, msg)
		t.emit(index, msg)
		return nil
	}

	editable := editableResults(s.retrieve(ctx, t).Fused)
	if len(editable) == 0 {
		return finish(noEditableText, nil)
	}

	candidates := make([]candidateFile, 0, maxCodeCandidates)
	for _, r := range editable {
		if len(candidates) == maxCodeCandidates {
			break
		}
		content, err := t.sources.FetchContent(ctx, r.Document)
		if err != nil {
			s.logger.Debug("using snippet for candidate file", zap.String("document", r.Document.ID), zap.Error(err))
			content = r.Snippet
		}
		candidates = append(candidates, candidateFile{Document: r.Document, Content: content})
	}

	if s.model == nil {
		return fmt.Errorf("llm client is not configured")
	}
	stream, err := s.model.Stream(ctx, llm.StreamRequest{
		Model: t.model.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: codeGenerationSystemPrompt()},
			{Role: llm.RoleUser, Content: formatCodeGenerationPrompt(t.req.Query, candidates)},
		},
		JSON: true,
	})
	if err != nil {
		finish(msg.Content, nil)
		return fmt.Errorf("start code generation: %w", err)
	}
	defer stream.Close()

	var reply strings.Builder
	for {
		inc, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			finish(msg.Content, nil)
			return fmt.Errorf("receive code generation: %w", err)
		}
		reply.WriteString(inc.Text)
	}

	gen, err := parseGeneration(reply.String())
	if err != nil {
		s.logger.Info("code generation produced no edit", zap.Error(err))
		if gen.Error != "" {
			return finish(gen.Error, nil)
		}
		return finish(parseFailureText, nil)
	}

	docs, advisories := t.sources.ListAll(ctx, t.sess.Grounding())
	for _, advisory := range advisories {
		s.logger.Warn("list documents failed", zap.String("source", string(advisory.Source)), zap.Error(advisory.Err))
	}
	target, ok := resolveTarget(docs, gen.FilePath)
	if !ok {
		s.logger.Info("generated edit names unknown file", zap.String("path", gen.FilePath), zap.Error(ErrTargetNotFound))
		return finish(targetNotFoundText(gen.FilePath), nil)
	}

	original, err := t.sources.FetchContent(ctx, target)
	if err != nil {
		s.logger.Warn("fetch original content failed", zap.String("document", target.ID), zap.Error(err))
		return finish(fmt.Sprintf("Could not fetch original content for %s.", target.DisplayName), nil)
	}

	return finish(suggestionText(target), &CodeSuggestion{
		Document:         target,
		Rationale:        gen.Thought,
		OriginalContent:  original,
		SuggestedContent: gen.NewContent,
		Status:           StatusPending,
	})
}

// stream feeds the model stream into the message at index. On failure the
// partial message is kept, marked complete, and the error returned.
func (s *Service) stream(ctx context.Context, t *turn, index int, base Message, req llm.StreamRequest) error {
	asm := NewAssembler(base)
	finish := func() {
		msg := asm.Finish()
		t.sess.setMessage(index, msg)
		t.emit(index, msg)
	}

	if s.model == nil {
		finish()
		return fmt.Errorf("llm client is not configured")
	}

	stream, err := s.model.Stream(ctx, req)
	if err != nil {
		finish()
		return fmt.Errorf("start stream: %w", err)
	}
	defer stream.Close()

	for {
		inc, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			finish()
			return nil
		}
		if err != nil {
			finish()
			return err
		}
		msg := asm.Apply(inc)
		t.sess.setMessage(index, msg)
		t.emit(index, msg)
	}
}

// history converts the conversation into model messages. The current user
// turn is replaced by prompt and carries the attachment.
func (s *Service) history(t *turn, system, prompt string) []llm.Message {
	msgs := t.sess.Messages()
	// Drop the current user turn and the model placeholder.
	var prior []Message
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			prior = msgs[:i]
			break
		}
	}
	if len(prior) > historyLimit {
		prior = prior[len(prior)-historyLimit:]
	}

	out := make([]llm.Message, 0, len(prior)+2)
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, msg := range prior {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		role := llm.RoleAssistant
		if msg.Role == RoleUser {
			role = llm.RoleUser
		}
		out = append(out, llm.Message{Role: role, Content: msg.Content})
	}

	current := llm.Message{Role: llm.RoleUser, Content: prompt}
	if a := t.req.Attachment; a != nil {
		if a.IsImage() {
			current.Image = &llm.Image{MIMEType: a.Type, Data: a.Content}
		} else if text, ok := attachmentText(a); ok {
			current.Content += fmt.Sprintf("\n\nAttached file %s:\n%s", a.Name, text)
		}
	}
	return append(out, current)
}

func attachmentText(a *Attachment) (string, bool) {
	data, err := base64.StdEncoding.DecodeString(a.Content)
	if err != nil || !utf8.Valid(data) {
		return "", false
	}
	return corpus.CutUTF8(string(data), textAttachmentLimit), true
}

// ResolveSuggestion accepts or rejects the pending suggestion of the message
// at index and appends the follow-up message. A suggestion resolves once.
func (s *Service) ResolveSuggestion(ctx context.Context, sess *Session, index int, action Action) (Message, error) {
	if action != Accept && action != Reject {
		return Message{}, fmt.Errorf("unknown suggestion action %q", action)
	}

	sess.mu.Lock()
	if sess.busy {
		sess.mu.Unlock()
		return Message{}, ErrSessionBusy
	}
	if index < 0 || index >= len(sess.messages) || sess.messages[index].Suggestion == nil {
		sess.mu.Unlock()
		return Message{}, ErrNoSuggestion
	}
	suggestion := sess.messages[index].Suggestion
	if suggestion.Status != StatusPending {
		sess.mu.Unlock()
		return Message{}, ErrSuggestionResolved
	}
	suggestion.Status = SuggestionStatus(action)
	resolved := *suggestion

	followUp := Message{Role: RoleModel, Complete: true}
	applied := false
	if action == Accept {
		content := diff.Suggested(diff.Unified(resolved.OriginalContent, resolved.SuggestedContent))
		if sess.local.Update(resolved.Document.ID, content) {
			applied = true
			record, ok := sess.edits[resolved.Document.ID]
			if !ok {
				record = EditedDocumentRecord{Document: resolved.Document, OriginalContent: resolved.OriginalContent}
				sess.editOrder = append(sess.editOrder, resolved.Document.ID)
			}
			record.CurrentContent = content
			sess.edits[resolved.Document.ID] = record

			doc := resolved.Document
			followUp.Content = appliedText(doc)
			followUp.EditedDocument = &doc
		} else {
			followUp.Content = applyFailedText(resolved.Document)
		}
	} else {
		followUp.Content = discardedText
	}
	_, followUp = sess.appendLocked(followUp)
	sess.mu.Unlock()

	event := events.SuggestionResolved{
		SessionID:    sess.ID(),
		MessageIndex: index,
		DocumentID:   resolved.Document.ID,
		Path:         resolved.Document.FullPath(),
		Status:       string(action),
		Applied:      applied,
		ResolvedAt:   time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish suggestion event failed", zap.Error(err))
	}

	return followUp, nil
}
