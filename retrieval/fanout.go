package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/fabfab/codemind/corpus"
	"github.com/fabfab/codemind/fusion"
)

// DefaultMaxResults caps the fused list handed to the model.
const DefaultMaxResults = 10

var sourceOrder = map[corpus.SourceKind]int{
	corpus.SourceCorpus: 0,
	corpus.SourceLocal:  1,
	corpus.SourceGraph:  2,
}

type Options struct {
	K          int
	MaxResults int
	Logger     *zap.Logger
}

// FanOut queries every enabled source at once and waits for all of them.
type FanOut struct {
	sources    []Source
	k          int
	maxResults int
	logger     *zap.Logger
}

// Outcome is the result of one fan-out. Lists holds one entry per queried
// source in source order; a failed source contributes an empty list.
type Outcome struct {
	Lists      []corpus.RankedList
	Fused      []corpus.FusedResult
	Advisories []Advisory
}

func NewFanOut(opts Options, sources ...Source) *FanOut {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.K <= 0 {
		opts.K = fusion.DefaultK
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}

	ordered := make([]Source, 0, len(sources))
	for _, src := range sources {
		if src != nil {
			ordered = append(ordered, src)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return rank(ordered[i].Kind()) < rank(ordered[j].Kind())
	})

	return &FanOut{
		sources:    ordered,
		k:          opts.K,
		maxResults: opts.MaxResults,
		logger:     opts.Logger,
	}
}

func rank(kind corpus.SourceKind) int {
	if r, ok := sourceOrder[kind]; ok {
		return r
	}
	return len(sourceOrder)
}

// With returns a fan-out over the same sources plus extra ones.
func (f *FanOut) With(extra ...Source) *FanOut {
	all := make([]Source, 0, len(f.sources)+len(extra))
	all = append(all, f.sources...)
	all = append(all, extra...)
	return NewFanOut(Options{K: f.k, MaxResults: f.maxResults, Logger: f.logger}, all...)
}

// Retrieve runs every source enabled in grounding concurrently. A source that
// fails contributes nothing, yields an Advisory, and has its toggle switched
// off in grounding so later queries skip it.
func (f *FanOut) Retrieve(ctx context.Context, query string, grounding *corpus.Grounding) Outcome {
	if grounding == nil {
		return Outcome{}
	}

	active := make([]Source, 0, len(f.sources))
	for _, src := range f.sources {
		if grounding.Enabled(src.Kind()) {
			active = append(active, src)
		}
	}
	if len(active) == 0 {
		return Outcome{}
	}

	lists := make([]corpus.RankedList, len(active))
	errs := make([]error, len(active))

	var wg sync.WaitGroup
	for i, src := range active {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			results, err := src.Search(ctx, query)
			if err != nil {
				errs[i] = err
				return
			}
			lists[i] = results
		}(i, src)
	}
	wg.Wait()

	var advisories []Advisory
	for i, src := range active {
		if errs[i] == nil {
			continue
		}
		f.logger.Warn("retrieval source failed, disabling",
			zap.String("source", string(src.Kind())),
			zap.Error(errs[i]),
		)
		grounding.Disable(src.Kind())
		lists[i] = corpus.RankedList{}
		advisories = append(advisories, Advisory{Source: src.Kind(), Err: errs[i]})
	}

	fused := fusion.Top(fusion.Fuse(lists, f.k), f.maxResults)
	f.logger.Debug("retrieval complete",
		zap.Int("sources", len(active)),
		zap.Int("results", len(fused)),
		zap.Int("advisories", len(advisories)),
	)

	return Outcome{Lists: lists, Fused: fused, Advisories: advisories}
}

// ListAll merges the documents of every enabled source. Duplicate ids keep
// the first document seen in source order. Failing sources are reported but
// not disabled.
func (f *FanOut) ListAll(ctx context.Context, grounding corpus.Grounding) ([]corpus.Document, []Advisory) {
	seen := make(map[string]struct{})
	var (
		docs       []corpus.Document
		advisories []Advisory
	)

	for _, src := range f.sources {
		if !grounding.Enabled(src.Kind()) {
			continue
		}
		listed, err := src.ListAll(ctx)
		if err != nil {
			f.logger.Warn("list documents failed", zap.String("source", string(src.Kind())), zap.Error(err))
			advisories = append(advisories, Advisory{Source: src.Kind(), Err: err})
			continue
		}
		for _, doc := range listed {
			if _, ok := seen[doc.ID]; ok {
				continue
			}
			seen[doc.ID] = struct{}{}
			if doc.Origin == "" {
				doc.Origin = src.Kind()
			}
			docs = append(docs, doc)
		}
	}
	return docs, advisories
}

// FetchContent loads the full text of doc from the source that produced it.
func (f *FanOut) FetchContent(ctx context.Context, doc corpus.Document) (string, error) {
	for _, src := range f.sources {
		if src.Kind() != doc.Origin {
			continue
		}
		content, err := src.FetchContent(ctx, doc)
		if err != nil {
			return "", fmt.Errorf("fetch %s from %s: %w", doc.ID, src.Kind(), err)
		}
		return content, nil
	}
	return "", fmt.Errorf("fetch %s: %w", doc.ID, ErrNoSource)
}

// Source returns the registered source of the given kind.
func (f *FanOut) Source(kind corpus.SourceKind) (Source, bool) {
	for _, src := range f.sources {
		if src.Kind() == kind {
			return src, true
		}
	}
	return nil, false
}

// IsNotFound reports whether err means the document does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrContentNotFound)
}
