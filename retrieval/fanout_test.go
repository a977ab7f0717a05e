package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/codemind/corpus"
)

type stubSource struct {
	kind    corpus.SourceKind
	results corpus.RankedList
	docs    []corpus.Document
	content map[string]string
	err     error
	calls   atomic.Int32
}

func (s *stubSource) Kind() corpus.SourceKind { return s.kind }

func (s *stubSource) Search(ctx context.Context, query string) (corpus.RankedList, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func (s *stubSource) FetchContent(ctx context.Context, doc corpus.Document) (string, error) {
	content, ok := s.content[doc.ID]
	if !ok {
		return "", ErrContentNotFound
	}
	return content, nil
}

func (s *stubSource) ListAll(ctx context.Context) ([]corpus.Document, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.docs, nil
}

func result(id string, origin corpus.SourceKind) corpus.Result {
	return corpus.Result{Document: corpus.Document{ID: id, DisplayName: id + ".md", Origin: origin}}
}

func ids(results []corpus.FusedResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Document.ID
	}
	return out
}

func TestRetrieveFailingSourceIsDisabled(t *testing.T) {
	a := &stubSource{kind: corpus.SourceCorpus, results: corpus.RankedList{result("a1", corpus.SourceCorpus), result("a2", corpus.SourceCorpus)}}
	b := &stubSource{kind: corpus.SourceLocal, err: errors.New("boom")}
	fan := NewFanOut(Options{}, a, b)

	grounding := corpus.Grounding{UseCorpus: true, UseLocal: true}
	out := fan.Retrieve(context.Background(), "q", &grounding)

	assert.Equal(t, []string{"a1", "a2"}, ids(out.Fused))
	require.Len(t, out.Advisories, 1)
	assert.Equal(t, corpus.SourceLocal, out.Advisories[0].Source)
	assert.Contains(t, out.Advisories[0].Message(), "uploaded files")
	assert.True(t, grounding.UseCorpus)
	assert.False(t, grounding.UseLocal)
	require.Len(t, out.Lists, 2)
	assert.Empty(t, out.Lists[1])

	out = fan.Retrieve(context.Background(), "q", &grounding)
	assert.Empty(t, out.Advisories)
	assert.Equal(t, int32(1), b.calls.Load())
	assert.Equal(t, int32(2), a.calls.Load())
}

func TestRetrieveSkipsDisabledSources(t *testing.T) {
	a := &stubSource{kind: corpus.SourceCorpus, results: corpus.RankedList{result("a1", corpus.SourceCorpus)}}
	g := &stubSource{kind: corpus.SourceGraph, results: corpus.RankedList{result("g1", corpus.SourceGraph)}}
	fan := NewFanOut(Options{}, g, a)

	grounding := corpus.Grounding{UseGraph: true}
	out := fan.Retrieve(context.Background(), "q", &grounding)

	assert.Equal(t, []string{"g1"}, ids(out.Fused))
	assert.Equal(t, int32(0), a.calls.Load())

	none := corpus.Grounding{}
	out = fan.Retrieve(context.Background(), "q", &none)
	assert.Empty(t, out.Fused)
	assert.Nil(t, out.Lists)
}

func TestRetrieveFusesAcrossSourcesInStableOrder(t *testing.T) {
	a := &stubSource{kind: corpus.SourceCorpus, results: corpus.RankedList{result("x", corpus.SourceCorpus), result("y", corpus.SourceCorpus)}}
	g := &stubSource{kind: corpus.SourceGraph, results: corpus.RankedList{result("y", corpus.SourceGraph), result("z", corpus.SourceGraph)}}
	// Registration order must not matter: corpus lists come first.
	fan := NewFanOut(Options{}, g, a)

	grounding := corpus.Grounding{UseCorpus: true, UseGraph: true}
	out := fan.Retrieve(context.Background(), "q", &grounding)

	assert.Equal(t, []string{"y", "x", "z"}, ids(out.Fused))
	assert.Equal(t, corpus.SourceCorpus, out.Fused[0].Document.Origin)
}

func TestRetrieveCapsResults(t *testing.T) {
	var list corpus.RankedList
	for i := 0; i < 25; i++ {
		list = append(list, result(fmt.Sprintf("d%02d", i), corpus.SourceCorpus))
	}
	fan := NewFanOut(Options{}, &stubSource{kind: corpus.SourceCorpus, results: list})

	grounding := corpus.DefaultGrounding()
	out := fan.Retrieve(context.Background(), "q", &grounding)
	require.Len(t, out.Fused, DefaultMaxResults)
	assert.Equal(t, "d00", out.Fused[0].Document.ID)

	small := NewFanOut(Options{MaxResults: 3}, &stubSource{kind: corpus.SourceCorpus, results: list})
	out = small.Retrieve(context.Background(), "q", &grounding)
	assert.Len(t, out.Fused, 3)
}

func TestRetrieveAllSourcesFailing(t *testing.T) {
	fan := NewFanOut(Options{},
		&stubSource{kind: corpus.SourceCorpus, err: errors.New("down")},
		&stubSource{kind: corpus.SourceLocal, err: errors.New("down")},
	)
	grounding := corpus.Grounding{UseCorpus: true, UseLocal: true}
	out := fan.Retrieve(context.Background(), "q", &grounding)

	assert.Empty(t, out.Fused)
	assert.Len(t, out.Advisories, 2)
	assert.False(t, grounding.Any())
}

func TestListAllDeduplicatesFirstWins(t *testing.T) {
	a := &stubSource{kind: corpus.SourceCorpus, docs: []corpus.Document{{ID: "1", DisplayName: "a.go"}, {ID: "2", DisplayName: "b.go"}}}
	g := &stubSource{kind: corpus.SourceGraph, docs: []corpus.Document{{ID: "2", DisplayName: "other.go"}, {ID: "3", DisplayName: "c.go"}}}
	broken := &stubSource{kind: corpus.SourceLocal, err: errors.New("nope")}
	fan := NewFanOut(Options{}, g, a, broken)

	docs, advisories := fan.ListAll(context.Background(), corpus.Grounding{UseCorpus: true, UseLocal: true, UseGraph: true})
	require.Len(t, docs, 3)
	assert.Equal(t, "b.go", docs[1].DisplayName)
	assert.Equal(t, corpus.SourceCorpus, docs[1].Origin)
	assert.Equal(t, corpus.SourceGraph, docs[2].Origin)
	require.Len(t, advisories, 1)
	assert.Equal(t, corpus.SourceLocal, advisories[0].Source)
}

func TestFetchContentDispatchesOnOrigin(t *testing.T) {
	a := &stubSource{kind: corpus.SourceCorpus, content: map[string]string{"1": "corpus text"}}
	fan := NewFanOut(Options{}, a)

	content, err := fan.FetchContent(context.Background(), corpus.Document{ID: "1", Origin: corpus.SourceCorpus})
	require.NoError(t, err)
	assert.Equal(t, "corpus text", content)

	_, err = fan.FetchContent(context.Background(), corpus.Document{ID: "2", Origin: corpus.SourceCorpus})
	assert.True(t, IsNotFound(err))

	_, err = fan.FetchContent(context.Background(), corpus.Document{ID: "1", Origin: corpus.SourceLocal})
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestWithAddsSessionSources(t *testing.T) {
	base := NewFanOut(Options{MaxResults: 5}, &stubSource{kind: corpus.SourceCorpus})
	store := corpus.NewLocalStore([]corpus.Entry{{Document: corpus.Document{ID: "l1", DisplayName: "notes.md"}, Content: "alpha alpha"}})

	fan := base.With(NewLocalSource(store))
	src, ok := fan.Source(corpus.SourceLocal)
	require.True(t, ok)
	assert.Equal(t, corpus.SourceLocal, src.Kind())

	_, ok = base.Source(corpus.SourceLocal)
	assert.False(t, ok)

	grounding := corpus.Grounding{UseLocal: true}
	out := fan.Retrieve(context.Background(), "alpha", &grounding)
	assert.Equal(t, []string{"l1"}, ids(out.Fused))

	content, err := fan.FetchContent(context.Background(), out.Fused[0].Document)
	require.NoError(t, err)
	assert.Equal(t, "alpha alpha", content)
}
