// Package fusion merges independently ranked result lists with Reciprocal Rank Fusion.
package fusion

import (
	"sort"

	"github.com/fabfab/codemind/corpus"
)

// DefaultK is the usual RRF damping constant.
const DefaultK = 60

// Fuse combines ranked lists into a single ranking. Each result at 1-based rank r
// contributes 1/(k+r) to its document's score; a document's payload is taken
// from its first occurrence. Equal scores keep first-appearance order.
func Fuse(lists []corpus.RankedList, k int) []corpus.FusedResult {
	if k <= 0 {
		k = DefaultK
	}

	index := make(map[string]int)
	fused := make([]corpus.FusedResult, 0)

	for _, list := range lists {
		for i, result := range list {
			contribution := 1.0 / float64(k+i+1)
			if idx, ok := index[result.Document.ID]; ok {
				fused[idx].FusedScore += contribution
				continue
			}
			index[result.Document.ID] = len(fused)
			fused = append(fused, corpus.FusedResult{Result: result, FusedScore: contribution})
		}
	}

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].FusedScore > fused[j].FusedScore
	})
	return fused
}

// Top returns at most n results.
func Top(results []corpus.FusedResult, n int) []corpus.FusedResult {
	if n <= 0 || len(results) <= n {
		return results
	}
	return results[:n]
}
