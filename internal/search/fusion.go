package search

import (
	"fmt"
	"sort"
	"strings"

	"github.com/quarrylabs/quarry/internal/query"
)

// DefaultRRFConstant is the standard RRF smoothing parameter. k=60 is
// empirically validated across domains (used by Azure AI Search,
// OpenSearch, and others).
const DefaultRRFConstant = 60

// RRFFusion combines up to four ranked lists using weighted Reciprocal
// Rank Fusion.
//
// Algorithm: score(d) = Σ weight_i / (k + rank_i)
//
// Where rank_i is d's 1-indexed position in list i. A strategy that did not
// retrieve d contributes nothing; there is no missing-rank penalty term, so
// a document's score depends only on the lists it actually appears in.
type RRFFusion struct {
	K int // Smoothing constant (default: 60)
}

// NewRRFFusion creates an RRF fusion instance with default k=60.
func NewRRFFusion() *RRFFusion {
	return &RRFFusion{K: DefaultRRFConstant}
}

// NewRRFFusionWithK creates an RRF fusion with a custom k. Non-positive k
// falls back to the default.
func NewRRFFusionWithK(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse merges strategy result lists into a single ranking, truncated to
// maxResults (non-positive means unlimited). Truncation happens here, at
// the fused ranking, so downstream filters can only narrow the top-N and
// never promote lower-ranked results into it. Lists are processed in
// canonical strategy order so ties resolve identically across runs
// regardless of goroutine completion order.
//
// Results sort by: FusedScore (desc) -> Diversity (desc) -> ID (asc).
// A score tie prefers the result corroborated by more strategies, then the
// smaller ID.
func (f *RRFFusion) Fuse(lists []*StrategyResult, weights query.SearchWeights, maxResults int) []*FusedResult {
	byStrategy := make(map[string]*StrategyResult, len(lists))
	for _, list := range lists {
		if list != nil {
			byStrategy[list.Strategy] = list
		}
	}

	fused := make(map[string]*FusedResult)
	for _, strategy := range query.Strategies {
		list, ok := byStrategy[strategy]
		if !ok || list.Err != nil {
			continue
		}
		weight := weights.For(strategy)
		for rank, hit := range list.Hits {
			r, exists := fused[hit.ID]
			if !exists {
				r = &FusedResult{
					ID:      hit.ID,
					Sources: make(map[string]int, 2),
				}
				fused[hit.ID] = r
			}
			r.Sources[strategy] = rank + 1
			r.FusedScore += weight / float64(f.K+rank+1)
		}
	}

	results := make([]*FusedResult, 0, len(fused))
	for _, r := range fused {
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		if a.Diversity() != b.Diversity() {
			return a.Diversity() > b.Diversity()
		}
		return a.ID < b.ID
	})

	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}

// ExplainRanking renders a per-strategy breakdown of a fused score. It is a
// pure function of the result, weights, and k.
func ExplainRanking(r *FusedResult, weights query.SearchWeights, k int) string {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "score %.5f from %d source(s):", r.FusedScore, r.Diversity())
	for _, strategy := range query.Strategies {
		rank, ok := r.Sources[strategy]
		if !ok {
			continue
		}
		weight := weights.For(strategy)
		fmt.Fprintf(&sb, " %s rank %d contributes %.2f/(%d+%d)=%.5f;",
			strategy, rank, weight, k, rank, weight/float64(k+rank))
	}
	return strings.TrimSuffix(sb.String(), ";")
}

// FilterByDiversity keeps results retrieved by at least minDiversity
// strategies. Values below 2 keep everything.
func FilterByDiversity(results []*FusedResult, minDiversity int) []*FusedResult {
	if minDiversity <= 1 {
		return results
	}
	filtered := make([]*FusedResult, 0, len(results))
	for _, r := range results {
		if r.Diversity() >= minDiversity {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// CalculateCoverage returns, for every strategy, the fraction of results it
// contributed to. An empty result set yields 0 for every strategy, not NaN.
func CalculateCoverage(results []*FusedResult) map[string]float64 {
	coverage := make(map[string]float64, len(query.Strategies))
	for _, strategy := range query.Strategies {
		coverage[strategy] = 0
	}
	if len(results) == 0 {
		return coverage
	}

	for _, r := range results {
		for strategy := range r.Sources {
			coverage[strategy]++
		}
	}
	for strategy := range coverage {
		coverage[strategy] /= float64(len(results))
	}
	return coverage
}
