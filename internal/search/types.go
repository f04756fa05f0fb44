// Package search orchestrates hybrid retrieval: a classified query fans out
// to dense, sparse, pattern, and graph strategies in parallel, and the
// ranked lists are fused with weighted Reciprocal Rank Fusion (RRF).
package search

import (
	"time"

	"github.com/quarrylabs/quarry/internal/query"
	"github.com/quarrylabs/quarry/internal/store"
)

// StrategyHit is one entry in a strategy's ranked list. Score is the
// strategy's native score, preserved for explanations only; fusion uses
// rank positions, never native scores.
type StrategyHit struct {
	ID    string  // Result identity (chunk ID, or "entity:<id>" for graph hits)
	Score float64 // Native score in the strategy's own scale
}

// StrategyResult is the outcome of one strategy's retrieval.
type StrategyResult struct {
	Strategy string
	Hits     []StrategyHit
	Err      error // Non-nil when the strategy degraded
	Duration time.Duration

	// Terms maps hit IDs to the terms that matched them, for strategies
	// that report them (sparse). Nil otherwise.
	Terms map[string][]string
}

// FusedResult is a single result after RRF fusion.
type FusedResult struct {
	// ID is the result identity. Chunk hits use the chunk ID; graph hits
	// use "entity:<id>" so an entity and a chunk never collide.
	ID string `json:"id"`

	// Repo is the owning repository.
	Repo string `json:"repo"`

	// Content is the chunk text, or a rendered summary for entity hits.
	Content string `json:"content"`

	// FusedScore is the raw weighted RRF score.
	FusedScore float64 `json:"fused_score"`

	// Sources maps each contributing strategy to this result's 1-indexed
	// rank in that strategy's list.
	Sources map[string]int `json:"sources"`

	// MatchedTerms are the sparse strategy's matched terms, when present.
	MatchedTerms []string `json:"matched_terms,omitempty"`

	// Metadata carries chunk metadata for chunk hits.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Explanation is a human-readable score breakdown, populated only when
	// the caller asked for it.
	Explanation string `json:"explanation,omitempty"`
}

// Diversity returns the number of strategies that retrieved this result.
func (r *FusedResult) Diversity() int {
	return len(r.Sources)
}

// StageTimings records wall-clock duration per pipeline stage.
type StageTimings struct {
	Classify   time.Duration `json:"classify"`
	Retrieve   time.Duration `json:"retrieve"`
	Fuse       time.Duration `json:"fuse"`
	PostFilter time.Duration `json:"post_filter"`
	Total      time.Duration `json:"total"`
}

// Metrics describes how a search executed.
type Metrics struct {
	// Timings holds per-stage durations.
	Timings StageTimings `json:"timings"`

	// StrategyHits counts raw hits per dispatched strategy.
	StrategyHits map[string]int `json:"strategy_hits"`

	// StrategyDurations holds per-strategy retrieval times.
	StrategyDurations map[string]time.Duration `json:"strategy_durations"`

	// Skipped lists strategies not dispatched because their weight fell
	// below the dispatch threshold.
	Skipped []string `json:"skipped,omitempty"`

	// Degraded maps failed strategies to their error messages. A search
	// degrades rather than fails while at least one strategy succeeds.
	Degraded map[string]string `json:"degraded,omitempty"`
}

// Response is the complete result of a hybrid search.
type Response struct {
	// Query is the original query text.
	Query string `json:"query"`

	// Analysis is the classification that drove strategy weighting.
	Analysis query.Analysis `json:"analysis"`

	// Results are the fused, filtered, ranked results.
	Results []*FusedResult `json:"results"`

	// Coverage maps each strategy to the fraction of returned results it
	// contributed to, in [0,1].
	Coverage map[string]float64 `json:"coverage"`

	// Metrics describes execution.
	Metrics Metrics `json:"metrics"`
}

// EngineStats summarizes index state across all stores.
type EngineStats struct {
	ChunkCount    int               `json:"chunk_count"`
	VectorCount   int               `json:"vector_count"`
	SparseStats   *store.IndexStats `json:"sparse_stats"`
	PatternTerms  int               `json:"pattern_terms"`
	EntityCount   int               `json:"entity_count"`
	RelationCount int               `json:"relation_count"`
	EmbedderModel string            `json:"embedder_model"`
	Dimensions    int               `json:"dimensions"`
}
