package search

import (
	"time"

	"github.com/quarrylabs/quarry/internal/query"
)

// Engine limits and dispatch thresholds.
const (
	// DefaultLimit is the default number of results returned.
	DefaultLimit = 10

	// MaxLimit caps the number of results a caller may request.
	MaxLimit = 100

	// MinStrategyWeight is the dispatch threshold: strategies weighted
	// below this are skipped entirely.
	MinStrategyWeight = 0.05

	// DefaultSearchTimeout bounds a whole search call.
	DefaultSearchTimeout = 5 * time.Second

	// candidateMultiplier over-fetches per strategy so fusion has enough
	// overlap to rank well before truncating to the requested limit.
	candidateMultiplier = 3
)

// Options configures a single search call.
type Options struct {
	// Limit is the maximum number of results (default 10, capped at 100).
	Limit int

	// Repos restricts results to these repositories. Empty means all.
	Repos []string

	// ForceType bypasses classification with a fixed query type.
	ForceType query.QueryType

	// ForceWeights overrides the classified weights entirely. Non-nil
	// values are normalized before use.
	ForceWeights *query.SearchWeights

	// AdjustWeights merges per-strategy overrides into the classified
	// weights, then renormalizes. Ignored when ForceWeights is set.
	AdjustWeights *query.PartialWeights

	// MinDiversity drops results retrieved by fewer than this many
	// strategies. 0 or 1 keeps everything.
	MinDiversity int

	// Threshold drops results whose fused score falls below it.
	Threshold float64

	// PatternThreshold is the pattern strategy's minimum similarity.
	// Non-positive selects the store default of 0.7.
	PatternThreshold float64

	// RRFConstant overrides the fusion smoothing constant k (default 60).
	RRFConstant int

	// Explain attaches a score breakdown to every result.
	Explain bool

	// UseFallback forces heuristic classification even when a model is
	// configured.
	UseFallback bool
}

// normalized applies defaults and caps.
func (o Options) normalized() Options {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Limit > MaxLimit {
		o.Limit = MaxLimit
	}
	if o.RRFConstant <= 0 {
		o.RRFConstant = DefaultRRFConstant
	}
	return o
}

// EngineConfig configures the search engine.
type EngineConfig struct {
	// RRFConstant is the default fusion smoothing constant k.
	RRFConstant int

	// SearchTimeout bounds a whole search call.
	SearchTimeout time.Duration
}

// DefaultEngineConfig returns sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		RRFConstant:   DefaultRRFConstant,
		SearchTimeout: DefaultSearchTimeout,
	}
}
