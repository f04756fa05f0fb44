// Package query classifies free-text search queries into a query type and a
// four-way strategy weight vector. Classification tries a model-backed path
// first (when configured) and always has a deterministic heuristic fallback,
// so a search call can never fail on classification.
package query

import "math"

// QueryType is the classification category for a search query.
type QueryType string

const (
	// QueryTypeConceptual is natural language seeking meaning ("how does auth work").
	QueryTypeConceptual QueryType = "conceptual"

	// QueryTypeIdentifier targets a specific code-like token ("getUserById").
	QueryTypeIdentifier QueryType = "identifier"

	// QueryTypeRelationship asks about graph structure ("what uses X").
	QueryTypeRelationship QueryType = "relationship"

	// QueryTypeFuzzy is a likely-misspelled query needing approximate matching.
	QueryTypeFuzzy QueryType = "fuzzy"

	// QueryTypePattern is a regex-like or credential-like pattern query.
	QueryTypePattern QueryType = "pattern"

	// QueryTypeMixed benefits from all strategies; the default fallback.
	QueryTypeMixed QueryType = "mixed"
)

// ValidQueryType reports whether qt is one of the six known types.
func ValidQueryType(qt QueryType) bool {
	switch qt {
	case QueryTypeConceptual, QueryTypeIdentifier, QueryTypeRelationship,
		QueryTypeFuzzy, QueryTypePattern, QueryTypeMixed:
		return true
	}
	return false
}

// SearchWeights is the relative trust assigned to each retrieval strategy.
// Invariant: non-negative components summing to 1.0 within WeightSumTolerance.
type SearchWeights struct {
	Dense   float64 `json:"dense" yaml:"dense"`
	Sparse  float64 `json:"sparse" yaml:"sparse"`
	Pattern float64 `json:"pattern" yaml:"pattern"`
	Graph   float64 `json:"graph" yaml:"graph"`
}

// WeightSumTolerance is how far from 1.0 a weight sum may drift before
// renormalization kicks in.
const WeightSumTolerance = 0.01

// Sum returns the total of all four weights.
func (w SearchWeights) Sum() float64 {
	return w.Dense + w.Sparse + w.Pattern + w.Graph
}

// Valid reports whether the weights already satisfy the sum invariant.
func (w SearchWeights) Valid() bool {
	return math.Abs(w.Sum()-1.0) <= WeightSumTolerance
}

// Normalize returns weights satisfying the sum invariant. Valid inputs are
// returned unchanged; otherwise each component is divided by the sum,
// preserving proportions. A zero sum yields the uniform vector.
func (w SearchWeights) Normalize() SearchWeights {
	sum := w.Sum()
	if sum == 0 {
		return SearchWeights{Dense: 0.25, Sparse: 0.25, Pattern: 0.25, Graph: 0.25}
	}
	if w.Valid() {
		return w
	}
	return SearchWeights{
		Dense:   w.Dense / sum,
		Sparse:  w.Sparse / sum,
		Pattern: w.Pattern / sum,
		Graph:   w.Graph / sum,
	}
}

// For returns the weight assigned to a strategy by name.
func (w SearchWeights) For(strategy string) float64 {
	switch strategy {
	case StrategyDense:
		return w.Dense
	case StrategySparse:
		return w.Sparse
	case StrategyPattern:
		return w.Pattern
	case StrategyGraph:
		return w.Graph
	default:
		return 0
	}
}

// Strategy names shared across the classifier, fusion engine, and stores.
const (
	StrategyDense   = "dense"
	StrategySparse  = "sparse"
	StrategyPattern = "pattern"
	StrategyGraph   = "graph"
)

// Strategies lists all four strategy names in canonical order.
var Strategies = []string{StrategyDense, StrategySparse, StrategyPattern, StrategyGraph}

// PresetWeights returns the hand-tuned weight profile for a query type.
// Unknown types get the mixed profile.
func PresetWeights(qt QueryType) SearchWeights {
	switch qt {
	case QueryTypeConceptual:
		return SearchWeights{Dense: 0.7, Sparse: 0.2, Pattern: 0.0, Graph: 0.1}
	case QueryTypeIdentifier:
		return SearchWeights{Dense: 0.1, Sparse: 0.5, Pattern: 0.3, Graph: 0.1}
	case QueryTypeRelationship:
		return SearchWeights{Dense: 0.1, Sparse: 0.2, Pattern: 0.1, Graph: 0.6}
	case QueryTypeFuzzy:
		return SearchWeights{Dense: 0.1, Sparse: 0.2, Pattern: 0.6, Graph: 0.1}
	case QueryTypePattern:
		return SearchWeights{Dense: 0.0, Sparse: 0.2, Pattern: 0.7, Graph: 0.1}
	default:
		return SearchWeights{Dense: 0.3, Sparse: 0.3, Pattern: 0.2, Graph: 0.2}
	}
}

// PartialWeights holds optional per-strategy overrides for AdjustWeights.
type PartialWeights struct {
	Dense   *float64
	Sparse  *float64
	Pattern *float64
	Graph   *float64
}

// AdjustWeights merges overrides into base and renormalizes the result.
func AdjustWeights(base SearchWeights, overrides PartialWeights) SearchWeights {
	adjusted := base
	if overrides.Dense != nil {
		adjusted.Dense = *overrides.Dense
	}
	if overrides.Sparse != nil {
		adjusted.Sparse = *overrides.Sparse
	}
	if overrides.Pattern != nil {
		adjusted.Pattern = *overrides.Pattern
	}
	if overrides.Graph != nil {
		adjusted.Graph = *overrides.Graph
	}
	// Force renormalization even when the merged vector happens to fall
	// within tolerance of its own (possibly non-unit) sum.
	sum := adjusted.Sum()
	if sum == 0 {
		return SearchWeights{Dense: 0.25, Sparse: 0.25, Pattern: 0.25, Graph: 0.25}
	}
	return SearchWeights{
		Dense:   adjusted.Dense / sum,
		Sparse:  adjusted.Sparse / sum,
		Pattern: adjusted.Pattern / sum,
		Graph:   adjusted.Graph / sum,
	}
}

// Analysis is the immutable result of query classification.
type Analysis struct {
	// QueryType is the chosen classification category.
	QueryType QueryType `json:"query_type"`

	// Weights is the strategy weight vector, always satisfying the sum invariant.
	Weights SearchWeights `json:"weights"`

	// Reasoning is a human-readable explanation of the classification.
	Reasoning string `json:"reasoning"`

	// DetectedIdentifiers are code-like tokens found in the query, in
	// first-seen order with duplicates removed. May be empty.
	DetectedIdentifiers []string `json:"detected_identifiers,omitempty"`

	// HasTypos indicates the query looks misspelled.
	HasTypos bool `json:"has_typos"`

	// Confidence is the classifier's certainty in [0,1].
	Confidence float64 `json:"confidence"`
}

// Options controls a single classification call.
type Options struct {
	// ForceType bypasses classification and returns the preset weights for
	// the given type with confidence 1.0.
	ForceType QueryType

	// UseFallback skips the model-backed path even when a model is configured.
	UseFallback bool
}

// Classification confidence levels per path.
const (
	// ConfidenceForced is assigned when the caller forces a type.
	ConfidenceForced = 1.0

	// ConfidenceHeuristic is assigned by the pattern-based fallback,
	// reflecting reduced certainty relative to forced/model paths.
	ConfidenceHeuristic = 0.6
)
