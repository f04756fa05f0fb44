package query

import (
	"context"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/quarrylabs/quarry/internal/fuzzy"
)

// DefaultCacheSize is the LRU cache size for classification results.
const DefaultCacheSize = 10000

// Classifier turns free text into an Analysis. It owns an optional model
// handle, set at construction; there is no ambient/global model state.
// Resolution order per call: forced type, cached result, model path,
// heuristic fallback. The heuristic path cannot fail, so Analyze never errs.
type Classifier struct {
	model     ModelClassifier
	heuristic *HeuristicClassifier
	cache     *lru.Cache[string, Analysis]
}

// NewClassifier creates a classifier. model may be nil, in which case only
// the heuristic path is used.
func NewClassifier(model ModelClassifier) *Classifier {
	return NewClassifierWithCacheSize(model, DefaultCacheSize)
}

// NewClassifierWithCacheSize creates a classifier with a custom cache size.
func NewClassifierWithCacheSize(model ModelClassifier, cacheSize int) *Classifier {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, Analysis](cacheSize)
	return &Classifier{
		model:     model,
		heuristic: NewHeuristicClassifier(),
		cache:     cache,
	}
}

// SetModel replaces the model handle. Passing nil disables the model path.
func (c *Classifier) SetModel(model ModelClassifier) {
	c.model = model
}

// Analyze classifies a query. The result always satisfies the weight sum
// invariant and is created fresh per call; callers must treat it as read-only.
func (c *Classifier) Analyze(ctx context.Context, queryText string, opts Options) Analysis {
	queryText = strings.TrimSpace(queryText)

	// Forced classification: preset weights, no external calls. Identifier
	// extraction still runs so DetectedIdentifiers is populated.
	if opts.ForceType != "" {
		qt := opts.ForceType
		if !ValidQueryType(qt) {
			qt = QueryTypeMixed
		}
		return Analysis{
			QueryType:           qt,
			Weights:             PresetWeights(qt),
			Reasoning:           "forced",
			DetectedIdentifiers: fuzzy.ExtractIdentifiers(queryText),
			Confidence:          ConfidenceForced,
		}
	}

	if queryText == "" {
		return Analysis{
			QueryType:  QueryTypeMixed,
			Weights:    PresetWeights(QueryTypeMixed),
			Reasoning:  "empty query",
			Confidence: ConfidenceHeuristic,
		}
	}

	cacheKey := cacheKeyFor(queryText, opts)
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached
	}

	if c.model != nil && !opts.UseFallback {
		analysis, err := c.model.Classify(ctx, queryText)
		if err == nil {
			// Identifier extraction is cheap and deterministic; prefer it
			// over whatever token list the model volunteered.
			if len(analysis.DetectedIdentifiers) == 0 {
				analysis.DetectedIdentifiers = fuzzy.ExtractIdentifiers(queryText)
			}
			c.cache.Add(cacheKey, *analysis)
			return *analysis
		}
		// Model failure is recoverable: fall through to heuristics.
		slog.Debug("model classification failed, using heuristics",
			slog.String("error", err.Error()))
	}

	analysis := c.heuristic.Classify(ctx, queryText)
	c.cache.Add(cacheKey, analysis)
	return analysis
}

// cacheKeyFor normalizes the query for caching. The fallback flag is part of
// the key so a model answer never masks an explicitly requested heuristic one.
func cacheKeyFor(queryText string, opts Options) string {
	key := strings.ToLower(strings.TrimSpace(queryText))
	if opts.UseFallback {
		key = "fallback\x00" + key
	}
	return key
}
