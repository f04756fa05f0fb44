package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quarrylabs/quarry/internal/embed"
	qerrors "github.com/quarrylabs/quarry/internal/errors"
	"github.com/quarrylabs/quarry/internal/query"
	"github.com/quarrylabs/quarry/internal/store"
)

// entityPrefix namespaces graph hits so an entity ID and a chunk ID can
// never collide in the fused ranking.
const entityPrefix = "entity:"

// Engine orchestrates the hybrid search pipeline: classify, dispatch,
// collect, fuse, post-filter.
type Engine struct {
	classifier *query.Classifier
	embedder   embed.Embedder
	vectors    store.VectorStore
	sparse     store.SparseIndex
	patterns   store.PatternIndex
	graph      store.GraphStore
	metadata   store.MetadataStore
	config     EngineConfig

	mu     sync.RWMutex
	closed bool
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Classifier *query.Classifier
	Embedder   embed.Embedder
	Vectors    store.VectorStore
	Sparse     store.SparseIndex
	Patterns   store.PatternIndex
	Graph      store.GraphStore
	Metadata   store.MetadataStore
}

// NewEngine creates a search engine. All dependencies are required.
func NewEngine(cfg EngineConfig, deps Deps) (*Engine, error) {
	if deps.Classifier == nil || deps.Embedder == nil || deps.Vectors == nil ||
		deps.Sparse == nil || deps.Patterns == nil || deps.Graph == nil || deps.Metadata == nil {
		return nil, qerrors.New(qerrors.ErrCodeInternal, "search engine missing dependencies")
	}
	if cfg.RRFConstant <= 0 {
		cfg.RRFConstant = DefaultRRFConstant
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = DefaultSearchTimeout
	}

	return &Engine{
		classifier: deps.Classifier,
		embedder:   deps.Embedder,
		vectors:    deps.Vectors,
		sparse:     deps.Sparse,
		patterns:   deps.Patterns,
		graph:      deps.Graph,
		metadata:   deps.Metadata,
		config:     cfg,
	}, nil
}

// Search runs the full hybrid pipeline for one query.
//
// Individual strategy failures degrade the search (recorded in
// Metrics.Degraded) rather than failing it; the call errs only when the
// query is empty or every dispatched strategy failed.
func (e *Engine) Search(ctx context.Context, queryText string, opts Options) (*Response, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, qerrors.New(qerrors.ErrCodeInternal, "engine is closed")
	}

	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return nil, qerrors.New(qerrors.ErrCodeQueryEmpty, "query must not be empty")
	}

	opts = opts.normalized()
	ctx, cancel := context.WithTimeout(ctx, e.config.SearchTimeout)
	defer cancel()

	totalStart := time.Now()

	// Stage 1: classify.
	classifyStart := time.Now()
	analysis := e.classifier.Analyze(ctx, queryText, query.Options{
		ForceType:   opts.ForceType,
		UseFallback: opts.UseFallback,
	})
	weights := analysis.Weights
	if opts.ForceWeights != nil {
		weights = opts.ForceWeights.Normalize()
	} else if opts.AdjustWeights != nil {
		weights = query.AdjustWeights(weights, *opts.AdjustWeights)
	}
	classifyDur := time.Since(classifyStart)

	// Stages 2-3: dispatch and collect in parallel.
	retrieveStart := time.Now()
	lists, entities, skipped := e.retrieve(ctx, queryText, analysis, weights, opts)
	retrieveDur := time.Since(retrieveStart)

	metrics := Metrics{
		StrategyHits:      make(map[string]int, len(lists)),
		StrategyDurations: make(map[string]time.Duration, len(lists)),
		Skipped:           skipped,
		Degraded:          make(map[string]string),
	}

	dispatched, failed := 0, 0
	var lastErr error
	for _, list := range lists {
		if list == nil {
			continue
		}
		dispatched++
		metrics.StrategyDurations[list.Strategy] = list.Duration
		if list.Err != nil {
			failed++
			lastErr = list.Err
			metrics.Degraded[list.Strategy] = list.Err.Error()
			slog.Warn("strategy degraded",
				slog.String("strategy", list.Strategy),
				slog.String("query", queryText),
				slog.String("error", list.Err.Error()))
			continue
		}
		metrics.StrategyHits[list.Strategy] = len(list.Hits)
	}
	if dispatched > 0 && failed == dispatched {
		return nil, qerrors.Wrap(lastErr, qerrors.ErrCodeSearchFailed, "all retrieval strategies failed")
	}

	// Stage 4: fuse.
	fuseStart := time.Now()
	fusion := NewRRFFusionWithK(opts.RRFConstant)
	results := fusion.Fuse(lists, weights, opts.Limit)
	fuseDur := time.Since(fuseStart)

	// Stage 5: post-filter and hydrate. Filters only narrow the fused
	// top-N; they never pull in results from beyond it.
	postStart := time.Now()
	results = FilterByDiversity(results, opts.MinDiversity)
	if opts.Threshold > 0 {
		kept := results[:0]
		for _, r := range results {
			if r.FusedScore >= opts.Threshold {
				kept = append(kept, r)
			}
		}
		results = kept
	}
	if err := e.hydrate(ctx, results, lists, entities); err != nil {
		return nil, err
	}
	if opts.Explain {
		for _, r := range results {
			r.Explanation = ExplainRanking(r, weights, fusion.K)
		}
	}
	postDur := time.Since(postStart)

	metrics.Timings = StageTimings{
		Classify:   classifyDur,
		Retrieve:   retrieveDur,
		Fuse:       fuseDur,
		PostFilter: postDur,
		Total:      time.Since(totalStart),
	}

	slog.Debug("search completed",
		slog.String("query", queryText),
		slog.String("query_type", string(analysis.QueryType)),
		slog.Int("results", len(results)),
		slog.Duration("total", metrics.Timings.Total))

	return &Response{
		Query:    queryText,
		Analysis: analysis,
		Results:  results,
		Coverage: CalculateCoverage(results),
		Metrics:  metrics,
	}, nil
}

// retrieve dispatches every strategy whose weight clears the threshold and
// collects their ranked lists. Each goroutine writes only its own slot, so
// no mutex is needed; a failed strategy records its error in the slot.
func (e *Engine) retrieve(ctx context.Context, queryText string, analysis query.Analysis, weights query.SearchWeights, opts Options) ([]*StrategyResult, map[string]*store.Entity, []string) {
	fetchLimit := opts.Limit * candidateMultiplier
	lists := make([]*StrategyResult, len(query.Strategies))
	entities := make(map[string]*store.Entity)
	var entityMu sync.Mutex
	var skipped []string

	g, gctx := errgroup.WithContext(ctx)
	for i, strategy := range query.Strategies {
		if weights.For(strategy) < MinStrategyWeight {
			skipped = append(skipped, strategy)
			continue
		}

		i, strategy := i, strategy
		g.Go(func() error {
			start := time.Now()
			var hits []StrategyHit
			var err error

			var terms map[string][]string
			switch strategy {
			case query.StrategyDense:
				hits, err = e.searchDense(gctx, queryText, opts.Repos, fetchLimit)
			case query.StrategySparse:
				hits, terms, err = e.searchSparse(gctx, queryText, opts.Repos, fetchLimit)
			case query.StrategyPattern:
				hits, err = e.searchPattern(gctx, queryText, analysis, opts.Repos, fetchLimit, opts.PatternThreshold)
			case query.StrategyGraph:
				var found map[string]*store.Entity
				hits, found, err = e.searchGraph(gctx, queryText, analysis, opts.Repos, fetchLimit)
				if err == nil {
					entityMu.Lock()
					for id, ent := range found {
						entities[id] = ent
					}
					entityMu.Unlock()
				}
			}

			lists[i] = &StrategyResult{
				Strategy: strategy,
				Hits:     hits,
				Err:      err,
				Duration: time.Since(start),
				Terms:    terms,
			}
			// Degradation is handled by the caller; never cancel siblings.
			return nil
		})
	}
	_ = g.Wait()

	return lists, entities, skipped
}

// searchDense embeds the query and searches the vector store. Repo scoping
// happens here because HNSW has no filtered search: over-fetched hits are
// trimmed against chunk metadata.
func (e *Engine) searchDense(ctx context.Context, queryText string, repos []string, limit int) ([]StrategyHit, error) {
	vector, err := e.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, qerrors.Wrap(err, qerrors.ErrCodeEmbeddingFailed, "embed query")
	}

	fetchLimit := limit
	if len(repos) > 0 {
		fetchLimit *= 2
	}
	results, err := e.vectors.Search(ctx, vector, fetchLimit)
	if err != nil {
		return nil, err
	}

	var allowed map[string]struct{}
	if len(repos) > 0 {
		ids := make([]string, len(results))
		for i, r := range results {
			ids[i] = r.ID
		}
		chunks, err := e.metadata.GetChunks(ctx, ids)
		if err != nil {
			return nil, err
		}
		repoSet := make(map[string]struct{}, len(repos))
		for _, repo := range repos {
			repoSet[repo] = struct{}{}
		}
		allowed = make(map[string]struct{}, len(chunks))
		for _, chunk := range chunks {
			if _, ok := repoSet[chunk.Repo]; ok {
				allowed[chunk.ID] = struct{}{}
			}
		}
	}

	hits := make([]StrategyHit, 0, len(results))
	for _, r := range results {
		if allowed != nil {
			if _, ok := allowed[r.ID]; !ok {
				continue
			}
		}
		hits = append(hits, StrategyHit{ID: r.ID, Score: float64(r.Score)})
		if len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

// searchSparse queries the lexical index, collecting matched terms per hit
// so hydration can surface them.
func (e *Engine) searchSparse(ctx context.Context, queryText string, repos []string, limit int) ([]StrategyHit, map[string][]string, error) {
	results, err := e.sparse.Search(ctx, queryText, repos, limit)
	if err != nil {
		return nil, nil, err
	}

	hits := make([]StrategyHit, 0, len(results))
	terms := make(map[string][]string, len(results))
	for _, r := range results {
		hits = append(hits, StrategyHit{ID: r.DocID, Score: r.Score})
		terms[r.DocID] = r.MatchedTerms
	}
	return hits, terms, nil
}

// searchPattern runs approximate matching. When the classifier extracted
// identifiers, each is matched separately and a document keeps its best
// similarity; otherwise the raw query is the pattern.
func (e *Engine) searchPattern(ctx context.Context, queryText string, analysis query.Analysis, repos []string, limit int, threshold float64) ([]StrategyHit, error) {
	patterns := analysis.DetectedIdentifiers
	if len(patterns) == 0 {
		patterns = []string{queryText}
	}

	best := make(map[string]float64)
	for _, pattern := range patterns {
		results, err := e.patterns.Search(ctx, pattern, repos, limit, threshold)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			if r.Similarity > best[r.DocID] {
				best[r.DocID] = r.Similarity
			}
		}
	}

	hits := make([]StrategyHit, 0, len(best))
	for id, sim := range best {
		hits = append(hits, StrategyHit{ID: id, Score: sim})
	}
	sortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// searchGraph queries the entity graph. Graph hits carry no native score,
// so array position is the rank; hit IDs are namespaced with entityPrefix.
func (e *Engine) searchGraph(ctx context.Context, queryText string, analysis query.Analysis, repos []string, limit int) ([]StrategyHit, map[string]*store.Entity, error) {
	terms := analysis.DetectedIdentifiers
	if len(terms) == 0 {
		terms = significantWords(queryText)
	}
	if len(terms) == 0 {
		return []StrategyHit{}, nil, nil
	}

	results, err := e.graph.Search(ctx, terms, repos, limit)
	if err != nil {
		return nil, nil, err
	}

	hits := make([]StrategyHit, 0, len(results))
	entities := make(map[string]*store.Entity, len(results))
	for _, r := range results {
		id := entityPrefix + r.Entity.ID
		hits = append(hits, StrategyHit{ID: id, Score: r.Weight})
		entities[id] = r.Entity
	}
	return hits, entities, nil
}

// hydrate fills Repo, Content, Metadata, and MatchedTerms on fused results.
func (e *Engine) hydrate(ctx context.Context, results []*FusedResult, lists []*StrategyResult, entities map[string]*store.Entity) error {
	var chunkIDs []string
	for _, r := range results {
		if !strings.HasPrefix(r.ID, entityPrefix) {
			chunkIDs = append(chunkIDs, r.ID)
		}
	}

	chunks := make(map[string]*store.Chunk, len(chunkIDs))
	if len(chunkIDs) > 0 {
		fetched, err := e.metadata.GetChunks(ctx, chunkIDs)
		if err != nil {
			return qerrors.Wrap(err, qerrors.ErrCodeSearchFailed, "hydrate results")
		}
		for _, chunk := range fetched {
			chunks[chunk.ID] = chunk
		}
	}

	var sparseTerms map[string][]string
	for _, list := range lists {
		if list != nil && list.Strategy == query.StrategySparse && list.Err == nil {
			sparseTerms = list.Terms
		}
	}

	for _, r := range results {
		if entity, ok := entities[r.ID]; ok {
			r.Repo = entity.Repo
			r.Content = renderEntity(entity)
			continue
		}
		if chunk, ok := chunks[r.ID]; ok {
			r.Repo = chunk.Repo
			r.Content = chunk.Content
			r.Metadata = chunk.Metadata
		}
		if _, fromSparse := r.Sources[query.StrategySparse]; fromSparse {
			r.MatchedTerms = sparseTerms[r.ID]
		}
	}
	return nil
}

// Index adds chunks to every chunk-level store.
func (e *Engine) Index(ctx context.Context, chunks []*store.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	if err := e.metadata.SaveChunks(ctx, chunks); err != nil {
		return qerrors.Wrap(err, qerrors.ErrCodeIndexFailed, "save chunks")
	}

	docs := make([]*store.Document, len(chunks))
	texts := make([]string, len(chunks))
	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		docs[i] = &store.Document{ID: chunk.ID, Repo: chunk.Repo, Content: chunk.Content}
		texts[i] = chunk.Content
		ids[i] = chunk.ID
	}

	if err := e.sparse.Index(ctx, docs); err != nil {
		return qerrors.Wrap(err, qerrors.ErrCodeIndexFailed, "index sparse")
	}
	if err := e.patterns.Index(ctx, docs); err != nil {
		return qerrors.Wrap(err, qerrors.ErrCodeIndexFailed, "index patterns")
	}

	vectors, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return qerrors.Wrap(err, qerrors.ErrCodeEmbeddingFailed, "embed chunks")
	}
	if err := e.vectors.Add(ctx, ids, vectors); err != nil {
		return qerrors.Wrap(err, qerrors.ErrCodeIndexFailed, "index vectors")
	}

	return nil
}

// IndexGraph adds entities and relations to the graph store.
func (e *Engine) IndexGraph(ctx context.Context, entities []*store.Entity, relations []*store.Relation) error {
	if err := e.graph.SaveEntities(ctx, entities); err != nil {
		return qerrors.Wrap(err, qerrors.ErrCodeIndexFailed, "save entities")
	}
	if err := e.graph.SaveRelations(ctx, relations); err != nil {
		return qerrors.Wrap(err, qerrors.ErrCodeIndexFailed, "save relations")
	}
	return nil
}

// Delete removes chunks from every chunk-level store.
func (e *Engine) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	if err := e.sparse.Delete(ctx, chunkIDs); err != nil {
		return err
	}
	if err := e.patterns.Delete(ctx, chunkIDs); err != nil {
		return err
	}
	if err := e.vectors.Delete(ctx, chunkIDs); err != nil {
		return err
	}
	return e.metadata.DeleteChunks(ctx, chunkIDs)
}

// Stats summarizes index state across all stores.
func (e *Engine) Stats(ctx context.Context) (*EngineStats, error) {
	chunkCount, err := e.metadata.ChunkCount(ctx)
	if err != nil {
		return nil, err
	}
	entityCount, relationCount, err := e.graph.Counts(ctx)
	if err != nil {
		return nil, err
	}

	return &EngineStats{
		ChunkCount:    chunkCount,
		VectorCount:   e.vectors.Count(),
		SparseStats:   e.sparse.Stats(),
		PatternTerms:  e.patterns.TermCount(),
		EntityCount:   entityCount,
		RelationCount: relationCount,
		EmbedderModel: e.embedder.ModelName(),
		Dimensions:    e.embedder.Dimensions(),
	}, nil
}

// Close releases every store. The first error wins but all stores are
// still closed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var firstErr error
	for _, closer := range []interface{ Close() error }{
		e.sparse, e.patterns, e.vectors, e.graph, e.metadata, e.embedder,
	} {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// sortHits orders hits by score descending, then ID for determinism.
func sortHits(hits []StrategyHit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}

// significantWords extracts lowercase words worth querying the graph with.
func significantWords(queryText string) []string {
	var words []string
	for _, word := range strings.Fields(strings.ToLower(queryText)) {
		word = strings.Trim(word, `"'?.,:;!`)
		if len(word) >= 3 && !graphStopWords[word] {
			words = append(words, word)
		}
	}
	return words
}

var graphStopWords = map[string]bool{
	"the": true, "and": true, "for": true, "what": true, "who": true,
	"uses": true, "use": true, "does": true, "how": true, "with": true,
	"calls": true, "call": true, "imports": true, "import": true,
	"depends": true, "related": true, "connected": true,
}

// renderEntity produces display content for a graph hit.
func renderEntity(entity *store.Entity) string {
	if entity.Kind == "" {
		return entity.Name
	}
	return fmt.Sprintf("%s (%s)", entity.Name, entity.Kind)
}
