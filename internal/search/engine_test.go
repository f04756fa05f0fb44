package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/embed"
	qerrors "github.com/quarrylabs/quarry/internal/errors"
	"github.com/quarrylabs/quarry/internal/query"
	"github.com/quarrylabs/quarry/internal/store"
)

type fakeVectors struct {
	results []*store.VectorResult
	err     error
}

func (f *fakeVectors) Add(context.Context, []string, [][]float32) error { return nil }
func (f *fakeVectors) Search(context.Context, []float32, int) ([]*store.VectorResult, error) {
	return f.results, f.err
}
func (f *fakeVectors) Delete(context.Context, []string) error { return nil }
func (f *fakeVectors) Contains(string) bool                   { return false }
func (f *fakeVectors) Count() int                             { return len(f.results) }
func (f *fakeVectors) Save(string) error                      { return nil }
func (f *fakeVectors) Load(string) error                      { return nil }
func (f *fakeVectors) Close() error                           { return nil }

type fakeSparse struct {
	results []*store.SparseResult
	err     error
}

func (f *fakeSparse) Index(context.Context, []*store.Document) error { return nil }
func (f *fakeSparse) Search(context.Context, string, []string, int) ([]*store.SparseResult, error) {
	return f.results, f.err
}
func (f *fakeSparse) Delete(context.Context, []string) error { return nil }
func (f *fakeSparse) Stats() *store.IndexStats               { return &store.IndexStats{} }
func (f *fakeSparse) Close() error                           { return nil }

type fakePatterns struct {
	results []*store.PatternResult
	err     error
}

func (f *fakePatterns) Index(context.Context, []*store.Document) error { return nil }
func (f *fakePatterns) Search(context.Context, string, []string, int, float64) ([]*store.PatternResult, error) {
	return f.results, f.err
}
func (f *fakePatterns) Delete(context.Context, []string) error { return nil }
func (f *fakePatterns) TermCount() int                         { return 0 }
func (f *fakePatterns) Close() error                           { return nil }

type fakeGraph struct {
	results []*store.GraphResult
	err     error
}

func (f *fakeGraph) SaveEntities(context.Context, []*store.Entity) error    { return nil }
func (f *fakeGraph) SaveRelations(context.Context, []*store.Relation) error { return nil }
func (f *fakeGraph) Search(context.Context, []string, []string, int) ([]*store.GraphResult, error) {
	return f.results, f.err
}
func (f *fakeGraph) Counts(context.Context) (int, int, error) { return len(f.results), 0, nil }
func (f *fakeGraph) Close() error                             { return nil }

type fakeMetadata struct {
	chunks map[string]*store.Chunk
}

func (f *fakeMetadata) SaveChunks(context.Context, []*store.Chunk) error { return nil }
func (f *fakeMetadata) GetChunk(_ context.Context, id string) (*store.Chunk, error) {
	return f.chunks[id], nil
}
func (f *fakeMetadata) GetChunks(_ context.Context, ids []string) ([]*store.Chunk, error) {
	var out []*store.Chunk
	for _, id := range ids {
		if chunk, ok := f.chunks[id]; ok {
			out = append(out, chunk)
		}
	}
	return out, nil
}
func (f *fakeMetadata) ListDocuments(context.Context, []string) ([]*store.Document, error) {
	return nil, nil
}
func (f *fakeMetadata) DeleteChunks(context.Context, []string) error { return nil }
func (f *fakeMetadata) ChunkCount(context.Context) (int, error)      { return len(f.chunks), nil }
func (f *fakeMetadata) GetState(context.Context, string) (string, error) {
	return "", nil
}
func (f *fakeMetadata) SetState(context.Context, string, string) error { return nil }
func (f *fakeMetadata) Close() error                                   { return nil }

// testDeps builds an engine wired to controllable fakes. The heuristic-only
// classifier keeps classification deterministic and offline.
func testDeps(vectors *fakeVectors, sparse *fakeSparse, patterns *fakePatterns, graph *fakeGraph, metadata *fakeMetadata) Deps {
	if metadata == nil {
		metadata = &fakeMetadata{chunks: map[string]*store.Chunk{}}
	}
	return Deps{
		Classifier: query.NewClassifier(nil),
		Embedder:   embed.NewStaticEmbedder(64),
		Vectors:    vectors,
		Sparse:     sparse,
		Patterns:   patterns,
		Graph:      graph,
		Metadata:   metadata,
	}
}

func newTestEngine(t *testing.T, deps Deps) *Engine {
	t.Helper()
	engine, err := NewEngine(DefaultEngineConfig(), deps)
	require.NoError(t, err)
	return engine
}

func TestNewEngine_MissingDependency(t *testing.T) {
	deps := testDeps(&fakeVectors{}, &fakeSparse{}, &fakePatterns{}, &fakeGraph{}, nil)
	deps.Sparse = nil

	_, err := NewEngine(DefaultEngineConfig(), deps)

	assert.Error(t, err)
}

func TestEngine_Search_EmptyQuery(t *testing.T) {
	engine := newTestEngine(t, testDeps(&fakeVectors{}, &fakeSparse{}, &fakePatterns{}, &fakeGraph{}, nil))

	_, err := engine.Search(context.Background(), "   ", Options{})

	require.Error(t, err)
	var qe *qerrors.QuarryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, qerrors.ErrCodeQueryEmpty, qe.Code)
}

func TestEngine_Search_FusesAndHydrates(t *testing.T) {
	metadata := &fakeMetadata{chunks: map[string]*store.Chunk{
		"chunk-1": {ID: "chunk-1", Repo: "core", Content: "payment retry loop", Metadata: map[string]string{"path": "pay.go"}},
		"chunk-2": {ID: "chunk-2", Repo: "core", Content: "timeout config"},
	}}
	deps := testDeps(
		&fakeVectors{results: []*store.VectorResult{
			{ID: "chunk-1", Score: 0.9},
			{ID: "chunk-2", Score: 0.7},
		}},
		&fakeSparse{results: []*store.SparseResult{
			{DocID: "chunk-1", Score: 4.2, MatchedTerms: []string{"payment", "timeout"}},
		}},
		&fakePatterns{},
		&fakeGraph{},
		metadata,
	)
	engine := newTestEngine(t, deps)

	// A query with no dominant signal classifies as mixed, so every
	// strategy clears the dispatch threshold.
	resp, err := engine.Search(context.Background(), "payment flow timeout", Options{})

	require.NoError(t, err)
	assert.Equal(t, query.QueryTypeMixed, resp.Analysis.QueryType)
	require.Len(t, resp.Results, 2)

	top := resp.Results[0]
	assert.Equal(t, "chunk-1", top.ID)
	assert.Equal(t, "core", top.Repo)
	assert.Equal(t, "payment retry loop", top.Content)
	assert.Equal(t, map[string]string{"path": "pay.go"}, top.Metadata)
	assert.Equal(t, map[string]int{"dense": 1, "sparse": 1}, top.Sources)
	assert.Equal(t, []string{"payment", "timeout"}, top.MatchedTerms)

	assert.Equal(t, 1.0, resp.Coverage["dense"])
	assert.Equal(t, 0.5, resp.Coverage["sparse"])
	assert.Empty(t, resp.Metrics.Degraded)
}

func TestEngine_Search_GraphHitsRenderEntities(t *testing.T) {
	deps := testDeps(
		&fakeVectors{},
		&fakeSparse{},
		&fakePatterns{},
		&fakeGraph{results: []*store.GraphResult{
			{Entity: &store.Entity{ID: "svc-1", Repo: "core", Name: "PaymentService", Kind: "class"}},
		}},
		nil,
	)
	engine := newTestEngine(t, deps)

	resp, err := engine.Search(context.Background(), "what uses PaymentService", Options{})

	require.NoError(t, err)
	assert.Equal(t, query.QueryTypeRelationship, resp.Analysis.QueryType)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "entity:svc-1", resp.Results[0].ID)
	assert.Equal(t, "core", resp.Results[0].Repo)
	assert.Equal(t, "PaymentService (class)", resp.Results[0].Content)

	assert.Equal(t, 1.0, resp.Coverage["graph"])
	assert.Equal(t, 0.0, resp.Coverage["dense"])
	assert.Equal(t, 0.0, resp.Coverage["sparse"])
	assert.Equal(t, 0.0, resp.Coverage["pattern"])
}

func TestEngine_Search_DegradesOnSingleStrategyFailure(t *testing.T) {
	metadata := &fakeMetadata{chunks: map[string]*store.Chunk{
		"chunk-1": {ID: "chunk-1", Repo: "core", Content: "text"},
	}}
	deps := testDeps(
		&fakeVectors{results: []*store.VectorResult{{ID: "chunk-1", Score: 0.8}}},
		&fakeSparse{err: errors.New("index corrupted")},
		&fakePatterns{},
		&fakeGraph{},
		metadata,
	)
	engine := newTestEngine(t, deps)

	resp, err := engine.Search(context.Background(), "payment flow timeout", Options{})

	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "index corrupted", resp.Metrics.Degraded["sparse"])
}

func TestEngine_Search_AllStrategiesFailed(t *testing.T) {
	deps := testDeps(
		&fakeVectors{err: errors.New("vectors down")},
		&fakeSparse{},
		&fakePatterns{},
		&fakeGraph{},
		nil,
	)
	engine := newTestEngine(t, deps)

	// Dense-only weighting skips the other strategies, so the single
	// dispatched strategy failing fails the whole search.
	_, err := engine.Search(context.Background(), "payment flow timeout", Options{
		ForceWeights: &query.SearchWeights{Dense: 1.0},
	})

	require.Error(t, err)
	var qe *qerrors.QuarryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, qerrors.ErrCodeSearchFailed, qe.Code)
}

func TestEngine_Search_SkipsLowWeightStrategies(t *testing.T) {
	deps := testDeps(&fakeVectors{}, &fakeSparse{}, &fakePatterns{}, &fakeGraph{}, nil)
	engine := newTestEngine(t, deps)

	// The conceptual preset assigns pattern weight 0.0, below the
	// dispatch threshold.
	resp, err := engine.Search(context.Background(), "anything at all", Options{
		ForceType: query.QueryTypeConceptual,
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"pattern"}, resp.Metrics.Skipped)
	assert.NotContains(t, resp.Metrics.StrategyDurations, "pattern")
}

func TestEngine_Search_MinDiversity(t *testing.T) {
	metadata := &fakeMetadata{chunks: map[string]*store.Chunk{
		"both":  {ID: "both", Repo: "core", Content: "a"},
		"dense": {ID: "dense", Repo: "core", Content: "b"},
	}}
	deps := testDeps(
		&fakeVectors{results: []*store.VectorResult{
			{ID: "both", Score: 0.9},
			{ID: "dense", Score: 0.8},
		}},
		&fakeSparse{results: []*store.SparseResult{{DocID: "both", Score: 3.0}}},
		&fakePatterns{},
		&fakeGraph{},
		metadata,
	)
	engine := newTestEngine(t, deps)

	resp, err := engine.Search(context.Background(), "payment flow timeout", Options{MinDiversity: 2})

	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "both", resp.Results[0].ID)
}

func TestEngine_Search_DiversityFilterRespectsLimit(t *testing.T) {
	chunks := map[string]*store.Chunk{}
	var vecResults []*store.VectorResult
	for i, id := range []string{"solo", "c2", "c3", "c4", "c5", "both"} {
		chunks[id] = &store.Chunk{ID: id, Repo: "core", Content: id}
		vecResults = append(vecResults, &store.VectorResult{ID: id, Score: float32(0.9 - 0.1*float64(i))})
	}
	deps := testDeps(
		&fakeVectors{results: vecResults},
		&fakeSparse{results: []*store.SparseResult{{DocID: "both", Score: 3.0}}},
		&fakePatterns{},
		&fakeGraph{},
		&fakeMetadata{chunks: chunks},
	)
	engine := newTestEngine(t, deps)

	// "both" fuses below the top-2 under a near-exclusive dense weight.
	// The diversity filter narrows the fused top-2 and must not promote
	// "both" from beyond the cut, so nothing survives.
	resp, err := engine.Search(context.Background(), "payment flow timeout", Options{
		ForceWeights: &query.SearchWeights{Dense: 0.95, Sparse: 0.05},
		Limit:        2,
		MinDiversity: 2,
	})

	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestEngine_Search_ThresholdFiltersEverything(t *testing.T) {
	metadata := &fakeMetadata{chunks: map[string]*store.Chunk{
		"chunk-1": {ID: "chunk-1", Repo: "core", Content: "text"},
	}}
	deps := testDeps(
		&fakeVectors{results: []*store.VectorResult{{ID: "chunk-1", Score: 0.8}}},
		&fakeSparse{},
		&fakePatterns{},
		&fakeGraph{},
		metadata,
	)
	engine := newTestEngine(t, deps)

	resp, err := engine.Search(context.Background(), "payment flow timeout", Options{Threshold: 1.0})

	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestEngine_Search_Limit(t *testing.T) {
	chunks := map[string]*store.Chunk{}
	var vecResults []*store.VectorResult
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
		chunks[id] = &store.Chunk{ID: id, Repo: "core", Content: id}
		vecResults = append(vecResults, &store.VectorResult{ID: id, Score: 0.5})
	}
	deps := testDeps(
		&fakeVectors{results: vecResults},
		&fakeSparse{},
		&fakePatterns{},
		&fakeGraph{},
		&fakeMetadata{chunks: chunks},
	)
	engine := newTestEngine(t, deps)

	resp, err := engine.Search(context.Background(), "payment flow timeout", Options{Limit: 2})

	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
}

func TestEngine_Search_Explain(t *testing.T) {
	metadata := &fakeMetadata{chunks: map[string]*store.Chunk{
		"chunk-1": {ID: "chunk-1", Repo: "core", Content: "text"},
	}}
	deps := testDeps(
		&fakeVectors{results: []*store.VectorResult{{ID: "chunk-1", Score: 0.8}}},
		&fakeSparse{},
		&fakePatterns{},
		&fakeGraph{},
		metadata,
	)
	engine := newTestEngine(t, deps)

	resp, err := engine.Search(context.Background(), "payment flow timeout", Options{Explain: true})

	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Contains(t, resp.Results[0].Explanation, "dense rank 1")
}

func TestEngine_Search_AfterClose(t *testing.T) {
	engine := newTestEngine(t, testDeps(&fakeVectors{}, &fakeSparse{}, &fakePatterns{}, &fakeGraph{}, nil))
	require.NoError(t, engine.Close())

	_, err := engine.Search(context.Background(), "anything", Options{})

	assert.Error(t, err)
}

func TestEngine_Stats(t *testing.T) {
	metadata := &fakeMetadata{chunks: map[string]*store.Chunk{
		"chunk-1": {ID: "chunk-1"},
	}}
	deps := testDeps(&fakeVectors{}, &fakeSparse{}, &fakePatterns{}, &fakeGraph{}, metadata)
	engine := newTestEngine(t, deps)

	stats, err := engine.Stats(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, stats.ChunkCount)
	assert.Equal(t, "static-hash", stats.EmbedderModel)
	assert.Equal(t, 64, stats.Dimensions)
}

func TestSignificantWords(t *testing.T) {
	got := significantWords("What uses the PaymentService, really?")

	assert.Equal(t, []string{"paymentservice", "really"}, got)
}

func TestSortHits(t *testing.T) {
	hits := []StrategyHit{
		{ID: "b", Score: 0.5},
		{ID: "a", Score: 0.5},
		{ID: "c", Score: 0.9},
	}

	sortHits(hits)

	assert.Equal(t, "c", hits[0].ID)
	assert.Equal(t, "a", hits[1].ID)
	assert.Equal(t, "b", hits[2].ID)
}
