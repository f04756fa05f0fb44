package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSparseIndex(t *testing.T) *SQLiteSparseIndex {
	t.Helper()
	idx, err := NewSQLiteSparseIndex("", DefaultSparseConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestSQLiteSparseIndex_IndexAndSearch(t *testing.T) {
	ctx := context.Background()
	idx := newTestSparseIndex(t)

	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "doc-1", Repo: "core", Content: "payment retry policy"},
		{ID: "doc-2", Repo: "core", Content: "logging configuration"},
	}))

	results, err := idx.Search(ctx, "payment", nil, 10)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-1", results[0].DocID)
	assert.Greater(t, results[0].Score, 0.0)
	assert.Contains(t, results[0].MatchedTerms, "payment")
}

func TestSQLiteSparseIndex_CodeTokenization(t *testing.T) {
	ctx := context.Background()
	idx := newTestSparseIndex(t)

	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "doc-1", Repo: "core", Content: "getUserById fetches a user record"},
	}))

	// camelCase content is split at index time, so a sub-token matches.
	results, err := idx.Search(ctx, "user", nil, 10)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-1", results[0].DocID)
}

func TestSQLiteSparseIndex_BetterMatchRanksFirst(t *testing.T) {
	ctx := context.Background()
	idx := newTestSparseIndex(t)

	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "doc-1", Repo: "core", Content: "payment payment payment gateway"},
		{ID: "doc-2", Repo: "core", Content: "payment mentioned once amid much other unrelated content here"},
	}))

	results, err := idx.Search(ctx, "payment", nil, 10)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "doc-1", results[0].DocID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestSQLiteSparseIndex_RepoScoping(t *testing.T) {
	ctx := context.Background()
	idx := newTestSparseIndex(t)

	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "doc-1", Repo: "core", Content: "payment gateway"},
		{ID: "doc-2", Repo: "extras", Content: "payment gateway"},
	}))

	results, err := idx.Search(ctx, "payment", []string{"extras"}, 10)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-2", results[0].DocID)
}

func TestSQLiteSparseIndex_ReindexReplaces(t *testing.T) {
	ctx := context.Background()
	idx := newTestSparseIndex(t)

	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "doc-1", Repo: "core", Content: "payment gateway"},
	}))
	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "doc-1", Repo: "core", Content: "logging subsystem"},
	}))

	old, err := idx.Search(ctx, "payment", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, old)

	current, err := idx.Search(ctx, "logging", nil, 10)
	require.NoError(t, err)
	assert.Len(t, current, 1)
	assert.Equal(t, 1, idx.Stats().DocumentCount)
}

func TestSQLiteSparseIndex_Delete(t *testing.T) {
	ctx := context.Background()
	idx := newTestSparseIndex(t)

	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "doc-1", Repo: "core", Content: "payment gateway"},
		{ID: "doc-2", Repo: "core", Content: "payment processor"},
	}))
	require.NoError(t, idx.Delete(ctx, []string{"doc-1"}))

	results, err := idx.Search(ctx, "payment", nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-2", results[0].DocID)
	assert.Equal(t, 1, idx.Stats().DocumentCount)
}

func TestSQLiteSparseIndex_EmptyAndStopWordQueries(t *testing.T) {
	ctx := context.Background()
	idx := newTestSparseIndex(t)

	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "doc-1", Repo: "core", Content: "payment gateway"},
	}))

	empty, err := idx.Search(ctx, "   ", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	// All tokens filtered as stop words.
	stops, err := idx.Search(ctx, "the of in", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, stops)
}

func TestSQLiteSparseIndex_PersistsToDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sparse.db")

	idx, err := NewSQLiteSparseIndex(path, DefaultSparseConfig())
	require.NoError(t, err)
	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "doc-1", Repo: "core", Content: "payment gateway"},
	}))
	require.NoError(t, idx.Close())

	reopened, err := NewSQLiteSparseIndex(path, DefaultSparseConfig())
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	results, err := reopened.Search(ctx, "payment", nil, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSQLiteSparseIndex_ClosedErrs(t *testing.T) {
	ctx := context.Background()
	idx := newTestSparseIndex(t)
	require.NoError(t, idx.Close())

	assert.Error(t, idx.Index(ctx, []*Document{{ID: "doc-1"}}))
	_, err := idx.Search(ctx, "payment", nil, 10)
	assert.Error(t, err)
	assert.Equal(t, &IndexStats{}, idx.Stats())
	assert.NoError(t, idx.Close())
}
