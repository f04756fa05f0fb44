package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVectorStore(t *testing.T, dims int) *HNSWStore {
	t.Helper()
	s, err := NewHNSWStore(DefaultVectorStoreConfig(dims))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewHNSWStore_InvalidDimensions(t *testing.T) {
	_, err := NewHNSWStore(VectorStoreConfig{Dimensions: 0})
	assert.Error(t, err)
}

func TestHNSWStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 3)

	require.NoError(t, s.Add(ctx,
		[]string{"x", "y", "z"},
		[][]float32{
			{1, 0, 0},
			{0, 1, 0},
			{0, 0, 1},
		}))

	results, err := s.Search(ctx, []float32{0.9, 0.1, 0}, 2)

	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "x", results[0].ID)
	assert.Greater(t, results[0].Score, float32(0.9))
}

func TestHNSWStore_Add_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 3)

	err := s.Add(ctx, []string{"x"}, [][]float32{{1, 0}})

	var mismatch ErrDimensionMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 3, mismatch.Expected)
	assert.Equal(t, 2, mismatch.Got)
}

func TestHNSWStore_Add_LengthMismatch(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 3)

	assert.Error(t, s.Add(ctx, []string{"x", "y"}, [][]float32{{1, 0, 0}}))
}

func TestHNSWStore_Search_EmptyStore(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 3)

	results, err := s.Search(ctx, []float32{1, 0, 0}, 5)

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHNSWStore_Search_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 3)

	_, err := s.Search(ctx, []float32{1, 0}, 5)

	assert.Error(t, err)
}

func TestHNSWStore_ReplaceExistingID(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 3)

	require.NoError(t, s.Add(ctx, []string{"x"}, [][]float32{{1, 0, 0}}))
	require.NoError(t, s.Add(ctx, []string{"x"}, [][]float32{{0, 1, 0}}))

	assert.Equal(t, 1, s.Count())

	results, err := s.Search(ctx, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "x", results[0].ID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-5)
}

func TestHNSWStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 3)

	require.NoError(t, s.Add(ctx,
		[]string{"x", "y"},
		[][]float32{{1, 0, 0}, {0, 1, 0}}))
	require.NoError(t, s.Delete(ctx, []string{"x"}))

	assert.Equal(t, 1, s.Count())
	assert.False(t, s.Contains("x"))
	assert.True(t, s.Contains("y"))

	// Lazily deleted vectors never surface in results.
	results, err := s.Search(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "x", r.ID)
	}
}

func TestHNSWStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.hnsw")

	s := newTestVectorStore(t, 3)
	require.NoError(t, s.Add(ctx,
		[]string{"x", "y"},
		[][]float32{{1, 0, 0}, {0, 1, 0}}))
	require.NoError(t, s.Save(path))

	restored, err := NewHNSWStore(DefaultVectorStoreConfig(3))
	require.NoError(t, err)
	defer func() { _ = restored.Close() }()
	require.NoError(t, restored.Load(path))

	assert.Equal(t, 2, restored.Count())

	results, err := restored.Search(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "x", results[0].ID)
}

func TestReadStoredDimensions(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.hnsw")

	// No metadata yet.
	dims, err := ReadStoredDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 0, dims)

	s := newTestVectorStore(t, 5)
	require.NoError(t, s.Add(ctx, []string{"x"}, [][]float32{{1, 0, 0, 0, 0}}))
	require.NoError(t, s.Save(path))

	dims, err = ReadStoredDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 5, dims)
}

func TestNormalizeVectorInPlace(t *testing.T) {
	v := []float32{3, 4}
	normalizeVectorInPlace(v)

	assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(v[1]), 1e-6)

	zero := []float32{0, 0}
	normalizeVectorInPlace(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestDistanceToScore(t *testing.T) {
	assert.Equal(t, float32(1.0), distanceToScore(0, "cos"))
	assert.Equal(t, float32(0.0), distanceToScore(2, "cos"))
	assert.Equal(t, float32(1.0), distanceToScore(0, "l2"))
	assert.Equal(t, float32(0.5), distanceToScore(1, "l2"))
}
