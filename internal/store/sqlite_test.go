package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_SaveAndGetChunks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	chunks := []*Chunk{
		{ID: "c1", Repo: "core", Path: "a.go", Content: "alpha", Metadata: map[string]string{"lang": "go"}},
		{ID: "c2", Repo: "core", Path: "b.go", Content: "beta"},
	}
	require.NoError(t, s.SaveChunks(ctx, chunks))

	got, err := s.GetChunk(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Content)
	assert.Equal(t, "a.go", got.Path)
	assert.Equal(t, map[string]string{"lang": "go"}, got.Metadata)
	assert.False(t, got.CreatedAt.IsZero())

	batch, err := s.GetChunks(ctx, []string{"c2", "c1", "missing"})
	require.NoError(t, err)
	assert.Len(t, batch, 2)
}

func TestSQLiteStore_GetChunk_Missing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetChunk(context.Background(), "nope")

	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSQLiteStore_SaveChunks_Upsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveChunks(ctx, []*Chunk{{ID: "c1", Repo: "core", Content: "old"}}))
	require.NoError(t, s.SaveChunks(ctx, []*Chunk{{ID: "c1", Repo: "core", Content: "new"}}))

	got, err := s.GetChunk(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Content)

	count, err := s.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLiteStore_ListDocuments(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveChunks(ctx, []*Chunk{
		{ID: "c1", Repo: "core", Content: "alpha"},
		{ID: "c2", Repo: "extras", Content: "beta"},
	}))

	all, err := s.ListDocuments(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "c1", all[0].ID)

	scoped, err := s.ListDocuments(ctx, []string{"extras"})
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "c2", scoped[0].ID)
}

func TestSQLiteStore_DeleteChunks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveChunks(ctx, []*Chunk{
		{ID: "c1", Repo: "core", Content: "alpha"},
		{ID: "c2", Repo: "core", Content: "beta"},
	}))
	require.NoError(t, s.DeleteChunks(ctx, []string{"c1"}))

	count, err := s.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLiteStore_State(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	unset, err := s.GetState(ctx, StateKeyIndexModel)
	require.NoError(t, err)
	assert.Equal(t, "", unset)

	require.NoError(t, s.SetState(ctx, StateKeyIndexModel, "nomic-embed-text"))
	require.NoError(t, s.SetState(ctx, StateKeyIndexModel, "static-hash"))

	got, err := s.GetState(ctx, StateKeyIndexModel)
	require.NoError(t, err)
	assert.Equal(t, "static-hash", got)
}

func TestSQLiteStore_GraphSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveEntities(ctx, []*Entity{
		{ID: "e1", Repo: "core", Name: "PaymentService", Kind: "class"},
		{ID: "e2", Repo: "core", Name: "RetryPolicy", Kind: "class"},
		{ID: "e3", Repo: "core", Name: "Unrelated", Kind: "module"},
	}))
	require.NoError(t, s.SaveRelations(ctx, []*Relation{
		{SourceID: "e1", TargetID: "e2", Repo: "core", Kind: "uses", Weight: 1.0},
	}))

	results, err := s.Search(ctx, []string{"paymentservice"}, nil, 10)

	require.NoError(t, err)
	require.Len(t, results, 2)

	// Direct match first, then its one-hop neighbor with the edge kind.
	assert.Equal(t, "e1", results[0].Entity.ID)
	assert.Empty(t, results[0].Relationship)
	assert.Equal(t, "e2", results[1].Entity.ID)
	assert.Equal(t, "uses", results[1].Relationship)
	assert.Equal(t, 1.0, results[1].Weight)
}

func TestSQLiteStore_GraphSearch_CaseInsensitiveSubstring(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveEntities(ctx, []*Entity{
		{ID: "e1", Repo: "core", Name: "StreamingTextResponse"},
	}))

	results, err := s.Search(ctx, []string{"textresponse"}, nil, 10)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "e1", results[0].Entity.ID)
}

func TestSQLiteStore_GraphSearch_RepoScoping(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveEntities(ctx, []*Entity{
		{ID: "e1", Repo: "core", Name: "Handler"},
		{ID: "e2", Repo: "extras", Name: "Handler"},
	}))

	results, err := s.Search(ctx, []string{"handler"}, []string{"extras"}, 10)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "e2", results[0].Entity.ID)
}

func TestSQLiteStore_GraphSearch_LikeWildcardsEscaped(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveEntities(ctx, []*Entity{
		{ID: "e1", Repo: "core", Name: "percent%name"},
		{ID: "e2", Repo: "core", Name: "other"},
	}))

	// "%" must match literally, not as a LIKE wildcard.
	results, err := s.Search(ctx, []string{"percent%"}, nil, 10)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "e1", results[0].Entity.ID)
}

func TestSQLiteStore_GraphSearch_Limit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveEntities(ctx, []*Entity{
		{ID: "e1", Repo: "core", Name: "Handler"},
		{ID: "e2", Repo: "core", Name: "HandlerFactory"},
		{ID: "e3", Repo: "core", Name: "HandlerPool"},
	}))

	results, err := s.Search(ctx, []string{"handler"}, nil, 2)

	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSQLiteStore_Counts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveEntities(ctx, []*Entity{
		{ID: "e1", Repo: "core", Name: "A"},
		{ID: "e2", Repo: "core", Name: "B"},
	}))
	require.NoError(t, s.SaveRelations(ctx, []*Relation{
		{SourceID: "e1", TargetID: "e2", Repo: "core", Kind: "uses"},
	}))

	entities, relations, err := s.Counts(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, entities)
	assert.Equal(t, 1, relations)
}

func TestSQLiteStore_PersistsToDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "metadata.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveChunks(ctx, []*Chunk{{ID: "c1", Repo: "core", Content: "alpha"}}))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	count, err := reopened.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLiteStore_ClosedErrs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Close())

	assert.Error(t, s.SaveChunks(ctx, []*Chunk{{ID: "c1"}}))
	_, err := s.ChunkCount(ctx)
	assert.Error(t, err)
	assert.NoError(t, s.Close())
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\%`, escapeLike("100%"))
	assert.Equal(t, `a\_b`, escapeLike("a_b"))
	assert.Equal(t, `back\\slash`, escapeLike(`back\slash`))
}
