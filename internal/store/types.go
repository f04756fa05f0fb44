// Package store provides the four retrieval backends (HNSW vectors, SQLite
// FTS5 / bleve lexical index, trigram pattern index, SQLite entity graph)
// plus chunk metadata persistence. This is the persistence layer for all
// indexed corpus data.
package store

import (
	"context"
	"fmt"
	"time"
)

// Chunk is a retrievable unit of corpus content.
type Chunk struct {
	ID        string            // Content-addressed chunk identifier
	Repo      string            // Owning repository name
	Path      string            // Source path within the repository
	Content   string            // Full chunk text
	Metadata  map[string]string // Custom metadata
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Entity is a named node in the corpus graph (class, function, service, ...).
type Entity struct {
	ID         string            // Entity identifier
	Repo       string            // Owning repository name
	Name       string            // Display name, e.g. "StreamingTextResponse"
	Kind       string            // class, function, module, ...
	Properties map[string]string // Arbitrary key-value properties
}

// Relation is a directed edge between two entities.
type Relation struct {
	SourceID string  // Source entity ID
	TargetID string  // Target entity ID
	Repo     string  // Owning repository name
	Kind     string  // uses, imports, extends, ...
	Weight   float64 // Optional edge weight; 0 when absent
}

// Document is the unit handed to the sparse and pattern indexes.
type Document struct {
	ID      string // Chunk ID
	Repo    string // Owning repository name
	Content string // Text content
}

// VectorResult is a single dense search hit, ordered by ascending distance.
type VectorResult struct {
	ID       string  // Chunk ID
	Distance float32 // Lower is more similar (0-2 for cosine)
	Score    float32 // Normalized similarity (0-1)
}

// SparseResult is a single lexical search hit.
type SparseResult struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// PatternResult is a single fuzzy pattern hit, ordered by descending similarity.
type PatternResult struct {
	DocID      string
	Repo       string
	Similarity float64 // Edit-distance similarity in [0,1]
}

// GraphResult is a single graph traversal hit. Graph hits carry no native
// rank score; callers treat array position as rank.
type GraphResult struct {
	Entity       *Entity
	Relationship string  // Edge kind that connected this hit, empty for direct matches
	Weight       float64 // Edge weight when present
}

// IndexStats provides statistics about the sparse index.
type IndexStats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// VectorStore provides dense retrieval using an HNSW graph.
type VectorStore interface {
	// Add inserts vectors with their IDs. If an ID exists, it is replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds k nearest neighbors to the query vector.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Delete removes vectors by ID.
	Delete(ctx context.Context, ids []string) error

	// Contains checks if ID exists.
	Contains(id string) bool

	// Count returns number of vectors.
	Count() int

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// SparseIndex provides lexical retrieval with BM25 scoring.
type SparseIndex interface {
	// Index adds documents to the index.
	Index(ctx context.Context, docs []*Document) error

	// Search returns documents matching query, best first, optionally
	// scoped to the given repositories (empty means all).
	Search(ctx context.Context, query string, repos []string, limit int) ([]*SparseResult, error)

	// Delete removes documents from the index.
	Delete(ctx context.Context, docIDs []string) error

	// Stats returns index statistics.
	Stats() *IndexStats

	Close() error
}

// PatternIndex provides approximate matching over indexed terms using
// trigram prefiltering and edit-distance rescoring.
type PatternIndex interface {
	// Index adds documents, extracting their terms into the trigram index.
	Index(ctx context.Context, docs []*Document) error

	// Search returns documents containing a term similar to the pattern,
	// best first, optionally scoped to the given repositories. Candidates
	// below threshold are discarded; a non-positive threshold selects the
	// default of 0.7.
	Search(ctx context.Context, pattern string, repos []string, limit int, threshold float64) ([]*PatternResult, error)

	// Delete removes documents from the index.
	Delete(ctx context.Context, docIDs []string) error

	// TermCount returns the number of distinct indexed terms.
	TermCount() int

	Close() error
}

// GraphStore persists entities and relations and answers term queries.
type GraphStore interface {
	SaveEntities(ctx context.Context, entities []*Entity) error
	SaveRelations(ctx context.Context, relations []*Relation) error

	// Search returns entities whose name matches any of the terms, followed
	// by their one-hop neighbors. Unordered beyond that grouping; the
	// orchestrator treats array position as rank.
	Search(ctx context.Context, terms []string, repos []string, limit int) ([]*GraphResult, error)

	// Counts returns entity and relation counts.
	Counts(ctx context.Context) (entities, relations int, err error)

	Close() error
}

// MetadataStore persists chunk content and runtime state.
type MetadataStore interface {
	SaveChunks(ctx context.Context, chunks []*Chunk) error
	GetChunk(ctx context.Context, id string) (*Chunk, error)
	GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) // Batch retrieval
	ListDocuments(ctx context.Context, repos []string) ([]*Document, error)
	DeleteChunks(ctx context.Context, ids []string) error
	ChunkCount(ctx context.Context) (int, error)

	// State operations (key-value store for runtime state)
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	Close() error
}

// State keys for the metadata store.
const (
	// StateKeyIndexDimension stores the embedding dimension used for the index.
	StateKeyIndexDimension = "index_embedding_dimension"
	// StateKeyIndexModel stores the embedding model name used for the index.
	StateKeyIndexModel = "index_embedding_model"
)

// SparseConfig configures the sparse index.
type SparseConfig struct {
	// StopWords is a list of words to filter out during tokenization.
	StopWords []string

	// MinTokenLength is minimum token length to index (default: 2).
	MinTokenLength int
}

// DefaultSparseConfig returns default sparse index configuration.
func DefaultSparseConfig() SparseConfig {
	return SparseConfig{
		StopWords:      DefaultStopWords,
		MinTokenLength: 2,
	}
}

// DefaultStopWords contains common programming tokens to filter out.
var DefaultStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"the", "a", "an", "of", "to", "in",
}

// VectorStoreConfig configures the vector store.
type VectorStoreConfig struct {
	// Dimensions is the vector dimension.
	Dimensions int

	// Metric is the distance metric: "cos" (cosine), "l2" (euclidean).
	Metric string

	// M is HNSW max connections per layer.
	M int

	// EfSearch is HNSW query-time search width.
	EfSearch int
}

// DefaultVectorStoreConfig returns sensible defaults for the vector store.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   64,
	}
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'quarry index --force')", e.Expected, e.Got)
}
