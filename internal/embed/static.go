package embed

import (
	"context"
	"hash/fnv"
	"strings"
)

// StaticEmbedder is a deterministic, dependency-free embedder. It hashes
// tokens into a fixed number of buckets, which preserves exact-duplicate
// similarity but carries no semantics. It serves as the offline fallback
// when Ollama is unreachable and as a test double.
type StaticEmbedder struct {
	dims int
}

var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates a static embedder with the given dimension.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &StaticEmbedder{dims: dims}
}

// Embed hashes each whitespace token into a bucket and normalizes the result.
func (s *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, s.dims)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[int(h.Sum32())%s.dims] += 1
	}
	return normalizeVector(vec), nil
}

// EmbedBatch embeds each text independently.
func (s *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = vec
	}
	return results, nil
}

// Dimensions returns the embedding dimension.
func (s *StaticEmbedder) Dimensions() int {
	return s.dims
}

// ModelName returns a fixed identifier for the static embedder.
func (s *StaticEmbedder) ModelName() string {
	return "static-hash"
}

// Available always reports true; there is no backend.
func (s *StaticEmbedder) Available(_ context.Context) bool {
	return true
}

// Close is a no-op.
func (s *StaticEmbedder) Close() error {
	return nil
}
