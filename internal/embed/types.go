// Package embed generates dense vectors for chunks and queries. The default
// implementation talks to a local Ollama instance; a deterministic static
// embedder serves as an offline fallback and test double.
package embed

import (
	"context"
	"time"
)

// Embedder converts text into dense vectors.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the backend is reachable.
	Available(ctx context.Context) bool

	Close() error
}

// Default Ollama embedder settings.
const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"
	DefaultDimensions  = 768
	DefaultBatchSize   = 32
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
)

// FallbackOllamaModels are tried in order when the configured model is not
// installed.
var FallbackOllamaModels = []string{
	"nomic-embed-text",
	"mxbai-embed-large",
	"all-minilm",
}

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	// Host is the Ollama API base URL.
	Host string

	// Model is the embedding model name.
	Model string

	// FallbackModels are tried when Model is unavailable.
	FallbackModels []string

	// Dimensions is the expected vector dimension; 0 auto-detects.
	Dimensions int

	// BatchSize is the number of texts per API call.
	BatchSize int

	// Timeout bounds a single embedding request.
	Timeout time.Duration

	// MaxRetries is the number of attempts per batch.
	MaxRetries int

	// SkipHealthCheck skips the startup model probe, for testing.
	SkipHealthCheck bool
}

// DefaultOllamaConfig returns the default embedder configuration.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:           DefaultOllamaHost,
		Model:          DefaultOllamaModel,
		FallbackModels: FallbackOllamaModels,
		BatchSize:      DefaultBatchSize,
		Timeout:        DefaultTimeout,
		MaxRetries:     DefaultMaxRetries,
	}
}

// ollamaEmbedRequest is the /api/embed request body.
type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

// ollamaEmbedResponse is the /api/embed response body.
type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// ollamaModelInfo describes one installed model in /api/tags output.
type ollamaModelInfo struct {
	Name string `json:"name"`
}

// ollamaModelListResponse is the /api/tags response body.
type ollamaModelListResponse struct {
	Models []ollamaModelInfo `json:"models"`
}
