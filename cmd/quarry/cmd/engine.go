package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/embed"
	"github.com/quarrylabs/quarry/internal/query"
	"github.com/quarrylabs/quarry/internal/search"
	"github.com/quarrylabs/quarry/internal/store"
)

// app bundles the wired engine with the handles commands need beyond the
// Engine interface (vector persistence, state writes).
type app struct {
	engine     *search.Engine
	vectors    *store.HNSWStore
	metadata   *store.SQLiteStore
	vectorPath string
	dataDir    string
}

// close releases all stores via the engine.
func (a *app) close() {
	if err := a.engine.Close(); err != nil {
		slog.Warn("close failed", slog.String("error", err.Error()))
	}
}

// openApp wires stores, embedder, classifier, and engine from config.
// offline forces the static embedder regardless of config.
func openApp(ctx context.Context, cfg *config.Config, offline bool) (*app, error) {
	dataDir := cfg.Paths.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	metadata, err := store.NewSQLiteStore(filepath.Join(dataDir, "metadata.db"))
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	backend := cfg.Search.SparseBackend
	if backend == "" {
		backend = string(store.DetectSparseBackend(filepath.Join(dataDir, "sparse")))
	}
	sparse, err := store.NewSparseIndexWithBackend(
		filepath.Join(dataDir, "sparse"), store.DefaultSparseConfig(), backend)
	if err != nil {
		_ = metadata.Close()
		return nil, fmt.Errorf("open sparse index: %w", err)
	}

	embedder, err := newEmbedder(ctx, cfg, offline)
	if err != nil {
		_ = sparse.Close()
		_ = metadata.Close()
		return nil, err
	}

	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	if stored, err := store.ReadStoredDimensions(vectorPath); err == nil && stored > 0 &&
		stored != embedder.Dimensions() {
		_ = embedder.Close()
		_ = sparse.Close()
		_ = metadata.Close()
		return nil, store.ErrDimensionMismatch{Expected: stored, Got: embedder.Dimensions()}
	}

	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embedder.Dimensions()))
	if err != nil {
		_ = embedder.Close()
		_ = sparse.Close()
		_ = metadata.Close()
		return nil, fmt.Errorf("create vector store: %w", err)
	}
	if _, err := os.Stat(vectorPath); err == nil {
		if err := vectors.Load(vectorPath); err != nil {
			slog.Warn("vector load failed, starting empty",
				slog.String("path", vectorPath),
				slog.String("error", err.Error()))
		}
	}

	// The trigram index lives in memory and is rebuilt from chunk metadata
	// at startup.
	patterns := store.NewTrigramIndex()
	docs, err := metadata.ListDocuments(ctx, nil)
	if err == nil && len(docs) > 0 {
		if err := patterns.Index(ctx, docs); err != nil {
			slog.Warn("pattern index rebuild failed", slog.String("error", err.Error()))
		}
	}

	engine, err := search.NewEngine(
		search.EngineConfig{
			RRFConstant:   cfg.Search.RRFConstant,
			SearchTimeout: cfg.Search.Timeout,
		},
		search.Deps{
			Classifier: newClassifier(cfg),
			Embedder:   embedder,
			Vectors:    vectors,
			Sparse:     sparse,
			Patterns:   patterns,
			Graph:      metadata,
			Metadata:   metadata,
		})
	if err != nil {
		_ = vectors.Close()
		_ = embedder.Close()
		_ = sparse.Close()
		_ = metadata.Close()
		return nil, err
	}

	return &app{
		engine:     engine,
		vectors:    vectors,
		metadata:   metadata,
		vectorPath: vectorPath,
		dataDir:    dataDir,
	}, nil
}

// newEmbedder selects the embedding provider. Ollama failures fall back to
// the static embedder so search stays usable offline.
func newEmbedder(ctx context.Context, cfg *config.Config, offline bool) (embed.Embedder, error) {
	if offline || cfg.Embeddings.Provider == "static" {
		return embed.NewStaticEmbedder(embed.DefaultDimensions), nil
	}

	ocfg := embed.DefaultOllamaConfig()
	ocfg.Host = cfg.Embeddings.OllamaHost
	ocfg.Model = cfg.Embeddings.Model
	ocfg.Dimensions = cfg.Embeddings.Dimensions
	ocfg.BatchSize = cfg.Embeddings.BatchSize

	embedder, err := embed.NewOllamaEmbedder(ctx, ocfg)
	if err != nil {
		slog.Warn("ollama unavailable, using static embeddings",
			slog.String("host", ocfg.Host),
			slog.String("error", err.Error()))
		return embed.NewStaticEmbedder(embed.DefaultDimensions), nil
	}
	return embedder, nil
}

// newClassifier builds the query classifier, model-backed unless disabled.
func newClassifier(cfg *config.Config) *query.Classifier {
	var model query.ModelClassifier
	if !cfg.Classifier.HeuristicOnly {
		model = query.NewOllamaClassifier(query.ModelConfig{
			Model:   cfg.Classifier.Model,
			Timeout: cfg.Classifier.Timeout,
			Host:    cfg.Embeddings.OllamaHost,
		})
	}
	return query.NewClassifierWithCacheSize(model, cfg.Classifier.CacheSize)
}

// loadConfig loads configuration, falling back to defaults on a missing file.
func loadConfig() *config.Config {
	cwd, _ := os.Getwd()
	cfg, err := config.Load(cwd)
	if err != nil {
		slog.Warn("config load failed, using defaults", slog.String("error", err.Error()))
		return config.NewConfig()
	}
	return cfg
}
