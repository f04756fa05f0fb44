package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/store"
)

// chunkBatchSize is how many chunks are indexed per engine call.
const chunkBatchSize = 100

// indexRecord is one line of a JSONL corpus file. Type selects which fields
// are meaningful: chunk (id, repo, path, content, metadata), entity (id,
// repo, name, kind, properties), relation (source_id, target_id, repo, kind,
// weight).
type indexRecord struct {
	Type string `json:"type"`

	ID       string            `json:"id,omitempty"`
	Repo     string            `json:"repo,omitempty"`
	Path     string            `json:"path,omitempty"`
	Content  string            `json:"content,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`

	Name       string            `json:"name,omitempty"`
	Kind       string            `json:"kind,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`

	SourceID string  `json:"source_id,omitempty"`
	TargetID string  `json:"target_id,omitempty"`
	Weight   float64 `json:"weight,omitempty"`
}

type indexOptions struct {
	offline bool
	force   bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index <corpus.jsonl>",
		Short: "Index a JSONL corpus of chunks, entities, and relations",
		Long: `Index reads a JSONL corpus and populates all four retrieval
backends: the vector store, the lexical index, the pattern index, and
the entity graph.

Each line is a JSON object with a "type" of chunk, entity, or relation.

Examples:
  quarry index corpus.jsonl
  quarry index corpus.jsonl --offline
  quarry index corpus.jsonl --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use static embeddings (no Ollama)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Rebuild the index from scratch")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, corpusPath string, opts indexOptions) error {
	out := cmd.OutOrStdout()
	cfg := loadConfig()

	if opts.force {
		if err := removeIndexFiles(cfg.Paths.DataDir); err != nil {
			return fmt.Errorf("clear index: %w", err)
		}
	}

	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	lock := store.NewIndexLock(cfg.Paths.DataDir)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire index lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("index is locked by another process (lock: %s)", lock.Path())
	}
	defer func() { _ = lock.Unlock() }()

	a, err := openApp(ctx, cfg, opts.offline)
	if err != nil {
		return err
	}
	defer a.close()

	file, err := os.Open(corpusPath)
	if err != nil {
		return fmt.Errorf("open corpus: %w", err)
	}
	defer func() { _ = file.Close() }()

	start := time.Now()
	var (
		chunks    []*store.Chunk
		entities  []*store.Entity
		relations []*store.Relation
		indexed   int
	)

	flushChunks := func() error {
		if len(chunks) == 0 {
			return nil
		}
		if err := a.engine.Index(ctx, chunks); err != nil {
			return err
		}
		indexed += len(chunks)
		fmt.Fprintf(out, "[INDEX] %d chunks\n", indexed)
		chunks = chunks[:0]
		return nil
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec indexRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}

		switch rec.Type {
		case "chunk":
			if rec.ID == "" || rec.Content == "" {
				return fmt.Errorf("line %d: chunk requires id and content", lineNum)
			}
			chunks = append(chunks, &store.Chunk{
				ID:       rec.ID,
				Repo:     rec.Repo,
				Path:     rec.Path,
				Content:  rec.Content,
				Metadata: rec.Metadata,
			})
			if len(chunks) >= chunkBatchSize {
				if err := flushChunks(); err != nil {
					return err
				}
			}
		case "entity":
			if rec.ID == "" || rec.Name == "" {
				return fmt.Errorf("line %d: entity requires id and name", lineNum)
			}
			entities = append(entities, &store.Entity{
				ID:         rec.ID,
				Repo:       rec.Repo,
				Name:       rec.Name,
				Kind:       rec.Kind,
				Properties: rec.Properties,
			})
		case "relation":
			if rec.SourceID == "" || rec.TargetID == "" {
				return fmt.Errorf("line %d: relation requires source_id and target_id", lineNum)
			}
			relations = append(relations, &store.Relation{
				SourceID: rec.SourceID,
				TargetID: rec.TargetID,
				Repo:     rec.Repo,
				Kind:     rec.Kind,
				Weight:   rec.Weight,
			})
		default:
			return fmt.Errorf("line %d: unknown record type %q", lineNum, rec.Type)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read corpus: %w", err)
	}
	if err := flushChunks(); err != nil {
		return err
	}

	if len(entities) > 0 || len(relations) > 0 {
		if err := a.engine.IndexGraph(ctx, entities, relations); err != nil {
			return err
		}
		fmt.Fprintf(out, "[GRAPH] %d entities, %d relations\n", len(entities), len(relations))
	}

	if err := a.vectors.Save(a.vectorPath); err != nil {
		return fmt.Errorf("save vectors: %w", err)
	}
	if err := a.recordEmbeddingState(ctx); err != nil {
		return err
	}

	fmt.Fprintf(out, "Complete: %d chunks, %d entities, %d relations in %s\n",
		indexed, len(entities), len(relations),
		time.Since(start).Round(100*time.Millisecond))
	return nil
}

// recordEmbeddingState persists the embedding model and dimension so later
// runs can detect incompatible indexes.
func (a *app) recordEmbeddingState(ctx context.Context) error {
	stats, err := a.engine.Stats(ctx)
	if err != nil {
		return err
	}
	if err := a.metadata.SetState(ctx, store.StateKeyIndexModel, stats.EmbedderModel); err != nil {
		return err
	}
	return a.metadata.SetState(ctx, store.StateKeyIndexDimension, strconv.Itoa(stats.Dimensions))
}

// removeIndexFiles deletes all on-disk index state for a full rebuild.
func removeIndexFiles(dataDir string) error {
	patterns := []string{
		"metadata.db", "metadata.db-wal", "metadata.db-shm",
		"sparse.db", "sparse.db-wal", "sparse.db-shm",
		"vectors.hnsw", "vectors.hnsw.meta",
	}
	for _, name := range patterns {
		if err := os.Remove(filepath.Join(dataDir, name)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	if err := os.RemoveAll(filepath.Join(dataDir, "sparse.bleve")); err != nil {
		return err
	}
	return nil
}
