package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/query"
	"github.com/quarrylabs/quarry/internal/search"
	"github.com/quarrylabs/quarry/internal/telemetry"
	"github.com/quarrylabs/quarry/pkg/version"
)

// Server is the MCP server for quarry. It bridges AI clients with the
// hybrid search engine.
type Server struct {
	mcp    *mcp.Server
	engine *search.Engine
	config *config.Config
	logger *slog.Logger

	// Query telemetry (optional, set via SetMetrics)
	metrics *telemetry.Metrics

	mu sync.RWMutex
}

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query        string   `json:"query" jsonschema:"the search query to execute"`
	Limit        int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, max 100"`
	Repos        []string `json:"repos,omitempty" jsonschema:"restrict results to these repositories (OR logic)"`
	Type         string   `json:"type,omitempty" jsonschema:"force query type: conceptual, identifier, relationship, fuzzy, pattern, mixed"`
	MinDiversity int      `json:"min_diversity,omitempty" jsonschema:"keep only results found by at least this many strategies"`
	Explain      bool     `json:"explain,omitempty" jsonschema:"include a per-strategy score breakdown on each result"`

	Weights map[string]float64 `json:"weights,omitempty" jsonschema:"override strategy weights (dense, sparse, pattern, graph); normalized before use"`
	RRFK    int                `json:"rrf_k,omitempty" jsonschema:"RRF smoothing constant k, default 60"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	QueryType string               `json:"query_type" jsonschema:"classified query type"`
	Results   []SearchResultOutput `json:"results" jsonschema:"fused, ranked results"`
	Coverage  map[string]float64   `json:"coverage" jsonschema:"fraction of results each strategy contributed to"`
	Degraded  map[string]string    `json:"degraded,omitempty" jsonschema:"strategies that failed, with error messages"`
}

// SearchResultOutput defines a single search result with ranking context.
type SearchResultOutput struct {
	ID           string         `json:"id" jsonschema:"chunk ID, or entity:<id> for graph hits"`
	Repo         string         `json:"repo,omitempty" jsonschema:"owning repository"`
	Content      string         `json:"content" jsonschema:"matched content snippet"`
	Score        float64        `json:"score" jsonschema:"fused RRF score"`
	Sources      map[string]int `json:"sources" jsonschema:"contributing strategies and the result's rank in each"`
	MatchedTerms []string       `json:"matched_terms,omitempty" jsonschema:"query terms that matched this result"`
	Explanation  string         `json:"explanation,omitempty" jsonschema:"human-readable score breakdown"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Stats      IndexStatsOutput `json:"stats"`
	Embeddings EmbeddingInfo    `json:"embeddings"`
}

// IndexStatsOutput summarizes index state across all stores.
type IndexStatsOutput struct {
	ChunkCount    int `json:"chunk_count"`
	VectorCount   int `json:"vector_count"`
	SparseDocs    int `json:"sparse_docs"`
	PatternTerms  int `json:"pattern_terms"`
	EntityCount   int `json:"entity_count"`
	RelationCount int `json:"relation_count"`
}

// EmbeddingInfo describes the active embedder so clients can adjust their
// search strategy when the static fallback is active.
type EmbeddingInfo struct {
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	Dimensions       int    `json:"dimensions"`
	IsFallbackActive bool   `json:"is_fallback_active"`
	Status           string `json:"status"`
}

// QueryMetricsInput defines the input schema for the query_metrics tool (no parameters).
type QueryMetricsInput struct{}

// NewServer creates a new MCP server.
func NewServer(engine *search.Engine, cfg *config.Config) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		engine: engine,
		config: cfg,
		logger: slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "quarry",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()

	return s, nil
}

// SetMetrics sets the query metrics collector. When set, search calls are
// recorded and the query_metrics tool reports live data.
func (s *Server) SetMetrics(m *telemetry.Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "quarry", version.Version
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Hybrid code search. Fans a query out to semantic, keyword, fuzzy-pattern, and relationship-graph retrieval and fuses the rankings. Use explain=true to see why a result ranked where it did.",
	}, s.mcpSearchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Check index readiness and which embedder is active. Use before searching to verify the index is complete.",
	}, s.mcpIndexStatusHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "query_metrics",
		Description: "Local query telemetry: query type distribution, top terms, zero-result queries, and latency histogram.",
	}, s.mcpQueryMetricsHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", 3))
}

// mcpSearchHandler is the MCP SDK handler for the search tool.
func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required and must be non-empty")
	}

	opts := search.Options{
		Limit:        input.Limit,
		Repos:        input.Repos,
		MinDiversity: input.MinDiversity,
		Explain:      input.Explain,
		RRFConstant:  input.RRFK,
	}
	if len(input.Weights) > 0 {
		for name, v := range input.Weights {
			if v < 0 {
				return nil, SearchOutput{}, NewInvalidParamsError(
					fmt.Sprintf("weight for %q must be non-negative", name))
			}
		}
		// Proportions are normalized by the engine before dispatch.
		opts.ForceWeights = &query.SearchWeights{
			Dense:   input.Weights["dense"],
			Sparse:  input.Weights["sparse"],
			Pattern: input.Weights["pattern"],
			Graph:   input.Weights["graph"],
		}
	}
	if input.Type != "" {
		qt := query.QueryType(input.Type)
		if !query.ValidQueryType(qt) {
			return nil, SearchOutput{}, NewInvalidParamsError(
				fmt.Sprintf("unknown query type %q", input.Type))
		}
		opts.ForceType = qt
	}

	start := time.Now()
	requestID := generateRequestID()
	s.logger.Info("search started",
		slog.String("request_id", requestID),
		slog.String("query", input.Query))

	resp, err := s.engine.Search(ctx, input.Query, opts)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("search failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	s.logger.Info("search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(resp.Results)))

	s.recordQuery(resp, duration)

	return nil, toSearchOutput(resp), nil
}

// mcpIndexStatusHandler is the MCP SDK handler for the index_status tool.
func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	stats, err := s.engine.Stats(ctx)
	if err != nil {
		return nil, nil, MapError(err)
	}

	output := &IndexStatusOutput{
		Stats: IndexStatsOutput{
			ChunkCount:    stats.ChunkCount,
			VectorCount:   stats.VectorCount,
			PatternTerms:  stats.PatternTerms,
			EntityCount:   stats.EntityCount,
			RelationCount: stats.RelationCount,
		},
		Embeddings: EmbeddingInfo{
			Provider:         s.config.Embeddings.Provider,
			Model:            stats.EmbedderModel,
			Dimensions:       stats.Dimensions,
			IsFallbackActive: stats.EmbedderModel == "static-hash",
			Status:           "ready",
		},
	}
	if stats.SparseStats != nil {
		output.Stats.SparseDocs = stats.SparseStats.DocumentCount
	}
	if stats.ChunkCount == 0 {
		output.Embeddings.Status = "empty"
	}

	return nil, output, nil
}

// mcpQueryMetricsHandler is the MCP SDK handler for the query_metrics tool.
func (s *Server) mcpQueryMetricsHandler(_ context.Context, _ *mcp.CallToolRequest, _ QueryMetricsInput) (
	*mcp.CallToolResult,
	*telemetry.Snapshot,
	error,
) {
	s.mu.RLock()
	m := s.metrics
	s.mu.RUnlock()

	if m == nil {
		return nil, &telemetry.Snapshot{}, nil
	}
	return nil, m.Snapshot(), nil
}

// recordQuery feeds a completed search into telemetry.
func (s *Server) recordQuery(resp *search.Response, duration time.Duration) {
	s.mu.RLock()
	m := s.metrics
	s.mu.RUnlock()

	if m == nil {
		return
	}
	m.Record(telemetry.QueryEvent{
		Query:       resp.Query,
		QueryType:   resp.Analysis.QueryType,
		ResultCount: len(resp.Results),
		Degraded:    len(resp.Metrics.Degraded),
		Latency:     duration,
		Timestamp:   time.Now(),
	})
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("MCP server stopped with error",
				slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
