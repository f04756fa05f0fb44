package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/query"
	"github.com/quarrylabs/quarry/internal/search"
	"github.com/quarrylabs/quarry/internal/ui"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit        int
	repos        []string
	forceType    string
	minDiversity int
	threshold    float64
	patternSim   float64
	explain      bool
	heuristic    bool
	offline      bool
	format       string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a hybrid search against the index",
		Long: `Search fans the query out to semantic, keyword, fuzzy-pattern,
and relationship-graph retrieval, then fuses the rankings with weighted
Reciprocal Rank Fusion.

Examples:
  quarry search "how does authentication work"
  quarry search "getUserById" --type identifier --limit 5
  quarry search "what uses the payment service" --explain
  quarry search "streaming response" --repo vercel-ai --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringSliceVarP(&opts.repos, "repo", "r", nil, "Restrict to repositories (repeatable)")
	cmd.Flags().StringVarP(&opts.forceType, "type", "t", "", "Force query type: conceptual, identifier, relationship, fuzzy, pattern, mixed")
	cmd.Flags().IntVar(&opts.minDiversity, "min-diversity", 0, "Keep only results found by at least this many strategies")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", 0, "Drop results with a fused score below this value")
	cmd.Flags().Float64Var(&opts.patternSim, "pattern-threshold", 0, "Minimum similarity for fuzzy pattern matches (default 0.7)")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "Show a per-strategy score breakdown")
	cmd.Flags().BoolVar(&opts.heuristic, "heuristic", false, "Skip model classification, use heuristics only")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use static embeddings (no Ollama)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, queryText string, opts searchOptions) error {
	cfg := loadConfig()

	a, err := openApp(ctx, cfg, opts.offline)
	if err != nil {
		return err
	}
	defer a.close()

	searchOpts := search.Options{
		Limit:            opts.limit,
		Repos:            opts.repos,
		MinDiversity:     opts.minDiversity,
		Threshold:        opts.threshold,
		PatternThreshold: opts.patternSim,
		Explain:          opts.explain,
		UseFallback:      opts.heuristic,
	}
	if opts.forceType != "" {
		qt := query.QueryType(opts.forceType)
		if !query.ValidQueryType(qt) {
			return fmt.Errorf("unknown query type %q", opts.forceType)
		}
		searchOpts.ForceType = qt
	}

	resp, err := a.engine.Search(ctx, queryText, searchOpts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch opts.format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	default:
		ui.RenderResponse(out, resp, ui.GetStyles(!ui.ShouldColor(out)))
		return nil
	}
}
