package cmd

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/ui"
)

func newStatsCmd() *cobra.Command {
	var format string
	var offline bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), cmd, format, offline)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (no Ollama)")

	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, format string, offline bool) error {
	cfg := loadConfig()

	a, err := openApp(ctx, cfg, offline)
	if err != nil {
		return err
	}
	defer a.close()

	stats, err := a.engine.Stats(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	default:
		ui.RenderStats(out, stats, ui.GetStyles(!ui.ShouldColor(out)))
		return nil
	}
}
