package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/mcp"
	"github.com/quarrylabs/quarry/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve hybrid search over MCP",
		Long: `Serve exposes the search engine to AI clients over the Model
Context Protocol. Only the stdio transport is supported; stdout carries
the protocol stream, so all logging goes to file and stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), offline)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (no Ollama)")

	return cmd
}

func runServe(ctx context.Context, offline bool) error {
	cfg := loadConfig()

	a, err := openApp(ctx, cfg, offline)
	if err != nil {
		return err
	}
	defer a.close()

	server, err := mcp.NewServer(a.engine, cfg)
	if err != nil {
		return err
	}
	server.SetMetrics(telemetry.NewMetrics())

	return server.Serve(ctx, cfg.Server.Transport)
}
