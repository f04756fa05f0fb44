// Package cmd provides the CLI commands for quarry.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/logging"
	"github.com/quarrylabs/quarry/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the quarry CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quarry",
		Short: "Hybrid retrieval and ranking over indexed corpora",
		Long: `Quarry fuses four retrieval strategies (semantic, keyword, fuzzy
pattern, and relationship graph) with weighted Reciprocal Rank Fusion.

Queries are classified to decide how much each strategy matters, and
every ranking can explain itself.

Run 'quarry serve' to expose search over MCP, or 'quarry search' for
one-off queries.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.SetVersionTemplate("quarry version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRunE = teardownLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupLogging configures structured logging before any command runs.
// MCP keeps stdout for the protocol stream, so logs go to file and stderr.
func setupLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

// teardownLogging flushes and closes the log file.
func teardownLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
