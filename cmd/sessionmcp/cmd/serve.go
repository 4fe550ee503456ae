package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sessionmcp/sessionmcp/internal/env"
)

// serveOptions configures one `serve` invocation. Currently empty — it
// exists so the root command's bare-invocation path and the explicit
// `serve` subcommand share one entry point that can grow flags later
// without changing either call site's shape.
type serveOptions struct{}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON-RPC/MCP stdio server (spec.md §4.13)",
		Long: `Starts the line-delimited JSON-RPC server on stdin/stdout, the
background indexer watching the transcript producer's directory, and the
optional scheduled archive sweep. This is what an editor plug-in's MCP
client launches as a subprocess.`,
		RunE: func(c *cobra.Command, _ []string) error {
			return runServe(c, serveOptions{})
		},
	}
	return cmd
}

// runServe builds the root Environment and blocks serving JSON-RPC over
// stdio until the process receives SIGINT/SIGTERM (spec.md §5 "The indexer
// honours a global cancel flag on shutdown").
func runServe(c *cobra.Command, _ serveOptions) error {
	ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, cleanupLogging, err := setupLogger()
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer cleanupLogging()

	environment, err := env.Open(cfg, resolveClaudeDir(), logger)
	if err != nil {
		return fmt.Errorf("assemble environment: %w", err)
	}
	defer func() { _ = environment.Close() }()

	if err := environment.StartIndexer(ctx); err != nil {
		return fmt.Errorf("start background indexer: %w", err)
	}
	if err := environment.StartArchiveSweep(); err != nil {
		logger.Warn("archive sweep did not start", "error", err)
	}

	server, err := environment.NewRPCServer()
	if err != nil {
		return fmt.Errorf("build rpc server: %w", err)
	}

	if err := server.Serve(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
