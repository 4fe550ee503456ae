// Package cmd provides the CLI commands for sessionmcp.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sessionmcp/sessionmcp/internal/config"
	"github.com/sessionmcp/sessionmcp/internal/logging"
	"github.com/sessionmcp/sessionmcp/pkg/version"
)

// rootFlags holds the persistent, storage-location-affecting flags shared
// by every subcommand (spec.md §6 "CLI surface" + "Environment").
var rootFlags struct {
	storageDir string
	claudeDir  string
	debug      bool
}

// exitCodeError lets a subcommand request one of spec.md §6's non-zero
// exit codes (1 failure, 2 invalid arguments, 130 interrupted) instead of
// cobra's blanket "any error means exit 1".
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

// withExitCode wraps err so Execute reports the given process exit code.
func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitCodeError{code: code, err: err}
}

// invalidArgsError reports a usage problem (exit code 2).
func invalidArgsError(format string, args ...any) error {
	return withExitCode(2, fmt.Errorf(format, args...))
}

// interruptedError reports a clean interruption (exit code 130, the
// conventional SIGINT exit status).
func interruptedError(err error) error {
	return withExitCode(130, err)
}

// NewRootCmd builds the sessionmcp command tree. With no subcommand it
// starts the MCP stdio server directly (spec.md §4.13), the same as an
// explicit `sessionmcp serve`.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sessionmcp",
		Short:         "Local semantic search and session forking over AI coding-assistant transcripts",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(c *cobra.Command, _ []string) error {
			return runServe(c, serveOptions{})
		},
	}
	root.SetVersionTemplate("sessionmcp version {{.Version}}\n")

	root.PersistentFlags().StringVar(&rootFlags.storageDir, "storage-dir", "", "Storage directory for the registry, vector store, and caches (default: user-scoped ~/.sessionmcp)")
	root.PersistentFlags().StringVar(&rootFlags.claudeDir, "claude-dir", "", "Root directory the transcript producer writes into (default: ~/.claude/projects)")
	root.PersistentFlags().BoolVar(&rootFlags.debug, "debug", false, "Enable debug logging")

	root.AddCommand(newServeCmd())
	root.AddCommand(newSetupCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newSessionsCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// Execute runs the root command and returns the process exit code
// (spec.md §6 "Exit codes: 0 success, 1 failure, 2 invalid arguments,
// 130 interrupted").
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		var ec *exitCodeError
		if errors.As(err, &ec) {
			fmt.Fprintln(os.Stderr, ec.err)
			return ec.code
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// resolveStorageDir applies the STORAGE_DIR environment override over
// --storage-dir, falling back to config defaults (spec.md §6
// "Environment. STORAGE_DIR overrides --storage-dir").
func resolveStorageDir() string {
	if v := os.Getenv("STORAGE_DIR"); v != "" {
		return v
	}
	if rootFlags.storageDir != "" {
		return rootFlags.storageDir
	}
	return config.DefaultStorageDir()
}

// resolveClaudeDir applies the PRODUCER_DIR environment override over
// --claude-dir, falling back to the conventional transcript root.
func resolveClaudeDir() string {
	if v := os.Getenv("PRODUCER_DIR"); v != "" {
		return v
	}
	if rootFlags.claudeDir != "" {
		return rootFlags.claudeDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".claude", "projects")
}

// loadConfig loads config.json from the resolved storage directory,
// exiting with ConfigInvalid mapped to exit code 1 on failure (spec.md §7
// "ConfigInvalid ... fatal at startup").
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveStorageDir())
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

// setupLogger builds the shared slog.Logger, honoring --debug.
func setupLogger() (*slog.Logger, func(), error) {
	logCfg := logging.DefaultConfig()
	if rootFlags.debug {
		logCfg.Level = "debug"
	}
	return logging.Setup(logCfg)
}
