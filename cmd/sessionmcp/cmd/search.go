package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sessionmcp/sessionmcp/internal/env"
	"github.com/sessionmcp/sessionmcp/internal/search"
)

var searchFlags struct {
	project        string
	scope          string
	tags           []string
	includeArchive bool
	limit          int
}

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a one-shot semantic search from the command line (spec.md §4.9)",
		Args: func(c *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(1)(c, args); err != nil {
				return invalidArgsError("%v", err)
			}
			return nil
		},
		RunE: func(c *cobra.Command, args []string) error {
			return runSearch(c, args[0])
		},
	}

	cmd.Flags().StringVar(&searchFlags.project, "project", "", "Restrict to one project")
	cmd.Flags().StringVar(&searchFlags.scope, "scope", "all", `Search scope: "all" or "project"`)
	cmd.Flags().StringSliceVar(&searchFlags.tags, "tag", nil, "Restrict to sessions carrying this tag (repeatable)")
	cmd.Flags().BoolVar(&searchFlags.includeArchive, "include-archive", false, "Union the archive partition into the search")
	cmd.Flags().IntVar(&searchFlags.limit, "limit", 0, "Maximum sessions to print (default from config top_n_sessions)")

	return cmd
}

func runSearch(c *cobra.Command, query string) error {
	if strings.TrimSpace(query) == "" {
		return invalidArgsError("query must not be empty")
	}
	if searchFlags.scope != "all" && searchFlags.scope != "project" {
		return invalidArgsError(`--scope must be "all" or "project"`)
	}

	cfg, err := loadConfig()
	if err != nil {
		return withExitCode(1, err)
	}
	logger, cleanupLogging, err := setupLogger()
	if err != nil {
		return withExitCode(1, err)
	}
	defer cleanupLogging()

	environment, err := env.Open(cfg, resolveClaudeDir(), logger)
	if err != nil {
		return withExitCode(1, fmt.Errorf("assemble environment: %w", err))
	}
	defer func() { _ = environment.Close() }()

	results, err := environment.Orchestrator.Search(c.Context(), query, search.Filters{
		Project:        searchFlags.project,
		Scope:          searchFlags.scope,
		Tags:           searchFlags.tags,
		IncludeArchive: searchFlags.includeArchive,
	}, searchFlags.limit)
	if err != nil {
		return withExitCode(1, err)
	}

	if len(results) == 0 {
		fmt.Fprintln(c.OutOrStdout(), "no matching sessions")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(c.OutOrStdout(), "%d. %s  score=%.4f  project=%s  updated=%s\n",
			i+1, r.Session.SessionID, r.Score.Total, r.Session.Project, r.Session.UpdatedAt.Format(time.RFC3339))
		if r.Preview != "" {
			fmt.Fprintf(c.OutOrStdout(), "   %s\n", strings.ReplaceAll(r.Preview, "\n", "\n   "))
		}
	}
	return nil
}
