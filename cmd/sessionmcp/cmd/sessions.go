package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sessionmcp/sessionmcp/internal/env"
	"github.com/sessionmcp/sessionmcp/internal/registry"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage tracked sessions (spec.md §4.6, §4.12)",
	}
	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsStatsCmd())
	cmd.AddCommand(newSessionsTagCmd())
	cmd.AddCommand(newSessionsUntagCmd())
	cmd.AddCommand(newSessionsDuplicatesCmd())
	return cmd
}

var sessionsListFlags struct {
	project  string
	tag      string
	archived bool
}

func newSessionsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked sessions, most recently updated first",
		RunE: func(c *cobra.Command, _ []string) error {
			return withEnvironment(c, func(e *env.Environment) error {
				var archivedPtr *bool
				if c.Flags().Changed("archived") {
					archivedPtr = &sessionsListFlags.archived
				}
				sessions := e.Registry.List(registry.ListFilter{
					Project:  sessionsListFlags.project,
					Tag:      sessionsListFlags.tag,
					Archived: archivedPtr,
				})
				if len(sessions) == 0 {
					fmt.Fprintln(c.OutOrStdout(), "no sessions tracked")
					return nil
				}
				for _, s := range sessions {
					fmt.Fprintf(c.OutOrStdout(), "%s  project=%s  messages=%d  chunks=%d  archived=%t  tags=%v\n",
						s.SessionID, s.Project, s.MessageCount, s.ChunkCount, s.Archived, s.Tags)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sessionsListFlags.project, "project", "", "Restrict to one project")
	cmd.Flags().StringVar(&sessionsListFlags.tag, "tag", "", "Restrict to sessions carrying this tag")
	cmd.Flags().BoolVar(&sessionsListFlags.archived, "archived", false, "Restrict to archived (or, with no flag, all) sessions")
	return cmd
}

// newSessionsStatsCmd reports registry/vector-store reconciliation (spec.md
// §3 "Ownership"), one of SPEC_FULL.md's supplemented diagnostic surfaces.
func newSessionsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize registry and vector store counts",
		RunE: func(c *cobra.Command, _ []string) error {
			return withEnvironment(c, func(e *env.Environment) error {
				regStats := e.Registry.GetStats()
				storeStats := e.Store.GetStats()
				fmt.Fprintf(c.OutOrStdout(), "registry: sessions=%d archived=%d chunks=%d projects=%v\n",
					regStats.TotalSessions, regStats.ArchivedSessions, regStats.TotalChunks, regStats.Projects)
				fmt.Fprintf(c.OutOrStdout(), "vector store: active=%d archive=%d\n",
					storeStats.ActiveChunks, storeStats.ArchiveChunks)
				if regStats.TotalChunks != storeStats.ActiveChunks+storeStats.ArchiveChunks {
					fmt.Fprintln(c.OutOrStdout(), "warning: registry chunk_count and vector store chunk count disagree")
				}
				return nil
			})
		},
	}
}

func newSessionsTagCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tag <session-id> <tag>",
		Short: "Add a tag to a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			return withEnvironment(c, func(e *env.Environment) error {
				if err := e.Tagger.AddTag(args[0], args[1]); err != nil {
					return withExitCode(1, err)
				}
				fmt.Fprintf(c.OutOrStdout(), "tagged %s: %s\n", args[0], args[1])
				return nil
			})
		},
	}
}

func newSessionsUntagCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "untag <session-id> <tag>",
		Short: "Remove a tag from a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			return withEnvironment(c, func(e *env.Environment) error {
				if err := e.Tagger.RemoveTag(args[0], args[1]); err != nil {
					return withExitCode(1, err)
				}
				fmt.Fprintf(c.OutOrStdout(), "untagged %s: %s\n", args[0], args[1])
				return nil
			})
		},
	}
}

func newSessionsDuplicatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "duplicates",
		Short: "Flag session pairs whose mean chunk embeddings are highly similar (spec.md §4.12)",
		RunE: func(c *cobra.Command, _ []string) error {
			return withEnvironment(c, func(e *env.Environment) error {
				pairs := e.Duplicates.Detect(e.Config.Aux.DuplicateThreshold, e.Config.Aux.DuplicateMinChunks)
				if len(pairs) == 0 {
					fmt.Fprintln(c.OutOrStdout(), "no likely duplicates found")
					return nil
				}
				for _, p := range pairs {
					fmt.Fprintf(c.OutOrStdout(), "%s <-> %s  similarity=%.4f\n", p.SessionA, p.SessionB, p.Similarity)
				}
				return nil
			})
		},
	}
}

// withEnvironment assembles an Environment for the duration of one command
// invocation and guarantees it's closed afterward — every `sessions`
// subcommand is a one-shot CLI call, not the long-lived `serve` daemon, so
// none of them start the background indexer or archive scheduler.
func withEnvironment(c *cobra.Command, fn func(e *env.Environment) error) error {
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

	return fn(environment)
}
