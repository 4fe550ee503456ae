package rpc

import (
	"fmt"
	"strings"

	"github.com/sessionmcp/sessionmcp/internal/aux"
	"github.com/sessionmcp/sessionmcp/internal/search"
)

// FormatForkDetect renders ranked search results as a markdown "## header,
// numbered list" block for an MCP client to display.
func FormatForkDetect(query string, results []search.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No prior sessions found for %q.", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Sessions matching %q\n\n", query)
	fmt.Fprintf(&sb, "Found %d session%s\n\n", len(results), plural(len(results)))

	for i, r := range results {
		fmt.Fprintf(&sb, "%d. **%s** (score %.3f", i+1, r.Session.SessionID, r.Score.Total)
		if r.Session.Project != "" {
			fmt.Fprintf(&sb, ", project `%s`", r.Session.Project)
		}
		sb.WriteString(")\n")
		if len(r.Session.Tags) > 0 {
			fmt.Fprintf(&sb, "   tags: %s\n", strings.Join(r.Session.Tags, ", "))
		}
		if r.Preview != "" {
			fmt.Fprintf(&sb, "   > %s\n", strings.ReplaceAll(r.Preview, "\n", "\n   > "))
		}
	}
	return sb.String()
}

// FormatSessionPreview renders a single session's preview text.
func FormatSessionPreview(sessionID, preview string) string {
	if preview == "" {
		return fmt.Sprintf("No preview available for session `%s`.", sessionID)
	}
	return fmt.Sprintf("## Preview: %s\n\n%s", sessionID, preview)
}

// FormatForkHistory renders a fork-history list.
func FormatForkHistory(entries []aux.ForkEntry) string {
	if len(entries) == 0 {
		return "No fork history recorded yet."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Fork History (%d entr%s)\n\n", len(entries), pluralY(len(entries)))
	for _, e := range entries {
		fmt.Fprintf(&sb, "- %s — session `%s`, query %q, selected position %d\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.SessionID, e.Query, e.SelectedPosition)
	}
	return sb.String()
}

// FormatForkRecorded renders a confirmation of a recorded fork.
func FormatForkRecorded(e aux.ForkEntry) string {
	return fmt.Sprintf("Recorded fork of session `%s` at position %d for query %q.", e.SessionID, e.SelectedPosition, e.Query)
}

// FormatTagList renders a session's tags.
func FormatTagList(sessionID string, tags []string) string {
	if len(tags) == 0 {
		return fmt.Sprintf("Session `%s` has no tags.", sessionID)
	}
	return fmt.Sprintf("Session `%s` tags: %s", sessionID, strings.Join(tags, ", "))
}

// FormatTagChanged confirms a tag add/remove.
func FormatTagChanged(action, sessionID, tag string) string {
	return fmt.Sprintf("%s tag `%s` on session `%s`.", action, tag, sessionID)
}

// FormatSummary renders a session's extractive summary.
func FormatSummary(sessionID, summary string) string {
	if summary == "" {
		return fmt.Sprintf("Session `%s` has no content to summarize yet.", sessionID)
	}
	return fmt.Sprintf("## Summary: %s\n\n%s", sessionID, summary)
}

// FormatClusters renders the full cluster set produced by cluster-sessions.
func FormatClusters(clusters []aux.Cluster) string {
	if len(clusters) == 0 {
		return "No sessions available to cluster."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Session Clusters (%d cluster%s)\n\n", len(clusters), plural(len(clusters)))
	for _, c := range clusters {
		label := c.DominantTag
		if label == "" {
			label = c.DominantProject
		}
		if label == "" {
			label = "(unlabeled)"
		}
		fmt.Fprintf(&sb, "- Cluster %d — %s, %d session%s, silhouette %.3f\n", c.ID, label, len(c.SessionIDs), plural(len(c.SessionIDs)), c.Silhouette)
	}
	return sb.String()
}

// FormatClusterMembership renders the one cluster a session belongs to.
func FormatClusterMembership(sessionID string, c aux.Cluster, found bool) string {
	if !found {
		return fmt.Sprintf("Session `%s` has not been assigned to a cluster yet. Run cluster-sessions first.", sessionID)
	}
	return fmt.Sprintf("Session `%s` belongs to cluster %d (%s).", sessionID, c.ID, clusterLabel(c))
}

// FormatClusterSessions renders the sessions belonging to one cluster.
func FormatClusterSessions(c aux.Cluster, found bool) string {
	if !found {
		return "No such cluster. Run cluster-sessions first."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Cluster %d (%s)\n\n", c.ID, clusterLabel(c))
	for _, id := range c.SessionIDs {
		fmt.Fprintf(&sb, "- %s\n", id)
	}
	return sb.String()
}

func clusterLabel(c aux.Cluster) string {
	if c.DominantTag != "" {
		return c.DominantTag
	}
	if c.DominantProject != "" {
		return c.DominantProject
	}
	return "unlabeled"
}

// FormatDiff renders a compare-sessions result.
func FormatDiff(d aux.DiffResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Comparing %s vs %s\n\n", d.SessionA, d.SessionB)
	fmt.Fprintf(&sb, "Overall similarity: %.3f (content %.3f, topic overlap %.3f)\n\n", d.CombinedScore, d.ContentScore, d.TopicOverlap)
	fmt.Fprintf(&sb, "Matched: %d chunk pair%s. Unique to %s: %d. Unique to %s: %d.\n",
		len(d.MatchedPairs), plural(len(d.MatchedPairs)), d.SessionA, len(d.UniqueToA), d.SessionB, len(d.UniqueToB))
	return sb.String()
}

// FormatSimilarSessions renders a get-similar-sessions result as its own
// numbered list of session ids and total scores (no project, tags or
// preview, unlike FormatForkDetect).
func FormatSimilarSessions(sessionID string, results []search.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No sessions similar to `%s` found.", sessionID)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Sessions similar to %s\n\n", sessionID)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. **%s** (score %.3f)\n", i+1, r.Session.SessionID, r.Score.Total)
	}
	return sb.String()
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
