package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sessionmcp/sessionmcp/internal/aux"
	"github.com/sessionmcp/sessionmcp/internal/rank"
	"github.com/sessionmcp/sessionmcp/internal/registry"
	"github.com/sessionmcp/sessionmcp/internal/search"
	"github.com/sessionmcp/sessionmcp/internal/vectorstore"
)

func TestFormatForkDetect_EmptyResults(t *testing.T) {
	// Given: no results
	// When: formatting
	out := FormatForkDetect("retry bug", nil)

	// Then: it says nothing matched, including the query
	assert.Contains(t, out, "No prior sessions found")
	assert.Contains(t, out, "retry bug")
}

func TestFormatForkDetect_ListsSessionsWithScoreAndPreview(t *testing.T) {
	// Given: two ranked results, one tagged
	results := []search.Result{
		{
			Session: registry.Session{SessionID: "s1", Project: "proj-a", Tags: []string{"bugfix"}},
			Score:   rank.Score{Total: 0.842},
			Preview: "fixed the retry timeout",
		},
		{
			Session: registry.Session{SessionID: "s2"},
			Score:   rank.Score{Total: 0.5},
		},
	}

	// When: formatting
	out := FormatForkDetect("retry bug", results)

	// Then: both sessions, the score, project, tag, and preview all appear
	assert.Contains(t, out, "s1")
	assert.Contains(t, out, "0.842")
	assert.Contains(t, out, "proj-a")
	assert.Contains(t, out, "bugfix")
	assert.Contains(t, out, "fixed the retry timeout")
	assert.Contains(t, out, "s2")
}

func TestFormatSessionPreview_Empty(t *testing.T) {
	out := FormatSessionPreview("s1", "")
	assert.Contains(t, out, "No preview available")
	assert.Contains(t, out, "s1")
}

func TestFormatForkHistory_EmptyAndPopulated(t *testing.T) {
	// Given: no entries
	assert.Equal(t, "No fork history recorded yet.", FormatForkHistory(nil))

	// Given: one entry
	entries := []aux.ForkEntry{
		{SessionID: "s1", Query: "retry bug", SelectedPosition: 2, Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
	}

	// When: formatting
	out := FormatForkHistory(entries)

	// Then: the session, query, and position all appear
	assert.Contains(t, out, "s1")
	assert.Contains(t, out, "retry bug")
	assert.Contains(t, out, "2")
}

func TestFormatTagList_EmptyAndPopulated(t *testing.T) {
	assert.Contains(t, FormatTagList("s1", nil), "no tags")
	out := FormatTagList("s1", []string{"bugfix", "urgent"})
	assert.Contains(t, out, "bugfix")
	assert.Contains(t, out, "urgent")
}

func TestFormatClusters_LabelsFallBackToUnlabeled(t *testing.T) {
	// Given: a cluster with no dominant tag or project
	clusters := []aux.Cluster{{ID: 1, SessionIDs: []string{"s1", "s2"}, Silhouette: 0.4}}

	// When: formatting
	out := FormatClusters(clusters)

	// Then: it falls back to "(unlabeled)"
	assert.Contains(t, out, "(unlabeled)")
}

func TestFormatClusterMembership_NotFound(t *testing.T) {
	out := FormatClusterMembership("s1", aux.Cluster{}, false)
	assert.Contains(t, out, "has not been assigned")
}

func TestFormatDiff_IncludesScoresAndCounts(t *testing.T) {
	d := aux.DiffResult{
		SessionA: "s1", SessionB: "s2",
		CombinedScore: 0.7, ContentScore: 0.6, TopicOverlap: 0.8,
		MatchedPairs: []aux.ChunkPair{{}},
		UniqueToA:    []vectorstore.ChunkRecord{{ChunkID: "a"}},
		UniqueToB:    []vectorstore.ChunkRecord{{ChunkID: "b"}, {ChunkID: "c"}},
	}
	out := FormatDiff(d)
	assert.Contains(t, out, "s1")
	assert.Contains(t, out, "s2")
	assert.Contains(t, out, "0.700")
}
