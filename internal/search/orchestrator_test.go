package search

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionmcp/sessionmcp/internal/cache"
	"github.com/sessionmcp/sessionmcp/internal/config"
	"github.com/sessionmcp/sessionmcp/internal/embedding"
	"github.com/sessionmcp/sessionmcp/internal/registry"
	"github.com/sessionmcp/sessionmcp/internal/vectorstore"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *embedding.StaticEmbedder) {
	t.Helper()
	dir := t.TempDir()

	reg, err := registry.Open(dir)
	require.NoError(t, err)

	disk, err := embedding.LoadDiskCache(filepath.Join(dir, "embeddings.json"))
	require.NoError(t, err)

	embedder := embedding.NewStaticEmbedder(16)
	gateway := embedding.New(embedder, disk)

	store, err := vectorstore.Open(16, vectorstore.Paths{
		ActiveIndex:  filepath.Join(dir, "active.hnsw"),
		ArchiveIndex: filepath.Join(dir, "archive.hnsw"),
		Metadata:     filepath.Join(dir, "meta.json"),
	})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Embedding.Dimension = 16

	return &Orchestrator{
		Registry: reg,
		Store:    store,
		Gateway:  gateway,
		Caches:   cache.New(cache.DefaultConfig()),
		Config:   cfg,
	}, embedder
}

func seedSession(t *testing.T, o *Orchestrator, sessionID, project, text string, dim, hot int) {
	t.Helper()
	require.NoError(t, o.Registry.Add(registry.Session{
		SessionID: sessionID,
		Project:   project,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
		ChunkCount: 1,
	}))
	v := make([]float32, dim)
	v[hot%dim] = 1
	require.NoError(t, o.Store.ReplaceSessionChunks(sessionID, []vectorstore.ChunkRecord{
		{ChunkID: sessionID + ":0", SessionID: sessionID, Project: project, Timestamp: time.Now(), Embedding: v, Text: text},
	}))
}

func TestSearch_ReturnsMatchingSessionRankedAboveUnrelated(t *testing.T) {
	// Given: two sessions indexed under distinct embedding directions
	o, _ := newTestOrchestrator(t)
	seedSession(t, o, "s1", "proj-a", "fixing the flaky retry timeout bug", 16, 0)
	seedSession(t, o, "s2", "proj-b", "unrelated content about something else", 16, 8)

	// When: searching with a query embedding that hashes toward s1's chunk
	results, err := o.Search(context.Background(), "fixing the flaky retry timeout bug", Filters{Scope: "all"}, 5)

	// Then: s1 ranks first and carries a non-empty preview
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "s1", results[0].Session.SessionID)
	assert.NotEmpty(t, results[0].Preview)
}

func TestSearch_ScopeProjectExcludesOtherProjects(t *testing.T) {
	// Given: sessions in two different projects
	o, _ := newTestOrchestrator(t)
	seedSession(t, o, "s1", "proj-a", "fixing the flaky retry timeout bug", 16, 0)
	seedSession(t, o, "s2", "proj-b", "fixing the flaky retry timeout bug", 16, 0)

	// When: scoping the search to proj-a
	results, err := o.Search(context.Background(), "fixing the flaky retry timeout bug", Filters{Scope: "project", Project: "proj-a"}, 5)

	// Then: only proj-a's session is returned
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "proj-a", r.Session.Project)
	}
}

func TestSearch_ExcludesArchivedByDefault(t *testing.T) {
	// Given: one session whose chunks are archived in the vector store
	o, _ := newTestOrchestrator(t)
	require.NoError(t, o.Registry.Add(registry.Session{SessionID: "s1", Project: "proj-a", Archived: true, ChunkCount: 1}))
	v := make([]float32, 16)
	v[0] = 1
	require.NoError(t, o.Store.ReplaceSessionChunks("s1", []vectorstore.ChunkRecord{
		{ChunkID: "s1:0", SessionID: "s1", Project: "proj-a", Timestamp: time.Now(), Embedding: v, Text: "fixing the flaky retry timeout bug", Archived: true},
	}))

	// When: searching without include_archive
	results, err := o.Search(context.Background(), "fixing the flaky retry timeout bug", Filters{Scope: "all"}, 5)

	// Then: the archived session is excluded
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "s1", r.Session.SessionID)
	}

	// When: re-searching with include_archive
	results, err = o.Search(context.Background(), "fixing the flaky retry timeout bug", Filters{Scope: "all", IncludeArchive: true}, 5)

	// Then: it is now found
	require.NoError(t, err)
	found := false
	for _, r := range results {
		if r.Session.SessionID == "s1" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestSearch_ResultsAreCachedAcrossIdenticalQueries(t *testing.T) {
	// Given: a seeded session and a first search populating the cache
	o, _ := newTestOrchestrator(t)
	seedSession(t, o, "s1", "proj-a", "fixing the flaky retry timeout bug", 16, 0)
	_, err := o.Search(context.Background(), "fixing the flaky retry timeout bug", Filters{Scope: "all"}, 5)
	require.NoError(t, err)

	// When: deleting the session from the registry and repeating the query
	require.NoError(t, o.Registry.Delete("s1"))
	results, err := o.Search(context.Background(), "fixing the flaky retry timeout bug", Filters{Scope: "all"}, 5)

	// Then: the ranking stays cached as one entry, but results are re-joined
	// against the registry, so the deleted session is not returned
	require.NoError(t, err)
	assert.Equal(t, 1, o.Caches.ResultCacheLen())
	assert.Empty(t, results)
}

func TestTrimPreview_TruncatesOnWordBoundary(t *testing.T) {
	// Given: text longer than maxLen
	text := "the quick brown fox jumps over the lazy dog"

	// When: trimming to a length that falls mid-word
	trimmed := TrimPreview(text, 12)

	// Then: it cuts at the preceding word boundary and appends an ellipsis
	assert.True(t, len(trimmed) <= 13)
	assert.Contains(t, trimmed, "…")
}

func TestTrimPreview_LeavesShortTextUnchanged(t *testing.T) {
	// Given: text shorter than maxLen
	text := "short text"

	// When: trimming
	trimmed := TrimPreview(text, 280)

	// Then: it passes through unchanged
	assert.Equal(t, text, trimmed)
}
