package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionmcp/sessionmcp/internal/chunk"
	"github.com/sessionmcp/sessionmcp/internal/config"
	"github.com/sessionmcp/sessionmcp/internal/embedding"
	"github.com/sessionmcp/sessionmcp/internal/registry"
	"github.com/sessionmcp/sessionmcp/internal/transcript"
	"github.com/sessionmcp/sessionmcp/internal/vectorstore"
	"github.com/sessionmcp/sessionmcp/internal/watcher"
)

func TestSessionIDForPath(t *testing.T) {
	assert.Equal(t, "abc123", SessionIDForPath("abc123.jsonl"))
	assert.Equal(t, "abc123", SessionIDForPath(filepath.Join("myproject", "abc123.jsonl")))
}

func TestProjectForPath(t *testing.T) {
	root := "/home/user/.claude/projects"
	assert.Equal(t, "myproject", ProjectForPath(root, filepath.Join("myproject", "abc123.jsonl")))
}

func newTestIndexer(t *testing.T) (*Indexer, string) {
	t.Helper()
	root := t.TempDir()
	storeDir := t.TempDir()

	cfg := config.Default()

	store, err := vectorstore.Open(cfg.Embedding.Dimension, vectorstore.Paths{
		ActiveIndex:  filepath.Join(storeDir, "active.hnsw"),
		ArchiveIndex: filepath.Join(storeDir, "archive.hnsw"),
		Metadata:     filepath.Join(storeDir, "meta.json"),
	})
	require.NoError(t, err)

	diskCache, err := embedding.LoadDiskCache(filepath.Join(storeDir, "embed_cache.json"))
	require.NoError(t, err)

	gw := embedding.New(embedding.NewStaticEmbedder(cfg.Embedding.Dimension), diskCache)

	reg, err := registry.Open(storeDir)
	require.NoError(t, err)

	w, err := watcher.New(watcher.Options{DebounceWindow: 10 * time.Millisecond, Suffix: ".jsonl"})
	require.NoError(t, err)

	ix := &Indexer{
		Watcher:  w,
		Reader:   &transcript.Reader{},
		Chunker:  chunk.New(chunk.DefaultOptions()),
		Gateway:  gw,
		Store:    store,
		Registry: reg,
		Config:   cfg,
		Root:     root,
	}
	return ix, root
}

func writeTranscript(t *testing.T, root, name string) {
	t.Helper()
	content := `{"role":"user","content":"how do I configure the vector store for this project"}
{"role":"assistant","content":"Use vectorstore.Open with dimension and paths. This is a tested working solution."}
`
	require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
}

func TestIndexerIndexesNewFileEndToEnd(t *testing.T) {
	ix, root := newTestIndexer(t)
	writeTranscript(t, root, "sess-1.jsonl")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, ix.Start(ctx))
	defer ix.Stop()

	require.Eventually(t, func() bool {
		s, ok := ix.Registry.Get("sess-1")
		return ok && s.ChunkCount > 0
	}, 2*time.Second, 20*time.Millisecond)

	s, ok := ix.Registry.Get("sess-1")
	require.True(t, ok)
	assert.Equal(t, 2, s.MessageCount)
	assert.Greater(t, s.ChunkCount, 0)

	stats := ix.Store.GetStats()
	assert.Greater(t, stats.ActiveChunks, 0)
}

func TestIndexerDeleteRemovesSessionAndChunks(t *testing.T) {
	ix, root := newTestIndexer(t)
	writeTranscript(t, root, "sess-2.jsonl")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, ix.Start(ctx))
	defer ix.Stop()

	require.Eventually(t, func() bool {
		_, ok := ix.Registry.Get("sess-2")
		return ok
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(root, "sess-2.jsonl")))

	require.Eventually(t, func() bool {
		_, ok := ix.Registry.Get("sess-2")
		return !ok
	}, 2*time.Second, 20*time.Millisecond)
}
