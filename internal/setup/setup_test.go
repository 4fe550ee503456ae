package setup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionmcp/sessionmcp/internal/chunk"
	"github.com/sessionmcp/sessionmcp/internal/config"
	"github.com/sessionmcp/sessionmcp/internal/embedding"
	"github.com/sessionmcp/sessionmcp/internal/registry"
	"github.com/sessionmcp/sessionmcp/internal/transcript"
	"github.com/sessionmcp/sessionmcp/internal/vectorstore"
)

func newTestOrchestrator(t *testing.T, storageDir string) *Orchestrator {
	t.Helper()
	cfg := config.Default()
	cfg.StorageDir = storageDir

	store, err := vectorstore.Open(cfg.Embedding.Dimension, vectorstore.Paths{
		ActiveIndex:  filepath.Join(storageDir, "active.hnsw"),
		ArchiveIndex: filepath.Join(storageDir, "archive.hnsw"),
		Metadata:     filepath.Join(storageDir, "meta.json"),
	})
	require.NoError(t, err)

	diskCache, err := embedding.LoadDiskCache(filepath.Join(storageDir, "embed_cache.json"))
	require.NoError(t, err)
	gw := embedding.New(embedding.NewStaticEmbedder(cfg.Embedding.Dimension), diskCache)

	reg, err := registry.Open(storageDir)
	require.NoError(t, err)

	return &Orchestrator{
		Reader:   &transcript.Reader{},
		Chunker:  chunk.New(chunk.DefaultOptions()),
		Gateway:  gw,
		Store:    store,
		Registry: reg,
		Config:   cfg,
	}
}

func writeSampleTranscript(t *testing.T, dir, name string) {
	t.Helper()
	content := `{"role":"user","content":"what is the working solution we found for the flaky retry logic in this project"}
{"role":"assistant","content":"We verified the fix: add jitter to the backoff. This pattern is now tested and working."}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestRunIndexesAllDiscoveredTranscripts(t *testing.T) {
	root := t.TempDir()
	storageDir := t.TempDir()
	writeSampleTranscript(t, root, "sess-a.jsonl")
	writeSampleTranscript(t, root, "sess-b.jsonl")

	o := newTestOrchestrator(t, storageDir)
	result, err := o.Run(context.Background(), Options{Root: root, Workers: 2})
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Len(t, result.Processed, 2)
	assert.Empty(t, result.Failed)
	assert.Empty(t, result.TimedOut)

	_, ok := o.Registry.Get("sess-a")
	assert.True(t, ok)
}

func TestRunResumeSkipsAlreadyProcessed(t *testing.T) {
	root := t.TempDir()
	storageDir := t.TempDir()
	writeSampleTranscript(t, root, "sess-a.jsonl")

	o := newTestOrchestrator(t, storageDir)
	first, err := o.Run(context.Background(), Options{Root: root, Workers: 1})
	require.NoError(t, err)
	require.Len(t, first.Processed, 1)

	writeSampleTranscript(t, root, "sess-c.jsonl")

	second, err := o.Run(context.Background(), Options{Root: root, Workers: 1, Resume: true})
	require.NoError(t, err)

	assert.Contains(t, second.Processed, filepath.Join(root, "sess-a.jsonl"))
	assert.Contains(t, second.Processed, filepath.Join(root, "sess-c.jsonl"))
}

func TestRunSkipsFilesBelowSizeFloor(t *testing.T) {
	root := t.TempDir()
	storageDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "tiny.jsonl"), []byte(`{"role":"user"}`), 0o644))

	o := newTestOrchestrator(t, storageDir)
	result, err := o.Run(context.Background(), Options{Root: root, Workers: 1})
	require.NoError(t, err)

	assert.Equal(t, 0, result.TotalSessions)
}
