package vectorstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vec(dim int, hot int) []float32 {
	v := make([]float32, dim)
	v[hot%dim] = 1
	return v
}

func testPaths(t *testing.T) Paths {
	dir := t.TempDir()
	return Paths{
		ActiveIndex:  filepath.Join(dir, "active.hnsw"),
		ArchiveIndex: filepath.Join(dir, "archive.hnsw"),
		Metadata:     filepath.Join(dir, "meta.json"),
	}
}

func TestReplaceSessionChunksAndSearch(t *testing.T) {
	s, err := Open(4, testPaths(t))
	require.NoError(t, err)

	records := []ChunkRecord{
		{ChunkID: "s1:0", SessionID: "s1", Project: "proj", Timestamp: time.Now(), Embedding: vec(4, 0)},
		{ChunkID: "s1:1", SessionID: "s1", Project: "proj", Timestamp: time.Now(), Embedding: vec(4, 1)},
	}
	require.NoError(t, s.ReplaceSessionChunks("s1", records))

	results, err := s.Search(vec(4, 0), 2, Filter{}, []Partition{PartitionActive})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "s1:0", results[0].ChunkID)
}

func TestReplaceSessionChunksRemovesStaleChunks(t *testing.T) {
	s, err := Open(4, testPaths(t))
	require.NoError(t, err)

	require.NoError(t, s.ReplaceSessionChunks("s1", []ChunkRecord{
		{ChunkID: "s1:0", SessionID: "s1", Embedding: vec(4, 0)},
		{ChunkID: "s1:1", SessionID: "s1", Embedding: vec(4, 1)},
	}))
	// Re-index with fewer chunks: s1:1 must disappear.
	require.NoError(t, s.ReplaceSessionChunks("s1", []ChunkRecord{
		{ChunkID: "s1:0", SessionID: "s1", Embedding: vec(4, 0)},
	}))

	stats := s.GetStats()
	assert.Equal(t, 1, stats.ActiveChunks)
}

func TestDeleteBySession(t *testing.T) {
	s, err := Open(4, testPaths(t))
	require.NoError(t, err)

	require.NoError(t, s.ReplaceSessionChunks("s1", []ChunkRecord{
		{ChunkID: "s1:0", SessionID: "s1", Embedding: vec(4, 0)},
	}))
	require.NoError(t, s.DeleteBySession("s1"))
	assert.Equal(t, 0, s.GetStats().ActiveChunks)
}

func TestMoveToPartition(t *testing.T) {
	s, err := Open(4, testPaths(t))
	require.NoError(t, err)

	require.NoError(t, s.ReplaceSessionChunks("s1", []ChunkRecord{
		{ChunkID: "s1:0", SessionID: "s1", Embedding: vec(4, 0)},
	}))
	require.NoError(t, s.MoveToPartition("s1", PartitionArchive))

	stats := s.GetStats()
	assert.Equal(t, 0, stats.ActiveChunks)
	assert.Equal(t, 1, stats.ArchiveChunks)

	results, err := s.Search(vec(4, 0), 1, Filter{}, []Partition{PartitionArchive})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Record.Archived)
}

func TestSearchFilterByProject(t *testing.T) {
	s, err := Open(4, testPaths(t))
	require.NoError(t, err)

	require.NoError(t, s.ReplaceSessionChunks("s1", []ChunkRecord{
		{ChunkID: "s1:0", SessionID: "s1", Project: "alpha", Embedding: vec(4, 0)},
	}))
	require.NoError(t, s.ReplaceSessionChunks("s2", []ChunkRecord{
		{ChunkID: "s2:0", SessionID: "s2", Project: "beta", Embedding: vec(4, 0)},
	}))

	results, err := s.Search(vec(4, 0), 5, Filter{Project: "alpha"}, []Partition{PartitionActive})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "alpha", r.Record.Project)
	}
}

func TestFlushAndReopen(t *testing.T) {
	paths := testPaths(t)
	s, err := Open(4, paths)
	require.NoError(t, err)
	require.NoError(t, s.ReplaceSessionChunks("s1", []ChunkRecord{
		{ChunkID: "s1:0", SessionID: "s1", Embedding: vec(4, 0)},
	}))
	require.NoError(t, s.Flush())

	reopened, err := Open(4, paths)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.GetStats().ActiveChunks)
}
