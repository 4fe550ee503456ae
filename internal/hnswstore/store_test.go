package hnswstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitVec(dim int, hot int) []float32 {
	v := make([]float32, dim)
	v[hot%dim] = 1
	return v
}

func TestAddAndSearch(t *testing.T) {
	s := New(DefaultConfig(4))
	require.NoError(t, s.Add([]string{"a", "b", "c"}, [][]float32{
		unitVec(4, 0), unitVec(4, 1), unitVec(4, 2),
	}))

	results, err := s.Search(unitVec(4, 0), 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].ID)
}

func TestAddReplacesExistingID(t *testing.T) {
	s := New(DefaultConfig(4))
	require.NoError(t, s.Add([]string{"a"}, [][]float32{unitVec(4, 0)}))
	require.NoError(t, s.Add([]string{"a"}, [][]float32{unitVec(4, 3)}))
	assert.Equal(t, 1, s.Count())
}

func TestDeleteIsLazy(t *testing.T) {
	s := New(DefaultConfig(4))
	require.NoError(t, s.Add([]string{"a", "b"}, [][]float32{unitVec(4, 0), unitVec(4, 1)}))
	require.NoError(t, s.Delete([]string{"a"}))
	assert.False(t, s.Contains("a"))
	assert.Equal(t, 1, s.Count())
	stats := s.Stats()
	assert.Equal(t, 1, stats.Orphans)
}

func TestDimensionMismatchRejected(t *testing.T) {
	s := New(DefaultConfig(4))
	err := s.Add([]string{"a"}, [][]float32{{1, 2}})
	assert.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	s := New(DefaultConfig(4))
	require.NoError(t, s.Add([]string{"a", "b"}, [][]float32{unitVec(4, 0), unitVec(4, 1)}))
	require.NoError(t, s.Save(path))

	loaded := New(DefaultConfig(4))
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, 2, loaded.Count())
	assert.True(t, loaded.Contains("a"))
}

func TestLoadMissingPathIsNoop(t *testing.T) {
	s := New(DefaultConfig(4))
	require.NoError(t, s.Load(filepath.Join(t.TempDir(), "missing.hnsw")))
	assert.Equal(t, 0, s.Count())
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	s := New(DefaultConfig(4))
	require.NoError(t, s.Close())
	assert.Error(t, s.Add([]string{"a"}, [][]float32{unitVec(4, 0)}))
	_, err := s.Search(unitVec(4, 0), 1)
	assert.Error(t, err)
}
