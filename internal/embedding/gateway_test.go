package embedding

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{ModelName: "static", Dimension: 32, BatchSize: 4, MinBatchSize: 1, MaxBatchSize: 8}
}

func TestEmbedTextsPreservesOrder(t *testing.T) {
	cache, err := LoadDiskCache(filepath.Join(t.TempDir(), "cache.json"))
	require.NoError(t, err)
	gw := New(NewStaticEmbedder(32), cache)

	texts := []string{"alpha", "beta", "gamma", "delta"}
	vecs, err := gw.EmbedTexts(context.Background(), testConfig(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))

	// Re-embedding must be order-preserving and identical (determinism +
	// cache hit path).
	again, err := gw.EmbedTexts(context.Background(), testConfig(), texts)
	require.NoError(t, err)
	for i := range vecs {
		assert.Equal(t, vecs[i], again[i])
	}
}

func TestEmbedTextsCacheHitAvoidsRecompute(t *testing.T) {
	cache, err := LoadDiskCache(filepath.Join(t.TempDir(), "cache.json"))
	require.NoError(t, err)
	gw := New(NewStaticEmbedder(16), cache)

	_, err = gw.EmbedTexts(context.Background(), testConfig(), []string{"hello world"})
	require.NoError(t, err)
	assert.Equal(t, 1, gw.CacheSize())

	_, err = gw.EmbedTexts(context.Background(), testConfig(), []string{"hello world", "new text"})
	require.NoError(t, err)
	assert.Equal(t, 2, gw.CacheSize())
}

func TestEmbedTextsEmptyInput(t *testing.T) {
	cache, err := LoadDiskCache(filepath.Join(t.TempDir(), "cache.json"))
	require.NoError(t, err)
	gw := New(NewStaticEmbedder(16), cache)

	vecs, err := gw.EmbedTexts(context.Background(), testConfig(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestEmbedTextsUnavailableEmbedder(t *testing.T) {
	cache, err := LoadDiskCache(filepath.Join(t.TempDir(), "cache.json"))
	require.NoError(t, err)
	embedder := NewStaticEmbedder(16)
	require.NoError(t, embedder.Close())
	gw := New(embedder, cache)

	_, err = gw.EmbedTexts(context.Background(), testConfig(), []string{"text"})
	require.Error(t, err)
}

func TestDiskCacheFlushAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	cache, err := LoadDiskCache(path)
	require.NoError(t, err)

	cache.Put("k1", []float32{1, 2, 3})
	require.NoError(t, cache.Flush())

	reloaded, err := LoadDiskCache(path)
	require.NoError(t, err)
	vec, ok := reloaded.Get("k1")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, vec)
}

func TestDiskCacheFlushNoopWhenClean(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	cache, err := LoadDiskCache(path)
	require.NoError(t, err)
	require.NoError(t, cache.Flush())
}

func TestAdaptiveBatchSizeClamped(t *testing.T) {
	size := AdaptiveBatchSize(32, 1, 256)
	assert.GreaterOrEqual(t, size, 1)
	assert.LessOrEqual(t, size, 256)
}

func TestAdaptiveBatchSizeMinMaxSwapped(t *testing.T) {
	size := AdaptiveBatchSize(10, 50, 5) // min > max, should be corrected
	assert.GreaterOrEqual(t, size, 5)
	assert.LessOrEqual(t, size, 50)
}

func TestStaticEmbedderDeterministic(t *testing.T) {
	e := NewStaticEmbedder(64)
	v1, err := e.EmbedBatch(context.Background(), []string{"the quick brown fox"})
	require.NoError(t, err)
	v2, err := e.EmbedBatch(context.Background(), []string{"the quick brown fox"})
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Len(t, v1[0], 64)
}

func TestStaticEmbedderEmptyTextReturnsZeroVector(t *testing.T) {
	e := NewStaticEmbedder(8)
	v, err := e.EmbedBatch(context.Background(), []string{"   "})
	require.NoError(t, err)
	for _, f := range v[0] {
		assert.Zero(t, f)
	}
}
