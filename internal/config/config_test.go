package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 750, cfg.Chunking.TargetTokens)
	assert.FileExists(t, filepath.Join(dir, "config.json"))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.StorageDir = dir
	cfg.Search.TopNSessions = 7
	require.NoError(t, Save(cfg))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Search.TopNSessions)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Chunking.OverlapTokens = cfg.Chunking.TargetTokens
	assert.Error(t, cfg.Validate())

	cfg2 := Default()
	cfg2.Search.SimilarityThreshold = 2
	assert.Error(t, cfg2.Validate())
}

func TestMissingKeysFallBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"search":{"top_n_sessions":9}}`), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Search.TopNSessions)
	assert.Equal(t, 1000, cfg.Chunking.MaxTokens) // default preserved
}
