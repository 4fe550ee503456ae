package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_WritesUnderHomeAndNeverStderr(t *testing.T) {
	// Given: the package defaults

	// When: building the default config

	// Then: stderr is disabled (default logging goes only to the file) and a file path is set
	cfg := DefaultConfig()
	assert.False(t, cfg.WriteToStderr)
	assert.NotEmpty(t, cfg.FilePath)
	assert.Equal(t, "info", cfg.Level)
}

func TestSetup_CreatesLogFileAndWritesJSONLines(t *testing.T) {
	// Given: a config pointing at a fresh log file under a temp dir
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "sessionmcp.log")
	cfg := Config{Level: "info", FilePath: path}

	// When: setting up the logger and emitting a record
	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	defer cleanup()
	logger.Info("hello", "key", "value")

	// Then: the log file exists and contains the emitted record as JSON
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"key":"value"`)
}

func TestSetup_RespectsLevelFiltering(t *testing.T) {
	// Given: a config at warn level
	dir := t.TempDir()
	path := filepath.Join(dir, "sessionmcp.log")
	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: path})
	require.NoError(t, err)
	defer cleanup()

	// When: logging at info and then warn
	logger.Info("should be dropped")
	logger.Warn("should be kept")

	// Then: only the warn-level record appears in the file
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.False(t, strings.Contains(content, "should be dropped"))
	assert.True(t, strings.Contains(content, "should be kept"))
}

func TestSetup_NoFilePathDiscardsByDefault(t *testing.T) {
	// Given: a config with no FilePath and WriteToStderr unset

	// When: setting up the logger

	// Then: it succeeds and returns a no-op cleanup, writing to io.Discard
	logger, cleanup, err := Setup(Config{Level: "info"})
	require.NoError(t, err)
	require.NotNil(t, logger)
	cleanup()
}
