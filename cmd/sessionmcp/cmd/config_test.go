package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionmcp/sessionmcp/internal/config"
)

func TestConfigShow_PrintsValidJSON(t *testing.T) {
	// Given: a fresh storage directory
	t.Setenv("STORAGE_DIR", t.TempDir())

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"config", "show"})

	// When: running `config show`
	require.NoError(t, root.Execute())

	// Then: output decodes back into a Config
	var cfg config.Config
	require.NoError(t, json.Unmarshal(buf.Bytes(), &cfg))
	assert.Equal(t, 256, cfg.Embedding.Dimension)
}

func TestConfigValidate_SucceedsOnDefaults(t *testing.T) {
	t.Setenv("STORAGE_DIR", t.TempDir())

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"config", "validate"})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "valid")
}
