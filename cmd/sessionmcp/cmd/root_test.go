package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionmcp/sessionmcp/internal/config"
)

func TestRootCmd_RegistersExpectedSubcommands(t *testing.T) {
	// Given: the root command
	root := NewRootCmd()

	// Then: every spec.md §6 CLI surface command is registered
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "setup", "search", "sessions", "config", "doctor", "version"} {
		assert.True(t, names[want], "expected %q subcommand to be registered", want)
	}
}

func TestResolveStorageDir_EnvOverridesFlag(t *testing.T) {
	// Given: STORAGE_DIR set and --storage-dir also set
	t.Setenv("STORAGE_DIR", "/env/storage")
	rootFlags.storageDir = "/flag/storage"
	defer func() { rootFlags.storageDir = "" }()

	// Then: STORAGE_DIR wins
	assert.Equal(t, "/env/storage", resolveStorageDir())
}

func TestResolveStorageDir_FallsBackToFlagThenDefault(t *testing.T) {
	t.Setenv("STORAGE_DIR", "")
	rootFlags.storageDir = "/flag/storage"
	defer func() { rootFlags.storageDir = "" }()

	assert.Equal(t, "/flag/storage", resolveStorageDir())

	rootFlags.storageDir = ""
	assert.Equal(t, config.DefaultStorageDir(), resolveStorageDir())
}

func TestResolveClaudeDir_EnvOverridesFlag(t *testing.T) {
	t.Setenv("PRODUCER_DIR", "/env/producer")
	rootFlags.claudeDir = "/flag/producer"
	defer func() { rootFlags.claudeDir = "" }()

	assert.Equal(t, "/env/producer", resolveClaudeDir())
}

func TestExecute_InvalidArgsReturnsExitCodeTwo(t *testing.T) {
	// Given: a search invocation with no query argument
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"search"})

	// When: executing
	err := root.Execute()

	// Then: cobra's own arg-count validation fails before runSearch runs
	require.Error(t, err)
	var ec *exitCodeError
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, 2, ec.code)
}

func TestWithExitCode_NilErrorStaysNil(t *testing.T) {
	assert.Nil(t, withExitCode(2, nil))
}

func TestWithExitCode_WrapsAndUnwraps(t *testing.T) {
	inner := assert.AnError
	wrapped := withExitCode(130, inner)

	require.Error(t, wrapped)
	assert.Equal(t, inner.Error(), wrapped.Error())

	var ec *exitCodeError
	require.ErrorAs(t, wrapped, &ec)
	assert.Equal(t, 130, ec.code)
	assert.ErrorIs(t, wrapped, inner)
}
