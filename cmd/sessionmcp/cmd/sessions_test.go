package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionsList_EmptyRegistry(t *testing.T) {
	// Given: a fresh storage dir with no tracked sessions
	t.Setenv("STORAGE_DIR", t.TempDir())
	t.Setenv("PRODUCER_DIR", t.TempDir())

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"sessions", "list"})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "no sessions tracked")
}

func TestSessionsStats_EmptyRegistry(t *testing.T) {
	t.Setenv("STORAGE_DIR", t.TempDir())
	t.Setenv("PRODUCER_DIR", t.TempDir())

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"sessions", "stats"})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "registry: sessions=0")
}

func TestSessionsTag_UnknownSessionFails(t *testing.T) {
	t.Setenv("STORAGE_DIR", t.TempDir())
	t.Setenv("PRODUCER_DIR", t.TempDir())

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"sessions", "tag", "nonexistent-session", "important"})

	err := root.Execute()
	require.Error(t, err)
}

func TestSessionsDuplicates_EmptyRegistryReportsNone(t *testing.T) {
	t.Setenv("STORAGE_DIR", t.TempDir())
	t.Setenv("PRODUCER_DIR", t.TempDir())

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"sessions", "duplicates"})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "no likely duplicates")
}
