package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchCmd_RejectsEmptyQuery(t *testing.T) {
	t.Setenv("STORAGE_DIR", t.TempDir())
	t.Setenv("PRODUCER_DIR", t.TempDir())

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"search", "  "})

	err := root.Execute()
	require.Error(t, err)

	var ec *exitCodeError
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, 2, ec.code)
}

func TestSearchCmd_RejectsInvalidScope(t *testing.T) {
	t.Setenv("STORAGE_DIR", t.TempDir())
	t.Setenv("PRODUCER_DIR", t.TempDir())

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"search", "flaky retry fix", "--scope=bogus"})

	err := root.Execute()
	require.Error(t, err)
}

func TestSearchCmd_NoMatchesOnEmptyStore(t *testing.T) {
	t.Setenv("STORAGE_DIR", t.TempDir())
	t.Setenv("PRODUCER_DIR", t.TempDir())

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"search", "flaky retry fix"})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "no matching sessions")
}
