package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoctor_AllChecksPassOnFreshStorageDir(t *testing.T) {
	// Given: a fresh, writable storage dir and a readable producer dir
	t.Setenv("STORAGE_DIR", t.TempDir())
	t.Setenv("PRODUCER_DIR", t.TempDir())

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"doctor"})

	// When: running doctor
	err := root.Execute()

	// Then: every check passes
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "FAIL")
}

func TestDoctor_FailsOnMissingProducerDir(t *testing.T) {
	t.Setenv("STORAGE_DIR", t.TempDir())
	t.Setenv("PRODUCER_DIR", "/nonexistent/producer/dir/for/sessionmcp/doctor/test")

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"doctor"})

	err := root.Execute()

	require.Error(t, err)
	assert.Contains(t, buf.String(), "FAIL")
}
