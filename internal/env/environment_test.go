package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionmcp/sessionmcp/internal/config"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.StorageDir = t.TempDir()
	return cfg
}

func TestOpen_WiresEveryCollaborator(t *testing.T) {
	// Given: a fresh storage dir and producer dir
	cfg := newTestConfig(t)
	producerDir := t.TempDir()

	// When: assembling the Environment
	e, err := Open(cfg, producerDir, nil)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	// Then: every collaborator is non-nil
	assert.NotNil(t, e.Registry)
	assert.NotNil(t, e.Store)
	assert.NotNil(t, e.DiskCache)
	assert.NotNil(t, e.Gateway)
	assert.NotNil(t, e.Caches)
	assert.NotNil(t, e.Reader)
	assert.NotNil(t, e.Chunker)
	assert.NotNil(t, e.ForkHistory)
	assert.NotNil(t, e.Tagger)
	assert.NotNil(t, e.Summarizer)
	assert.NotNil(t, e.Differ)
	assert.NotNil(t, e.Clusterer)
	assert.NotNil(t, e.Clusters)
	assert.NotNil(t, e.Duplicates)
	assert.NotNil(t, e.Archiver)
	assert.NotNil(t, e.Orchestrator)
	assert.NotNil(t, e.Indexer, "indexing is enabled by default and a producer dir was supplied")
}

func TestOpen_NoIndexerWithoutProducerDir(t *testing.T) {
	cfg := newTestConfig(t)

	e, err := Open(cfg, "", nil)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Nil(t, e.Indexer)
}

func TestOpen_PersistsUnderStorageDirOnMutation(t *testing.T) {
	cfg := newTestConfig(t)

	e, err := Open(cfg, t.TempDir(), nil)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, err = e.ForkHistory.Record("sess-a", "flaky retry", 0)
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(cfg.StorageDir, "fork_history.json"))
	assert.NoError(t, statErr)
}

func TestNewSetupOrchestrator_SharesCollaborators(t *testing.T) {
	cfg := newTestConfig(t)
	e, err := Open(cfg, t.TempDir(), nil)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	orch := e.NewSetupOrchestrator(nil)
	assert.Same(t, e.Registry, orch.Registry)
	assert.Same(t, e.Store, orch.Store)
	assert.Same(t, e.Gateway, orch.Gateway)
}

func TestNewRPCServer_BuildsSuccessfully(t *testing.T) {
	cfg := newTestConfig(t)
	e, err := Open(cfg, t.TempDir(), nil)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	server, err := e.NewRPCServer()
	require.NoError(t, err)
	assert.NotNil(t, server)
}

func TestStartArchiveSweep_NoopWhenDisabled(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Aux.ArchiveSweepEnabled = false
	e, err := Open(cfg, t.TempDir(), nil)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.NoError(t, e.StartArchiveSweep())
}

func TestClose_IsSafeWithoutStartingBackgroundWork(t *testing.T) {
	cfg := newTestConfig(t)
	e, err := Open(cfg, "", nil)
	require.NoError(t, err)

	assert.NoError(t, e.Close())
}
