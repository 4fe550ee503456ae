// Package env assembles the root "Environment" object (spec.md §9 design
// note "Global state... model them as explicit collaborator objects wired
// into each service via a root Environment assembled at startup. No
// ambient singletons."): every collaborator — registry, vector store,
// embedding gateway, caches, ranker inputs, auxiliary services, the
// background indexer, and the JSON-RPC dispatcher — is constructed once
// here and handed down explicitly, with no package-level variables.
package env

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/sessionmcp/sessionmcp/internal/aux"
	"github.com/sessionmcp/sessionmcp/internal/cache"
	"github.com/sessionmcp/sessionmcp/internal/chunk"
	"github.com/sessionmcp/sessionmcp/internal/config"
	"github.com/sessionmcp/sessionmcp/internal/embedding"
	"github.com/sessionmcp/sessionmcp/internal/indexer"
	"github.com/sessionmcp/sessionmcp/internal/registry"
	"github.com/sessionmcp/sessionmcp/internal/rpc"
	"github.com/sessionmcp/sessionmcp/internal/search"
	"github.com/sessionmcp/sessionmcp/internal/setup"
	"github.com/sessionmcp/sessionmcp/internal/transcript"
	"github.com/sessionmcp/sessionmcp/internal/vectorstore"
	"github.com/sessionmcp/sessionmcp/internal/watcher"
)

// vectorDBDirName is the opaque directory the vector store owns (spec.md §6
// "vector_db/ — opaque directory owned by the vector store").
const vectorDBDirName = "vector_db"

// Environment bundles every collaborator constructed at process startup.
// Nothing in this repo reaches a collaborator through a package-level
// variable; every component that needs one receives it from here.
type Environment struct {
	Config      *config.Config
	Logger      *slog.Logger
	ProducerDir string

	Registry    *registry.Registry
	Store       *vectorstore.Store
	DiskCache   *embedding.DiskCache
	Gateway     *embedding.Gateway
	Caches      *cache.Caches
	Reader      *transcript.Reader
	Chunker     *chunk.Chunker

	ForkHistory *aux.ForkHistory
	Tagger      *aux.Tagger
	Summarizer  *aux.Summarizer
	Differ      *aux.Differ
	Clusterer   *aux.Clusterer
	Clusters    *aux.ClusterSnapshot
	Duplicates  *aux.DuplicateDetector
	Archiver    *aux.Archiver

	Orchestrator *search.Orchestrator
	Indexer      *indexer.Indexer
}

// Open constructs every collaborator rooted at cfg.StorageDir, wires the
// result-cache-clearing subscription from the vector store to the caches
// (spec.md §4.8 "on_mutation... clears the result cache"), and returns the
// fully assembled Environment. producerDir is the transcript root (the
// CLI's --claude-dir / PRODUCER_DIR, kept out of config.json because its
// location is a per-invocation concern, not a persisted setting).
func Open(cfg *config.Config, producerDir string, logger *slog.Logger) (*Environment, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = config.Default()
	}

	reg, err := registry.Open(cfg.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("env: open session registry: %w", err)
	}

	vecDir := filepath.Join(cfg.StorageDir, vectorDBDirName)
	store, err := vectorstore.Open(cfg.Embedding.Dimension, vectorstore.Paths{
		ActiveIndex:  filepath.Join(vecDir, "active.hnsw"),
		ArchiveIndex: filepath.Join(vecDir, "archive.hnsw"),
		Metadata:     filepath.Join(vecDir, "metadata.json"),
	})
	if err != nil {
		return nil, fmt.Errorf("env: open vector store: %w", err)
	}

	diskCache, err := embedding.LoadDiskCache(filepath.Join(cfg.StorageDir, "embedding_cache", "cache.json"))
	if err != nil {
		return nil, fmt.Errorf("env: load embedding cache: %w", err)
	}
	gateway := embedding.New(embedding.NewStaticEmbedder(cfg.Embedding.Dimension), diskCache)

	caches := cache.New(cache.Config{
		QueryCacheSize:  cfg.Cache.QueryCacheSize,
		ResultCacheSize: cfg.Cache.ResultCacheSize,
		TTLSeconds:      cfg.Cache.TTLSeconds,
	})
	// spec.md §4.8: a vector-store mutation clears the result cache only,
	// never the embedding cache.
	store.OnMutation(caches.InvalidateResults)

	forkHistory, err := aux.OpenForkHistory(filepath.Join(cfg.StorageDir, "fork_history.json"))
	if err != nil {
		return nil, fmt.Errorf("env: open fork history: %w", err)
	}
	clusters, err := aux.OpenClusterSnapshot(filepath.Join(cfg.StorageDir, "clusters.json"))
	if err != nil {
		return nil, fmt.Errorf("env: open cluster snapshot: %w", err)
	}

	reader := transcript.NewReader(false)
	chunker := chunk.New(chunk.Options{
		TargetTokens:  cfg.Chunking.TargetTokens,
		OverlapTokens: cfg.Chunking.OverlapTokens,
		MaxTokens:     cfg.Chunking.MaxTokens,
	})

	orchestrator := &search.Orchestrator{
		Registry:   reg,
		Store:      store,
		Gateway:    gateway,
		Caches:     caches,
		Config:     cfg,
		Preference: forkHistory.PreferenceLookup,
	}

	var ix *indexer.Indexer
	if cfg.Indexing.Enabled && producerDir != "" {
		w, err := watcher.New(watcher.Options{
			DebounceWindow: cfg.Indexing.DebounceDelay,
			Suffix:         ".jsonl",
		})
		if err != nil {
			return nil, fmt.Errorf("env: create transcript watcher: %w", err)
		}
		ix = &indexer.Indexer{
			Watcher:  w,
			Reader:   reader,
			Chunker:  chunker,
			Gateway:  gateway,
			Store:    store,
			Registry: reg,
			Config:   cfg,
			Root:     producerDir,
		}
	}

	return &Environment{
		Config:      cfg,
		Logger:      logger,
		ProducerDir: producerDir,

		Registry:  reg,
		Store:     store,
		DiskCache: diskCache,
		Gateway:   gateway,
		Caches:    caches,
		Reader:    reader,
		Chunker:   chunker,

		ForkHistory: forkHistory,
		Tagger:      &aux.Tagger{Registry: reg, Store: store},
		Summarizer:  &aux.Summarizer{Store: store, Registry: reg},
		Differ:      &aux.Differ{Store: store},
		Clusterer:   &aux.Clusterer{Store: store, Registry: reg},
		Clusters:    clusters,
		Duplicates:  &aux.DuplicateDetector{Store: store, Registry: reg},
		Archiver:    &aux.Archiver{Store: store, Registry: reg, Logger: logger},

		Orchestrator: orchestrator,
		Indexer:      ix,
	}, nil
}

// NewSetupOrchestrator builds a fresh bulk-setup orchestrator sharing this
// Environment's registry, store, and gateway (spec.md §4.11). Every run
// gets its own Orchestrator value so concurrent progress callbacks never
// cross wires between an interactive `setup` CLI invocation and a
// programmatic one.
func (e *Environment) NewSetupOrchestrator(onProgress setup.ProgressFunc) *setup.Orchestrator {
	return &setup.Orchestrator{
		Reader:     e.Reader,
		Chunker:    e.Chunker,
		Gateway:    e.Gateway,
		Store:      e.Store,
		Registry:   e.Registry,
		Config:     e.Config,
		OnProgress: onProgress,
	}
}

// NewRPCServer builds the JSON-RPC/MCP dispatcher (spec.md §4.13) wired to
// this Environment's collaborators.
func (e *Environment) NewRPCServer() (*rpc.Server, error) {
	return rpc.NewServer(rpc.Server{
		Orchestrator: e.Orchestrator,
		Registry:     e.Registry,
		ForkHistory:  e.ForkHistory,
		Tagger:       e.Tagger,
		Summarizer:   e.Summarizer,
		Differ:       e.Differ,
		Clusterer:    e.Clusterer,
		Clusters:     e.Clusters,
		Config:       e.Config,
		Logger:       e.Logger,
	})
}

// StartIndexer launches the background indexer, if indexing is enabled and
// a producer directory was supplied (spec.md §4.10). No-op otherwise.
func (e *Environment) StartIndexer(ctx context.Context) error {
	if e.Indexer == nil {
		return nil
	}
	return e.Indexer.Start(ctx)
}

// StartArchiveSweep registers the periodic archive sweep if the
// configuration enables it (spec.md §4.12 "Archive", SPEC_FULL.md §5
// "Archive scheduler").
func (e *Environment) StartArchiveSweep() error {
	if !e.Config.Aux.ArchiveSweepEnabled {
		return nil
	}
	return e.Archiver.StartScheduledSweep(e.Config.Aux.ArchiveSweepCron, e.Config.Aux.ArchiveThresholdDays)
}

// Close flushes every durable collaborator and stops background work. It
// is safe to call during shutdown even if StartIndexer/StartArchiveSweep
// were never called.
func (e *Environment) Close() error {
	if e.Indexer != nil {
		e.Indexer.Stop()
	}
	_ = e.Archiver.StopScheduledSweep()

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(e.DiskCache.Flush())
	record(e.Store.Flush())
	record(e.Store.Close())
	return firstErr
}
