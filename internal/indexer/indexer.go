// Package indexer implements the worker half of the background indexer
// (spec.md §4.10): a bounded pool of workers consuming debounced watcher
// events, each re-indexing one transcript file's chunks through the
// embedding gateway into the vector store, with registry upserts.
package indexer

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sessionmcp/sessionmcp/internal/chunk"
	"github.com/sessionmcp/sessionmcp/internal/config"
	"github.com/sessionmcp/sessionmcp/internal/embedding"
	sessionerrors "github.com/sessionmcp/sessionmcp/internal/errors"
	"github.com/sessionmcp/sessionmcp/internal/markers"
	"github.com/sessionmcp/sessionmcp/internal/registry"
	"github.com/sessionmcp/sessionmcp/internal/transcript"
	"github.com/sessionmcp/sessionmcp/internal/vectorstore"
	"github.com/sessionmcp/sessionmcp/internal/watcher"
)

// State is a session's position in the per-file indexing state machine
// (spec.md §4.10).
type State int

const (
	StateUnknown State = iota
	StateParsing
	StateEmbedding
	StateWriting
	StateIndexed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateParsing:
		return "parsing"
	case StateEmbedding:
		return "embedding"
	case StateWriting:
		return "writing"
	case StateIndexed:
		return "indexed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// checkpointEvery controls how often ReadFile's streaming callback logs
// progress for a large transcript (spec.md §4.10 "checkpoint every
// 10-20 parsed messages").
const checkpointEvery = 15

// Indexer watches a transcript root and re-indexes files on change through
// a bounded worker pool.
type Indexer struct {
	Watcher  watcher.Watcher
	Reader   *transcript.Reader
	Chunker  *chunk.Chunker
	Gateway  *embedding.Gateway
	Store    *vectorstore.Store
	Registry *registry.Registry
	Config   *config.Config
	Root     string

	fileLocksMu sync.Mutex
	fileLocks   map[string]*sync.Mutex

	statusMu sync.RWMutex
	status   map[string]State

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Status reports the current indexing state for sessionID ("unknown" if
// never observed).
func (ix *Indexer) Status(sessionID string) State {
	ix.statusMu.RLock()
	defer ix.statusMu.RUnlock()
	return ix.status[sessionID]
}

func (ix *Indexer) setStatus(sessionID string, st State) {
	ix.statusMu.Lock()
	defer ix.statusMu.Unlock()
	if ix.status == nil {
		ix.status = make(map[string]State)
	}
	ix.status[sessionID] = st
}

// Start launches the watcher and a fixed worker pool that consumes its
// debounced event batches until ctx is cancelled or Stop is called.
func (ix *Indexer) Start(ctx context.Context) error {
	ix.fileLocks = make(map[string]*sync.Mutex)
	ctx, cancel := context.WithCancel(ctx)
	ix.cancel = cancel

	workers := ix.Config.Indexing.Workers
	if workers <= 0 {
		workers = 1
	}

	pool := &errgroup.Group{}
	pool.SetLimit(workers)

	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()
		if err := ix.Watcher.Start(ctx, ix.Root); err != nil && ctx.Err() == nil {
			slog.Error("transcript watcher stopped", slog.String("error", err.Error()))
		}
	}()

	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()
		ix.consume(ctx, pool)
	}()

	return nil
}

func (ix *Indexer) consume(ctx context.Context, pool *errgroup.Group) {
	for {
		select {
		case <-ctx.Done():
			_ = pool.Wait()
			return
		case batch, ok := <-ix.Watcher.Events():
			if !ok {
				_ = pool.Wait()
				return
			}
			for _, ev := range batch {
				ev := ev
				pool.Go(func() error {
					ix.handleEvent(ctx, ev)
					return nil
				})
			}
		case err, ok := <-ix.Watcher.Errors():
			if !ok {
				continue
			}
			slog.Warn("transcript watcher error", slog.String("error", err.Error()))
		}
	}
}

// Stop cancels the watcher and worker pool and waits for in-flight work to
// drain.
func (ix *Indexer) Stop() {
	if ix.cancel != nil {
		ix.cancel()
	}
	_ = ix.Watcher.Stop()
	ix.wg.Wait()
}

func (ix *Indexer) handleEvent(ctx context.Context, ev watcher.FileEvent) {
	sessionID := SessionIDForPath(ev.Path)

	lock := ix.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	switch ev.Operation {
	case watcher.OpDelete:
		ix.removeSession(sessionID)
	default:
		ix.indexFile(ctx, ev.Path, sessionID)
	}
}

func (ix *Indexer) lockFor(sessionID string) *sync.Mutex {
	ix.fileLocksMu.Lock()
	defer ix.fileLocksMu.Unlock()
	l, ok := ix.fileLocks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		ix.fileLocks[sessionID] = l
	}
	return l
}

func (ix *Indexer) removeSession(sessionID string) {
	if err := ix.Store.DeleteBySession(sessionID); err != nil {
		slog.Warn("failed to delete session chunks", slog.String("session_id", sessionID), slog.String("error", err.Error()))
		return
	}
	_ = ix.Registry.Delete(sessionID)
	ix.setStatus(sessionID, StateIndexed)
}

// indexFile runs the full parse → chunk → embed → write pipeline for one
// transcript file (spec.md §4.10).
func (ix *Indexer) indexFile(ctx context.Context, relPath, sessionID string) {
	absPath := filepath.Join(ix.Root, relPath)
	project := ProjectForPath(ix.Root, relPath)

	ix.setStatus(sessionID, StateParsing)

	var messages []transcript.Message
	var parsed int
	stats, err := ix.Reader.ReadFile(absPath, func(m transcript.Message) error {
		messages = append(messages, m)
		parsed++
		if parsed%checkpointEvery == 0 {
			slog.Debug("transcript checkpoint", slog.String("session_id", sessionID), slog.Int("messages", parsed))
		}
		return nil
	})
	if err != nil {
		ix.fail(sessionID, "read transcript", err)
		return
	}
	if len(messages) == 0 {
		ix.fail(sessionID, "read transcript", sessionerrors.New(sessionerrors.KindTranscriptEmpty, "transcript has no usable messages"))
		return
	}

	chunks := ix.Chunker.Split(messages)
	if len(chunks) == 0 {
		ix.fail(sessionID, "chunk transcript", sessionerrors.New(sessionerrors.KindTranscriptEmpty, "transcript produced no chunks"))
		return
	}

	ix.setStatus(sessionID, StateEmbedding)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := ix.Gateway.EmbedTexts(ctx, embedding.Config{
		ModelName:    ix.Config.Embedding.ModelName,
		Dimension:    ix.Config.Embedding.Dimension,
		BatchSize:    ix.Config.Embedding.BatchSize,
		MaxBatchSize: ix.Config.Embedding.MaxBatchSize,
		MinBatchSize: ix.Config.Embedding.MinBatchSize,
	}, texts)
	if err != nil {
		ix.fail(sessionID, "embed chunks", err)
		return
	}

	ix.setStatus(sessionID, StateWriting)
	now := time.Now().UTC()
	records := make([]vectorstore.ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = vectorstore.ChunkRecord{
			ChunkID:      chunk.ID(sessionID, c.ChunkIndex),
			SessionID:    sessionID,
			Project:      project,
			ChunkIndex:   c.ChunkIndex,
			Text:         c.Text,
			TokenCount:   c.TokenCount,
			Timestamp:    now,
			MessageStart: c.MessageStart,
			MessageEnd:   c.MessageEnd,
			MemoryTypes:  memoryTypeStrings(c.MemoryTypes),
			Embedding:    vectors[i],
		}
	}

	if err := ix.Store.ReplaceSessionChunks(sessionID, records); err != nil {
		ix.fail(sessionID, "write chunks", err)
		return
	}

	ix.upsertRegistry(sessionID, project, absPath, len(messages), len(chunks), now, stats)
	ix.setStatus(sessionID, StateIndexed)
}

func (ix *Indexer) upsertRegistry(sessionID, project, transcriptPath string, messageCount, chunkCount int, now time.Time, _ transcript.Stats) {
	if existing, ok := ix.Registry.Get(sessionID); ok {
		msgCount := messageCount
		chkCount := chunkCount
		lastSynced := now
		if err := ix.Registry.Update(sessionID, registry.Update{
			MessageCount: &msgCount,
			ChunkCount:   &chkCount,
			LastSynced:   &lastSynced,
		}); err != nil {
			slog.Warn("failed to update registry", slog.String("session_id", sessionID), slog.String("error", err.Error()))
		}
		_ = existing
		return
	}

	if err := ix.Registry.Add(registry.Session{
		SessionID:      sessionID,
		Project:        project,
		CreatedAt:      now,
		UpdatedAt:      now,
		MessageCount:   messageCount,
		ChunkCount:     chunkCount,
		LastSynced:     now,
		TranscriptPath: transcriptPath,
	}); err != nil {
		slog.Warn("failed to add registry entry", slog.String("session_id", sessionID), slog.String("error", err.Error()))
	}
}

func (ix *Indexer) fail(sessionID, stage string, err error) {
	ix.setStatus(sessionID, StateFailed)
	slog.Warn("indexing failed", slog.String("session_id", sessionID), slog.String("stage", stage), slog.String("error", err.Error()))
}

// SessionIDForPath derives a session_id from a transcript file's relative
// path: the filename without its extension (spec.md §3 "session_id (opaque
// string, unique across all transcripts)").
func SessionIDForPath(relPath string) string {
	base := filepath.Base(relPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ProjectForPath derives a project label from a transcript's parent
// directory name (spec.md §3 "originating project label (derived from
// directory name)").
func ProjectForPath(root, relPath string) string {
	dir := filepath.Dir(filepath.Join(root, relPath))
	if dir == root || dir == "." {
		return filepath.Base(root)
	}
	return filepath.Base(dir)
}

func memoryTypeStrings(types []markers.Type) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
