// Package setup implements the initial-setup orchestrator (spec.md §4.11):
// bulk, resumable, cooperatively-deadlined indexing of every transcript
// under the producer's root, with checkpointed state, batch and parallel
// execution modes, and progress reporting.
package setup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/semaphore"

	"github.com/sessionmcp/sessionmcp/internal/chunk"
	"github.com/sessionmcp/sessionmcp/internal/config"
	"github.com/sessionmcp/sessionmcp/internal/embedding"
	sessionerrors "github.com/sessionmcp/sessionmcp/internal/errors"
	"github.com/sessionmcp/sessionmcp/internal/indexer"
	"github.com/sessionmcp/sessionmcp/internal/markers"
	"github.com/sessionmcp/sessionmcp/internal/registry"
	"github.com/sessionmcp/sessionmcp/internal/transcript"
	"github.com/sessionmcp/sessionmcp/internal/vectorstore"
)

// minCandidateSize is the "size floor" below which a transcript file is
// never a setup candidate (spec.md §4.11 "e.g. 100 bytes").
const minCandidateSize = 100

// Outcome is the final status of one orchestrator run.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeInterrupted Outcome = "interrupted"
	OutcomeFailed      Outcome = "failed"
)

// Options configures one bulk-setup run (spec.md §6 CLI surface, §4.11).
type Options struct {
	Root           string
	BatchMode      bool
	BatchSize      int
	Workers        int
	TimeoutPerFile time.Duration
	Resume         bool
	RetryTimeouts  bool
}

// WithDefaults applies config.SetupConfig defaults to zero-valued fields.
func (o Options) WithDefaults(cfg config.SetupConfig) Options {
	if o.BatchSize <= 0 {
		o.BatchSize = cfg.BatchSize
	}
	if o.Workers <= 0 {
		o.Workers = cfg.Workers
	}
	if o.TimeoutPerFile <= 0 {
		o.TimeoutPerFile = cfg.TimeoutPerSession
	}
	return o
}

// Progress is an immutable snapshot of a run's progress (spec.md §4.11
// "Emits progress every N sessions").
type Progress struct {
	Processed   int
	Total       int
	Elapsed     time.Duration
	ETA         time.Duration
	CurrentFile string
}

// ProgressFunc receives progress snapshots as the run advances.
type ProgressFunc func(Progress)

// Result summarizes a completed or interrupted run.
type Result struct {
	Outcome       Outcome
	Processed     []string
	TimedOut      []string
	Failed        []string
	TotalSessions int
}

// Orchestrator runs bulk setup over every transcript under Root.
type Orchestrator struct {
	Reader   *transcript.Reader
	Chunker  *chunk.Chunker
	Gateway  *embedding.Gateway
	Store    *vectorstore.Store
	Registry *registry.Registry
	Config   *config.Config
	OnProgress ProgressFunc
}

// Run discovers candidate files, applies resume/retry-timeouts semantics,
// and indexes them under opts, respecting ctx cancellation (spec.md
// §4.11 "Interruption").
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Result, error) {
	opts = opts.WithDefaults(o.Config.Setup)

	// Bulk setup mutates setup_state.json and the registry from potentially
	// many workers within this process, but nothing else stops a second
	// `sessionmcp setup` pointed at the same storage_dir from racing the
	// same files. A single cross-process lock for the duration of the run
	// turns that race into a Conflict instead of doubled work or a corrupted
	// checkpoint. The background indexer in `serve` does not take this lock.
	runLock := flock.New(filepath.Join(o.Config.StorageDir, ".setup.lock"))
	locked, err := runLock.TryLock()
	if err != nil {
		return Result{}, sessionerrors.Wrap(sessionerrors.KindIOError, "acquire setup run lock", err)
	}
	if !locked {
		return Result{}, sessionerrors.New(sessionerrors.KindConflict, "another setup run already holds this storage directory")
	}
	defer func() { _ = runLock.Unlock() }()

	statePath := filepath.Join(o.Config.StorageDir, "setup_state.json")
	state, err := loadState(statePath)
	if err != nil {
		return Result{}, sessionerrors.Wrap(sessionerrors.KindIOError, "load setup state", err)
	}

	candidates, err := discoverCandidates(opts.Root)
	if err != nil {
		return Result{}, sessionerrors.Wrap(sessionerrors.KindIOError, "discover transcripts", err)
	}

	todo := o.selectTodo(candidates, state, opts)

	result := Result{TotalSessions: len(candidates)}
	result.Processed = append(result.Processed, state.ProcessedPaths...)
	if !opts.RetryTimeouts {
		result.TimedOut = append(result.TimedOut, state.TimedOutPaths...)
	}
	result.Failed = append(result.Failed, state.FailedPaths...)

	startTime := time.Now()
	done := len(result.Processed)
	var resultMu sync.Mutex

	runOne := func(path string) error {
		sessionID := indexer.SessionIDForPath(filepath.Base(path))
		project := indexer.ProjectForPath(opts.Root, relOrAbs(opts.Root, path))

		fileCtx, cancel := context.WithTimeout(ctx, opts.TimeoutPerFile)
		defer cancel()

		// indexOne runs outside the lock: it's the expensive step (parse,
		// embed, write) and different paths must run in parallel.
		err := o.indexOne(fileCtx, path, sessionID, project)

		resultMu.Lock()
		defer resultMu.Unlock()
		switch {
		case err == nil:
			result.Processed = append(result.Processed, path)
		case fileCtx.Err() != nil && ctx.Err() == nil:
			result.TimedOut = append(result.TimedOut, path)
		default:
			result.Failed = append(result.Failed, path)
		}
		done++
		o.reportProgress(done, len(candidates), startTime, path)
		return persistState(statePath, result)
	}

	if opts.BatchMode {
		if err := o.runBatched(ctx, todo, opts, runOne); err != nil {
			result.Outcome = OutcomeInterrupted
			return result, nil
		}
	} else if err := o.runParallel(ctx, todo, opts, runOne); err != nil {
		result.Outcome = OutcomeInterrupted
		return result, nil
	}

	if ctx.Err() != nil {
		result.Outcome = OutcomeInterrupted
	} else {
		result.Outcome = OutcomeSuccess
	}
	return result, persistState(statePath, result)
}

// selectTodo applies resume (skip already-processed) and retry_timeouts
// (re-queue timed-out) semantics (spec.md §4.11).
func (o *Orchestrator) selectTodo(candidates []string, state setupState, opts Options) []string {
	processed := make(map[string]bool, len(state.ProcessedPaths))
	failed := make(map[string]bool, len(state.FailedPaths))
	timedOut := make(map[string]bool, len(state.TimedOutPaths))
	for _, p := range state.ProcessedPaths {
		processed[p] = true
	}
	for _, p := range state.FailedPaths {
		failed[p] = true
	}
	for _, p := range state.TimedOutPaths {
		timedOut[p] = true
	}

	var todo []string
	for _, c := range candidates {
		if opts.Resume {
			if processed[c] {
				continue
			}
			if timedOut[c] && !opts.RetryTimeouts {
				continue
			}
			if failed[c] {
				continue
			}
		}
		todo = append(todo, c)
	}
	return todo
}

func (o *Orchestrator) runParallel(ctx context.Context, todo []string, opts Options, runOne func(string) error) error {
	sem := semaphore.NewWeighted(int64(opts.Workers))
	var wg sync.WaitGroup
	var interrupted bool

	for _, path := range todo {
		if ctx.Err() != nil {
			interrupted = true
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			interrupted = true
			break
		}
		wg.Add(1)
		path := path
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			if err := runOne(path); err != nil {
				slog.Warn("setup: failed to persist state", slog.String("error", err.Error()))
			}
		}()
	}
	wg.Wait()

	if interrupted {
		return context.Canceled
	}
	return nil
}

// runBatched spawns an isolated goroutine scope per batch_size sessions,
// re-reading nothing between batches beyond what runOne already persists —
// a single-process goroutine boundary standing in for a process-per-batch
// isolation model, since setup has no child-process re-exec mechanism
// (spec.md §4.11 "spawns a short-lived child worker").
func (o *Orchestrator) runBatched(ctx context.Context, todo []string, opts Options, runOne func(string) error) error {
	for i := 0; i < len(todo); i += opts.BatchSize {
		if ctx.Err() != nil {
			return context.Canceled
		}
		end := i + opts.BatchSize
		if end > len(todo) {
			end = len(todo)
		}
		batch := todo[i:end]
		if err := o.runParallel(ctx, batch, opts, runOne); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) reportProgress(processed, total int, start time.Time, current string) {
	if o.OnProgress == nil {
		return
	}
	elapsed := time.Since(start)
	var eta time.Duration
	if processed > 0 {
		perSession := elapsed / time.Duration(processed)
		remaining := total - processed
		if remaining > 0 {
			eta = perSession * time.Duration(remaining)
		}
	}
	o.OnProgress(Progress{Processed: processed, Total: total, Elapsed: elapsed, ETA: eta, CurrentFile: current})
}

// indexOne runs the §4.10 pipeline for one transcript file under a
// per-session deadline.
func (o *Orchestrator) indexOne(ctx context.Context, path, sessionID, project string) error {
	var messages []transcript.Message
	_, err := o.Reader.ReadFile(path, func(m transcript.Message) error {
		messages = append(messages, m)
		return ctx.Err()
	})
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return sessionerrors.New(sessionerrors.KindTranscriptEmpty, "transcript has no usable messages")
	}

	chunks := o.Chunker.Split(messages)
	if len(chunks) == 0 {
		return sessionerrors.New(sessionerrors.KindTranscriptEmpty, "transcript produced no chunks")
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := o.Gateway.EmbedTexts(ctx, embedding.Config{
		ModelName:    o.Config.Embedding.ModelName,
		Dimension:    o.Config.Embedding.Dimension,
		BatchSize:    o.Config.Embedding.BatchSize,
		MaxBatchSize: o.Config.Embedding.MaxBatchSize,
		MinBatchSize: o.Config.Embedding.MinBatchSize,
	}, texts)
	if err != nil {
		return err
	}

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

	if err := o.Store.ReplaceSessionChunks(sessionID, records); err != nil {
		return err
	}

	if _, ok := o.Registry.Get(sessionID); ok {
		msgCount, chkCount, lastSynced := len(messages), len(chunks), now
		return o.Registry.Update(sessionID, registry.Update{
			MessageCount: &msgCount,
			ChunkCount:   &chkCount,
			LastSynced:   &lastSynced,
		})
	}
	return o.Registry.Add(registry.Session{
		SessionID:      sessionID,
		Project:        project,
		CreatedAt:      now,
		UpdatedAt:      now,
		MessageCount:   len(messages),
		ChunkCount:     len(chunks),
		LastSynced:     now,
		TranscriptPath: path,
	})
}

// discoverCandidates walks root for .jsonl files at or above the size
// floor (spec.md §4.11).
func discoverCandidates(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ".jsonl" {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() < minCandidateSize {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	return paths, err
}

func relOrAbs(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}

// memoryTypeStrings mirrors internal/indexer's helper of the same name
// (unexported there) so bulk setup's chunk records carry the same
// memory_types metadata the background indexer writes (spec.md §4.3/§4.7
// memory boost, §4.5 memory-type filter).
func memoryTypeStrings(types []markers.Type) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
