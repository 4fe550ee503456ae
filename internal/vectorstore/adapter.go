package vectorstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/sessionmcp/sessionmcp/internal/hnswstore"
)

func sortResultsByScoreDesc(results []Result) {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
}

// Store is the vector store adapter (spec.md §4.5): two named partitions,
// each an independent HNSW graph, fronted by one scalar-metadata document
// and per-session write locks so a re-index swap never exposes a window
// with a session's chunks missing.
type Store struct {
	dimension int
	paths     Paths

	active  *hnswstore.Store
	archive *hnswstore.Store
	meta    *metadataStore

	sessionLocksMu sync.Mutex
	sessionLocks   map[string]*sync.Mutex

	mutationMu sync.Mutex
	onMutation []func()
}

// OnMutation registers fn to run after any chunk-mutating call
// (ReplaceSessionChunks, DeleteBySession, MoveToPartition) completes
// successfully (spec.md §4.8's "on_mutation signal" — the result cache is
// the only subscriber, per the same section).
func (s *Store) OnMutation(fn func()) {
	s.mutationMu.Lock()
	defer s.mutationMu.Unlock()
	s.onMutation = append(s.onMutation, fn)
}

func (s *Store) publishMutation() {
	s.mutationMu.Lock()
	subs := append([]func(){}, s.onMutation...)
	s.mutationMu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// Paths names the on-disk locations the adapter persists to.
type Paths struct {
	ActiveIndex  string
	ArchiveIndex string
	Metadata     string
}

// Open creates or loads a vector store at the given paths.
func Open(dimension int, paths Paths) (*Store, error) {
	s := &Store{
		dimension:    dimension,
		active:       hnswstore.New(hnswstore.DefaultConfig(dimension)),
		archive:      hnswstore.New(hnswstore.DefaultConfig(dimension)),
		sessionLocks: make(map[string]*sync.Mutex),
	}

	if err := s.active.Load(paths.ActiveIndex); err != nil {
		return nil, fmt.Errorf("vectorstore: load active partition: %w", err)
	}
	if err := s.archive.Load(paths.ArchiveIndex); err != nil {
		return nil, fmt.Errorf("vectorstore: load archive partition: %w", err)
	}

	meta, err := loadMetadataStore(paths.Metadata)
	if err != nil {
		return nil, err
	}
	s.meta = meta
	s.paths = paths
	return s, nil
}

func (s *Store) lockFor(sessionID string) *sync.Mutex {
	s.sessionLocksMu.Lock()
	defer s.sessionLocksMu.Unlock()
	l, ok := s.sessionLocks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.sessionLocks[sessionID] = l
	}
	return l
}

func (s *Store) storeFor(p Partition) *hnswstore.Store {
	if p == PartitionArchive {
		return s.archive
	}
	return s.active
}

// ReplaceSessionChunks atomically replaces every chunk belonging to
// sessionID with records (spec.md §4.5, §3 "re-indexed on file change:
// chunks fully replaced"). New vectors are inserted before stale ones are
// removed, so a concurrent searcher never observes the session with zero
// chunks mid-swap.
func (s *Store) ReplaceSessionChunks(sessionID string, records []ChunkRecord) error {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	staleIDs := s.meta.chunkIDsForSession(sessionID)
	keep := make(map[string]bool, len(records))

	for _, rec := range records {
		partition := PartitionActive
		if rec.Archived {
			partition = PartitionArchive
		}
		s.meta.put(rec.ChunkID, encodeRecord(rec, partition))
		keep[rec.ChunkID] = true
	}

	// New chunks may land in either partition; split per-record since
	// hnswstore.Store.Add is single-partition.
	activeIDs, activeVecs, archiveIDs, archiveVecs := splitByPartition(records)
	if len(activeIDs) > 0 {
		if err := s.active.Add(activeIDs, activeVecs); err != nil {
			return fmt.Errorf("vectorstore: upsert active chunks: %w", err)
		}
	}
	if len(archiveIDs) > 0 {
		if err := s.archive.Add(archiveIDs, archiveVecs); err != nil {
			return fmt.Errorf("vectorstore: upsert archive chunks: %w", err)
		}
	}

	var staleInActive, staleInArchive []string
	for _, id := range staleIDs {
		if keep[id] {
			continue
		}
		if sr, ok := s.meta.get(id); ok && sr.Partition == string(PartitionArchive) {
			staleInArchive = append(staleInArchive, id)
		} else {
			staleInActive = append(staleInActive, id)
		}
		s.meta.delete(id)
	}
	if len(staleInActive) > 0 {
		if err := s.active.Delete(staleInActive); err != nil {
			return fmt.Errorf("vectorstore: delete stale active chunks: %w", err)
		}
	}
	if len(staleInArchive) > 0 {
		if err := s.archive.Delete(staleInArchive); err != nil {
			return fmt.Errorf("vectorstore: delete stale archive chunks: %w", err)
		}
	}

	s.publishMutation()
	return nil
}

// DeleteBySession removes every chunk belonging to sessionID.
func (s *Store) DeleteBySession(sessionID string) error {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()
	if err := s.deleteSessionLocked(sessionID); err != nil {
		return err
	}
	s.publishMutation()
	return nil
}

func (s *Store) deleteSessionLocked(sessionID string) error {
	ids := s.meta.chunkIDsForSession(sessionID)
	var activeIDs, archiveIDs []string
	for _, id := range ids {
		sr, ok := s.meta.get(id)
		if !ok {
			continue
		}
		if sr.Partition == string(PartitionArchive) {
			archiveIDs = append(archiveIDs, id)
		} else {
			activeIDs = append(activeIDs, id)
		}
		s.meta.delete(id)
	}
	if len(activeIDs) > 0 {
		if err := s.active.Delete(activeIDs); err != nil {
			return fmt.Errorf("vectorstore: delete active chunks: %w", err)
		}
	}
	if len(archiveIDs) > 0 {
		if err := s.archive.Delete(archiveIDs); err != nil {
			return fmt.Errorf("vectorstore: delete archive chunks: %w", err)
		}
	}
	return nil
}

// MoveToPartition moves every chunk of sessionID between active and
// archive (spec.md §4.5 "move_to_partition"). Each chunk's vector is
// re-inserted into the destination graph before being removed from the
// source graph, so a concurrent searcher never observes a window in which
// the chunk is absent from both.
func (s *Store) MoveToPartition(sessionID string, partition Partition) error {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	ids := s.meta.chunkIDsForSession(sessionID)
	if len(ids) == 0 {
		return nil
	}

	dst := s.storeFor(partition)
	src := s.storeFor(otherPartition(partition))

	var moveIDs []string
	var moveVecs [][]float32
	for _, id := range ids {
		sr, ok := s.meta.get(id)
		if !ok || sr.Partition == string(partition) {
			continue
		}
		moveIDs = append(moveIDs, id)
		moveVecs = append(moveVecs, sr.Embedding)
	}
	if len(moveIDs) == 0 {
		return nil
	}

	if err := dst.Add(moveIDs, moveVecs); err != nil {
		return fmt.Errorf("vectorstore: insert into %s partition: %w", partition, err)
	}
	if err := src.Delete(moveIDs); err != nil {
		return fmt.Errorf("vectorstore: remove from source partition: %w", err)
	}

	for _, id := range moveIDs {
		sr, _ := s.meta.get(id)
		sr.Partition = string(partition)
		sr.Archived = partition == PartitionArchive
		s.meta.put(id, sr)
	}

	s.publishMutation()
	return nil
}

func otherPartition(p Partition) Partition {
	if p == PartitionArchive {
		return PartitionActive
	}
	return PartitionArchive
}

// splitByPartition buckets records' IDs/vectors by destination partition.
func splitByPartition(records []ChunkRecord) (activeIDs []string, activeVecs [][]float32, archiveIDs []string, archiveVecs [][]float32) {
	for _, rec := range records {
		if rec.Archived {
			archiveIDs = append(archiveIDs, rec.ChunkID)
			archiveVecs = append(archiveVecs, rec.Embedding)
		} else {
			activeIDs = append(activeIDs, rec.ChunkID)
			activeVecs = append(activeVecs, rec.Embedding)
		}
	}
	return
}

// Search runs a k-NN query against the requested partitions and applies
// filter afterward, oversampling to absorb filtered-out hits (spec.md
// §4.5). Results are merged and re-sorted by score across partitions when
// more than one is requested.
func (s *Store) Search(queryVec []float32, k int, filter Filter, partitions []Partition) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(partitions) == 0 {
		partitions = []Partition{PartitionActive}
	}

	oversample := k * 4
	if oversample < k {
		oversample = k // overflow guard for pathological k
	}

	var all []Result
	for _, p := range partitions {
		store := s.storeFor(p)
		hits, err := store.Search(queryVec, oversample)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: search %s partition: %w", p, err)
		}
		for _, hit := range hits {
			sr, ok := s.meta.get(hit.ID)
			if !ok {
				continue
			}
			rec := decodeRecord(hit.ID, sr)
			if !filter.matches(rec) {
				continue
			}
			all = append(all, Result{
				ChunkID:   hit.ID,
				Score:     hit.Score,
				Distance:  hit.Distance,
				Partition: p,
				Record:    rec,
			})
		}
	}

	sortResultsByScoreDesc(all)
	if len(all) > k {
		all = all[:k]
	}
	return all, nil
}

// SessionChunks returns every chunk belonging to sessionID, ordered by
// chunk index. Used by preview, summary, diff, and duplicate-detection
// callers that need a session's full chunk text rather than a vector
// search hit list.
func (s *Store) SessionChunks(sessionID string) []ChunkRecord {
	ids := s.meta.chunkIDsForSession(sessionID)
	records := make([]ChunkRecord, 0, len(ids))
	for _, id := range ids {
		sr, ok := s.meta.get(id)
		if !ok {
			continue
		}
		records = append(records, decodeRecord(id, sr))
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].ChunkIndex < records[j].ChunkIndex })
	return records
}

// GetChunks resolves a specific list of chunk ids, preserving the caller's
// order (missing ids are skipped). Used by preview builders that already
// know which chunks they want by similarity rank rather than chunk index
// (spec.md §4.9 step 7 "select up to three highest-similarity chunks").
func (s *Store) GetChunks(ids []string) []ChunkRecord {
	records := make([]ChunkRecord, 0, len(ids))
	for _, id := range ids {
		sr, ok := s.meta.get(id)
		if !ok {
			continue
		}
		records = append(records, decodeRecord(id, sr))
	}
	return records
}

// SetSessionTags overwrites the Tags metadata of every chunk belonging to
// sessionID, without touching embeddings or graph membership (spec.md
// §4.12 "tagging ... kept in sync on the chunk metadata"). A no-op when
// the session has no chunks yet.
func (s *Store) SetSessionTags(sessionID string, tags []string) error {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	ids := s.meta.chunkIDsForSession(sessionID)
	for _, id := range ids {
		sr, ok := s.meta.get(id)
		if !ok {
			continue
		}
		encoded, err := json.Marshal(tags)
		if err != nil {
			return fmt.Errorf("vectorstore: encode tags: %w", err)
		}
		sr.Tags = string(encoded)
		s.meta.put(id, sr)
	}
	if len(ids) > 0 {
		s.publishMutation()
	}
	return nil
}

// GetStats reports partition occupancy.
func (s *Store) GetStats() Stats {
	return Stats{
		ActiveChunks:  s.active.Count(),
		ArchiveChunks: s.archive.Count(),
	}
}

// Flush persists both partitions and the metadata document.
func (s *Store) Flush() error {
	if err := s.active.Save(s.paths.ActiveIndex); err != nil {
		return err
	}
	if err := s.archive.Save(s.paths.ArchiveIndex); err != nil {
		return err
	}
	return s.meta.flush()
}

// Close releases both partitions.
func (s *Store) Close() error {
	if err := s.active.Close(); err != nil {
		return err
	}
	return s.archive.Close()
}
