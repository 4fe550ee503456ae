package vectorstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	sessionerrors "github.com/sessionmcp/sessionmcp/internal/errors"
)

// scalarRecord is ChunkRecord flattened to scalar strings, because the
// adapter is the only component that understands the store's
// scalar-metadata constraints (spec.md §4.5): lists become JSON strings on
// write and are decoded back on read.
type scalarRecord struct {
	SessionID    string `json:"session_id"`
	Project      string `json:"project"`
	ChunkIndex   int    `json:"chunk_index"`
	Text         string `json:"text"`
	TokenCount   int    `json:"token_count"`
	Timestamp    string `json:"timestamp"`
	MessageStart int    `json:"message_start"`
	MessageEnd   int    `json:"message_end"`
	MemoryTypes  string `json:"memory_types"` // JSON-encoded []string
	Tags         string `json:"tags"`         // JSON-encoded []string
	Archived     bool   `json:"archived"`
	Partition    string `json:"partition"`
	// Embedding is kept alongside the graph copy so MoveToPartition can
	// re-insert a chunk into its destination partition's graph without a
	// re-embed — coder/hnsw graphs don't expose vector lookup by key.
	Embedding []float32 `json:"embedding"`
}

func encodeRecord(rec ChunkRecord, partition Partition) scalarRecord {
	memoryTypes, _ := json.Marshal(rec.MemoryTypes)
	tags, _ := json.Marshal(rec.Tags)
	return scalarRecord{
		SessionID:    rec.SessionID,
		Project:      rec.Project,
		ChunkIndex:   rec.ChunkIndex,
		Text:         rec.Text,
		TokenCount:   rec.TokenCount,
		Timestamp:    rec.Timestamp.UTC().Format(time.RFC3339Nano),
		MessageStart: rec.MessageStart,
		MessageEnd:   rec.MessageEnd,
		MemoryTypes:  string(memoryTypes),
		Tags:         string(tags),
		Archived:     rec.Archived,
		Partition:    string(partition),
		Embedding:    rec.Embedding,
	}
}

func decodeRecord(chunkID string, sr scalarRecord) ChunkRecord {
	var memoryTypes, tags []string
	_ = json.Unmarshal([]byte(sr.MemoryTypes), &memoryTypes)
	_ = json.Unmarshal([]byte(sr.Tags), &tags)
	ts, _ := time.Parse(time.RFC3339Nano, sr.Timestamp)

	return ChunkRecord{
		ChunkID:      chunkID,
		SessionID:    sr.SessionID,
		Project:      sr.Project,
		ChunkIndex:   sr.ChunkIndex,
		Text:         sr.Text,
		TokenCount:   sr.TokenCount,
		Timestamp:    ts,
		MessageStart: sr.MessageStart,
		MessageEnd:   sr.MessageEnd,
		MemoryTypes:  memoryTypes,
		Tags:         tags,
		Archived:     sr.Archived,
		Embedding:    sr.Embedding,
	}
}

// metadataStore persists scalarRecords as one JSON document, keyed by
// chunk_id, written temp-file-then-rename (spec.md §6).
type metadataStore struct {
	mu      sync.RWMutex
	path    string
	records map[string]scalarRecord
	dirty   bool
}

func loadMetadataStore(path string) (*metadataStore, error) {
	m := &metadataStore{path: path, records: make(map[string]scalarRecord)}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, sessionerrors.Wrap(sessionerrors.KindIOError, "read vector store metadata", err)
	}
	var onDisk map[string]scalarRecord
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return m, nil // corrupt metadata costs a reindex, not a boot failure
	}
	m.records = onDisk
	return m, nil
}

func (m *metadataStore) put(chunkID string, sr scalarRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[chunkID] = sr
	m.dirty = true
}

func (m *metadataStore) get(chunkID string) (scalarRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sr, ok := m.records[chunkID]
	return sr, ok
}

func (m *metadataStore) delete(chunkID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, chunkID)
	m.dirty = true
}

func (m *metadataStore) chunkIDsForSession(sessionID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, sr := range m.records {
		if sr.SessionID == sessionID {
			ids = append(ids, id)
		}
	}
	return ids
}

func (m *metadataStore) countByPartition(partition Partition) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sr := range m.records {
		if sr.Partition == string(partition) {
			n++
		}
	}
	return n
}

func (m *metadataStore) flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirty {
		return nil
	}
	data, err := json.Marshal(m.records)
	if err != nil {
		return sessionerrors.Wrap(sessionerrors.KindIOError, "marshal vector store metadata", err)
	}
	if dir := filepath.Dir(m.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return sessionerrors.Wrap(sessionerrors.KindIOError, "create vector store metadata dir", err)
		}
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return sessionerrors.Wrap(sessionerrors.KindIOError, "write vector store metadata", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return sessionerrors.Wrap(sessionerrors.KindIOError, "rename vector store metadata", err)
	}
	m.dirty = false
	return nil
}
