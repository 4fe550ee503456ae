package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	sessionerrors "github.com/sessionmcp/sessionmcp/internal/errors"
)

// fileName is the registry's on-disk document name.
const fileName = "session-registry.json"

// onDisk is the persisted document shape.
type onDisk struct {
	Sessions map[string]Session `json:"sessions"`
}

// Registry is the session registry (spec.md §4.6): one JSON document, one
// mutex. Every exported method takes and releases the mutex itself — the
// mutex is never held across an embedding or vector-store call (spec.md
// §5), because the registry never calls into those packages at all. The
// in-process mutex alone isn't enough once both the `serve` daemon and a
// one-shot `sessionmcp setup` (or other CLI) invocation can touch the same
// storage_dir, so writes also take a cross-process file lock.
type Registry struct {
	mu       sync.Mutex
	path     string
	fileLock *flock.Flock
	sessions map[string]Session
}

// Open loads path (or starts empty if it doesn't exist yet).
func Open(storageDir string) (*Registry, error) {
	path := filepath.Join(storageDir, fileName)
	r := &Registry{
		path:     path,
		fileLock: flock.New(path + ".lock"),
		sessions: make(map[string]Session),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, sessionerrors.Wrap(sessionerrors.KindIOError, "read session registry", err)
	}

	var doc onDisk
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, sessionerrors.Wrap(sessionerrors.KindParseError, "parse session registry", err)
	}
	if doc.Sessions != nil {
		r.sessions = doc.Sessions
	}
	return r, nil
}

// Add inserts a new session. A pre-existing session_id is overwritten, as
// is the case on first-index-after-reset.
func (r *Registry) Add(s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = s.UpdatedAt
	}
	r.sessions[s.SessionID] = s
	return r.saveLocked()
}

// Get returns one session.
func (r *Registry) Get(sessionID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// Update partially updates a session; nil fields in u are left unchanged.
func (r *Registry) Update(sessionID string, u Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return sessionerrors.New(sessionerrors.KindNotFound, "session not found").WithQuery(sessionID)
	}

	if u.MessageCount != nil {
		s.MessageCount = *u.MessageCount
	}
	if u.ChunkCount != nil {
		s.ChunkCount = *u.ChunkCount
	}
	if u.Tags != nil {
		s.Tags = normalizeTags(*u.Tags)
	}
	if u.Summary != nil {
		s.Summary = *u.Summary
	}
	if u.SummaryChunkCount != nil {
		s.SummaryChunkCount = *u.SummaryChunkCount
	}
	if u.Archived != nil {
		s.Archived = *u.Archived
	}
	if u.LastSynced != nil {
		s.LastSynced = *u.LastSynced
	}
	s.UpdatedAt = time.Now().UTC()

	r.sessions[sessionID] = s
	return r.saveLocked()
}

// Delete removes a session's registry row (not its chunks — callers delete
// those from the vector store separately, per spec.md §3 "Ownership").
func (r *Registry) Delete(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	return r.saveLocked()
}

// List returns sessions matching filter, sorted by updated_at descending.
func (r *Registry) List(filter ListFilter) []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Session
	for _, s := range r.sessions {
		if filter.Project != "" && s.Project != filter.Project {
			continue
		}
		if filter.Archived != nil && s.Archived != *filter.Archived {
			continue
		}
		if filter.Tag != "" && !hasTag(s.Tags, filter.Tag) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// SetLastSynced stamps a session's last-synced time.
func (r *Registry) SetLastSynced(sessionID string, when time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return sessionerrors.New(sessionerrors.KindNotFound, "session not found").WithQuery(sessionID)
	}
	s.LastSynced = when
	r.sessions[sessionID] = s
	return r.saveLocked()
}

// GetStats summarizes the registry.
func (r *Registry) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Stats{}
	projectSet := make(map[string]bool)
	for _, s := range r.sessions {
		stats.TotalSessions++
		stats.TotalChunks += s.ChunkCount
		if s.Archived {
			stats.ArchivedSessions++
		}
		if s.Project != "" {
			projectSet[s.Project] = true
		}
	}
	for p := range projectSet {
		stats.Projects = append(stats.Projects, p)
	}
	sort.Strings(stats.Projects)
	return stats
}

// Clear empties the registry.
func (r *Registry) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = make(map[string]Session)
	return r.saveLocked()
}

// saveLocked writes the registry to disk. Callers must hold r.mu. The
// cross-process file lock serializes the rename against any other
// sessionmcp process (daemon or CLI) pointed at the same storage_dir.
func (r *Registry) saveLocked() error {
	doc := onDisk{Sessions: r.sessions}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return sessionerrors.Wrap(sessionerrors.KindIOError, "marshal session registry", err)
	}

	if dir := filepath.Dir(r.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return sessionerrors.Wrap(sessionerrors.KindIOError, "create registry dir", err)
		}
	}

	if err := r.fileLock.Lock(); err != nil {
		return sessionerrors.Wrap(sessionerrors.KindIOError, "acquire registry file lock", err)
	}
	defer func() { _ = r.fileLock.Unlock() }()

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return sessionerrors.Wrap(sessionerrors.KindIOError, "write session registry", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return sessionerrors.Wrap(sessionerrors.KindIOError, "rename session registry", err)
	}
	return nil
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, t := range tags {
		lower := strings.ToLower(strings.TrimSpace(t))
		if lower == "" || seen[lower] {
			continue
		}
		seen[lower] = true
		out = append(out, lower)
	}
	sort.Strings(out)
	return out
}
