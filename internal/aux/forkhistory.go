// Package aux implements the auxiliary services from spec.md §4.12:
// fork-history, preference aggregation, tagging, extractive summary,
// session diff, duplicate detection, clustering, and archive sweep.
package aux

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	sessionerrors "github.com/sessionmcp/sessionmcp/internal/errors"
	"github.com/sessionmcp/sessionmcp/internal/rank"
)

// maxForkHistoryEntries caps the fork-history list (spec.md §6
// "fork_history.json — newest-first list, max 100 entries").
const maxForkHistoryEntries = 100

// ForkEntry is one append-only fork-history record (spec.md §3
// "Fork-history entry").
type ForkEntry struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	Timestamp       time.Time `json:"timestamp"`
	Query           string    `json:"query"`
	SelectedPosition int      `json:"selected_position"`
}

// ForkHistory is the thread-safe, atomically-persisted fork-history log.
type ForkHistory struct {
	mu      sync.Mutex
	path    string
	entries []ForkEntry
}

// OpenForkHistory loads (or initializes) the fork-history document at path.
func OpenForkHistory(path string) (*ForkHistory, error) {
	h := &ForkHistory{path: path}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return h, nil
	}
	if err != nil {
		return nil, sessionerrors.Wrap(sessionerrors.KindIOError, "read fork history", err)
	}
	if err := json.Unmarshal(data, &h.entries); err != nil {
		return h, nil // corrupt history costs an empty log, not a boot failure
	}
	return h, nil
}

// Record appends a fork-history entry, evicting the oldest entry once the
// log exceeds maxForkHistoryEntries (spec.md §4.12 "list newest-first up
// to N").
func (h *ForkHistory) Record(sessionID, query string, selectedPosition int) (ForkEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry := ForkEntry{
		ID:               uuid.NewString(),
		SessionID:        sessionID,
		Timestamp:        time.Now().UTC(),
		Query:            query,
		SelectedPosition: selectedPosition,
	}

	h.entries = append(h.entries, entry)
	sort.SliceStable(h.entries, func(i, j int) bool { return h.entries[i].Timestamp.After(h.entries[j].Timestamp) })
	if len(h.entries) > maxForkHistoryEntries {
		h.entries = h.entries[:maxForkHistoryEntries]
	}

	if err := h.flush(); err != nil {
		return ForkEntry{}, err
	}
	return entry, nil
}

// List returns up to limit entries, newest-first (spec.md §4.12).
func (h *ForkHistory) List(limit int) []ForkEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	if limit <= 0 || limit > len(h.entries) {
		limit = len(h.entries)
	}
	out := make([]ForkEntry, limit)
	copy(out, h.entries[:limit])
	return out
}

// ForSession returns every fork-history entry for sessionID, newest-first.
func (h *ForkHistory) ForSession(sessionID string) []ForkEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []ForkEntry
	for _, e := range h.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out
}

// flush persists the log via temp-file-then-rename (spec.md §6
// "append-truncate atomic").
func (h *ForkHistory) flush() error {
	data, err := json.MarshalIndent(h.entries, "", "  ")
	if err != nil {
		return sessionerrors.Wrap(sessionerrors.KindIOError, "encode fork history", err)
	}
	if dir := filepath.Dir(h.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return sessionerrors.Wrap(sessionerrors.KindIOError, "create fork history dir", err)
		}
	}
	tmp := h.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return sessionerrors.Wrap(sessionerrors.KindIOError, "write fork history", err)
	}
	if err := os.Rename(tmp, h.path); err != nil {
		_ = os.Remove(tmp)
		return sessionerrors.Wrap(sessionerrors.KindIOError, "rename fork history", err)
	}
	return nil
}

// Preference aggregates one session's fork-history into the ranker's
// preference boost input (spec.md §4.12 "aggregates fork-history into
// per-session scores").
func (h *ForkHistory) Preference(sessionID string) *rank.PreferenceRecord {
	entries := h.ForSession(sessionID)
	if len(entries) == 0 {
		return nil
	}

	var sumPos float64
	var last time.Time
	for _, e := range entries {
		sumPos += float64(e.SelectedPosition)
		if e.Timestamp.After(last) {
			last = e.Timestamp
		}
	}

	return &rank.PreferenceRecord{
		ForkCount:            len(entries),
		AvgSelectedPosition:  sumPos / float64(len(entries)),
		LastSelectionTime:    last,
		HasLastSelectionTime: !last.IsZero(),
	}
}

// PreferenceLookup adapts Preference to the search package's
// PreferenceLookup function type without creating an import from aux to
// search.
func (h *ForkHistory) PreferenceLookup(sessionID string) *rank.PreferenceRecord {
	return h.Preference(sessionID)
}
