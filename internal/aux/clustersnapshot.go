package aux

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	sessionerrors "github.com/sessionmcp/sessionmcp/internal/errors"
)

// ClusterSnapshot is the persisted clusters.json (spec.md §6 "optional
// cluster assignment snapshot"), replaced wholesale every time cluster-
// sessions runs, same temp-file-then-rename idiom as ForkHistory.flush.
type ClusterSnapshot struct {
	mu       sync.RWMutex
	path     string
	clusters []Cluster
}

// OpenClusterSnapshot loads (or initializes) the snapshot at path.
func OpenClusterSnapshot(path string) (*ClusterSnapshot, error) {
	snap := &ClusterSnapshot{path: path}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return snap, nil
	}
	if err != nil {
		return nil, sessionerrors.Wrap(sessionerrors.KindIOError, "read cluster snapshot", err)
	}
	if err := json.Unmarshal(data, &snap.clusters); err != nil {
		return snap, nil // corrupt snapshot costs an empty snapshot, not a boot failure
	}
	return snap, nil
}

// Replace overwrites the snapshot with a freshly computed cluster set and
// persists it.
func (s *ClusterSnapshot) Replace(clusters []Cluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clusters = clusters
	return s.flush()
}

// All returns every cluster in the current snapshot.
func (s *ClusterSnapshot) All() []Cluster {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Cluster, len(s.clusters))
	copy(out, s.clusters)
	return out
}

// ForSession returns the cluster sessionID was last assigned to.
func (s *ClusterSnapshot) ForSession(sessionID string) (Cluster, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clusters {
		for _, id := range c.SessionIDs {
			if id == sessionID {
				return c, true
			}
		}
	}
	return Cluster{}, false
}

// ByID returns the cluster with the given id.
func (s *ClusterSnapshot) ByID(id int) (Cluster, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clusters {
		if c.ID == id {
			return c, true
		}
	}
	return Cluster{}, false
}

func (s *ClusterSnapshot) flush() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.clusters, "", "  ")
	if err != nil {
		return sessionerrors.Wrap(sessionerrors.KindIOError, "encode cluster snapshot", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return sessionerrors.Wrap(sessionerrors.KindIOError, "create cluster snapshot dir", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return sessionerrors.Wrap(sessionerrors.KindIOError, "write cluster snapshot", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return sessionerrors.Wrap(sessionerrors.KindIOError, "rename cluster snapshot", err)
	}
	return nil
}
