package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	sessionerrors "github.com/sessionmcp/sessionmcp/internal/errors"
)

// DiskCache is a content-addressed embedding cache (spec.md §4.4): the key
// is the SHA-256 of the UTF-8 text plus the model identity, so a model
// change never serves stale vectors. Persisted as one JSON document,
// {hash: vector[]}, written temp-file-then-rename for crash safety.
type DiskCache struct {
	mu     sync.RWMutex
	path   string
	dirty  bool
	values map[string][]float32
}

// LoadDiskCache reads path if it exists, or starts empty. A corrupt cache
// file is treated as empty rather than fatal — it only costs a re-embed.
func LoadDiskCache(path string) (*DiskCache, error) {
	c := &DiskCache{path: path, values: make(map[string][]float32)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, sessionerrors.Wrap(sessionerrors.KindIOError, "read embedding cache", err)
	}

	var onDisk map[string][]float32
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return c, nil
	}
	c.values = onDisk
	return c, nil
}

// Key computes the cache key for text under the given model identity.
func Key(modelName, text string) string {
	h := sha256.Sum256([]byte(modelName + "\x00" + text))
	return hex.EncodeToString(h[:])
}

// Get returns the cached vector for key, if present.
func (c *DiskCache) Get(key string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Put stores a vector under key and marks the cache dirty.
func (c *DiskCache) Put(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = vec
	c.dirty = true
}

// Len reports the number of cached entries.
func (c *DiskCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// Flush writes the in-memory cache to disk if it has unsaved changes,
// via a temp file plus atomic rename (spec.md §4.4, §6).
func (c *DiskCache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}

	data, err := json.Marshal(c.values)
	if err != nil {
		return sessionerrors.Wrap(sessionerrors.KindIOError, "marshal embedding cache", err)
	}

	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return sessionerrors.Wrap(sessionerrors.KindIOError, "create embedding cache dir", err)
		}
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return sessionerrors.Wrap(sessionerrors.KindIOError, "write embedding cache", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return sessionerrors.Wrap(sessionerrors.KindIOError, "rename embedding cache", err)
	}

	c.dirty = false
	return nil
}
