package hnswstore

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// persistedMeta is the gob-encoded side-car next to the exported graph file.
type persistedMeta struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  Config
}

// Save writes the graph to path (temp file then atomic rename) and the ID
// mapping to path+".meta" (spec.md §6 "temp-then-atomic-rename").
func (s *Store) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("hnswstore: store is closed")
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("hnswstore: create directory: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("hnswstore: create index file: %w", err)
	}
	if err := s.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("hnswstore: export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("hnswstore: close index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("hnswstore: rename index file: %w", err)
	}

	return s.saveMeta(path + ".meta")
}

func (s *Store) saveMeta(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("hnswstore: create temp metadata file: %w", err)
	}

	meta := persistedMeta{IDMap: s.idMap, NextKey: s.nextKey, Config: s.config}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("hnswstore: encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("hnswstore: close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load replaces the graph and ID mapping with the contents of path and
// path+".meta". A missing path is not an error — Load is a no-op so a
// fresh store stays empty.
func (s *Store) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("hnswstore: store is closed")
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	if err := s.loadMeta(path + ".meta"); err != nil {
		return fmt.Errorf("hnswstore: load metadata: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("hnswstore: open index file: %w", err)
	}
	defer func() { _ = file.Close() }()

	reader := bufio.NewReader(file)
	if err := s.graph.Import(reader); err != nil {
		return fmt.Errorf("hnswstore: import graph: %w", err)
	}
	return nil
}

func (s *Store) loadMeta(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var meta persistedMeta
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}

	s.idMap = meta.IDMap
	s.keyMap = make(map[uint64]string, len(meta.IDMap))
	s.nextKey = meta.NextKey
	s.config = meta.Config
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}
