// Package hnswstore is a thin, partition-agnostic wrapper around
// coder/hnsw's pure-Go HNSW graph: string IDs in, string IDs out, lazy
// deletion, cosine/L2 distance-to-score conversion. internal/vectorstore
// layers partitions, scalar metadata and filtering on top of one or more
// Store instances.
package hnswstore

import (
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// Config configures one graph.
type Config struct {
	Dimensions int
	Metric     string // "cos" or "l2"
	M          int
	EfSearch   int
}

// DefaultConfig returns sensible HNSW parameters for the given dimension.
func DefaultConfig(dimensions int) Config {
	return Config{Dimensions: dimensions, Metric: "cos", M: 16, EfSearch: 20}
}

// Result is one nearest-neighbor hit.
type Result struct {
	ID       string
	Distance float32
	Score    float32
}

// Store is one HNSW graph with a string-ID <-> internal-key mapping.
type Store struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config Config

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

// New creates an empty graph for cfg.
func New(cfg Config) *Store {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &Store{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// Add inserts or replaces vectors under ids. A pre-existing id is
// lazy-deleted: its old graph node is orphaned rather than removed, which
// sidesteps coder/hnsw's instability when the last node in a graph is
// deleted.
func (s *Store) Add(ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("hnswstore: ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("hnswstore: store is closed")
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return fmt.Errorf("hnswstore: dimension mismatch: expected %d, got %d", s.config.Dimensions, len(v))
		}
	}

	for i, id := range ids {
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == "cos" {
			normalizeInPlace(vec)
		}

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
	}
	return nil
}

// Search returns up to k nearest neighbors of query.
func (s *Store) Search(query []float32, k int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("hnswstore: store is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, fmt.Errorf("hnswstore: dimension mismatch: expected %d, got %d", s.config.Dimensions, len(query))
	}
	if s.graph.Len() == 0 {
		return nil, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	if s.config.Metric == "cos" {
		normalizeInPlace(normalized)
	}

	nodes := s.graph.Search(normalized, k)
	results := make([]Result, 0, len(nodes))
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue // lazily-deleted node, still resident in the graph
		}
		distance := s.graph.Distance(normalized, node.Value)
		results = append(results, Result{
			ID:       id,
			Distance: distance,
			Score:    distanceToScore(distance, s.config.Metric),
		})
	}
	return results, nil
}

// Delete lazily removes ids: the graph keeps the nodes, but they stop
// resolving to an ID and so never again surface from Search.
func (s *Store) Delete(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("hnswstore: store is closed")
	}
	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
	return nil
}

// Contains reports whether id is currently live.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	_, ok := s.idMap[id]
	return ok
}

// Count returns the number of live (non-orphaned) vectors.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// AllIDs returns every live ID, unordered.
func (s *Store) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	ids := make([]string, 0, len(s.idMap))
	for id := range s.idMap {
		ids = append(ids, id)
	}
	return ids
}

// Stats reports live vs. orphaned graph occupancy, for compaction
// decisions.
type Stats struct {
	Live    int
	Graph   int
	Orphans int
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}
	}
	live := len(s.idMap)
	graph := s.graph.Len()
	return Stats{Live: live, Graph: graph, Orphans: graph - live}
}

// Close releases the graph. A closed Store rejects further operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToScore converts a distance into a 0..1 similarity score (spec.md
// §4.5 "cosine (1 − distance / 2 if the store returns distance)").
func distanceToScore(distance float32, metric string) float32 {
	switch metric {
	case "l2":
		return 1.0 / (1.0 + distance)
	default:
		return 1.0 - distance/2.0
	}
}
