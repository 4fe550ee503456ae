package aux

import (
	"sort"

	"github.com/sessionmcp/sessionmcp/internal/registry"
	"github.com/sessionmcp/sessionmcp/internal/vectorstore"
)

// DuplicatePair is two sessions whose mean-chunk embeddings are
// similar enough to flag as likely duplicates (spec.md §4.12 "duplicate
// detection").
type DuplicatePair struct {
	SessionA   string
	SessionB   string
	Similarity float64
}

// DuplicateDetector flags sessions that likely cover the same ground.
type DuplicateDetector struct {
	Store    *vectorstore.Store
	Registry *registry.Registry
}

// Detect compares every pair of sessions with at least minChunks chunks,
// via the cosine similarity of their mean chunk embedding, and returns
// pairs at or above threshold (spec.md §4.12 "session-level mean-embedding
// cosine similarity > threshold, default 0.85; min chunk count, default 3").
func (d *DuplicateDetector) Detect(threshold float64, minChunks int) []DuplicatePair {
	sessions := d.Registry.List(registry.ListFilter{})

	type candidate struct {
		id   string
		mean []float32
	}
	var candidates []candidate
	for _, s := range sessions {
		chunks := d.Store.SessionChunks(s.SessionID)
		if len(chunks) < minChunks {
			continue
		}
		vecs := make([][]float32, len(chunks))
		for i, c := range chunks {
			vecs[i] = c.Embedding
		}
		candidates = append(candidates, candidate{id: s.SessionID, mean: MeanVector(vecs)})
	}

	var pairs []DuplicatePair
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			sim := cosineSimilarity(candidates[i].mean, candidates[j].mean)
			if sim >= threshold {
				pairs = append(pairs, DuplicatePair{SessionA: candidates[i].id, SessionB: candidates[j].id, Similarity: sim})
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Similarity > pairs[j].Similarity })
	return pairs
}
