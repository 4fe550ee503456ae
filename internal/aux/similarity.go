package aux

import "github.com/coder/hnsw"

// cosineSimilarity scores two vectors in [0, 1] (1 = identical direction,
// 0.5 = orthogonal, 0 = opposite),
// reusing coder/hnsw's own distance function (the same one
// internal/hnswstore wires into the graph) rather than hand-rolling a dot
// product, so the comparison stays numerically consistent with what the
// index itself considers "close" (spec.md §4.5 "cosine (1 − distance / 2)").
func cosineSimilarity(a, b []float32) float64 {
	return 1.0 - float64(hnsw.CosineDistance(a, b))/2.0
}

// MeanVector averages a set of equal-length vectors, used for session-level
// duplicate detection, clustering, and similarity lookups (spec.md §4.12).
func MeanVector(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	for _, v := range vectors {
		for i, x := range v {
			sum[i] += float64(x)
		}
	}
	out := make([]float32, dim)
	for i, s := range sum {
		out[i] = float32(s / float64(len(vectors)))
	}
	return out
}
