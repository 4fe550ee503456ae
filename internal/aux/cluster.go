package aux

import (
	"math"
	"sort"

	"github.com/sessionmcp/sessionmcp/internal/registry"
	"github.com/sessionmcp/sessionmcp/internal/vectorstore"
)

// maxKMeansIterations caps Lloyd's-algorithm iterations so a pathological
// input (e.g. all-identical vectors) can't spin forever.
const maxKMeansIterations = 100

// Cluster is one k-means cluster over session-level mean embeddings
// (spec.md §4.12 "cluster-sessions").
type Cluster struct {
	ID              int
	SessionIDs      []string
	Centroid        []float32
	DominantTag     string
	DominantProject string
	Silhouette      float64
}

// clusterPoint is one session reduced to its mean chunk embedding, paired
// with its registry row for dominant-tag/project labeling.
type clusterPoint struct {
	sessionID string
	vec       []float32
	session   registry.Session
}

// Clusterer groups sessions by the cosine similarity of their mean chunk
// embedding. k-means has no counterpart anywhere in the example pack (same
// grep-confirmed absence as TF-IDF summarization) — this is a small,
// justified standard-library implementation; see DESIGN.md.
type Clusterer struct {
	Store    *vectorstore.Store
	Registry *registry.Registry
}

// Cluster runs k-means (k clamped to the session count) over every
// session's mean chunk embedding, and labels each cluster by its most
// common tag and project.
func (c *Clusterer) Cluster(k int) []Cluster {
	sessions := c.Registry.List(registry.ListFilter{})

	var points []clusterPoint
	for _, s := range sessions {
		chunks := c.Store.SessionChunks(s.SessionID)
		if len(chunks) == 0 {
			continue
		}
		vecs := make([][]float32, len(chunks))
		for i, ch := range chunks {
			vecs[i] = ch.Embedding
		}
		points = append(points, clusterPoint{sessionID: s.SessionID, vec: MeanVector(vecs), session: s})
	}
	if len(points) == 0 {
		return nil
	}
	if k <= 0 || k > len(points) {
		k = len(points)
	}

	centroids := make([][]float32, k)
	for i := 0; i < k; i++ {
		centroids[i] = append([]float32(nil), points[i*len(points)/k].vec...)
	}

	assignment := make([]int, len(points))
	for iter := 0; iter < maxKMeansIterations; iter++ {
		changed := false
		for i, p := range points {
			best, bestSim := 0, -2.0
			for ci, centroid := range centroids {
				sim := cosineSimilarity(p.vec, centroid)
				if sim > bestSim {
					best, bestSim = ci, sim
				}
			}
			if assignment[i] != best {
				assignment[i] = best
				changed = true
			}
		}

		sums := make([][]float32, k)
		counts := make([]int, k)
		for i, p := range points {
			ci := assignment[i]
			if sums[ci] == nil {
				sums[ci] = make([]float32, len(p.vec))
			}
			for d, x := range p.vec {
				sums[ci][d] += x
			}
			counts[ci]++
		}
		for ci := range centroids {
			if counts[ci] == 0 {
				continue
			}
			next := make([]float32, len(sums[ci]))
			for d, s := range sums[ci] {
				next[d] = s / float32(counts[ci])
			}
			centroids[ci] = next
		}

		if !changed {
			break
		}
	}

	byCluster := make(map[int][]clusterPoint, k)
	for i, p := range points {
		ci := assignment[i]
		byCluster[ci] = append(byCluster[ci], p)
	}

	var clusters []Cluster
	for ci, pts := range byCluster {
		if len(pts) == 0 {
			continue
		}
		ids := make([]string, len(pts))
		for i, p := range pts {
			ids[i] = p.sessionID
		}
		sort.Strings(ids)

		clusters = append(clusters, Cluster{
			ID:              ci,
			SessionIDs:      ids,
			Centroid:        centroids[ci],
			DominantTag:     dominantTag(pts),
			DominantProject: dominantProject(pts),
			Silhouette:      silhouetteScore(ci, assignment, points),
		})
	}
	sort.SliceStable(clusters, func(i, j int) bool { return clusters[i].ID < clusters[j].ID })
	return clusters
}

func dominantTag(pts []clusterPoint) string {
	counts := make(map[string]int)
	for _, p := range pts {
		for _, t := range p.session.Tags {
			counts[t]++
		}
	}
	return argmaxString(counts)
}

func dominantProject(pts []clusterPoint) string {
	counts := make(map[string]int)
	for _, p := range pts {
		if p.session.Project != "" {
			counts[p.session.Project]++
		}
	}
	return argmaxString(counts)
}

func argmaxString(counts map[string]int) string {
	best, bestCount := "", 0
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys) // deterministic tie-break
	for _, k := range keys {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	return best
}

// silhouetteScore computes the mean silhouette coefficient for points in
// cluster ci, using 1-cosineSimilarity as a distance measure.
func silhouetteScore(ci int, assignment []int, points []clusterPoint) float64 {
	var members, others []int
	for i, a := range assignment {
		if a == ci {
			members = append(members, i)
		} else {
			others = append(others, i)
		}
	}
	if len(members) <= 1 || len(others) == 0 {
		return 0
	}

	byOtherCluster := make(map[int][]int)
	for _, i := range others {
		byOtherCluster[assignment[i]] = append(byOtherCluster[assignment[i]], i)
	}

	var total float64
	for _, i := range members {
		a := meanDistance(points[i].vec, members, points, i)
		b := math.MaxFloat64
		for _, group := range byOtherCluster {
			d := meanDistance(points[i].vec, group, points, -1)
			if d < b {
				b = d
			}
		}
		maxAB := a
		if b > maxAB {
			maxAB = b
		}
		if maxAB == 0 {
			continue
		}
		total += (b - a) / maxAB
	}
	return total / float64(len(members))
}

func meanDistance(v []float32, group []int, points []clusterPoint, exclude int) float64 {
	var sum float64
	n := 0
	for _, j := range group {
		if j == exclude {
			continue
		}
		sum += 1 - cosineSimilarity(v, points[j].vec)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
