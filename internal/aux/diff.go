package aux

import (
	"sort"
	"strings"

	"github.com/sessionmcp/sessionmcp/internal/vectorstore"
)

// contentWeight and topicWeight sum to 1 (spec.md §4.12 "0.7·content +
// 0.3·topic_overlap").
const (
	contentWeight = 0.7
	topicWeight   = 0.3
)

// DiffResult is the outcome of comparing two sessions (spec.md §4.12
// "compare-sessions").
type DiffResult struct {
	SessionA       string
	SessionB       string
	ContentScore   float64
	TopicOverlap   float64
	CombinedScore  float64
	MatchedPairs   []ChunkPair
	UniqueToA      []vectorstore.ChunkRecord
	UniqueToB      []vectorstore.ChunkRecord
}

// ChunkPair is one greedily-matched chunk pair between two sessions.
type ChunkPair struct {
	A          vectorstore.ChunkRecord
	B          vectorstore.ChunkRecord
	Similarity float64
}

// Differ computes session-to-session diffs.
type Differ struct {
	Store *vectorstore.Store
}

// Compare greedily matches sessionA's chunks against sessionB's by cosine
// similarity (highest-similarity pairs claimed first, each chunk used at
// most once), then blends the mean matched-pair similarity with topic-set
// (memory-marker) overlap (spec.md §4.12 "session diff").
func (d *Differ) Compare(sessionA, sessionB string) DiffResult {
	chunksA := d.Store.SessionChunks(sessionA)
	chunksB := d.Store.SessionChunks(sessionB)

	result := DiffResult{SessionA: sessionA, SessionB: sessionB}

	type candidate struct {
		i, j int
		sim  float64
	}
	var candidates []candidate
	for i, a := range chunksA {
		for j, b := range chunksB {
			candidates = append(candidates, candidate{i, j, cosineSimilarity(a.Embedding, b.Embedding)})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].sim > candidates[j].sim })

	usedA := make(map[int]bool, len(chunksA))
	usedB := make(map[int]bool, len(chunksB))
	var sumSim float64
	for _, c := range candidates {
		if usedA[c.i] || usedB[c.j] {
			continue
		}
		usedA[c.i] = true
		usedB[c.j] = true
		result.MatchedPairs = append(result.MatchedPairs, ChunkPair{A: chunksA[c.i], B: chunksB[c.j], Similarity: c.sim})
		sumSim += c.sim
	}

	for i, c := range chunksA {
		if !usedA[i] {
			result.UniqueToA = append(result.UniqueToA, c)
		}
	}
	for j, c := range chunksB {
		if !usedB[j] {
			result.UniqueToB = append(result.UniqueToB, c)
		}
	}

	if len(result.MatchedPairs) > 0 {
		result.ContentScore = sumSim / float64(len(result.MatchedPairs))
	}
	result.TopicOverlap = topicSetOverlap(chunksA, chunksB)
	result.CombinedScore = contentWeight*result.ContentScore + topicWeight*result.TopicOverlap
	return result
}

// topicSetOverlap is Jaccard similarity between the two sessions' memory-
// marker type sets (spec.md §3 "topic set := union of memory marker
// types present in a session's chunks").
func topicSetOverlap(chunksA, chunksB []vectorstore.ChunkRecord) float64 {
	setA := topicSet(chunksA)
	setB := topicSet(chunksB)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}

	union := make(map[string]bool, len(setA)+len(setB))
	intersection := 0
	for t := range setA {
		union[t] = true
	}
	for t := range setB {
		if setA[t] {
			intersection++
		}
		union[t] = true
	}
	if len(union) == 0 {
		return 0
	}
	return float64(intersection) / float64(len(union))
}

func topicSet(chunks []vectorstore.ChunkRecord) map[string]bool {
	set := make(map[string]bool)
	for _, c := range chunks {
		for _, mt := range c.MemoryTypes {
			set[strings.ToLower(mt)] = true
		}
	}
	return set
}
