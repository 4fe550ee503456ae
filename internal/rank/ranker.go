// Package rank implements the composite ranker (spec.md §4.7): five
// weighted similarity/freshness factors plus two additive, capped boosts,
// with a deterministic tie-break ordering.
package rank

import (
	"math"
	"sort"
	"time"

	"github.com/sessionmcp/sessionmcp/internal/markers"
)

// Weights are the five factor weights (spec.md §4.7 "base score").
type Weights struct {
	Best    float64
	Avg     float64
	Ratio   float64
	Recency float64
	Chain   float64
}

// DefaultWeights matches spec.md §4.7 exactly.
func DefaultWeights() Weights {
	return Weights{Best: 0.40, Avg: 0.20, Ratio: 0.05, Recency: 0.25, Chain: 0.10}
}

// defaultChainFactor is the "success-rate placeholder" (spec.md §4.7); no
// outcome-tracking subsystem feeds a real success rate yet, so every
// session gets the documented neutral default.
const defaultChainFactor = 0.5

// SessionHit is the per-session aggregate of chunk hits the search
// orchestrator collected from the vector store (input (a)).
type SessionHit struct {
	SessionID       string
	BestSimilarity  float32
	AvgSimilarity   float32
	HitChunkCount   int
	TotalChunkCount int
	MemoryTypes     []markers.Type // union across the session's hit chunks
	// TopChunkIDs holds up to three of the session's chunk ids that
	// produced this hit, ordered by descending chunk-level similarity
	// (spec.md §4.9 step 7 "select up to three highest-similarity
	// chunks"). Populated by the caller that grouped the k-NN hits.
	TopChunkIDs []string
}

// SessionInfo is the relevant slice of the registry entry (input (b)).
type SessionInfo struct {
	UpdatedAt time.Time
}

// PreferenceRecord is the per-session fork-history aggregate (input (c),
// spec.md §3 "Preference record").
type PreferenceRecord struct {
	ForkCount            int
	AvgSelectedPosition  float64
	LastSelectionTime    time.Time
	HasLastSelectionTime bool
}

// TemporalQuery is an optional time-range descriptor parsed out of the
// query text (input (d)).
type TemporalQuery struct {
	Start time.Time
	End   time.Time
}

// Input bundles one session's scoring inputs.
type Input struct {
	Hit        SessionHit
	Info       SessionInfo
	Preference *PreferenceRecord
	Temporal   *TemporalQuery
	Now        time.Time
}

// Score is the fully broken-down result of scoring one session.
type Score struct {
	SessionID       string
	Best            float64
	Avg             float64
	Ratio           float64
	Recency         float64
	Chain           float64
	BaseScore       float64
	MemoryBoost     float64
	PreferenceBoost float64
	TemporalBoost   float64
	Total           float64
	UpdatedAt       time.Time
	// TopChunkIDs carries SessionHit.TopChunkIDs through to the preview
	// builder, so a cached result list still previews by similarity
	// instead of recency-of-append (spec.md §4.9 step 7).
	TopChunkIDs []string
}

// Rank scores every input, drops sessions below similarityThreshold (on
// the best factor), and returns them sorted by total score descending —
// ties broken by newer updated_at, then by higher best (spec.md §4.7).
func Rank(inputs []Input, weights Weights, similarityThreshold float64) []Score {
	var scores []Score
	for _, in := range inputs {
		s := scoreOne(in, weights)
		if s.Best < similarityThreshold {
			continue
		}
		scores = append(scores, s)
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Total != scores[j].Total {
			return scores[i].Total > scores[j].Total
		}
		if !scores[i].UpdatedAt.Equal(scores[j].UpdatedAt) {
			return scores[i].UpdatedAt.After(scores[j].UpdatedAt)
		}
		return scores[i].Best > scores[j].Best
	})
	return scores
}

func scoreOne(in Input, weights Weights) Score {
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	best := float64(in.Hit.BestSimilarity)
	avg := float64(in.Hit.AvgSimilarity)
	ratio := ratioFactor(in.Hit)
	recency := recencyFactor(in.Info.UpdatedAt, now)
	chain := defaultChainFactor

	base := weights.Best*best + weights.Avg*avg + weights.Ratio*ratio +
		weights.Recency*recency + weights.Chain*chain

	memoryBoost := markers.ComputeBoost(in.Hit.MemoryTypes)
	preferenceBoost := preferenceBoostFor(in.Preference, now)
	temporalBoost := temporalBoostFor(in.Temporal, in.Info.UpdatedAt)

	return Score{
		SessionID:       in.Hit.SessionID,
		Best:            best,
		Avg:             avg,
		Ratio:           ratio,
		Recency:         recency,
		Chain:           chain,
		BaseScore:       base,
		MemoryBoost:     memoryBoost,
		PreferenceBoost: preferenceBoost,
		TemporalBoost:   temporalBoost,
		Total:           base + memoryBoost + preferenceBoost + temporalBoost,
		UpdatedAt:       in.Info.UpdatedAt,
		TopChunkIDs:     in.Hit.TopChunkIDs,
	}
}

func ratioFactor(hit SessionHit) float64 {
	if hit.TotalChunkCount <= 0 {
		return 0
	}
	r := float64(hit.HitChunkCount) / float64(hit.TotalChunkCount)
	if r > 1 {
		r = 1
	}
	return r
}

// recencyFactor applies spec.md §4.7's exp(-age_days/30) curve.
func recencyFactor(updatedAt, now time.Time) float64 {
	if updatedAt.IsZero() {
		return 0
	}
	ageDays := now.Sub(updatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-ageDays / 30)
}

// preferenceBoostFor implements spec.md §4.7's formula:
// min(0.10, 0.04·log2(1+fork_count) + 0.02·position_bonus +
// 0.02·recency_of_last_selection). position_bonus and
// recency_of_last_selection aren't independently specified elsewhere, so
// this package defines them the same way the rest of §4.7 defines
// normalized [0,1] signals: position_bonus rewards an average selected
// position near the top of the list, recency_of_last_selection reuses the
// session recency curve against the last fork selection time.
func preferenceBoostFor(pref *PreferenceRecord, now time.Time) float64 {
	if pref == nil || pref.ForkCount <= 0 {
		return 0
	}

	forkTerm := 0.04 * math.Log2(1+float64(pref.ForkCount))

	positionBonus := 1.0 / (1.0 + pref.AvgSelectedPosition)
	positionTerm := 0.02 * positionBonus

	var recencyTerm float64
	if pref.HasLastSelectionTime {
		recencyTerm = 0.02 * recencyFactor(pref.LastSelectionTime, now)
	}

	total := forkTerm + positionTerm + recencyTerm
	if total > 0.10 {
		total = 0.10
	}
	return total
}

// temporalBoostFor implements spec.md §4.7's "+0.05 inside the range,
// additional linear decay over 30 days" for queries carrying a time range.
func temporalBoostFor(q *TemporalQuery, updatedAt time.Time) float64 {
	if q == nil || updatedAt.IsZero() {
		return 0
	}

	const inRangeBoost = 0.05
	const decayDays = 30.0

	if !q.Start.IsZero() && updatedAt.Before(q.Start) {
		days := q.Start.Sub(updatedAt).Hours() / 24
		return decay(inRangeBoost, days, decayDays)
	}
	if !q.End.IsZero() && updatedAt.After(q.End) {
		days := updatedAt.Sub(q.End).Hours() / 24
		return decay(inRangeBoost, days, decayDays)
	}
	return inRangeBoost
}

func decay(boost, days, over float64) float64 {
	if days <= 0 {
		return boost
	}
	remaining := boost * (1 - days/over)
	if remaining < 0 {
		return 0
	}
	return remaining
}
