// Package search implements the search orchestrator (spec.md §4.9): embed
// a query (cache-first), run a filtered k-NN against the vector store
// (optionally unioning the archive partition), group hits by session, rank
// them through internal/rank, and build text previews.
package search

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/sessionmcp/sessionmcp/internal/cache"
	"github.com/sessionmcp/sessionmcp/internal/config"
	"github.com/sessionmcp/sessionmcp/internal/embedding"
	sessionerrors "github.com/sessionmcp/sessionmcp/internal/errors"
	"github.com/sessionmcp/sessionmcp/internal/markers"
	"github.com/sessionmcp/sessionmcp/internal/rank"
	"github.com/sessionmcp/sessionmcp/internal/registry"
	"github.com/sessionmcp/sessionmcp/internal/vectorstore"
)

// Filters narrows a search (spec.md §4.9 "query + optional filters").
type Filters struct {
	Project         string
	Scope           string // "all" | "project"
	Tags            []string
	TimeRangeFrom   time.Time
	TimeRangeUntil  time.Time
	IncludeArchive  bool
}

// asMap canonicalizes Filters for cache keying (spec.md §4.8 "Filter maps
// are serialized canonically").
func (f Filters) asMap() map[string]any {
	m := map[string]any{
		"project":         f.Project,
		"scope":           f.Scope,
		"include_archive": f.IncludeArchive,
	}
	if len(f.Tags) > 0 {
		tags := append([]string{}, f.Tags...)
		sort.Strings(tags)
		m["tags"] = tags
	}
	if !f.TimeRangeFrom.IsZero() {
		m["from"] = f.TimeRangeFrom.UTC().Format(time.RFC3339)
	}
	if !f.TimeRangeUntil.IsZero() {
		m["until"] = f.TimeRangeUntil.UTC().Format(time.RFC3339)
	}
	return m
}

// Result is one ranked, preview-enriched session hit (spec.md §4.9 step 8).
type Result struct {
	Session registry.Session
	Score   rank.Score
	Preview string
}

// PreferenceLookup resolves a session's fork-history-derived preference
// record (spec.md §4.7 input (c)); nil if the session has never been
// forked.
type PreferenceLookup func(sessionID string) *rank.PreferenceRecord

// Orchestrator implements the search pipeline (spec.md §4.9).
type Orchestrator struct {
	Registry   *registry.Registry
	Store      *vectorstore.Store
	Gateway    *embedding.Gateway
	Caches     *cache.Caches
	Config     *config.Config
	Preference PreferenceLookup
}

// Search runs the full pipeline: canonicalize, cache probe, embed, k-NN,
// group, rank, preview (spec.md §4.9).
func (o *Orchestrator) Search(ctx context.Context, query string, filters Filters, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = o.Config.Search.TopNSessions
	}

	filterKey := cache.FilterKey(filters.asMap())
	resultKey := cache.ResultKey(query, filterKey)

	if entry, ok := o.Caches.GetResults(resultKey); ok {
		return o.buildResults(entry.Scores, limit), nil
	}

	queryVec, err := o.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	storeFilter := toStoreFilter(filters)
	partitions := []vectorstore.Partition{vectorstore.PartitionActive}
	if filters.IncludeArchive {
		partitions = append(partitions, vectorstore.PartitionArchive)
	}

	hits, err := o.Store.Search(queryVec, o.Config.Search.KChunks, storeFilter, partitions)
	if err != nil {
		return nil, sessionerrors.Wrap(sessionerrors.KindStoreUnavailable, "search vector store", err)
	}

	sessionHits := groupBySession(hits)

	temporal := parseTemporalFilter(filters)
	now := time.Now().UTC()

	var inputs []rank.Input
	for sessionID, hit := range sessionHits {
		s, ok := o.Registry.Get(sessionID)
		if !ok {
			continue // spec.md §4.9 step 5 "skip if missing"
		}
		hit.TotalChunkCount = s.ChunkCount
		var pref *rank.PreferenceRecord
		if o.Preference != nil {
			pref = o.Preference(sessionID)
		}
		inputs = append(inputs, rank.Input{
			Hit:        hit,
			Info:       rank.SessionInfo{UpdatedAt: s.UpdatedAt},
			Preference: pref,
			Temporal:   temporal,
			Now:        now,
		})
	}

	scores := rank.Rank(inputs, rank.DefaultWeights(), o.Config.Search.SimilarityThreshold)

	o.Caches.PutResults(resultKey, scores)

	return o.buildResults(scores, limit), nil
}

// embedQuery probes the embedding cache, else embeds and stores (spec.md
// §4.9 step 2).
func (o *Orchestrator) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if vec, ok := o.Caches.GetEmbedding(query); ok {
		return vec, nil
	}

	vecs, err := o.Gateway.EmbedTexts(ctx, embedding.Config{
		ModelName:    o.Config.Embedding.ModelName,
		Dimension:    o.Config.Embedding.Dimension,
		BatchSize:    o.Config.Embedding.BatchSize,
		MaxBatchSize: o.Config.Embedding.MaxBatchSize,
		MinBatchSize: o.Config.Embedding.MinBatchSize,
	}, []string{query})
	if err != nil {
		return nil, err
	}

	vec := vecs[0]
	o.Caches.PutEmbedding(query, vec)
	return vec, nil
}

// buildResults joins scores back to registry metadata and builds previews
// (spec.md §4.9 steps 5, 7), truncated to the top limit sessions.
func (o *Orchestrator) buildResults(scores []rank.Score, limit int) []Result {
	if limit > 0 && len(scores) > limit {
		scores = scores[:limit]
	}

	results := make([]Result, 0, len(scores))
	for _, sc := range scores {
		s, ok := o.Registry.Get(sc.SessionID)
		if !ok {
			continue
		}
		preview := o.buildPreview(sc.SessionID, sc.TopChunkIDs)
		results = append(results, Result{Session: s, Score: sc, Preview: preview})
	}
	return results
}

// buildPreview concatenates up to the three highest-similarity chunks of a
// session and trims to preview_length on a word boundary (spec.md §4.9 step
// 7). topChunkIDs — groupBySession's per-session similarity ranking,
// threaded through the cached rank.Score — drives the selection; when it's
// empty (no originating k-NN hits, e.g. a direct preview lookup outside a
// search), falls back to the session's most recently appended chunks.
func (o *Orchestrator) buildPreview(sessionID string, topChunkIDs []string) string {
	var chunks []vectorstore.ChunkRecord
	if len(topChunkIDs) > 0 {
		chunks = o.Store.GetChunks(topChunkIDs)
	} else {
		chunks = o.Store.SessionChunks(sessionID)
		if len(chunks) > maxPreviewChunks {
			chunks = chunks[len(chunks)-maxPreviewChunks:]
		}
	}
	if len(chunks) == 0 {
		return ""
	}

	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, strings.TrimSpace(c.Text))
	}

	previewLen := o.Config.Search.PreviewLength
	if previewLen <= 0 {
		previewLen = 280
	}
	return TrimPreview(strings.Join(texts, "\n…\n"), previewLen)
}

// toStoreFilter converts search filters to the vector store's predicate
// form (spec.md §4.9 step 3).
func toStoreFilter(f Filters) vectorstore.Filter {
	filter := vectorstore.Filter{
		Tags:  f.Tags,
		Since: f.TimeRangeFrom,
		Until: f.TimeRangeUntil,
	}
	if f.Scope == "project" {
		filter.Project = f.Project
	}
	if !f.IncludeArchive {
		archived := false
		filter.Archived = &archived
	}
	return filter
}

// maxPreviewChunks bounds how many of a session's highest-similarity chunk
// ids groupBySession retains for preview building (spec.md §4.9 step 7).
const maxPreviewChunks = 3

// chunkHit is one hit chunk's id and similarity, kept only long enough to
// pick the top maxPreviewChunks per session.
type chunkHit struct {
	id    string
	score float32
}

// groupBySession aggregates chunk hits into per-session best/avg/count
// aggregates (spec.md §4.9 step 4) and records each session's highest-
// similarity chunk ids for later preview building (step 7).
func groupBySession(hits []vectorstore.Result) map[string]rank.SessionHit {
	agg := make(map[string]*struct {
		best   float32
		sum    float32
		count  int
		memory map[markers.Type]bool
		chunks []chunkHit
	})

	for _, h := range hits {
		a, ok := agg[h.Record.SessionID]
		if !ok {
			a = &struct {
				best   float32
				sum    float32
				count  int
				memory map[markers.Type]bool
				chunks []chunkHit
			}{memory: make(map[markers.Type]bool)}
			agg[h.Record.SessionID] = a
		}
		if h.Score > a.best {
			a.best = h.Score
		}
		a.sum += h.Score
		a.count++
		a.chunks = append(a.chunks, chunkHit{id: h.ChunkID, score: h.Score})
		for _, mt := range h.Record.MemoryTypes {
			a.memory[markers.Type(mt)] = true
		}
	}

	out := make(map[string]rank.SessionHit, len(agg))
	for sessionID, a := range agg {
		var memTypes []markers.Type
		for t := range a.memory {
			memTypes = append(memTypes, t)
		}
		sort.SliceStable(a.chunks, func(i, j int) bool { return a.chunks[i].score > a.chunks[j].score })
		if len(a.chunks) > maxPreviewChunks {
			a.chunks = a.chunks[:maxPreviewChunks]
		}
		topIDs := make([]string, len(a.chunks))
		for i, c := range a.chunks {
			topIDs[i] = c.id
		}
		out[sessionID] = rank.SessionHit{
			SessionID:      sessionID,
			BestSimilarity: a.best,
			AvgSimilarity:  a.sum / float32(a.count),
			HitChunkCount:  a.count,
			MemoryTypes:    memTypes,
			TopChunkIDs:    topIDs,
		}
	}
	return out
}

// parseTemporalFilter builds a rank.TemporalQuery when filters carry a time
// range (spec.md §4.7 input (d)).
func parseTemporalFilter(f Filters) *rank.TemporalQuery {
	if f.TimeRangeFrom.IsZero() && f.TimeRangeUntil.IsZero() {
		return nil
	}
	return &rank.TemporalQuery{Start: f.TimeRangeFrom, End: f.TimeRangeUntil}
}

// TrimPreview truncates text to maxLen on a word boundary, appending an
// ellipsis if truncated (spec.md §4.9 step 7).
func TrimPreview(text string, maxLen int) string {
	text = strings.TrimSpace(text)
	if len(text) <= maxLen {
		return text
	}
	cut := text[:maxLen]
	if idx := strings.LastIndexAny(cut, " \n\t"); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut) + "…"
}
