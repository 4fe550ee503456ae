// Package cache implements the two query/result caches (spec.md §4.8):
// a query-text→embedding cache and a canonicalized query+filter→results
// cache, both backed by the same LRU+TTL primitive, plus mutation-driven
// invalidation of the result cache only.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sessionmcp/sessionmcp/internal/rank"
)

// Config sizes and ages the two caches (spec.md §4.14 "cache").
type Config struct {
	QueryCacheSize  int
	ResultCacheSize int
	TTLSeconds      int
}

// DefaultConfig mirrors spec.md §4.8's "both caches default to size 100 /
// TTL 5 min", except the result cache which spec.md §4.14 defaults to 50.
func DefaultConfig() Config {
	return Config{QueryCacheSize: 100, ResultCacheSize: 50, TTLSeconds: 300}
}

// ResultEntry is one cached search-result list, keyed by canonicalized
// query+filters.
type ResultEntry struct {
	Scores   []rank.Score
	CachedAt time.Time
}

// Caches bundles the query→embedding and query+filter→results caches
// (spec.md §4.8). Both share the normalized-query keying scheme; only the
// result cache is cleared by a vector-store mutation signal.
type Caches struct {
	embeddings *lru.LRU[string, []float32]
	results    *lru.LRU[string, ResultEntry]
}

// New constructs both caches from cfg.
func New(cfg Config) *Caches {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Caches{
		embeddings: lru.NewLRU[string, []float32](cfg.QueryCacheSize, nil, ttl),
		results:    lru.NewLRU[string, ResultEntry](cfg.ResultCacheSize, nil, ttl),
	}
}

// NormalizeQuery lowercases, trims, and collapses whitespace in q (spec.md
// §4.8 "Keys are normalized").
var whitespaceRun = regexp.MustCompile(`\s+`)

func NormalizeQuery(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	return whitespaceRun.ReplaceAllString(q, " ")
}

// GetEmbedding returns the cached embedding for a normalized query.
func (c *Caches) GetEmbedding(query string) ([]float32, bool) {
	return c.embeddings.Get(NormalizeQuery(query))
}

// PutEmbedding stores an embedding for a normalized query.
func (c *Caches) PutEmbedding(query string, vec []float32) {
	c.embeddings.Add(NormalizeQuery(query), vec)
}

// FilterKey canonically serializes a filter map (sorted keys) so
// equivalent filters share a cache key (spec.md §4.8).
func FilterKey(filter map[string]any) string {
	if len(filter) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]struct {
		K string `json:"k"`
		V any    `json:"v"`
	}, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, struct {
			K string `json:"k"`
			V any    `json:"v"`
		}{K: k, V: filter[k]})
	}
	data, _ := json.Marshal(ordered)
	return string(data)
}

// ResultKey combines a normalized query and a canonical filter key into the
// results cache key.
func ResultKey(query string, filterKey string) string {
	h := sha256.Sum256([]byte(NormalizeQuery(query) + "\x00" + filterKey))
	return hex.EncodeToString(h[:])
}

// GetResults returns the cached ranked result list for a query+filter key.
func (c *Caches) GetResults(key string) (ResultEntry, bool) {
	return c.results.Get(key)
}

// PutResults stores a ranked result list under a query+filter key.
func (c *Caches) PutResults(key string, scores []rank.Score) {
	c.results.Add(key, ResultEntry{Scores: scores, CachedAt: time.Now().UTC()})
}

// InvalidateResults clears the result cache only (spec.md §4.8 "the search
// cache clears the result cache on any such signal, but does not touch the
// embedding cache") — called on the vector store adapter's on_mutation
// signal.
func (c *Caches) InvalidateResults() {
	c.results.Purge()
}

// ResultCacheLen reports the number of cached result lists, for diagnostics.
func (c *Caches) ResultCacheLen() int {
	return c.results.Len()
}

// EmbeddingCacheLen reports the number of cached query embeddings.
func (c *Caches) EmbeddingCacheLen() int {
	return c.embeddings.Len()
}
