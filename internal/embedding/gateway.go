package embedding

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	sessionerrors "github.com/sessionmcp/sessionmcp/internal/errors"
)

// hotCacheSize and hotCacheTTL bound the in-process cache layered in front
// of the disk cache, so a hot query doesn't pay a map-in-a-mutex lookup
// through DiskCache on every call within the same process lifetime.
const (
	hotCacheSize = 2048
	hotCacheTTL  = 10 * time.Minute
)

// Config controls the gateway's batching and caching behaviour (spec.md
// §4.14 "embedding").
type Config struct {
	ModelName    string
	Dimension    int
	BatchSize    int
	MaxBatchSize int
	MinBatchSize int
}

// Gateway is the embedding gateway (spec.md §4.4): embed_texts(texts)
// preserves input order, serves cache hits directly, and computes misses
// in adaptive batches through the underlying Embedder.
type Gateway struct {
	embedder Embedder
	cache    *DiskCache
	hot      *lru.LRU[string, []float32]
}

// New wires an Embedder to a DiskCache to form the gateway. A small
// expirable LRU sits in front of the disk cache so repeated queries within
// one process never pay the disk cache's mutex+map lookup twice.
func New(embedder Embedder, cache *DiskCache) *Gateway {
	return &Gateway{
		embedder: embedder,
		cache:    cache,
		hot:      lru.NewLRU[string, []float32](hotCacheSize, nil, hotCacheTTL),
	}
}

// EmbedTexts returns one vector per input text, preserving order. Cache
// hits never touch the embedder. On any embedder failure the whole call
// fails with EmbeddingUnavailable — partial results are never returned
// alongside silently-zeroed vectors (spec.md §4.4, §7).
func (g *Gateway) EmbedTexts(ctx context.Context, cfg Config, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if !g.embedder.Available(ctx) {
		return nil, sessionerrors.New(sessionerrors.KindEmbeddingUnavailable, "embedding model unavailable")
	}

	results := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		key := Key(cfg.ModelName, text)
		if vec, ok := g.hot.Get(key); ok {
			results[i] = vec
			continue
		}
		if vec, ok := g.cache.Get(key); ok {
			g.hot.Add(key, vec)
			results[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	batchSize := AdaptiveBatchSize(cfg.BatchSize, cfg.MinBatchSize, cfg.MaxBatchSize)
	for start := 0; start < len(missTexts); start += batchSize {
		end := start + batchSize
		if end > len(missTexts) {
			end = len(missTexts)
		}

		batch := missTexts[start:end]
		vectors, err := g.embedder.EmbedBatch(ctx, batch)
		if err != nil {
			return nil, sessionerrors.Wrap(sessionerrors.KindEmbeddingUnavailable, "embed batch", err)
		}
		if len(vectors) != len(batch) {
			return nil, sessionerrors.New(sessionerrors.KindEmbeddingUnavailable, "embedder returned wrong vector count")
		}

		for j, vec := range vectors {
			origIdx := missIdx[start+j]
			results[origIdx] = vec
			key := Key(cfg.ModelName, batch[j])
			g.cache.Put(key, vec)
			g.hot.Add(key, vec)
		}

		if end < len(missTexts) {
			reclaimMemory()
		}
	}

	return results, nil
}

// Flush persists the disk cache (spec.md §4.4 "flushed on request").
func (g *Gateway) Flush() error {
	return g.cache.Flush()
}

// CacheSize reports the number of cached entries, for diagnostics.
func (g *Gateway) CacheSize() int {
	return g.cache.Len()
}

// Close releases the underlying embedder.
func (g *Gateway) Close() error {
	return g.embedder.Close()
}
