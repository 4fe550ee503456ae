// Package chunk splits a transcript's message sequence into overlapping,
// code-block-safe semantic chunks tagged with detected memory markers
// (spec.md §4.2).
package chunk

import (
	"fmt"

	"github.com/sessionmcp/sessionmcp/internal/markers"
)

// Options configures the chunker (spec.md §4.14 "chunking").
type Options struct {
	TargetTokens  int
	OverlapTokens int
	MaxTokens     int
}

// DefaultOptions mirrors spec.md §4.14 defaults.
func DefaultOptions() Options {
	return Options{TargetTokens: 750, OverlapTokens: 150, MaxTokens: 1000}
}

// Chunk is a vector-indexed unit of content (spec.md §3 "Chunk"), built
// without an embedding — the embedding gateway fills that in later.
type Chunk struct {
	ChunkIndex     int // 0-based, dense
	Text           string
	TokenCount     int     // approximate, 4 chars ≈ 1 token
	MessageStart   int     // first message index this chunk draws from
	MessageEnd     int     // last message index this chunk draws from (inclusive)
	MemoryTypes    []markers.Type
}

// ID computes the chunk_id = session_id + ":" + chunk_index convention
// (spec.md §3).
func ID(sessionID string, chunkIndex int) string {
	return fmt.Sprintf("%s:%d", sessionID, chunkIndex)
}

// estimateTokens applies the 4-chars-per-token heuristic (spec.md §3),
// rounding up so a non-empty string never estimates to zero tokens.
func estimateTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	return (len(s) + 3) / 4
}
