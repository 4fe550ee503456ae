package chunk

import (
	"strings"

	"github.com/sessionmcp/sessionmcp/internal/markers"
	"github.com/sessionmcp/sessionmcp/internal/transcript"
)

// Chunker buffers messages and flushes a Chunk once the running token
// estimate crosses target_tokens at a safe boundary, carrying overlap_tokens
// into the next chunk (spec.md §4.2).
type Chunker struct {
	opts Options
}

// New creates a Chunker. Zero-value fields in opts fall back to
// DefaultOptions' values only if opts itself is the zero Options; callers
// that want defaults should start from DefaultOptions().
func New(opts Options) *Chunker {
	if opts == (Options{}) {
		opts = DefaultOptions()
	}
	return &Chunker{opts: opts}
}

type piece struct {
	msgIndex int
	text     string
}

// Split turns an ordered message sequence into an ordered list of chunks
// whose [MessageStart, MessageEnd] ranges are non-decreasing; with overlap
// carry, adjacent chunks can share a message index. Every message index
// is covered by at least one chunk's [MessageStart, MessageEnd] range, and
// no chunk ever splits a fenced code block.
func (c *Chunker) Split(messages []transcript.Message) []Chunk {
	if len(messages) == 0 {
		return nil
	}

	var (
		chunks     []Chunk
		buffer     []piece
		chunkIndex int
	)

	bufferTokens := func() int {
		total := 0
		for _, p := range buffer {
			total += estimateTokens(p.text)
		}
		return total
	}

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		text := joinPieces(buffer)
		types, _ := markers.Extract(text)
		chunks = append(chunks, Chunk{
			ChunkIndex:   chunkIndex,
			Text:         text,
			TokenCount:   estimateTokens(text),
			MessageStart: buffer[0].msgIndex,
			MessageEnd:   buffer[len(buffer)-1].msgIndex,
			MemoryTypes:  types,
		})
		chunkIndex++
	}

	carryOverlap := func() []piece {
		if c.opts.OverlapTokens <= 0 || len(buffer) == 0 {
			return nil
		}
		var kept []piece
		remaining := c.opts.OverlapTokens
		for i := len(buffer) - 1; i >= 0 && remaining > 0; i-- {
			p := buffer[i]
			t := estimateTokens(p.text)
			if t <= remaining {
				kept = append([]piece{p}, kept...)
				remaining -= t
				continue
			}
			tailChars := remaining * 4
			if tailChars >= len(p.text) {
				kept = append([]piece{p}, kept...)
				break
			}
			cut := fenceEnd(fencedSpans(p.text), len(p.text)-tailChars)
			if cut < len(p.text) {
				kept = append([]piece{{msgIndex: p.msgIndex, text: p.text[cut:]}}, kept...)
			}
			break
		}
		return kept
	}

	maxChars := c.opts.MaxTokens * 4

	for i, m := range messages {
		segments := []string{m.Content}
		if estimateTokens(m.Content) > c.opts.MaxTokens {
			segments = splitOversized(m.Content, maxChars)
		}

		for segIdx, seg := range segments {
			if seg == "" {
				continue
			}
			buffer = append(buffer, piece{msgIndex: i, text: seg})

			total := bufferTokens()
			isLastSegOfMsg := segIdx == len(segments)-1
			atMax := total >= c.opts.MaxTokens
			preferredBreak := isLastSegOfMsg && m.Role == transcript.RoleAssistant

			if atMax || (total >= c.opts.TargetTokens && preferredBreak) {
				flush()
				buffer = carryOverlap()
			}
		}
	}
	flush()

	return chunks
}

func joinPieces(pieces []piece) string {
	var sb strings.Builder
	for i, p := range pieces {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(p.text)
	}
	return sb.String()
}

// splitOversized breaks a single message's text into fence-safe pieces no
// larger than maxChars, preferring a paragraph boundary, falling back to a
// line boundary, and falling back further to a hard cut — but never cutting
// inside a fenced code block, even if that means a piece exceeds maxChars
// (spec.md §4.2 "when inside code, continue until the closing fence").
func splitOversized(s string, maxChars int) []string {
	if maxChars <= 0 || len(s) <= maxChars {
		return []string{s}
	}

	spans := fencedSpans(s)
	var out []string
	pos := 0
	for pos < len(s) {
		limit := pos + maxChars
		if limit >= len(s) {
			out = append(out, s[pos:])
			break
		}
		limit = fenceEnd(spans, limit)
		if limit >= len(s) {
			out = append(out, s[pos:])
			break
		}

		// A paragraph/line break found by lastBreak can still fall inside
		// an earlier fence nested within [pos, limit) that closed before
		// limit; insideFence rejects those so a candidate break point
		// never lands mid-fence (spec.md §4.2/§8.3 "never cut inside a
		// fenced code block").
		brk := lastBreak(s, pos, limit, "\n\n")
		if brk <= pos || insideFence(spans, brk) {
			brk = lastBreak(s, pos, limit, "\n")
		}
		if brk <= pos || insideFence(spans, brk) {
			brk = limit
		}

		out = append(out, s[pos:brk])
		pos = brk
		for pos < len(s) && s[pos] == '\n' {
			pos++
		}
	}
	return out
}

// lastBreak finds the offset just after the last occurrence of sep within
// s[pos:limit], or pos if sep doesn't occur there.
func lastBreak(s string, pos, limit int, sep string) int {
	window := s[pos:limit]
	idx := strings.LastIndex(window, sep)
	if idx < 0 {
		return pos
	}
	return pos + idx + len(sep)
}
