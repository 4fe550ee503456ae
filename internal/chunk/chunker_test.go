package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionmcp/sessionmcp/internal/transcript"
)

func msg(role transcript.Role, content string) transcript.Message {
	return transcript.Message{Role: role, Content: content}
}

func TestSplitEmptyInput(t *testing.T) {
	c := New(DefaultOptions())
	assert.Empty(t, c.Split(nil))
}

func TestSplitMonotonicityAndCoverage(t *testing.T) {
	opts := Options{TargetTokens: 20, OverlapTokens: 5, MaxTokens: 30}
	c := New(opts)

	var messages []transcript.Message
	for i := 0; i < 20; i++ {
		role := transcript.RoleUser
		if i%2 == 1 {
			role = transcript.RoleAssistant
		}
		messages = append(messages, msg(role, strings.Repeat("word ", 10)))
	}

	chunks := c.Split(messages)
	require.NotEmpty(t, chunks)

	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.TokenCount, opts.MaxTokens+opts.OverlapTokens,
			"chunk token count must stay near max_tokens (allowing overlap carry-in)")
		assert.LessOrEqual(t, ch.MessageStart, ch.MessageEnd)
	}

	// Every message index from 0..len-1 must be covered by some chunk, and
	// adjacent chunks must touch or overlap (no gap in message coverage).
	covered := make([]bool, len(messages))
	for _, ch := range chunks {
		for i := ch.MessageStart; i <= ch.MessageEnd; i++ {
			covered[i] = true
		}
	}
	for i, ok := range covered {
		assert.True(t, ok, "message %d not covered by any chunk", i)
	}
}

func TestSplitProgressNoIdenticalConsecutiveChunks(t *testing.T) {
	opts := Options{TargetTokens: 10, OverlapTokens: 2, MaxTokens: 15}
	c := New(opts)

	var messages []transcript.Message
	for i := 0; i < 10; i++ {
		messages = append(messages, msg(transcript.RoleAssistant, "some reply text here"))
	}

	chunks := c.Split(messages)
	require.NotEmpty(t, chunks)
	for i := 1; i < len(chunks); i++ {
		assert.NotEqual(t, chunks[i-1].Text, chunks[i].Text)
	}
}

func TestSplitSingleOversizedMessageProducesMultipleChunks(t *testing.T) {
	opts := Options{TargetTokens: 20, OverlapTokens: 0, MaxTokens: 25}
	c := New(opts)

	huge := strings.Repeat("alpha beta gamma delta epsilon ", 60) // far beyond max_tokens
	chunks := c.Split([]transcript.Message{msg(transcript.RoleUser, huge)})

	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.Equal(t, 0, ch.MessageStart)
		assert.Equal(t, 0, ch.MessageEnd)
	}
}

func TestSplitNeverCutsInsideFencedCodeBlock(t *testing.T) {
	opts := Options{TargetTokens: 5, OverlapTokens: 0, MaxTokens: 8}
	c := New(opts)

	body := "intro text\n\n```go\n" + strings.Repeat("line of code here\n", 20) + "```\n\nouttro text"
	chunks := c.Split([]transcript.Message{msg(transcript.RoleAssistant, body)})

	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		openFence := strings.Count(ch.Text, "```")
		assert.Zero(t, openFence%2, "chunk must not contain an unbalanced fence: %q", ch.Text)
	}
}

func TestSplitTagsMemoryMarkers(t *testing.T) {
	opts := DefaultOptions()
	c := New(opts)
	chunks := c.Split([]transcript.Message{
		msg(transcript.RoleUser, "we are still waiting on this"),
		msg(transcript.RoleAssistant, "found a working design pattern that is tested and verified"),
	})
	require.NotEmpty(t, chunks)
	assert.NotEmpty(t, chunks[len(chunks)-1].MemoryTypes)
}

func TestChunkIDFormat(t *testing.T) {
	assert.Equal(t, "abc123:4", ID("abc123", 4))
}
