package transcript

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFlatAndNestedShapes(t *testing.T) {
	data := strings.Join([]string{
		`{"role":"user","content":"hello there","timestamp":"2024-01-01T00:00:00Z"}`,
		`{"message":{"role":"assistant","content":"hi back","timestamp":1704067260}}`,
	}, "\n")

	var got []Message
	_, err := NewReader(false).Read(strings.NewReader(data), func(m Message) error {
		got = append(got, m)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, RoleUser, got[0].Role)
	assert.Equal(t, "hello there", got[0].Content)
	assert.True(t, got[0].HasTime)
	assert.Equal(t, RoleAssistant, got[1].Role)
	assert.Equal(t, "hi back", got[1].Content)
	assert.Equal(t, 0, got[0].Index)
	assert.Equal(t, 1, got[1].Index)
}

func TestContentBlockArrayFlattening(t *testing.T) {
	data := `{"role":"assistant","content":[{"type":"text","text":"part one"},{"type":"text","text":"part two"}]}`
	var got []Message
	_, err := NewReader(false).Read(strings.NewReader(data), func(m Message) error {
		got = append(got, m)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "part one\npart two", got[0].Content)
}

func TestMalformedLineSkippedNotFatal(t *testing.T) {
	data := strings.Join([]string{
		`not json at all`,
		`{"role":"user","content":"valid"}`,
	}, "\n")

	var got []Message
	stats, err := NewReader(false).Read(strings.NewReader(data), func(m Message) error {
		got = append(got, m)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.LinesSkipped)
	require.Len(t, got, 1)
	assert.Equal(t, "valid", got[0].Content)
}

func TestStrictModeFailsOnMalformedLine(t *testing.T) {
	_, err := NewReader(true).Read(strings.NewReader("not json"), func(Message) error { return nil })
	assert.Error(t, err)
}

func TestEmptyContentMessageDropped(t *testing.T) {
	data := `{"role":"user","content":"   "}`
	var got []Message
	_, err := NewReader(false).Read(strings.NewReader(data), func(m Message) error {
		got = append(got, m)
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}
