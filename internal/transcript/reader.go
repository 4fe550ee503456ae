package transcript

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	sessionerrors "github.com/sessionmcp/sessionmcp/internal/errors"
)

// maxLineSize bounds a single transcript line (generous; transcripts embed
// whole code blocks in one JSON line).
const maxLineSize = 8 * 1024 * 1024

// rawLine is the union of both accepted transcript shapes. Content is kept
// as json.RawMessage because it may be a string or an array of blocks.
type rawLine struct {
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	Timestamp json.RawMessage `json:"timestamp"`
	Message   *struct {
		Role      string          `json:"role"`
		Content   json.RawMessage `json:"content"`
		Timestamp json.RawMessage `json:"timestamp"`
	} `json:"message"`
}

// contentBlock is one element of a content-block array.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Reader streams Message values out of one transcript file.
type Reader struct {
	Strict bool // if true, a malformed line is fatal instead of skipped
}

// NewReader creates a transcript reader. Strict mode turns malformed lines
// into a fatal ParseError instead of a skip-and-record.
func NewReader(strict bool) *Reader {
	return &Reader{Strict: strict}
}

// ReadFile opens path and streams its messages to fn, which is called once
// per successfully parsed, non-empty-content message. ReadFile stops at EOF
// even if the producer is still appending — the caller (background indexer)
// will be re-notified by the file watcher on the next write.
func (r *Reader) ReadFile(path string, fn func(Message) error) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, sessionerrors.Wrap(sessionerrors.KindIOError, "open transcript", err)
	}
	defer func() { _ = f.Close() }()

	return r.Read(f, fn)
}

// Read streams messages from src. index counts only lines that parse into a
// usable (non-empty-content) message, matching spec.md §3's message index
// space used by Chunk.message_indices.
func (r *Reader) Read(src io.Reader, fn func(Message) error) (Stats, error) {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var stats Stats
	index := 0

	for scanner.Scan() {
		line := scanner.Bytes()
		stats.BytesRead += int64(len(line)) + 1
		stats.LinesRead++

		trimmed := strings.TrimSpace(string(line))
		if trimmed == "" {
			continue
		}

		msg, ok, err := parseLine([]byte(trimmed))
		if err != nil {
			if r.Strict {
				return stats, sessionerrors.Wrap(sessionerrors.KindParseError, "malformed transcript line", err)
			}
			stats.LinesSkipped++
			continue
		}
		if !ok {
			// Valid JSON, but content was empty after flattening — dropped
			// per spec.md §3 invariant "a message with empty content is
			// dropped".
			continue
		}

		msg.Index = index
		index++
		if err := fn(msg); err != nil {
			return stats, err
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, sessionerrors.Wrap(sessionerrors.KindIOError, "read transcript", err)
	}

	return stats, nil
}

// parseLine parses one line into a Message. ok is false when the line is
// valid JSON but carries no usable content (and should be silently dropped,
// not counted as skipped/malformed).
func parseLine(line []byte) (Message, bool, error) {
	// Sanitize invalid UTF-8 with the replacement character, per spec.md
	// §4.1 "tolerate UTF-8 with replacement for invalid bytes".
	clean := []byte(strings.ToValidUTF8(string(line), "�"))

	var raw rawLine
	if err := json.Unmarshal(clean, &raw); err != nil {
		return Message{}, false, err
	}

	// rawLine.Message is the tagged-variant branch (spec.md §9 "Dynamic
	// message shapes": a nested line is distinguished from a flat one by
	// presence of the message field, not by probing a generic dictionary);
	// both branches flatten to the same Message shape before the chunker
	// ever sees them, so no shape tag needs to survive past this point.
	role := raw.Role
	content := raw.Content
	ts := raw.Timestamp
	if raw.Message != nil {
		role = raw.Message.Role
		content = raw.Message.Content
		ts = raw.Message.Timestamp
	}

	text, err := flattenContent(content)
	if err != nil {
		return Message{}, false, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, false, nil
	}

	msg := Message{
		Role:    normalizeRole(role),
		Content: text,
	}
	if t, ok := parseTimestamp(ts); ok {
		msg.Timestamp = t
		msg.HasTime = true
	}

	return msg, true, nil
}

func normalizeRole(role string) Role {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "user":
		return RoleUser
	case "assistant":
		return RoleAssistant
	default:
		return RoleOther
	}
}

// flattenContent accepts either a JSON string or an array of content blocks
// and returns the concatenation of the textual blocks in order (spec.md
// §4.1).
func flattenContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	// Try plain string first.
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	// Fall back to an array of content blocks.
	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range blocks {
		if b.Text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(b.Text)
	}
	return sb.String(), nil
}

// parseTimestamp accepts ISO-8601 strings or numeric epoch seconds.
func parseTimestamp(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 {
		return time.Time{}, false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return epochToTime(f), true
		}
		return time.Time{}, false
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return epochToTime(f), true
	}

	return time.Time{}, false
}

func epochToTime(seconds float64) time.Time {
	return time.Unix(0, int64(seconds*float64(time.Second))).UTC()
}
