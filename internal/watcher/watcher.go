// Package watcher implements the transcript directory watch half of the
// background indexer (spec.md §4.10): recursive, debounced file-system
// notification for .jsonl transcript files, with a polling fallback when
// fsnotify can't be used.
package watcher

import (
	"context"
	"time"
)

// Operation is the kind of file-system change observed for a path.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one observed change to a transcript file.
type FileEvent struct {
	Path      string
	Operation Operation
	Timestamp time.Time
}

// Watcher watches a directory tree for transcript changes, coalescing
// rapid-fire events before emitting them.
type Watcher interface {
	Start(ctx context.Context, root string) error
	Stop() error
	Events() <-chan []FileEvent
	Errors() <-chan error
}

// Options configures debounce window, polling interval, and buffering
// (spec.md §4.10 "debounce default 5s").
type Options struct {
	DebounceWindow  time.Duration
	PollInterval    time.Duration
	EventBufferSize int
	// Suffix restricts watched files to this extension; empty means all
	// files. The indexer only cares about ".jsonl" transcripts.
	Suffix string
}

// DefaultOptions matches spec.md §4.10 / §4.14 defaults.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  5 * time.Second,
		PollInterval:    5 * time.Second,
		EventBufferSize: 1000,
		Suffix:          ".jsonl",
	}
}

// WithDefaults fills zero-valued fields with DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.DebounceWindow == 0 {
		o.DebounceWindow = d.DebounceWindow
	}
	if o.PollInterval == 0 {
		o.PollInterval = d.PollInterval
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = d.EventBufferSize
	}
	if o.Suffix == "" {
		o.Suffix = d.Suffix
	}
	return o
}
