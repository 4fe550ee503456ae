package setup

import (
	"os"

	"github.com/mattn/go-isatty"
)

// IsInteractive reports whether f is attached to a terminal, the same
// detection the example pack's progress renderer uses to choose between a
// live progress bar and plain line-based output (spec.md §4.11 "Emits
// progress every N sessions"). Callers building a CLI progress emitter
// (cmd/sessionmcp/cmd/setup.go) use this to decide how to render
// Progress snapshots; the orchestrator itself stays terminal-agnostic.
func IsInteractive(f *os.File) bool {
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
