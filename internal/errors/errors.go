// Package errors provides the structured error taxonomy for sessionmcp
// described in spec.md §7. Each Kind maps to one of the error-handling policy
// buckets (recoverable / semi-fatal / fatal) and to a JSON-RPC error code via
// internal/rpc.
package errors

import "fmt"

// Kind identifies one of the taxonomy's error categories.
type Kind string

const (
	// KindParseError: a transcript line is not valid JSON; recoverable.
	KindParseError Kind = "ParseError"
	// KindTranscriptEmpty: a file yielded zero usable messages; recoverable.
	KindTranscriptEmpty Kind = "TranscriptEmpty"
	// KindEmbeddingUnavailable: the model cannot produce vectors; semi-fatal.
	KindEmbeddingUnavailable Kind = "EmbeddingUnavailable"
	// KindStoreUnavailable: the vector store cannot be opened; semi-fatal.
	KindStoreUnavailable Kind = "StoreUnavailable"
	// KindTimeout: a cooperative deadline expired.
	KindTimeout Kind = "Timeout"
	// KindNotFound: a session id is absent from the registry.
	KindNotFound Kind = "NotFound"
	// KindConflict: concurrent writers raced on the same session id.
	KindConflict Kind = "Conflict"
	// KindConfigInvalid: configuration failed validation; fatal at startup.
	KindConfigInvalid Kind = "ConfigInvalid"
	// KindIOError: a disk/file operation failed.
	KindIOError Kind = "IOError"
)

// Error is a taxonomy-tagged error carrying the user-visible fields spec.md
// §7 requires: a headline, the triggering query (if any), the kind, and a
// suggested action.
type Error struct {
	Kind       Kind
	Headline   string
	Query      string // optional: the triggering query
	Suggestion string
	Err        error // wrapped cause, optional
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Headline, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Headline)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a taxonomy error.
func New(kind Kind, headline string) *Error {
	return &Error{Kind: kind, Headline: headline}
}

// Wrap constructs a taxonomy error wrapping an underlying cause.
func Wrap(kind Kind, headline string, err error) *Error {
	return &Error{Kind: kind, Headline: headline, Err: err}
}

// WithQuery attaches the triggering query text for display.
func (e *Error) WithQuery(query string) *Error {
	e.Query = query
	return e
}

// WithSuggestion attaches a suggested corrective action.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var te *Error
	for err != nil {
		if e, ok := err.(*Error); ok { //nolint:errorlint // walking a simple chain
			te = e
			if te.Kind == kind {
				return true
			}
			err = e.Err
			continue
		}
		break
	}
	return false
}

// Recoverable reports whether the error kind is absorbed and logged by the
// component that produced it (spec.md §7 "Propagation policy").
func Recoverable(kind Kind) bool {
	switch kind {
	case KindParseError, KindTranscriptEmpty:
		return true
	case KindIOError:
		return true // single IOError; retried with backoff by the caller
	default:
		return false
	}
}

// SemiFatal reports whether the error kind is reported to the dispatcher as
// a text advisory rather than surfaced as a process exit.
func SemiFatal(kind Kind) bool {
	switch kind {
	case KindEmbeddingUnavailable, KindStoreUnavailable:
		return true
	default:
		return false
	}
}

// Fatal reports whether the error kind causes a non-zero process exit.
func Fatal(kind Kind) bool {
	return kind == KindConfigInvalid
}
