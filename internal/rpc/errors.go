// Package rpc implements the JSON-RPC/MCP dispatcher (spec.md §4.13): a
// line-delimited stdio server exposing the fork-detection tool surface to
// AI coding-assistant clients via github.com/modelcontextprotocol/go-sdk/mcp.
package rpc

import (
	"context"
	"errors"
	"fmt"

	sessionerrors "github.com/sessionmcp/sessionmcp/internal/errors"
)

// JSON-RPC error codes (spec.md §6 "Errors use JSON-RPC codes"). The four
// application codes below and their meanings are part of the wire contract
// and must not be renumbered.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602

	ErrCodeTimeout              = -32000
	ErrCodeToolUnknown          = -32001
	ErrCodeUninitialized        = -32002
	ErrCodeDependencyUnavailable = -32003
)

// Sentinel errors for internal use, paired with the Kind-to-code switch in
// MapError below.
var (
	ErrToolUnknown   = errors.New("tool unknown")
	ErrUninitialized = errors.New("service uninitialized")
)

// Error is a JSON-RPC error object (spec.md §4.13 response shape).
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// MapError converts a tool handler's error into a JSON-RPC error object by
// switching on the error taxonomy's Kind.
func MapError(err error) *Error {
	if err == nil {
		return nil
	}

	var taxErr *sessionerrors.Error
	if errors.As(err, &taxErr) {
		return mapTaxonomyError(taxErr)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Code: ErrCodeTimeout, Message: "Request timeout"}
	case errors.Is(err, context.Canceled):
		return &Error{Code: ErrCodeTimeout, Message: "Request was canceled."}
	case errors.Is(err, ErrToolUnknown):
		return &Error{Code: ErrCodeToolUnknown, Message: err.Error()}
	case errors.Is(err, ErrUninitialized):
		return &Error{Code: ErrCodeUninitialized, Message: "Service not yet initialized."}
	default:
		return &Error{Code: ErrCodeInvalidParams, Message: err.Error()}
	}
}

func mapTaxonomyError(e *sessionerrors.Error) *Error {
	message := e.Headline
	if e.Suggestion != "" {
		message = fmt.Sprintf("%s %s", e.Headline, e.Suggestion)
	}

	switch e.Kind {
	case sessionerrors.KindTimeout:
		return &Error{Code: ErrCodeTimeout, Message: message}
	case sessionerrors.KindEmbeddingUnavailable, sessionerrors.KindStoreUnavailable:
		return &Error{Code: ErrCodeDependencyUnavailable, Message: message}
	case sessionerrors.KindNotFound:
		return &Error{Code: ErrCodeInvalidParams, Message: message}
	case sessionerrors.KindConfigInvalid:
		return &Error{Code: ErrCodeInvalidParams, Message: message}
	default:
		return &Error{Code: ErrCodeInvalidParams, Message: message}
	}
}

// NewToolUnknownError builds the -32001 error for an unrecognized tool name.
func NewToolUnknownError(name string) *Error {
	return &Error{Code: ErrCodeToolUnknown, Message: fmt.Sprintf("tool %q is not registered", name)}
}
