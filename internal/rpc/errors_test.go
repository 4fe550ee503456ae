package rpc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sessionerrors "github.com/sessionmcp/sessionmcp/internal/errors"
)

func TestMapError_NilReturnsNil(t *testing.T) {
	// Given: a nil error
	// When: mapping it
	// Then: no error object is produced
	assert.Nil(t, MapError(nil))
}

func TestMapError_ContextDeadlineMapsToTimeout(t *testing.T) {
	// Given: a deadline-exceeded error
	// When: mapping it
	mapped := MapError(context.DeadlineExceeded)

	// Then: it carries the timeout code
	require.NotNil(t, mapped)
	assert.Equal(t, ErrCodeTimeout, mapped.Code)
}

func TestMapError_ToolUnknownSentinel(t *testing.T) {
	// Given: the tool-unknown sentinel wrapped with context
	err := errors.Join(ErrToolUnknown, errors.New("fork-detect-typo"))

	// When: mapping it
	mapped := MapError(err)

	// Then: it carries the tool-unknown code
	require.NotNil(t, mapped)
	assert.Equal(t, ErrCodeToolUnknown, mapped.Code)
}

func TestMapError_TaxonomyKindsMapToExpectedCodes(t *testing.T) {
	cases := []struct {
		name string
		kind sessionerrors.Kind
		code int
	}{
		{"timeout", sessionerrors.KindTimeout, ErrCodeTimeout},
		{"embedding unavailable", sessionerrors.KindEmbeddingUnavailable, ErrCodeDependencyUnavailable},
		{"store unavailable", sessionerrors.KindStoreUnavailable, ErrCodeDependencyUnavailable},
		{"not found", sessionerrors.KindNotFound, ErrCodeInvalidParams},
		{"config invalid", sessionerrors.KindConfigInvalid, ErrCodeInvalidParams},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			// Given: a taxonomy error of this kind
			taxErr := sessionerrors.New(c.kind, "something went wrong")

			// When: mapping it to a JSON-RPC error
			mapped := MapError(taxErr)

			// Then: it carries the code this kind is documented to map to
			require.NotNil(t, mapped)
			assert.Equal(t, c.code, mapped.Code)
		})
	}
}

func TestMapError_TaxonomyMessageIncludesSuggestion(t *testing.T) {
	// Given: a taxonomy error with a suggestion attached
	taxErr := sessionerrors.New(sessionerrors.KindNotFound, "session not found").WithSuggestion("run setup first")

	// When: mapping it
	mapped := MapError(taxErr)

	// Then: both headline and suggestion appear in the message
	require.NotNil(t, mapped)
	assert.Contains(t, mapped.Message, "session not found")
	assert.Contains(t, mapped.Message, "run setup first")
}

func TestNewToolUnknownError_CarriesName(t *testing.T) {
	// Given: an unrecognized tool name

	// When: building the tool-unknown error
	err := NewToolUnknownError("not-a-real-tool")

	// Then: the message names the offending tool and carries the -32001 code
	assert.Equal(t, ErrCodeToolUnknown, err.Code)
	assert.Contains(t, err.Message, "not-a-real-tool")
}

func TestError_ErrorStringIncludesCodeAndMessage(t *testing.T) {
	// Given: an Error value
	e := &Error{Code: -32000, Message: "boom"}

	// When: formatting it as a string
	s := e.Error()

	// Then: both the code and message appear
	assert.Contains(t, s, "-32000")
	assert.Contains(t, s, "boom")
}
