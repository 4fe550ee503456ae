package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	base := errors.New("disk full")
	err := Wrap(KindIOError, "failed to write registry", base).WithSuggestion("check disk space")

	assert.True(t, Is(err, KindIOError))
	assert.False(t, Is(err, KindConflict))
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "failed to write registry")
}

func TestPropagationPolicy(t *testing.T) {
	assert.True(t, Recoverable(KindParseError))
	assert.True(t, Recoverable(KindTranscriptEmpty))
	assert.False(t, Recoverable(KindEmbeddingUnavailable))

	assert.True(t, SemiFatal(KindEmbeddingUnavailable))
	assert.True(t, SemiFatal(KindStoreUnavailable))
	assert.False(t, SemiFatal(KindParseError))

	assert.True(t, Fatal(KindConfigInvalid))
	assert.False(t, Fatal(KindTimeout))
}
