package markers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractOrderedDistinctTypes(t *testing.T) {
	text := "We are still waiting on this, but found a good design pattern, and it is tested and verified."
	types, matches := Extract(text)
	assert.Equal(t, []Type{TypePattern, TypeWorkingSolution, TypeWaiting}, types)
	assert.NotEmpty(t, matches)
}

func TestExtractNoMarkers(t *testing.T) {
	types, matches := Extract("just a plain sentence about nothing in particular")
	assert.Empty(t, types)
	assert.Empty(t, matches)
}

func TestWordBoundaryAvoidsSubstrings(t *testing.T) {
	// "pattern" inside "unpatterned" has word characters on both sides, so
	// the \b anchors around the keyword do not match and no marker is reported.
	types, _ := Extract("unpatterned code")
	assert.Empty(t, types)
}

func TestComputeBoostCapped(t *testing.T) {
	boost := ComputeBoost([]Type{TypePattern, TypeWorkingSolution, TypeWaiting})
	assert.InDelta(t, 0.15, boost, 1e-9) // 0.05+0.08+0.02 = 0.15, exactly at cap
}

func TestComputeBoostSingle(t *testing.T) {
	assert.InDelta(t, 0.08, ComputeBoost([]Type{TypeWorkingSolution}), 1e-9)
}

func TestContextWindowBounds(t *testing.T) {
	text := "short waiting text"
	_, matches := Extract(text)
	if assert.NotEmpty(t, matches) {
		assert.LessOrEqual(t, len(matches[0].Context), len(text))
	}
}
