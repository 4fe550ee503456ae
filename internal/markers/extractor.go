// Package markers implements the memory-marker extractor (spec.md §4.3):
// case-insensitive, word-boundary keyword matching for three categories,
// each contributing an additive, capped boost to the composite ranker.
package markers

import (
	"regexp"
	"sort"
)

// Type is one of the three memory-marker categories.
type Type string

const (
	TypePattern         Type = "PATTERN"
	TypeWorkingSolution Type = "WORKING_SOLUTION"
	TypeWaiting         Type = "WAITING"
)

// Boost is the additive score contribution of one marker type (spec.md
// §4.3).
var Boost = map[Type]float64{
	TypePattern:         0.05,
	TypeWorkingSolution: 0.08,
	TypeWaiting:         0.02,
}

// MaxBoost caps the total additive memory-marker boost.
const MaxBoost = 0.15

// ContextRadius is the number of characters kept on either side of a match
// for its context window.
const ContextRadius = 100

var keywordsByType = map[Type][]string{
	TypePattern: {
		`pattern`, `design pattern`, `approach`, `architecture`, `strategy`,
	},
	TypeWorkingSolution: {
		`working`, `tested`, `verified`, `solved`,
	},
	TypeWaiting: {
		`todo`, `pending`, `waiting`, `blocked`, `in progress`,
	},
}

// orderedTypes fixes the iteration order so "ordered distinct set" (spec.md
// §3/§4.3) is deterministic: PATTERN, WORKING_SOLUTION, WAITING.
var orderedTypes = []Type{TypePattern, TypeWorkingSolution, TypeWaiting}

type compiledPattern struct {
	typ Type
	re  *regexp.Regexp
}

var compiled = buildPatterns()

func buildPatterns() []compiledPattern {
	var out []compiledPattern
	for _, typ := range orderedTypes {
		for _, kw := range keywordsByType[typ] {
			pattern := `(?i)\b` + regexp.QuoteMeta(kw) + `\b`
			out = append(out, compiledPattern{typ: typ, re: regexp.MustCompile(pattern)})
		}
	}
	return out
}

// Match records one keyword hit and its ±ContextRadius-char context window.
type Match struct {
	Type    Type
	Keyword string
	Start   int
	End     int
	Context string
}

// Extract returns the ordered distinct set of marker types detected in text,
// plus every individual match with its context window.
func Extract(text string) ([]Type, []Match) {
	seen := make(map[Type]bool)
	var matches []Match

	for _, cp := range compiled {
		locs := cp.re.FindAllStringIndex(text, -1)
		for _, loc := range locs {
			start, end := loc[0], loc[1]
			seen[cp.typ] = true
			matches = append(matches, Match{
				Type:    cp.typ,
				Keyword: text[start:end],
				Start:   start,
				End:     end,
				Context: contextWindow(text, start, end),
			})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Start < matches[j].Start })

	var types []Type
	for _, t := range orderedTypes {
		if seen[t] {
			types = append(types, t)
		}
	}
	return types, matches
}

func contextWindow(text string, start, end int) string {
	lo := start - ContextRadius
	if lo < 0 {
		lo = 0
	}
	hi := end + ContextRadius
	if hi > len(text) {
		hi = len(text)
	}
	return text[lo:hi]
}

// ComputeBoost sums the additive boost for the given marker types, capped
// at MaxBoost.
func ComputeBoost(types []Type) float64 {
	var total float64
	for _, t := range types {
		total += Boost[t]
	}
	if total > MaxBoost {
		total = MaxBoost
	}
	return total
}
