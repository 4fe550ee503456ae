package chunk

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// span is a half-open byte range [Start, End) in the source text that covers
// a fenced code block, including its opening and closing fence lines.
type span struct {
	Start, End int
}

var fenceParser = goldmark.New()

// fencedSpans walks src's markdown AST and returns the byte ranges covered
// by fenced code blocks (from the start of the opening fence line to the end
// of the closing fence line), in source order. Using a real markdown parser
// instead of a ``` line-counter keeps this correct for nested and unbalanced
// fences (spec.md §4.2 "never split inside a fenced code block").
func fencedSpans(src string) []span {
	reader := text.NewReader([]byte(src))
	doc := fenceParser.Parser().Parse(reader)

	var spans []span
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fcb, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		lines := fcb.Lines()
		if lines.Len() == 0 {
			return ast.WalkContinue, nil
		}
		start := lines.At(0).Start
		end := lines.At(lines.Len() - 1).Stop
		if start > 0 {
			start = strings.LastIndexByte(src[:start-1], '\n') + 1
		}
		if end < len(src) && src[end-1] != '\n' && src[end] == '\n' {
			end++
		}
		if i := strings.IndexByte(src[end:], '\n'); i >= 0 {
			end += i
		} else {
			end = len(src)
		}
		spans = append(spans, span{Start: start, End: end})
		return ast.WalkContinue, nil
	})
	return spans
}

// insideFence reports whether pos falls strictly inside one of spans.
func insideFence(spans []span, pos int) bool {
	for _, s := range spans {
		if pos > s.Start && pos < s.End {
			return true
		}
	}
	return false
}

// fenceEnd returns the end offset of the fence containing pos, or pos
// unchanged if pos isn't inside any fence. Callers use this to push a
// candidate split point past an unclosed code block instead of cutting it.
func fenceEnd(spans []span, pos int) int {
	for _, s := range spans {
		if pos > s.Start && pos < s.End {
			return s.End
		}
	}
	return pos
}
