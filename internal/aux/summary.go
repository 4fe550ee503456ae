package aux

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/sessionmcp/sessionmcp/internal/registry"
	"github.com/sessionmcp/sessionmcp/internal/vectorstore"
)

// Summarizer produces a per-session extractive summary (spec.md §4.12
// "top-k sentences by TF-IDF over the session's messages, excluding code
// blocks"). TF-IDF has no counterpart anywhere in the example pack (grepped
// the corpus for "tfidf"/"TF-IDF": no hits), so this is a small, justified
// standard-library computation rather than a grounded adaptation — see
// DESIGN.md. It reuses the same goldmark AST walk internal/chunk uses to
// find fenced code blocks (internal/chunk/codefence.go), since that's the
// corpus's established way to recognize markdown fences.
type Summarizer struct {
	Store    *vectorstore.Store
	Registry *registry.Registry
}

var summaryFenceParser = goldmark.New()

var sentenceSplit = regexp.MustCompile(`(?:[.!?]+["')\]]*\s+|\n{2,})`)
var wordSplit = regexp.MustCompile(`[A-Za-z0-9']+`)

// Summarize builds the extractive summary for sessionID using topN
// sentences, ranked by their average TF-IDF term weight across the
// session's chunk text.
func (s *Summarizer) Summarize(sessionID string, topN int) string {
	chunks := s.Store.SessionChunks(sessionID)
	if len(chunks) == 0 {
		return ""
	}
	if topN <= 0 {
		topN = 5
	}

	var fullText strings.Builder
	for _, c := range chunks {
		fullText.WriteString(stripCodeBlocks(c.Text))
		fullText.WriteString("\n\n")
	}

	sentences := splitSentences(fullText.String())
	if len(sentences) == 0 {
		return ""
	}
	if len(sentences) <= topN {
		return strings.Join(sentences, " ")
	}

	df := documentFrequency(sentences)
	scored := make([]scoredSentence, len(sentences))
	for i, sent := range sentences {
		scored[i] = scoredSentence{index: i, text: sent, score: tfidfScore(sent, df, len(sentences))}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	top := scored[:topN]
	sort.SliceStable(top, func(i, j int) bool { return top[i].index < top[j].index })

	out := make([]string, len(top))
	for i, sc := range top {
		out[i] = sc.text
	}
	return strings.Join(out, " ")
}

// NeedsRegeneration reports whether a session's cached summary is stale
// (spec.md §4.12 "regenerated when chunk count changes >= N%").
func NeedsRegeneration(cachedAtChunkCount, currentChunkCount int, deltaPercent float64) bool {
	if cachedAtChunkCount <= 0 {
		return currentChunkCount > 0
	}
	delta := math.Abs(float64(currentChunkCount-cachedAtChunkCount)) / float64(cachedAtChunkCount) * 100
	return delta >= deltaPercent
}

type scoredSentence struct {
	index int
	text  string
	score float64
}

func stripCodeBlocks(src string) string {
	reader := text.NewReader([]byte(src))
	doc := summaryFenceParser.Parser().Parse(reader)

	type span struct{ start, end int }
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
		spans = append(spans, span{start: lines.At(0).Start, end: lines.At(lines.Len() - 1).Stop})
		return ast.WalkContinue, nil
	})

	if len(spans) == 0 {
		return src
	}
	var out strings.Builder
	last := 0
	for _, sp := range spans {
		if sp.start > last {
			out.WriteString(src[last:sp.start])
		}
		last = sp.end
	}
	out.WriteString(src[last:])
	return out.String()
}

func splitSentences(text string) []string {
	raw := sentenceSplit.Split(text, -1)
	var out []string
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

func tokenize(s string) []string {
	lower := strings.ToLower(s)
	return wordSplit.FindAllString(lower, -1)
}

// documentFrequency treats each sentence as a "document" for idf purposes,
// the standard extractive-summarization adaptation of TF-IDF.
func documentFrequency(sentences []string) map[string]int {
	df := make(map[string]int)
	for _, sent := range sentences {
		seen := make(map[string]bool)
		for _, tok := range tokenize(sent) {
			if seen[tok] {
				continue
			}
			seen[tok] = true
			df[tok]++
		}
	}
	return df
}

func tfidfScore(sentence string, df map[string]int, totalDocs int) float64 {
	tokens := tokenize(sentence)
	if len(tokens) == 0 {
		return 0
	}
	tf := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}
	var sum float64
	for tok, count := range tf {
		idf := math.Log(float64(totalDocs+1) / float64(df[tok]+1))
		sum += (float64(count) / float64(len(tokens))) * idf
	}
	return sum / math.Sqrt(float64(len(tokens)))
}
