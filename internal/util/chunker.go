package util

import (
	"strings"

	"docworker/internal/tokenizer"
)

// DefaultChunkBudget is the token budget of one chunk and of one LLM input batch.
const DefaultChunkBudget = 3000

// boundaryTail is how many trailing tokens are decoded when testing a cut point.
const boundaryTail = 8

type Chunk struct {
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
}

type boundaryTier func(span string) bool

// Cut points in order of preference: sentence end at a line break, sentence
// end, line break.
var boundaryTiers = []boundaryTier{
	func(s string) bool {
		return strings.HasSuffix(s, "\n") && strings.HasSuffix(strings.TrimRight(s, " \t\r\n"), ".")
	},
	func(s string) bool { return strings.HasSuffix(s, ".") },
	func(s string) bool { return strings.HasSuffix(s, "\n") },
}

// ChunkTokens splits text into chunks of at most maxTokens tokens, cutting at
// the best natural boundary found in the back half of each window. With
// overlap > 0 each chunk after the first starts overlap*len(previous) tokens
// before the previous cut, realigned to a nearby boundary.
func ChunkTokens(tok tokenizer.Tokenizer, text string, maxTokens int, overlap float64) []Chunk {
	if maxTokens <= 0 {
		maxTokens = DefaultChunkBudget
	}
	if overlap < 0 || overlap >= 1 {
		overlap = 0
	}
	tokens := tok.Encode(text)
	out := make([]Chunk, 0, len(tokens)/maxTokens+1)
	start := 0
	for start < len(tokens) {
		end := len(tokens)
		if start+maxTokens < len(tokens) {
			end = findCut(tok, tokens, start, start+maxTokens)
		}
		if part := strings.TrimSpace(tok.Decode(tokens[start:end])); part != "" {
			out = append(out, Chunk{Text: part, TokenCount: tok.Count(part)})
		}
		if end >= len(tokens) {
			break
		}
		next := end
		if overlap > 0 {
			if back := int(overlap * float64(end-start)); back > 0 {
				next = alignOverlap(tok, tokens, start, end, end-back, back/2)
			}
		}
		start = next
	}
	return out
}

// findCut searches hi down to (start+hi)/2 exclusive for a boundary, falling
// back to a hard cut at hi.
func findCut(tok tokenizer.Tokenizer, tokens []int, start, hi int) int {
	lo := start + (hi-start)/2
	for _, tier := range boundaryTiers {
		for j := hi; j > lo; j-- {
			if tier(decodeTail(tok, tokens, start, j)) {
				return j
			}
		}
	}
	return hi
}

// alignOverlap moves center to the nearest boundary within radius, keeping the
// result strictly after start so chunking always advances.
func alignOverlap(tok tokenizer.Tokenizer, tokens []int, start, end, center, radius int) int {
	if center <= start {
		center = start + 1
	}
	for _, tier := range boundaryTiers {
		for d := 0; d <= radius; d++ {
			for _, j := range []int{center + d, center - d} {
				if j <= start || j > end {
					continue
				}
				if tier(decodeTail(tok, tokens, start, j)) {
					return j
				}
			}
		}
	}
	if center > end {
		return end
	}
	return center
}

func decodeTail(tok tokenizer.Tokenizer, tokens []int, start, j int) string {
	from := j - boundaryTail
	if from < start {
		from = start
	}
	return tok.Decode(tokens[from:j])
}
