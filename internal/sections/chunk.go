package sections

import (
	"strings"

	"docworker/internal/tokenizer"
	"docworker/internal/util"
)

const valueSeparator = "\n"

// Segment parses structured text and chunks it within budget tokens.
func Segment(tok tokenizer.Tokenizer, text string, budget int) []util.Chunk {
	return Chunk(tok, Parse(text), budget)
}

// Chunk walks the tree pre-order. Before an element is visited the running
// chunk is flushed if it already holds more than a tenth of the budget and
// the element would not fit beside it. Within a text element a value that
// would overflow flushes first, and values larger than the budget are split
// at natural boundaries.
func Chunk(tok tokenizer.Tokenizer, root *Section, budget int) []util.Chunk {
	if budget <= 0 {
		budget = util.DefaultChunkBudget
	}
	measure(tok, root)
	b := &builder{tok: tok, budget: budget, sepSize: tok.Count(valueSeparator)}
	stack := []Element{root}
	for len(stack) > 0 {
		el := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if b.size*10 > budget && b.size+el.Size() > budget {
			b.flush()
		}
		switch e := el.(type) {
		case *TextElement:
			for i, v := range e.Values {
				b.addValue(v, e.sizes[i])
			}
		case *Section:
			for i := len(e.Elements) - 1; i >= 0; i-- {
				stack = append(stack, e.Elements[i])
			}
		}
	}
	b.flush()
	return b.out
}

func measure(tok tokenizer.Tokenizer, el Element) int {
	switch e := el.(type) {
	case *TextElement:
		e.sizes = make([]int, len(e.Values))
		e.size = 0
		for i, v := range e.Values {
			e.sizes[i] = tok.Count(v)
			e.size += e.sizes[i]
		}
		return e.size
	case *Section:
		e.size = 0
		for _, child := range e.Elements {
			e.size += measure(tok, child)
		}
		return e.size
	}
	return 0
}

type builder struct {
	tok     tokenizer.Tokenizer
	budget  int
	sepSize int
	lines   []string
	size    int
	out     []util.Chunk
}

func (b *builder) cost(size int) int {
	if len(b.lines) == 0 {
		return size
	}
	return size + b.sepSize
}

func (b *builder) addValue(v string, size int) {
	if size <= b.budget {
		b.add(v, size)
		return
	}
	for _, piece := range util.ChunkTokens(b.tok, v, b.budget, 0) {
		b.add(piece.Text, piece.TokenCount)
	}
}

func (b *builder) add(v string, size int) {
	if b.size > 0 && b.size+b.cost(size) > b.budget {
		b.flush()
	}
	b.size += b.cost(size)
	b.lines = append(b.lines, v)
}

func (b *builder) flush() {
	if len(b.lines) > 0 {
		text := strings.TrimSpace(strings.Join(b.lines, valueSeparator))
		if text != "" {
			b.out = append(b.out, util.Chunk{Text: text, TokenCount: b.tok.Count(text)})
		}
	}
	b.lines = nil
	b.size = 0
}
