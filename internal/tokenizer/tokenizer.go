// Package tokenizer maps text to model tokens and back.
package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer must be lossless: Decode(Encode(s)) == s, and decoding a
// concatenation of token runs equals the concatenation of their decodings.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
	Count(text string) int
}

// New builds the tokenizer named in configuration.
func New(kind, model string) (Tokenizer, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "tiktoken":
		return NewTiktoken(model)
	case "words":
		return NewWords(), nil
	default:
		return nil, fmt.Errorf("unsupported tokenizer: %s", kind)
	}
}

// Tiktoken uses the BPE encoding of an OpenAI model.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

func NewTiktoken(model string) (*Tiktoken, error) {
	if model == "" {
		model = "gpt-3.5-turbo"
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("load encoding for %s: %w", model, err)
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *Tiktoken) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

func (t *Tiktoken) Count(text string) int {
	return len(t.Encode(text))
}

// Words splits text into word tokens that carry their leading spaces, with
// every newline as a token of its own. The vocabulary grows as text is seen,
// so ids are only meaningful within one Words instance.
type Words struct {
	mu    sync.Mutex
	ids   map[string]int
	vocab []string
}

func NewWords() *Words {
	return &Words{ids: map[string]int{}}
}

func (w *Words) Encode(text string) []int {
	pieces := splitWords(text)
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]int, 0, len(pieces))
	for _, p := range pieces {
		id, ok := w.ids[p]
		if !ok {
			id = len(w.vocab)
			w.ids[p] = id
			w.vocab = append(w.vocab, p)
		}
		out = append(out, id)
	}
	return out
}

func (w *Words) Decode(tokens []int) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var b strings.Builder
	for _, id := range tokens {
		if id >= 0 && id < len(w.vocab) {
			b.WriteString(w.vocab[id])
		}
	}
	return b.String()
}

func (w *Words) Count(text string) int {
	return len(splitWords(text))
}

func splitWords(text string) []string {
	out := make([]string, 0, len(text)/5+1)
	var cur strings.Builder
	hasWord := false
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
		hasWord = false
	}
	for _, r := range text {
		switch {
		case r == '\n':
			flush()
			out = append(out, "\n")
		case r == ' ' || r == '\t' || r == '\r' || r == '\f' || r == '\v':
			if hasWord {
				flush()
			}
			cur.WriteRune(r)
		default:
			cur.WriteRune(r)
			hasWord = true
		}
	}
	flush()
	return out
}
