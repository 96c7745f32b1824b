package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWordsRoundTrip(t *testing.T) {
	w := NewWords()
	text := "  Hello world.\nSecond\tline  \n\nend "
	toks := w.Encode(text)
	require.Equal(t, text, w.Decode(toks))
	require.Equal(t, len(toks), w.Count(text))
}

func TestWordsPieces(t *testing.T) {
	require.Equal(t, []string{"Hello", " world.", "\n", "Next"}, splitWords("Hello world.\nNext"))
	require.Equal(t, []string{"a", " ", "\n"}, splitWords("a \n"))
}

func TestWordsDecodeSlicesConcatenate(t *testing.T) {
	w := NewWords()
	toks := w.Encode("one two three four")
	require.Equal(t, "one two", w.Decode(toks[:2]))
	require.Equal(t, " three four", w.Decode(toks[2:]))
}

func TestNewUnknownKind(t *testing.T) {
	_, err := New("bpe-x", "")
	require.Error(t, err)
	tok, err := New("words", "")
	require.NoError(t, err)
	require.Equal(t, 2, tok.Count("a b"))
}
