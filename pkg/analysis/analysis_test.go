package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	toks := Tokenize("The Quick Brown Fox")
	require.Len(t, toks, 4)
	require.Equal(t, "the", toks[0].Term)
	require.Equal(t, "fox", toks[3].Term)
}

func TestNGrams(t *testing.T) {
	toks := Tokenize("a b c d")
	bigrams := NGrams(toks, 2)
	require.Equal(t, []Token{
		{Term: "a b", Position: 0},
		{Term: "b c", Position: 1},
		{Term: "c d", Position: 2},
	}, bigrams)

	trigrams := NGrams(toks, 3)
	require.Len(t, trigrams, 2)
}

func TestNGramsShortInput(t *testing.T) {
	toks := Tokenize("a")
	require.Nil(t, NGrams(toks, 2))
}
