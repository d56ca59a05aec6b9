// Package analysis provides the tokenizer/stemmer/n-gram pipeline that
// turns raw document text into the monogram/bigram/trigram/stemmed text
// field variants the index needs, built on bleve's analysis
// sub-packages, exposed directly rather than wired through bleve's
// opaque index.
package analysis

import (
	"strings"

	bleveanalysis "github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	unicodetok "github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
)

// Token is one analyzed term at a text position.
type Token struct {
	Term     string
	Position int
}

var (
	tk   = unicodetok.NewUnicodeTokenizer()
	lc   = lowercase.NewLowerCaseFilter()
	stem = en.SnowballStemmer()
)

// Tokenize lowercases and word-tokenizes text, returning tokens with
// 0-based positions. This is the monogram pass every other variant
// derives from.
func Tokenize(text string) []Token {
	raw := tk.Tokenize([]byte(text))
	filtered := lc.Filter(raw)
	out := make([]Token, 0, len(filtered))
	for i, t := range filtered {
		out = append(out, Token{Term: string(t.Term), Position: i})
	}
	return out
}

// Stem stems each token, producing the "stemmed" field variant.
func Stem(tokens []Token) []Token {
	out := make([]Token, len(tokens))
	for i, t := range tokens {
		out[i] = Token{Term: stemTerm(t.Term), Position: t.Position}
	}
	return out
}

func stemTerm(term string) string {
	toks := bleveanalysis.TokenStream{{Term: []byte(term), Position: 1, Start: 0, End: len(term)}}
	stemmed := stem.Filter(toks)
	if len(stemmed) == 0 {
		return term
	}
	return string(stemmed[0].Term)
}

// NGrams joins consecutive tokens into n-gram phrases (bigram n=2,
// trigram n=3), one output token per sliding window, positioned at the
// window's start.
func NGrams(tokens []Token, n int) []Token {
	if len(tokens) < n {
		return nil
	}
	out := make([]Token, 0, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		parts := make([]string, n)
		for j := 0; j < n; j++ {
			parts[j] = tokens[i+j].Term
		}
		out = append(out, Token{Term: strings.Join(parts, " "), Position: tokens[i].Position})
	}
	return out
}
