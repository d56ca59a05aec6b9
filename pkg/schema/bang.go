package schema

import (
	"net/url"
	"strings"
)

// Bang is a short-circuit redirect result: when a query carries a
// recognized bang tag, the searcher never touches the index at all and
// instead hands the caller a URL to redirect to.
type Bang struct {
	RedirectTo string
}

// BangTable maps a bang tag (the text following '!') to a redirect URL
// template containing the literal placeholder "{{{s}}}".
type BangTable map[string]string

// Resolve substitutes query into tag's template's {{{s}}} placeholder,
// reporting ok=false if tag is not a configured bang.
func (t BangTable) Resolve(tag, query string) (redirectTo string, ok bool) {
	tmpl, ok := t[tag]
	if !ok {
		return "", false
	}
	return strings.ReplaceAll(tmpl, "{{{s}}}", url.QueryEscape(query)), true
}

// ExtractBang scans terms for a TermPossibleBang and the plain-text
// remainder of the query (every TermSimple term's text, space-joined in
// term order), reporting ok=false if terms carries no bang.
func ExtractBang(terms []Term) (tag, remainder string, ok bool) {
	var words []string
	for _, t := range terms {
		switch t.Kind {
		case TermPossibleBang:
			tag = t.BangTag
			ok = true
		case TermSimple:
			words = append(words, string(t.Simple))
		}
	}
	return tag, strings.Join(words, " "), ok
}
