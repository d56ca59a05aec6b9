package schema

import "strings"

// ParseQuery tokenizes a raw query string into a slice of Terms,
// recognizing the following prefix operators:
//
//	site:example.com   -> TermSite
//	linksto:example.com -> TermLinksTo
//	intitle:word        -> TermTitle
//	inbody:word          -> TermBody
//	inurl:word           -> TermURL
//	-word                -> TermNot(simple)
//	!tag                 -> TermPossibleBang
//	"a b c"              -> TermPhrase
//
// Anything else becomes a SimpleTerm. A malformed query (no recognizable
// terms) is not represented as an error return — it is the empty slice.
func ParseQuery(raw string) []Term {
	fields := splitRespectingQuotes(raw)
	terms := make([]Term, 0, len(fields))
	for _, f := range fields {
		if f == "" {
			continue
		}
		terms = append(terms, parseField(f))
	}
	return terms
}

func parseField(f string) Term {
	switch {
	case strings.HasPrefix(f, "site:"):
		return Term{Kind: TermSite, Site: strings.TrimPrefix(f, "site:")}
	case strings.HasPrefix(f, "linksto:"):
		return Term{Kind: TermLinksTo, LinksTo: strings.TrimPrefix(f, "linksto:")}
	case strings.HasPrefix(f, "intitle:"):
		return Term{Kind: TermTitle, Title: strings.TrimPrefix(f, "intitle:")}
	case strings.HasPrefix(f, "inbody:"):
		return Term{Kind: TermBody, Body: strings.TrimPrefix(f, "inbody:")}
	case strings.HasPrefix(f, "inurl:"):
		return Term{Kind: TermURL, URL: strings.TrimPrefix(f, "inurl:")}
	case strings.HasPrefix(f, "-") && len(f) > 1:
		inner := parseField(f[1:])
		return Term{Kind: TermNot, Not: &inner}
	case strings.HasPrefix(f, "!") && len(f) > 1:
		return Term{Kind: TermPossibleBang, BangPrefix: "!", BangTag: f[1:]}
	case strings.HasPrefix(f, `"`) && strings.HasSuffix(f, `"`) && len(f) >= 2:
		inner := strings.TrimSuffix(strings.TrimPrefix(f, `"`), `"`)
		return NewPhraseTerm(strings.Fields(inner))
	default:
		return NewSimpleTerm(f)
	}
}

// splitRespectingQuotes splits on whitespace but keeps "..." groups
// intact as single fields.
func splitRespectingQuotes(raw string) []string {
	var out []string
	var cur strings.Builder
	inQuotes := false
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range raw {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case r == ' ' && !inQuotes:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}
