package optic

import "github.com/fathom-search/fathom/pkg/schema"

// Fields is the subset of a document's text the matcher evaluates
// patterns against, keyed by PatternLocation.
type Fields struct {
	URL         string
	Site        string
	Domain      string
	Schema      string
	Title       string
	Description string
}

func (f Fields) get(loc schema.PatternLocation) string {
	switch loc {
	case schema.LocationURL:
		return f.URL
	case schema.LocationSite:
		return f.Site
	case schema.LocationDomain:
		return f.Domain
	case schema.LocationSchema:
		return f.Schema
	case schema.LocationTitle:
		return f.Title
	case schema.LocationDescription:
		return f.Description
	default:
		return ""
	}
}

// Verdict is the outcome of evaluating an Optic against one document.
type Verdict struct {
	Discard bool
	Boost   float64 // sum of Boost amounts minus sum of Downrank amounts from matching rules
}

// Evaluate runs every rule in declaration order against fields, per
// invariant: rules evaluate in order, the first matching
// Discard short-circuits the whole evaluation.
func Evaluate(o *schema.Optic, fields Fields) Verdict {
	if o == nil {
		return Verdict{}
	}
	var v Verdict
	for _, rule := range o.Rules {
		if !matchesAll(rule.Matches, fields) {
			continue
		}
		switch rule.Action.Kind {
		case schema.ActionDiscard:
			return Verdict{Discard: true}
		case schema.ActionBoost:
			v.Boost += rule.Action.Amount
		case schema.ActionDownrank:
			v.Boost -= rule.Action.Amount
		}
	}
	return v
}

func matchesAll(matches []schema.Match, fields Fields) bool {
	if len(matches) == 0 {
		return false
	}
	for _, m := range matches {
		if !matchPattern(m.Pattern, fields.get(m.Location)) {
			return false
		}
	}
	return true
}

// matchPattern checks whether text matches a sequence of literal,
// wildcard, and anchor pattern parts, evaluated left to right by a
// single greedy scan: each literal takes its first occurrence after the
// previous one, and no other placement is tried.
func matchPattern(parts []schema.PatternPart, text string) bool {
	pos := 0
	anchoredStart := len(parts) > 0 && parts[0].Anchor
	anchoredEnd := len(parts) > 0 && parts[len(parts)-1].Anchor

	i := 0
	if anchoredStart {
		i = 1
	}
	end := len(parts)
	if anchoredEnd {
		end--
	}

	firstLiteral := true
	for ; i < end; i++ {
		part := parts[i]
		if part.Wildcard {
			continue
		}
		idx := indexFrom(text, part.Literal, pos)
		if idx < 0 {
			return false
		}
		if firstLiteral && anchoredStart && idx != pos {
			return false
		}
		pos = idx + len(part.Literal)
		firstLiteral = false
	}
	if anchoredEnd && !hasSuffixLiteral(parts, end, text, pos) {
		return false
	}
	return true
}

func indexFrom(s, sub string, from int) int {
	if from > len(s) {
		return -1
	}
	rel := indexOf(s[from:], sub)
	if rel < 0 {
		return -1
	}
	return from + rel
}

func indexOf(s, sub string) int {
	if len(sub) == 0 {
		return 0
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func hasSuffixLiteral(parts []schema.PatternPart, end int, text string, pos int) bool {
	if end == 0 {
		return pos == len(text)
	}
	last := parts[end-1]
	if last.Wildcard {
		return true
	}
	return len(text) >= len(last.Literal) && text[len(text)-len(last.Literal):] == last.Literal
}
