package optic

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fathom-search/fathom/pkg/schema"
)

// Parse compiles optic source text into a schema.Optic program.
//
// Grammar (line-based, statements terminated by ';'):
//
//	DiscardNonMatching;
//	NumResults(20);
//	MaxDocsConsidered(250000);
//	Like(Site("wikipedia.org"));
//	Dislike(Site("pinterest.com"));
//	Signal("host_centrality", 5000);
//	Rule {
//	    Matches {
//	        Domain("*.edu"),
//	        Title(Contains("admissions"))
//	    },
//	    Action(Boost(10))
//	};
func Parse(src string) (*schema.Optic, error) {
	toks, err := newLexer(src).lex()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	return p.parseProgram()
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) cur() token  { return p.toks[p.pos] }
func (p *parser) next() token { t := p.toks[p.pos]; p.pos++; return t }

func (p *parser) expect(k tokenKind, what string) (token, error) {
	if p.cur().kind != k {
		return token{}, fmt.Errorf("optic: expected %s at line %d, got %q", what, p.cur().line, p.cur().text)
	}
	return p.next(), nil
}

func (p *parser) expectIdent(name string) error {
	t := p.cur()
	if t.kind != tokIdent || t.text != name {
		return fmt.Errorf("optic: expected %q at line %d, got %q", name, t.line, t.text)
	}
	p.next()
	return nil
}

func (p *parser) parseProgram() (*schema.Optic, error) {
	o := &schema.Optic{SignalCoefficients: schema.NewCoefficientTable()}
	for p.cur().kind != tokEOF {
		if err := p.parseStatement(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (p *parser) parseStatement(o *schema.Optic) error {
	t := p.cur()
	if t.kind != tokIdent {
		return fmt.Errorf("optic: expected statement keyword at line %d, got %q", t.line, t.text)
	}
	switch t.text {
	case "DiscardNonMatching":
		p.next()
		o.DiscardNonMatching = true
		return p.consumeSemicolon()
	case "NumResults":
		n, err := p.parseIntCall("NumResults")
		if err != nil {
			return err
		}
		o.NumResults = &n
		return p.consumeSemicolon()
	case "MaxDocsConsidered":
		n, err := p.parseIntCall("MaxDocsConsidered")
		if err != nil {
			return err
		}
		v := uint64(n)
		o.MaxDocsConsidered = &v
		return p.consumeSemicolon()
	case "Like":
		host, err := p.parseHostCall("Like")
		if err != nil {
			return err
		}
		o.HostRankings.Liked = append(o.HostRankings.Liked, host)
		return p.consumeSemicolon()
	case "Dislike":
		host, err := p.parseHostCall("Dislike")
		if err != nil {
			return err
		}
		o.HostRankings.Disliked = append(o.HostRankings.Disliked, host)
		return p.consumeSemicolon()
	case "Block":
		host, err := p.parseHostCall("Block")
		if err != nil {
			return err
		}
		o.HostRankings.Blocked = append(o.HostRankings.Blocked, host)
		return p.consumeSemicolon()
	case "Signal":
		sig, coeff, err := p.parseSignalCall()
		if err != nil {
			return err
		}
		o.SignalCoefficients.MergeOverwrite(sig, coeff)
		return p.consumeSemicolon()
	case "Rule":
		rule, err := p.parseRule()
		if err != nil {
			return err
		}
		o.Rules = append(o.Rules, rule)
		return p.consumeSemicolon()
	default:
		return fmt.Errorf("optic: unknown statement %q at line %d", t.text, t.line)
	}
}

func (p *parser) consumeSemicolon() error {
	_, err := p.expect(tokSemicolon, "';'")
	return err
}

func (p *parser) parseIntCall(name string) (int, error) {
	if err := p.expectIdent(name); err != nil {
		return 0, err
	}
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return 0, err
	}
	n, err := p.expect(tokNumber, "number")
	if err != nil {
		return 0, err
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(n.text)
	if err != nil {
		return 0, fmt.Errorf("optic: invalid integer %q at line %d", n.text, n.line)
	}
	return v, nil
}

func (p *parser) parseHostCall(name string) (string, error) {
	if err := p.expectIdent(name); err != nil {
		return "", err
	}
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return "", err
	}
	if err := p.expectIdent("Site"); err != nil {
		return "", err
	}
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return "", err
	}
	s, err := p.expect(tokString, "string")
	if err != nil {
		return "", err
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return "", err
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return "", err
	}
	return s.text, nil
}

var signalNames = map[string]schema.Signal{
	"bm25f":                     schema.SignalBm25F,
	"bm25_title":                schema.SignalBm25Title,
	"host_centrality":           schema.SignalHostCentrality,
	"page_centrality":           schema.SignalPageCentrality,
	"is_homepage":               schema.SignalIsHomepage,
	"tracker_score":             schema.SignalTrackerScore,
	"inbound_similarity":        schema.SignalInboundSimilarity,
	"query_centrality":          schema.SignalQueryCentrality,
	"lambdamart":                schema.SignalLambdaMart,
	"cross_encoder_snippet":     schema.SignalCrossEncoderSnippet,
	"cross_encoder_title":       schema.SignalCrossEncoderTitle,
	"title_embedding_similarity": schema.SignalTitleEmbeddingSimilarity,
}

func (p *parser) parseSignalCall() (schema.Signal, float64, error) {
	if err := p.expectIdent("Signal"); err != nil {
		return 0, 0, err
	}
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return 0, 0, err
	}
	name, err := p.expect(tokString, "signal name")
	if err != nil {
		return 0, 0, err
	}
	if _, err := p.expect(tokComma, "','"); err != nil {
		return 0, 0, err
	}
	n, err := p.expect(tokNumber, "coefficient")
	if err != nil {
		return 0, 0, err
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return 0, 0, err
	}
	sig, ok := signalNames[name.text]
	if !ok {
		return 0, 0, fmt.Errorf("optic: unknown signal %q at line %d", name.text, name.line)
	}
	coeff, err := strconv.ParseFloat(n.text, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("optic: invalid coefficient %q at line %d", n.text, n.line)
	}
	return sig, coeff, nil
}

func (p *parser) parseRule() (schema.MatchRule, error) {
	var rule schema.MatchRule
	if err := p.expectIdent("Rule"); err != nil {
		return rule, err
	}
	if _, err := p.expect(tokLBrace, "'{'"); err != nil {
		return rule, err
	}
	if err := p.expectIdent("Matches"); err != nil {
		return rule, err
	}
	if _, err := p.expect(tokLBrace, "'{'"); err != nil {
		return rule, err
	}
	for p.cur().kind != tokRBrace {
		m, err := p.parseMatch()
		if err != nil {
			return rule, err
		}
		rule.Matches = append(rule.Matches, m)
		if p.cur().kind == tokComma {
			p.next()
		}
	}
	if _, err := p.expect(tokRBrace, "'}'"); err != nil {
		return rule, err
	}
	if _, err := p.expect(tokComma, "','"); err != nil {
		return rule, err
	}
	action, err := p.parseAction()
	if err != nil {
		return rule, err
	}
	rule.Action = action
	if _, err := p.expect(tokRBrace, "'}'"); err != nil {
		return rule, err
	}
	return rule, nil
}

var locationNames = map[string]schema.PatternLocation{
	"Url":         schema.LocationURL,
	"Site":        schema.LocationSite,
	"Domain":      schema.LocationDomain,
	"Schema":      schema.LocationSchema,
	"Title":       schema.LocationTitle,
	"Description": schema.LocationDescription,
}

func (p *parser) parseMatch() (schema.Match, error) {
	var m schema.Match
	loc := p.cur()
	if loc.kind != tokIdent {
		return m, fmt.Errorf("optic: expected location name at line %d", loc.line)
	}
	locKind, ok := locationNames[loc.text]
	if !ok {
		return m, fmt.Errorf("optic: unknown match location %q at line %d", loc.text, loc.line)
	}
	p.next()
	m.Location = locKind
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return m, err
	}
	// optional Contains(...) wrapper is sugar for an unanchored pattern.
	if p.cur().kind == tokIdent && p.cur().text == "Contains" {
		p.next()
		if _, err := p.expect(tokLParen, "'('"); err != nil {
			return m, err
		}
		s, err := p.expect(tokString, "string")
		if err != nil {
			return m, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return m, err
		}
		m.Pattern = parsePattern(s.text)
	} else {
		s, err := p.expect(tokString, "string")
		if err != nil {
			return m, err
		}
		m.Pattern = parsePattern(s.text)
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return m, err
	}
	return m, nil
}

// parsePattern splits a pattern string on '*' wildcards, with a leading
// or trailing '|' marking an anchor against the start/end of the field.
func parsePattern(s string) []schema.PatternPart {
	var parts []schema.PatternPart
	anchoredStart := strings.HasPrefix(s, "|")
	anchoredEnd := strings.HasSuffix(s, "|")
	if anchoredStart {
		s = s[1:]
		parts = append(parts, schema.PatternPart{Anchor: true})
	}
	if anchoredEnd {
		s = strings.TrimSuffix(s, "|")
	}
	segments := strings.Split(s, "*")
	for i, seg := range segments {
		if i > 0 {
			parts = append(parts, schema.PatternPart{Wildcard: true})
		}
		if seg != "" {
			parts = append(parts, schema.PatternPart{Literal: seg})
		}
	}
	if anchoredEnd {
		parts = append(parts, schema.PatternPart{Anchor: true})
	}
	return parts
}

func (p *parser) parseAction() (schema.Action, error) {
	var a schema.Action
	if err := p.expectIdent("Action"); err != nil {
		return a, err
	}
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return a, err
	}
	kindTok := p.cur()
	if kindTok.kind != tokIdent {
		return a, fmt.Errorf("optic: expected action kind at line %d", kindTok.line)
	}
	p.next()
	switch kindTok.text {
	case "Discard":
		a.Kind = schema.ActionDiscard
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return a, err
		}
		return a, nil
	case "Boost":
		a.Kind = schema.ActionBoost
	case "Downrank":
		a.Kind = schema.ActionDownrank
	default:
		return a, fmt.Errorf("optic: unknown action %q at line %d", kindTok.text, kindTok.line)
	}
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return a, err
	}
	n, err := p.expect(tokNumber, "amount")
	if err != nil {
		return a, err
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return a, err
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return a, err
	}
	amt, err := strconv.ParseFloat(n.text, 64)
	if err != nil {
		return a, fmt.Errorf("optic: invalid amount %q at line %d", n.text, n.line)
	}
	a.Amount = amt
	return a, nil
}
