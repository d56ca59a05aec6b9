package optic

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fathom-search/fathom/pkg/schema"
)

func TestParseSimpleProgram(t *testing.T) {
	src := `
DiscardNonMatching;
NumResults(50);
Like(Site("wikipedia.org"));
Dislike(Site("pinterest.com"));
Signal("host_centrality", 5000);

Rule {
    Matches {
        Domain("*.edu")
    },
    Action(Boost(10))
};
`
	o, err := Parse(src)
	require.NoError(t, err)
	require.True(t, o.DiscardNonMatching)
	require.Equal(t, 50, *o.NumResults)
	require.Equal(t, []string{"wikipedia.org"}, o.HostRankings.Liked)
	require.Equal(t, []string{"pinterest.com"}, o.HostRankings.Disliked)
	require.InDelta(t, 5000, o.SignalCoefficients.Get(schema.SignalHostCentrality), 1e-9)
	require.Len(t, o.Rules, 1)
	require.Equal(t, schema.ActionBoost, o.Rules[0].Action.Kind)
	require.InDelta(t, 10, o.Rules[0].Action.Amount, 1e-9)
}

func TestParseDiscardRule(t *testing.T) {
	src := `
Rule {
    Matches {
        Url(Contains("signin")),
        Title(Contains("login"))
    },
    Action(Discard)
};
`
	o, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, o.Rules, 1)
	require.Equal(t, schema.ActionDiscard, o.Rules[0].Action.Kind)
	require.Len(t, o.Rules[0].Matches, 2)
}

func TestEvaluateDiscardShortCircuits(t *testing.T) {
	o := &schema.Optic{
		Rules: []schema.MatchRule{
			{
				Matches: []schema.Match{{Location: schema.LocationDomain, Pattern: parsePattern("spam.com")}},
				Action:  schema.Action{Kind: schema.ActionDiscard},
			},
			{
				Matches: []schema.Match{{Location: schema.LocationDomain, Pattern: parsePattern("spam.com")}},
				Action:  schema.Action{Kind: schema.ActionBoost, Amount: 100},
			},
		},
	}
	v := Evaluate(o, Fields{Domain: "spam.com"})
	require.True(t, v.Discard)
	require.Equal(t, 0.0, v.Boost)
}

func TestEvaluateBoostAccumulates(t *testing.T) {
	o := &schema.Optic{
		Rules: []schema.MatchRule{
			{
				Matches: []schema.Match{{Location: schema.LocationDomain, Pattern: parsePattern("*.edu")}},
				Action:  schema.Action{Kind: schema.ActionBoost, Amount: 10},
			},
			{
				Matches: []schema.Match{{Location: schema.LocationTitle, Pattern: parsePattern("ads")}},
				Action:  schema.Action{Kind: schema.ActionDownrank, Amount: 3},
			},
		},
	}
	v := Evaluate(o, Fields{Domain: "mit.edu", Title: "no ads here"})
	require.False(t, v.Discard)
	require.InDelta(t, 7.0, v.Boost, 1e-9)
}

func TestMatchPatternAnchored(t *testing.T) {
	require.True(t, matchPattern(parsePattern("|https://example.com/*"), "https://example.com/foo"))
	require.False(t, matchPattern(parsePattern("|https://example.com/*"), "http://evil.com/https://example.com/foo"))
}

func TestMatchPatternWildcardMiddle(t *testing.T) {
	require.True(t, matchPattern(parsePattern("foo*bar"), "fooXXbar"))
	require.False(t, matchPattern(parsePattern("foo*bar"), "foobaz"))
}
