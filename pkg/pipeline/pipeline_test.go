package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fathom-search/fathom/pkg/schema"
)

type fakePage struct {
	score       float64
	fingerprint uint64
}

func (p *fakePage) ScoreValue() float64     { return p.score }
func (p *fakePage) SetScoreValue(v float64) { p.score = v }
func (p *fakePage) Fingerprint() uint64     { return p.fingerprint }

func TestPipelineSortsAndTruncates(t *testing.T) {
	pages := []*fakePage{
		{score: 1, fingerprint: 1},
		{score: 3, fingerprint: 2},
		{score: 2, fingerprint: 3},
	}
	p := Pipeline[*fakePage]{
		Stages: []Stage[*fakePage]{
			{Scorer: ScorerFunc[*fakePage](func(ctx context.Context, pages []*fakePage) error { return nil }), StageTopN: 2},
		},
	}
	out, err := p.Run(context.Background(), pages)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, 3.0, out[0].ScoreValue())
	require.Equal(t, 2.0, out[1].ScoreValue())
}

func TestPipelineDerankSimilarDropsDuplicates(t *testing.T) {
	pages := []*fakePage{
		{score: 3, fingerprint: 0x0F0F0F0F0F0F0F0F},
		{score: 2, fingerprint: 0x0F0F0F0F0F0F0F0E}, // hamming distance 1, near-dup
		{score: 1, fingerprint: 0xFFFFFFFFFFFFFFFF}, // far away
	}
	p := Pipeline[*fakePage]{
		Stages: []Stage[*fakePage]{
			{
				Scorer:        ScorerFunc[*fakePage](func(ctx context.Context, pages []*fakePage) error { return nil }),
				DerankSimilar: true,
			},
		},
	}
	out, err := p.Run(context.Background(), pages)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, 3.0, out[0].ScoreValue())
	require.Equal(t, 1.0, out[1].ScoreValue())
}

func TestScoreCoefficientSumAppliesOpticBoost(t *testing.T) {
	boost := 100.0
	page := &schema.RecallRankingWebpage{OpticBoost: &boost}
	page.Signals[schema.SignalHostCentrality] = 1.0
	coeffs := schema.NewCoefficientTable()
	require.NoError(t, scoreCoefficientSum([]*schema.RecallRankingWebpage{page}, coeffs))
	require.InDelta(t, schema.SignalHostCentrality.DefaultCoefficient()+100.0, page.Score, 1e-9)
}
