package pipeline

import (
	"context"

	"github.com/fathom-search/fathom/pkg/schema"
	"github.com/fathom-search/fathom/pkg/signal"
)

// PrecisionScorer runs the cross-encoder over (query, title_or_snippet)
// in one batch call per stage pass. LambdaMART may consume the
// cross-encoder outputs as additional features if a model is loaded.
type PrecisionScorer struct {
	Computer *signal.Computer
	Query    string
	Model    signal.LambdaMart
}

func (s PrecisionScorer) Score(ctx context.Context, pages []*schema.PrecisionRankingWebpage) error {
	for _, p := range pages {
		title, snippet := p.Body.Title, p.Body.Snippet
		titleScore, snippetScore := s.Computer.ComputeCrossEncoder(ctx, s.Query, title, snippet)
		p.Recall.Signals[schema.SignalCrossEncoderTitle] = titleScore
		p.Recall.Signals[schema.SignalCrossEncoderSnippet] = snippetScore
		if s.Model != nil && s.Model.Loaded() {
			p.Recall.Signals[schema.SignalLambdaMart] = s.Model.Predict(p.Recall.Signals)
		}
	}
	return nil
}

// NewPrecisionPipeline assembles the single-stage precision/reranker
// pipeline: cross-encoder scoring, re-sort, truncate, no further
// near-duplicate suppression (already applied at the recall stage).
func NewPrecisionPipeline(scorer PrecisionScorer, coeffs *schema.CoefficientTable, stageTopN int) Pipeline[*schema.PrecisionRankingWebpage] {
	return Pipeline[*schema.PrecisionRankingWebpage]{
		Stages: []Stage[*schema.PrecisionRankingWebpage]{
			{
				Scorer: sequence([]Scorer[*schema.PrecisionRankingWebpage]{
					scorer,
					ScorerFunc[*schema.PrecisionRankingWebpage](func(ctx context.Context, pages []*schema.PrecisionRankingWebpage) error {
						for _, p := range pages {
							p.Recall.Score = signal.Score(p.Recall.Signals, coeffs, p.Recall.OpticBoost)
						}
						return nil
					}),
				}),
				StageTopN:     stageTopN,
				DerankSimilar: false,
			},
		},
	}
}
