package pipeline

import (
	"context"

	"github.com/fathom-search/fathom/pkg/schema"
	"github.com/fathom-search/fathom/pkg/signal"
)

// RecallScorers builds the three sub-scorers the recall stage runs in
// sequence over RecallRankingWebpage: title-embedding similarity (a
// pass-through), LambdaMART over the full signal vector (a no-op if no
// model is loaded), then the coefficient-sum final score.
func RecallScorers(sim signal.EmbeddingSimilarity, model signal.LambdaMart, coeffs *schema.CoefficientTable) []Scorer[*schema.RecallRankingWebpage] {
	return []Scorer[*schema.RecallRankingWebpage]{
		ScorerFunc[*schema.RecallRankingWebpage](func(ctx context.Context, pages []*schema.RecallRankingWebpage) error {
			return scoreTitleEmbedding(pages, sim)
		}),
		ScorerFunc[*schema.RecallRankingWebpage](func(ctx context.Context, pages []*schema.RecallRankingWebpage) error {
			return scoreLambdaMart(pages, model)
		}),
		ScorerFunc[*schema.RecallRankingWebpage](func(ctx context.Context, pages []*schema.RecallRankingWebpage) error {
			return scoreCoefficientSum(pages, coeffs)
		}),
	}
}

// scoreTitleEmbedding is a pass-through: signal.Computer already fills
// SignalTitleEmbeddingSimilarity per candidate before the pipeline
// runs, so this sub-scorer exists only to keep the three-sub-scorer
// sequence visible as distinct stages.
func scoreTitleEmbedding(pages []*schema.RecallRankingWebpage, sim signal.EmbeddingSimilarity) error {
	return nil
}

func scoreLambdaMart(pages []*schema.RecallRankingWebpage, model signal.LambdaMart) error {
	if model == nil || !model.Loaded() {
		return nil
	}
	for _, p := range pages {
		p.Signals[schema.SignalLambdaMart] = model.Predict(p.Signals)
	}
	return nil
}

// scoreCoefficientSum is the final recall sub-scorer: final_score =
// Σ coeff(signal)*value(signal) + optic_boost.
func scoreCoefficientSum(pages []*schema.RecallRankingWebpage, coeffs *schema.CoefficientTable) error {
	for _, p := range pages {
		p.Score = signal.Score(p.Signals, coeffs, p.OpticBoost)
	}
	return nil
}

// NewRecallPipeline assembles the recall-stage pipeline as a single
// stage running all three sub-scorers in sequence, truncated to
// stageTopN with near-duplicate suppression enabled.
func NewRecallPipeline(sim signal.EmbeddingSimilarity, model signal.LambdaMart, coeffs *schema.CoefficientTable, stageTopN int) Pipeline[*schema.RecallRankingWebpage] {
	scorers := RecallScorers(sim, model, coeffs)
	return Pipeline[*schema.RecallRankingWebpage]{
		Stages: []Stage[*schema.RecallRankingWebpage]{
			{
				Scorer:        sequence(scorers),
				StageTopN:     stageTopN,
				DerankSimilar: true,
			},
		},
	}
}

func sequence[T Page](scorers []Scorer[T]) Scorer[T] {
	return ScorerFunc[T](func(ctx context.Context, pages []T) error {
		for _, s := range scorers {
			if err := s.Score(ctx, pages); err != nil {
				return err
			}
		}
		return nil
	})
}
