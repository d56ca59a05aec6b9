// Package pipeline implements the multi-stage ranking pipeline: an
// ordered sequence of stages, each scoring, sorting, truncating to
// stage_top_n, and optionally dropping near-duplicates before handing
// survivors to the next stage.
package pipeline

import (
	"context"
	"sort"

	"github.com/fathom-search/fathom/pkg/simhash"
)

// Page is anything a pipeline stage can score, sort, and dedupe.
type Page interface {
	ScoreValue() float64
	SetScoreValue(float64)
	Fingerprint() uint64
}

// Scorer scores a batch of pages in place, batch-oriented rather than a
// per-page callback, so a scorer can amortize setup (e.g. a single
// cross-encoder batch call) across the whole page set.
type Scorer[T Page] interface {
	Score(ctx context.Context, pages []T) error
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc[T Page] func(ctx context.Context, pages []T) error

func (f ScorerFunc[T]) Score(ctx context.Context, pages []T) error { return f(ctx, pages) }

// Stage is one step of a pipeline: a scorer, a truncation bound, and
// whether to suppress near-duplicates before passing survivors on.
type Stage[T Page] struct {
	Scorer        Scorer[T]
	StageTopN     int
	DerankSimilar bool
}

// Pipeline is an ordered list of stages run against a candidate set.
type Pipeline[T Page] struct {
	Stages []Stage[T]
}

// Run executes every stage in order: score, stable-sort descending by
// score, truncate to StageTopN (0 means unbounded), then optionally
// drop near-duplicates using a fresh simhash.Table per stage.
func (p Pipeline[T]) Run(ctx context.Context, pages []T) ([]T, error) {
	for _, stage := range p.Stages {
		if err := stage.Scorer.Score(ctx, pages); err != nil {
			return nil, err
		}
		sort.SliceStable(pages, func(i, j int) bool {
			return pages[i].ScoreValue() > pages[j].ScoreValue()
		})
		if stage.StageTopN > 0 && len(pages) > stage.StageTopN {
			pages = pages[:stage.StageTopN]
		}
		if stage.DerankSimilar {
			pages = dropNearDuplicates(pages)
		}
	}
	return pages, nil
}

// dropNearDuplicates keeps the first (highest-scoring, since pages are
// already sorted) occurrence of each near-duplicate cluster.
func dropNearDuplicates[T Page](pages []T) []T {
	table := simhash.NewTable()
	out := make([]T, 0, len(pages))
	for _, p := range pages {
		if table.CheckAndAdd(p.Fingerprint()) {
			continue
		}
		out = append(out, p)
	}
	return out
}
