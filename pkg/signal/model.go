package signal

import (
	"context"
	"strings"

	"github.com/fathom-search/fathom/pkg/schema"
)

// NullCrossEncoder is a zero-weight stand-in used when no cross-encoder
// model is configured; Score always returns 0, which combined with the
// signal's coefficient contributes nothing to the final score.
type NullCrossEncoder struct{}

func (NullCrossEncoder) Score(ctx context.Context, query, text string) float64 { return 0 }

// LexicalOverlapCrossEncoder is a dependency-free fallback reranker: it
// scores a (query, text) pair by the fraction of query terms present in
// text, case-insensitively. It stands in for a learned cross-encoder
// when Non-goals exclude shipping one, while still exercising
// the CrossEncoder interface end to end.
type LexicalOverlapCrossEncoder struct{}

func (LexicalOverlapCrossEncoder) Score(ctx context.Context, query, text string) float64 {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

// LinearModel is a LambdaMart stand-in: a fixed linear combination over
// a subset of signals, loaded from offline-trained weights. Loaded
// reports false until weights are set, so Computer skips it cleanly.
type LinearModel struct {
	weights map[schema.Signal]float64
}

// NewLinearModel builds a LinearModel from a signal->weight map.
func NewLinearModel(weights map[schema.Signal]float64) *LinearModel {
	return &LinearModel{weights: weights}
}

func (m *LinearModel) Loaded() bool { return m != nil && len(m.weights) > 0 }

func (m *LinearModel) Predict(v schema.SignalVector) float64 {
	var total float64
	for sig, w := range m.weights {
		total += w * v[sig]
	}
	return total
}
