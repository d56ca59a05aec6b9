// Package signal computes per-(document, query) signal values and
// combines them into the final recall-stage score.
package signal

import (
	"context"
	"math"

	"github.com/fathom-search/fathom/pkg/column"
	"github.com/fathom-search/fathom/pkg/schema"
)

// CentralityStore is the read-only interface the computer needs from
// internal/store.CentralityStore, kept narrow so signal stays
// decoupled from the storage package.
type CentralityStore interface {
	Get(ctx context.Context, hostNodeID uint64) float64
}

// EmbeddingSimilarity scores a query embedding against a document's
// stored embedding bytes (title or keyword). CosineEmbeddingSimilarity,
// a direct cosine over the decoded vector, is the implementation in
// this package.
type EmbeddingSimilarity interface {
	Similarity(queryEmbedding []float32, docEmbeddingBytes []byte) float64
}

// CrossEncoder scores a (query, text) pair, as a single-method
// stage-level interface since the model itself is out of this module's
// scope.
type CrossEncoder interface {
	Score(ctx context.Context, query, text string) float64
}

// LambdaMart is a learned linear combiner over the other signals.
type LambdaMart interface {
	Predict(signals schema.SignalVector) float64
	Loaded() bool
}

// QueryContext carries the per-query state the computer needs beyond a
// single document: matched IDF sums per field, liked-host set for
// QueryCentrality, and optional model inputs.
type QueryContext struct {
	IDFSum         map[schema.FieldID]float64
	LikedHosts     map[string]bool
	QueryEmbedding []float32
	Snippet        string
	Title          string
	RawQuery       string
}

// Computer binds a segment's column reader and the shared ranking
// models/stores to compute Signal values for a document.
type Computer struct {
	Columns      *column.Reader
	Centrality   CentralityStore
	Similarity   EmbeddingSimilarity
	CrossEnc     CrossEncoder
	Model        LambdaMart
	Now          func() int64 // unix seconds; injected for deterministic tests
	RecencyDecay float64      // λ in exp(-λ * age_days); 0 disables recency scoring
}

// Compute fills every applicable Signal for doc into a SignalVector,
// given the per-term BM25 contributions already computed by the
// segment's query execution (textScores; only the signals NOT already
// known from query execution are derived here from columns/models).
func (c *Computer) Compute(ctx context.Context, doc uint32, qctx QueryContext, textScores map[schema.Signal]float64) schema.SignalVector {
	var v schema.SignalVector
	for sig, score := range textScores {
		v[sig] = score
	}

	if hc, ok := c.Columns.F64(column.FieldHostCentrality, doc); ok {
		v[schema.SignalHostCentrality] = hc
	}
	if pc, ok := c.Columns.F64(column.FieldPageCentrality, doc); ok {
		v[schema.SignalPageCentrality] = pc
	}
	if r, ok := c.Columns.U64(column.FieldHostCentralityRank, doc); ok {
		v[schema.SignalHostCentralityRank] = 1.0 / float64(r+1)
	}
	if r, ok := c.Columns.U64(column.FieldPageCentralityRank, doc); ok {
		v[schema.SignalPageCentralityRank] = 1.0 / float64(r+1)
	}
	if h, ok := c.Columns.U64(column.FieldIsHomepage, doc); ok && h == 1 {
		v[schema.SignalIsHomepage] = 1.0
	}
	if ft, ok := c.Columns.U64(column.FieldFetchTimeMs, doc); ok {
		v[schema.SignalFetchTimeMs] = -float64(ft)
	}
	if ts, ok := c.Columns.U64(column.FieldUpdateTimestamp, doc); ok {
		v[schema.SignalUpdateTimestamp] = c.recencyScore(ts)
	}
	if tr, ok := c.Columns.F64(column.FieldTrackerScore, doc); ok {
		v[schema.SignalTrackerScore] = -tr
	}
	if ld, ok := c.Columns.F64(column.FieldLinkDensity, doc); ok {
		v[schema.SignalLinkDensity] = ld
	}
	if ads, ok := c.Columns.U64(column.FieldLikelyHasAds, doc); ok && ads == 1 {
		v[schema.SignalHasAds] = 1.0
	}

	if c.Centrality != nil {
		if nodeID, ok := c.Columns.U64(column.FieldHostNodeID, doc); ok {
			v[schema.SignalQueryCentrality] = c.queryCentrality(ctx, nodeID, qctx)
		}
	}

	if c.Similarity != nil && qctx.QueryEmbedding != nil {
		if te, ok := c.Columns.Bytes(column.FieldTitleEmbedding, doc); ok {
			v[schema.SignalTitleEmbeddingSimilarity] = c.Similarity.Similarity(qctx.QueryEmbedding, te)
		}
		if ke, ok := c.Columns.Bytes(column.FieldKeywordEmbedding, doc); ok {
			v[schema.SignalKeywordEmbeddingSimilarity] = c.Similarity.Similarity(qctx.QueryEmbedding, ke)
		}
	}

	if c.Model != nil && c.Model.Loaded() {
		v[schema.SignalLambdaMart] = c.Model.Predict(v)
	}

	return v
}

// ComputeCrossEncoder runs the precision-stage cross-encoder signals;
// separated from Compute since it needs the materialized body text and
// is only ever run in phase 2.
func (c *Computer) ComputeCrossEncoder(ctx context.Context, query, title, snippet string) (titleScore, snippetScore float64) {
	if c.CrossEnc == nil {
		return 0, 0
	}
	return c.CrossEnc.Score(ctx, query, title), c.CrossEnc.Score(ctx, query, snippet)
}

func (c *Computer) recencyScore(updateTimestamp uint64) float64 {
	if c.RecencyDecay <= 0 {
		return 0
	}
	now := int64(0)
	if c.Now != nil {
		now = c.Now()
	}
	ageDays := float64(now-int64(updateTimestamp)) / 86400.0
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-c.RecencyDecay * ageDays)
}

func (c *Computer) queryCentrality(ctx context.Context, hostNodeID uint64, qctx QueryContext) float64 {
	if len(qctx.LikedHosts) == 0 {
		return 0
	}
	return c.Centrality.Get(ctx, hostNodeID)
}

// Score combines a SignalVector into the final recall-stage score:
// Σ coeff(signal) * value(signal) + Σ optic boosts.
func Score(v schema.SignalVector, coeffs *schema.CoefficientTable, opticBoost *float64) float64 {
	var total float64
	for s := 0; s < schema.NumSignals; s++ {
		sig := schema.Signal(s)
		total += coeffs.Get(sig) * v[sig]
	}
	if opticBoost != nil {
		total += *opticBoost
	}
	return total
}
