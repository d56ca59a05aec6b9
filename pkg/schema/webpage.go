package schema

// FingerprintBundle is the set of 64-bit simhash-like fingerprints a
// WebsitePointer carries for cross-shard near-duplicate suppression.
type FingerprintBundle struct {
	SiteLevel uint64
	PageLevel uint64
}

// WebsitePointer is the phase-1 output: cheap enough to merge across
// shards without materializing document bodies. Pointers never cross
// the cluster boundary to external callers.
type WebsitePointer struct {
	ShardID    ShardID
	SegmentOrd uint32
	DocID      DocID
	Score      float64
	Hashes     FingerprintBundle
}

// SignalVector is a dense array over the closed Signal set.
type SignalVector [NumSignals]float64

// RecallRankingWebpage is the recall-stage candidate value type.
type RecallRankingWebpage struct {
	Pointer        WebsitePointer
	Signals        SignalVector
	OpticBoost     *float64
	TitleEmbedding []byte
	Score          float64
}

// ScoreValue returns the page's current ranking score.
func (p *RecallRankingWebpage) ScoreValue() float64 { return p.Score }

// SetScoreValue overwrites the page's ranking score.
func (p *RecallRankingWebpage) SetScoreValue(v float64) { p.Score = v }

// Fingerprint returns the page-level simhash used for near-duplicate
// suppression between pipeline stages.
func (p *RecallRankingWebpage) Fingerprint() uint64 { return p.Pointer.Hashes.PageLevel }

// PrecisionRankingWebpage wraps a RecallRankingWebpage plus the fully
// materialized body, used by the reranking/precision stage.
type PrecisionRankingWebpage struct {
	Recall RecallRankingWebpage
	Body   RetrievedWebpage
}

// ScoreValue returns the wrapped recall page's current ranking score.
func (p *PrecisionRankingWebpage) ScoreValue() float64 { return p.Recall.Score }

// SetScoreValue overwrites the wrapped recall page's ranking score.
func (p *PrecisionRankingWebpage) SetScoreValue(v float64) { p.Recall.Score = v }

// Fingerprint returns the page-level simhash used for near-duplicate
// suppression between pipeline stages.
func (p *PrecisionRankingWebpage) Fingerprint() uint64 { return p.Recall.Pointer.Hashes.PageLevel }

// InitialWebsiteResult is phase 1's response shape. Bang is set instead
// of Websites when the query resolved to a bang redirect; callers must
// check it first.
type InitialWebsiteResult struct {
	Websites    []RecallRankingWebpage
	NumWebsites *int
	HasMore     bool
	Bang        *Bang
}

// WebsitesResult is the final, merged, fully-reranked response. Bang is
// set instead of Webpages when the query resolved to a bang redirect.
type WebsitesResult struct {
	Webpages []DisplayedWebpage
	NumHits  *int
	HasMore  bool
	Bang     *Bang
}
