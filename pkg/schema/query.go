package schema

// HostRankings carries per-query host preferences, either supplied
// directly by the API caller or derived from an Optic program.
type HostRankings struct {
	Liked    []string
	Disliked []string
	Blocked  []string
}

// CollectorConfig bounds worst-case query cost and how many candidates
// survive the local recall-stage pipeline before crossing the shard
// boundary.
type CollectorConfig struct {
	SitePenalty          float64
	TitlePenalty         float64
	URLPenalty           float64
	URLWithoutTLDPenalty float64
	MaxDocsConsidered    uint64
	// RecallStageTopN bounds pkg/pipeline's recall stage, run inside
	// Segment.Execute before a shard's results ever leave the node.
	RecallStageTopN int
}

// DefaultCollectorConfig matches CollectorConfig defaults.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		SitePenalty:          0.1,
		TitlePenalty:         1.0,
		URLPenalty:           20.0,
		URLWithoutTLDPenalty: 1.0,
		MaxDocsConsidered:    250_000,
		RecallStageTopN:      1000,
	}
}

// SearchQuery is the parsed, ready-to-execute query.
type SearchQuery struct {
	Terms               []Term
	Page                int // 0-based
	NumResults          int // default 20
	Region              string
	Optic               *Optic
	HostRankings        *HostRankings
	ReturnRankingSignals bool
	SafeSearch          bool
	CountResults        bool
	ReturnBody          bool
	// QueryEmbedding is the caller-supplied embedding of the raw query
	// text, used for title/keyword embedding-similarity signals. Nil
	// disables those signals for this query.
	QueryEmbedding []float32
}

// DefaultSearchQuery returns a query with spec-mandated defaults.
func DefaultSearchQuery(raw string) SearchQuery {
	return SearchQuery{
		Terms:      ParseQuery(raw),
		NumResults: 20,
	}
}

// Offset returns the zero-based result offset implied by Page/NumResults.
func (q SearchQuery) Offset() int {
	if q.Page <= 0 {
		return 0
	}
	return q.Page * q.NumResults
}
