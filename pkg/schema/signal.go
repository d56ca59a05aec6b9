package schema

import "github.com/fxamacker/cbor/v2"

// Signal is the closed set of per-(query,document) scoring features a
// CoefficientTable weighs into a final recall-stage score.
type Signal int

const (
	SignalBm25F Signal = iota
	SignalBm25Title
	SignalBm25TitleBigrams
	SignalBm25TitleTrigrams
	SignalBm25CleanBody
	SignalBm25CleanBodyBigrams
	SignalBm25CleanBodyTrigrams
	SignalBm25StemmedTitle
	SignalBm25StemmedCleanBody
	SignalBm25AllBody
	SignalBm25Keywords
	SignalBm25BacklinkText

	SignalIdfSumURL
	SignalIdfSumSite
	SignalIdfSumDomain
	SignalIdfSumSiteNoTokenizer
	SignalIdfSumDomainNoTokenizer
	SignalIdfSumDomainIfHomepage
	SignalIdfSumTitleIfHomepage

	SignalHostCentrality
	SignalPageCentrality
	SignalHostCentralityRank
	SignalPageCentralityRank
	SignalIsHomepage
	SignalFetchTimeMs
	SignalUpdateTimestamp
	SignalTrackerScore
	SignalRegion

	SignalInboundSimilarity
	SignalQueryCentrality

	SignalLambdaMart
	SignalCrossEncoderSnippet
	SignalCrossEncoderTitle
	SignalTitleEmbeddingSimilarity
	SignalKeywordEmbeddingSimilarity

	SignalURLDigits
	SignalURLSlashes
	SignalLinkDensity
	SignalHasAds

	signalCount
)

// NumSignals is the size of the closed Signal set.
const NumSignals = int(signalCount)

// String returns the signal's config-file-friendly name, used as the
// key when a query asks for its raw ranking signals back.
func (s Signal) String() string {
	names := [...]string{
		"bm25f", "bm25_title", "bm25_title_bigrams", "bm25_title_trigrams",
		"bm25_clean_body", "bm25_clean_body_bigrams", "bm25_clean_body_trigrams",
		"bm25_stemmed_title", "bm25_stemmed_clean_body", "bm25_all_body",
		"bm25_keywords", "bm25_backlink_text",
		"idf_sum_url", "idf_sum_site", "idf_sum_domain", "idf_sum_site_no_tokenizer",
		"idf_sum_domain_no_tokenizer", "idf_sum_domain_if_homepage", "idf_sum_title_if_homepage",
		"host_centrality", "page_centrality", "host_centrality_rank", "page_centrality_rank",
		"is_homepage", "fetch_time_ms", "update_timestamp", "tracker_score", "region",
		"inbound_similarity", "query_centrality",
		"lambdamart", "cross_encoder_snippet", "cross_encoder_title",
		"title_embedding_similarity", "keyword_embedding_similarity",
		"url_digits", "url_slashes", "link_density", "has_ads",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown_signal"
}

// IsText reports whether this signal is a BM25/IDF text signal (these
// participate in n-gram dampening).
func (s Signal) IsText() bool {
	return s <= SignalIdfSumTitleIfHomepage
}

// DefaultCoefficient is the built-in weight for a signal before any
// optic override is applied.
func (s Signal) DefaultCoefficient() float64 {
	switch s {
	case SignalBm25F, SignalBm25AllBody:
		return 1.0
	case SignalBm25Title, SignalBm25CleanBody:
		return 1.2
	case SignalBm25TitleBigrams, SignalBm25CleanBodyBigrams:
		return 0.8
	case SignalBm25TitleTrigrams, SignalBm25CleanBodyTrigrams:
		return 0.6
	case SignalBm25StemmedTitle, SignalBm25StemmedCleanBody:
		return 0.5
	case SignalBm25Keywords:
		return 0.9
	case SignalBm25BacklinkText:
		return 0.7
	case SignalHostCentrality:
		return 3000.0
	case SignalPageCentrality:
		return 6000.0
	case SignalIsHomepage:
		return 0.1
	case SignalTrackerScore:
		return -10.0
	case SignalInboundSimilarity:
		return 500.0
	case SignalQueryCentrality:
		return 1500.0
	case SignalLambdaMart:
		return 1.0
	case SignalCrossEncoderSnippet:
		return 1000.0
	case SignalCrossEncoderTitle:
		return 500.0
	case SignalTitleEmbeddingSimilarity, SignalKeywordEmbeddingSimilarity:
		return 2000.0
	case SignalHasAds:
		return -20.0
	default:
		return 1.0
	}
}

// NgramDampening is the multiplicative penalty applied to each lower
// n-gram field's score per already-scored higher n-gram hit.
const NgramDampening = 0.4

// CoefficientTable maps every Signal to its effective coefficient; the
// zero value behaves as all-defaults.
type CoefficientTable struct {
	overrides map[Signal]float64
}

// NewCoefficientTable returns a table with only default coefficients.
func NewCoefficientTable() *CoefficientTable {
	return &CoefficientTable{overrides: make(map[Signal]float64)}
}

// MergeOverwrite applies optic-specified overrides on top of whatever is
// already present, matching SignalCoefficient::merge_overwrite.
func (t *CoefficientTable) MergeOverwrite(sig Signal, coeff float64) {
	if t.overrides == nil {
		t.overrides = make(map[Signal]float64)
	}
	t.overrides[sig] = coeff
}

// Get returns the effective coefficient: override if present, else the
// signal's compiled-in default.
func (t *CoefficientTable) Get(sig Signal) float64 {
	if t == nil {
		return sig.DefaultCoefficient()
	}
	if v, ok := t.overrides[sig]; ok {
		return v
	}
	return sig.DefaultCoefficient()
}

// MarshalCBOR implements cbor.Marshaler so a table's overrides survive
// the trip across an rpc envelope; the unexported map would otherwise
// be silently dropped by struct-tag-based encoding.
func (t *CoefficientTable) MarshalCBOR() ([]byte, error) {
	if t == nil {
		return cbor.Marshal(map[Signal]float64(nil))
	}
	return cbor.Marshal(t.overrides)
}

// UnmarshalCBOR implements cbor.Unmarshaler, the inverse of MarshalCBOR.
func (t *CoefficientTable) UnmarshalCBOR(data []byte) error {
	var overrides map[Signal]float64
	if err := cbor.Unmarshal(data, &overrides); err != nil {
		return err
	}
	t.overrides = overrides
	return nil
}
