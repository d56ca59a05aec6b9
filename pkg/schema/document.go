// Package schema defines the core data types shared across the index,
// ranking, and distributed-search layers: documents, terms, queries,
// signals, optics, and the pointer/webpage value types that travel
// between a shard's local searcher and the cluster coordinator.
package schema

import "time"

// DocID is a document id local to one shard's segment.
type DocID uint32

// ShardID identifies a horizontal partition of the index.
type ShardID uint64

// FieldID identifies one of the closed set of indexed text or fast
// fields. New fields are appended; existing values are never reordered
// since they are persisted in segment metadata.
type FieldID uint8

const (
	FieldTitle FieldID = iota
	FieldTitleBigram
	FieldTitleTrigram
	FieldStemmedTitle
	FieldCleanBody
	FieldCleanBodyBigram
	FieldCleanBodyTrigram
	FieldStemmedCleanBody
	FieldAllBody
	FieldURL
	FieldSite
	FieldSiteNoTokenizer
	FieldDomain
	FieldDomainNoTokenizer
	FieldBacklinkText
	FieldKeywords
	fieldCount
)

// NumTextFields is the size of the closed text-field set.
const NumTextFields = int(fieldCount)

func (f FieldID) String() string {
	names := [...]string{
		"title", "title_bigram", "title_trigram", "stemmed_title",
		"clean_body", "clean_body_bigram", "clean_body_trigram", "stemmed_clean_body",
		"all_body", "url", "site", "site_no_tokenizer", "domain", "domain_no_tokenizer",
		"backlink_text", "keywords",
	}
	if int(f) < len(names) {
		return names[f]
	}
	return "unknown_field"
}

// Document is an indexed page as it exists prior to segment construction.
// Invariant: belongs to exactly one shard (assigned by the offline
// indexer before the document reaches this module's write path).
type Document struct {
	ID     DocID
	Shard  ShardID
	Fields [NumTextFields]string // raw text per field; bigram/trigram/stemmed variants are derived at write time from their monogram sibling

	URL            string
	Site           string
	Domain         string

	HostCentrality       float64
	PageCentrality       float64
	HostCentralityRank   uint64
	PageCentralityRank   uint64
	IsHomepage           bool
	FetchTimeMs          uint64
	LastUpdated          time.Time
	TrackerScore         float64
	Region               string
	LinkDensity          float64
	LikelyHasAds         bool
	LikelyHasPaywall     bool
	HostNodeID           uint64
	PrecomputedScore     float64
	TitleEmbedding       []byte
	KeywordEmbedding     []byte
	SchemaOrgJSON        []byte

	// NumTokens[f] must equal the number of tokens actually indexed for
	// Fields[f] (spec invariant).
	NumTokens [NumTextFields]uint32

	Simhash uint64
}

// RetrievedWebpage is the fully materialized body returned by phase 2.
type RetrievedWebpage struct {
	Pointer      WebsitePointer
	URL          string
	Title        string
	Snippet      string
	Body         string
	Site         string
	Domain       string
	SchemaOrg    []byte
}

// DisplayedWebpage is the external result shape; pointers never cross
// the cluster boundary.
type DisplayedWebpage struct {
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Snippet     string  `json:"snippet"`
	Site        string  `json:"site"`
	Score       float64 `json:"-"`
	RankingSignals map[string]float64 `json:"rankingSignals,omitempty"`
}
