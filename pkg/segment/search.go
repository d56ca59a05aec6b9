package segment

import (
	"context"
	"encoding/binary"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/fathom-search/fathom/pkg/analysis"
	"github.com/fathom-search/fathom/pkg/column"
	"github.com/fathom-search/fathom/pkg/docset"
	"github.com/fathom-search/fathom/pkg/pipeline"
	"github.com/fathom-search/fathom/pkg/schema"
	"github.com/fathom-search/fathom/pkg/signal"
)

// bodyStoreKey encodes a (segment ordinal, DocID) pair as a big-endian
// key so a single per-shard body store can hold bodies from every
// segment the shard has ever committed without DocID collisions (DocID
// is only unique within one segment).
func bodyStoreKey(segmentOrd uint32, doc schema.DocID) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint32(key[0:4], segmentOrd)
	binary.BigEndian.PutUint32(key[4:8], uint32(doc))
	return key
}

// StoredBody is the raw text a Writer.Commit caller persists alongside
// a segment, keyed by bodyStoreKey(segment ordinal, DocID) in an
// internal/store.KV at
// shardRoot/bodies.db, fetched back by Retrieve for phase 2. Splitting
// raw text from the segment itself keeps the segment's own files
// read-only and memory-mappable: the body store is the only piece of a
// committed segment ever opened for random-access reads by id.
type StoredBody struct {
	URL       string
	Title     string
	Snippet   string
	Body      string
	Site      string
	Domain    string
	SchemaOrg []byte
}

// EncodeBody cbor-encodes a StoredBody for storage, used by Writer.Commit.
func EncodeBody(b StoredBody) ([]byte, error) { return cbor.Marshal(b) }

// BodyStore is the interface Retrieve and Writer.Commit need from
// internal/store.KV, kept narrow so this package does not import
// internal/store directly.
type BodyStore interface {
	Get(ctx context.Context, key []byte) ([]byte, bool, error)
	Set(ctx context.Context, key, value []byte) error
}

// snippetLength bounds how much of a document's body is kept as its
// search-result snippet.
const snippetLength = 280

func snippetOf(body string) string {
	if len(body) <= snippetLength {
		return body
	}
	return body[:snippetLength]
}

// matchTerm builds the scored DocSet for a single query term, unioning
// across every field the term kind targets.
func (s *Segment) matchTerm(t schema.Term) docset.DocSet {
	switch t.Kind {
	case schema.TermSimple:
		return s.unionFields(string(t.Simple), schema.FieldTitle, schema.FieldCleanBody, schema.FieldAllBody, schema.FieldKeywords)
	case schema.TermTitle:
		return s.unionFields(t.Title, schema.FieldTitle)
	case schema.TermBody:
		return s.unionFields(t.Body, schema.FieldCleanBody)
	case schema.TermSite:
		return s.TermQuery(schema.FieldSiteNoTokenizer, []byte(t.Site))
	case schema.TermURL:
		return s.TermQuery(schema.FieldURL, []byte(t.URL))
	case schema.TermPhrase:
		terms := make([][]byte, 0, len(t.Phrase))
		for _, w := range t.Phrase {
			terms = append(terms, []byte(w))
		}
		return s.PhraseQuery(schema.FieldCleanBody, terms, 0)
	default:
		// LinksTo and PossibleBang need a backlink-graph lookup and a
		// bang-redirect table respectively, neither of which this
		// segment owns; they match nothing here.
		return emptyDocSet{}
	}
}

func (s *Segment) unionFields(term string, fields ...schema.FieldID) docset.DocSet {
	tokens := analysis.Tokenize(term)
	if len(tokens) == 0 {
		return emptyDocSet{}
	}
	var sets []docset.DocSet
	for _, f := range fields {
		for _, tok := range tokens {
			if ds := s.TermQuery(f, []byte(tok.Term)); ds.Doc() != docset.Terminated {
				sets = append(sets, ds)
			}
		}
	}
	if len(sets) == 0 {
		return emptyDocSet{}
	}
	return docset.NewUnion(sets)
}

// fieldScoreAt returns term's BM25 contribution to field at doc, and
// whether term occurs in field for that document at all, reusing
// TermQuery rather than re-deriving BM25 math per field.
func (s *Segment) fieldScoreAt(field schema.FieldID, term string, doc uint32) (float64, bool) {
	ds := s.TermQuery(field, []byte(term))
	if ds.Seek(doc) != doc {
		return 0, false
	}
	scorer, ok := ds.(docset.Scorer)
	if !ok {
		return 0, false
	}
	return scorer.Score(), true
}

// fieldTextScore sums a text's per-token BM25 contribution to one field
// at doc, optionally stemming first.
func (s *Segment) fieldTextScore(field schema.FieldID, text string, doc uint32, stemmed bool) float64 {
	tokens := analysis.Tokenize(text)
	if stemmed {
		tokens = analysis.Stem(tokens)
	}
	var total float64
	for _, tok := range tokens {
		if v, ok := s.fieldScoreAt(field, tok.Term, doc); ok {
			total += v
		}
	}
	return total
}

// addNgramGroup tokenizes text and scores its mono/bi/tri variants
// against the given field triple, accumulating into acc for a later
// FieldTermScores.Reduce.
func (s *Segment) addNgramGroup(acc *signal.FieldTermScores, mono, bi, tri schema.FieldID, text string, doc uint32) {
	tokens := analysis.Tokenize(text)
	if len(tokens) == 0 {
		return
	}
	for _, tok := range tokens {
		if v, ok := s.fieldScoreAt(mono, tok.Term, doc); ok {
			acc.Mono = append(acc.Mono, v)
		}
	}
	for _, tok := range analysis.NGrams(tokens, 2) {
		if v, ok := s.fieldScoreAt(bi, tok.Term, doc); ok {
			acc.Bi = append(acc.Bi, v)
		}
	}
	for _, tok := range analysis.NGrams(tokens, 3) {
		if v, ok := s.fieldScoreAt(tri, tok.Term, doc); ok {
			acc.Tri = append(acc.Tri, v)
		}
	}
}

// textSignals computes the per-field/per-n-gram BM25 and per-field idf
// sum signals for doc against terms, reducing each field's mono/bi/tri
// levels through FieldTermScores.Reduce so a single exact phrase match
// cannot be out-scored by its own overlapping partial matches.
func (s *Segment) textSignals(terms []schema.Term, doc uint32) map[schema.Signal]float64 {
	var title, body signal.FieldTermScores
	var stemmedTitle, stemmedBody, allBody, keywords, backlink float64
	var idfURL, idfSite, idfSiteNoTokenizer float64

	for _, t := range terms {
		switch t.Kind {
		case schema.TermSimple:
			text := string(t.Simple)
			s.addNgramGroup(&title, schema.FieldTitle, schema.FieldTitleBigram, schema.FieldTitleTrigram, text, doc)
			s.addNgramGroup(&body, schema.FieldCleanBody, schema.FieldCleanBodyBigram, schema.FieldCleanBodyTrigram, text, doc)
			stemmedTitle += s.fieldTextScore(schema.FieldStemmedTitle, text, doc, true)
			stemmedBody += s.fieldTextScore(schema.FieldStemmedCleanBody, text, doc, true)
			allBody += s.fieldTextScore(schema.FieldAllBody, text, doc, false)
			keywords += s.fieldTextScore(schema.FieldKeywords, text, doc, false)
			backlink += s.fieldTextScore(schema.FieldBacklinkText, text, doc, false)
		case schema.TermTitle:
			s.addNgramGroup(&title, schema.FieldTitle, schema.FieldTitleBigram, schema.FieldTitleTrigram, t.Title, doc)
			stemmedTitle += s.fieldTextScore(schema.FieldStemmedTitle, t.Title, doc, true)
		case schema.TermBody:
			s.addNgramGroup(&body, schema.FieldCleanBody, schema.FieldCleanBodyBigram, schema.FieldCleanBodyTrigram, t.Body, doc)
			stemmedBody += s.fieldTextScore(schema.FieldStemmedCleanBody, t.Body, doc, true)
		case schema.TermPhrase:
			text := strings.Join(t.Phrase, " ")
			s.addNgramGroup(&body, schema.FieldCleanBody, schema.FieldCleanBodyBigram, schema.FieldCleanBodyTrigram, text, doc)
		case schema.TermURL:
			for _, tok := range analysis.Tokenize(t.URL) {
				idfURL += s.TermIDF(schema.FieldURL, []byte(tok.Term))
			}
		case schema.TermSite:
			for _, tok := range analysis.Tokenize(t.Site) {
				idfSite += s.TermIDF(schema.FieldSite, []byte(tok.Term))
			}
			idfSiteNoTokenizer += s.TermIDF(schema.FieldSiteNoTokenizer, []byte(t.Site))
		}
	}

	out := make(map[schema.Signal]float64)
	if v := title.Reduce(); v != 0 {
		out[schema.SignalBm25Title] = v
	}
	if v := body.Reduce(); v != 0 {
		out[schema.SignalBm25CleanBody] = v
	}
	if stemmedTitle != 0 {
		out[schema.SignalBm25StemmedTitle] = stemmedTitle
	}
	if stemmedBody != 0 {
		out[schema.SignalBm25StemmedCleanBody] = stemmedBody
	}
	if allBody != 0 {
		out[schema.SignalBm25AllBody] = allBody
	}
	if keywords != 0 {
		out[schema.SignalBm25Keywords] = keywords
	}
	if backlink != 0 {
		out[schema.SignalBm25BacklinkText] = backlink
	}
	if idfURL != 0 {
		out[schema.SignalIdfSumURL] = idfURL
	}
	if idfSite != 0 {
		out[schema.SignalIdfSumSite] = idfSite
	}
	if idfSiteNoTokenizer != 0 {
		out[schema.SignalIdfSumSiteNoTokenizer] = idfSiteNoTokenizer
	}
	return out
}

// buildBoolean composes every query term into one Boolean docset:
// TermNot clauses become MustNot, everything else is a Must.
func (s *Segment) buildBoolean(terms []schema.Term) docset.DocSet {
	clauses := make([]docset.Clause, 0, len(terms))
	for _, t := range terms {
		if t.Kind == schema.TermNot {
			if t.Not == nil {
				continue
			}
			clauses = append(clauses, docset.Clause{Occur: docset.MustNot, DocSet: s.matchTerm(*t.Not)})
			continue
		}
		clauses = append(clauses, docset.Clause{Occur: docset.Must, DocSet: s.matchTerm(t)})
	}
	if len(clauses) == 0 {
		return emptyDocSet{}
	}
	return docset.NewBoolean(clauses)
}

// Execute runs query against this segment: intersects every term's
// matching docset, scores each surviving document with computer, and
// returns up to collector.MaxDocsConsidered candidates as this shard's
// phase-1 contribution.
func (s *Segment) Execute(ctx context.Context, shard schema.ShardID, segmentOrd uint32, query schema.SearchQuery, collector schema.CollectorConfig, computer *signal.Computer, coeffs *schema.CoefficientTable) schema.InitialWebsiteResult {
	// Every segment has its own column reader; copy computer per call and
	// point the copy at this segment's columns rather than mutating the
	// shared *signal.Computer a Shard hands to every segment's Execute.
	local := *computer
	local.Columns = s.Columns()
	computer = &local

	core := s.buildBoolean(query.Terms)
	bounded := docset.NewShortCircuit(core, collector.MaxDocsConsidered)

	qctx := signal.QueryContext{RawQuery: "", QueryEmbedding: query.QueryEmbedding}
	if query.HostRankings != nil {
		qctx.LikedHosts = make(map[string]bool, len(query.HostRankings.Liked))
		for _, h := range query.HostRankings.Liked {
			qctx.LikedHosts[h] = true
		}
	}

	var out []schema.RecallRankingWebpage
	for d := bounded.Doc(); d != docset.Terminated; d = bounded.Advance() {
		textScores := s.textSignals(query.Terms, d)
		if scorer, ok := core.(docset.Scorer); ok {
			textScores[schema.SignalBm25F] = scorer.Score()
		}

		sigs := computer.Compute(ctx, d, qctx, textScores)

		fp, _ := s.Columns().U64(column.FieldSimhash, d)

		out = append(out, schema.RecallRankingWebpage{
			Pointer: schema.WebsitePointer{
				ShardID:    shard,
				SegmentOrd: segmentOrd,
				DocID:      schema.DocID(d),
				Hashes: schema.FingerprintBundle{
					SiteLevel: fp,
					PageLevel: fp,
				},
			},
			Signals: sigs,
		})
	}

	matched := len(out)
	hasMore := bounded.Doc() != docset.Terminated || uint64(matched) >= collector.MaxDocsConsidered

	ptrs := make([]*schema.RecallRankingWebpage, len(out))
	for i := range out {
		ptrs[i] = &out[i]
	}
	stageTopN := collector.RecallStageTopN
	if stageTopN <= 0 {
		stageTopN = matched
	}
	ranked, err := pipeline.NewRecallPipeline(computer.Similarity, computer.Model, coeffs, stageTopN).Run(ctx, ptrs)
	if err != nil {
		ranked = ptrs
	}

	final := make([]schema.RecallRankingWebpage, len(ranked))
	for i, p := range ranked {
		final[i] = *p
		final[i].Pointer.Score = final[i].Score
	}

	result := schema.InitialWebsiteResult{Websites: final, HasMore: hasMore}
	if query.CountResults {
		result.NumWebsites = &matched
	}
	return result
}

// Retrieve materializes the stored bodies for pointers, in order,
// skipping any id the body store no longer has (a compacted-away doc).
func Retrieve(ctx context.Context, bodies BodyStore, pointers []schema.WebsitePointer) ([]schema.RetrievedWebpage, error) {
	out := make([]schema.RetrievedWebpage, 0, len(pointers))
	for _, p := range pointers {
		raw, ok, err := bodies.Get(ctx, bodyStoreKey(p.SegmentOrd, p.DocID))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var b StoredBody
		if err := cbor.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		out = append(out, schema.RetrievedWebpage{
			Pointer:   p,
			URL:       b.URL,
			Title:     b.Title,
			Snippet:   b.Snippet,
			Body:      b.Body,
			Site:      b.Site,
			Domain:    b.Domain,
			SchemaOrg: b.SchemaOrg,
		})
	}
	return out, nil
}
