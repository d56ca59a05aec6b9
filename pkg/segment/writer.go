package segment

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	roaring "github.com/RoaringBitmap/roaring/v2"
	"github.com/blevesearch/vellum"
	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/fathom-search/fathom/pkg/analysis"
	"github.com/fathom-search/fathom/pkg/column"
	"github.com/fathom-search/fathom/pkg/schema"
)

// ngramSiblings lists the monogram fields that have bigram/trigram/
// stemmed siblings, mapping monogram -> {bigram, trigram, stemmed}.
var ngramSiblings = map[schema.FieldID]struct {
	Bigram, Trigram, Stemmed schema.FieldID
}{
	schema.FieldTitle:     {schema.FieldTitleBigram, schema.FieldTitleTrigram, schema.FieldStemmedTitle},
	schema.FieldCleanBody: {schema.FieldCleanBodyBigram, schema.FieldCleanBodyTrigram, schema.FieldStemmedCleanBody},
}

// Writer builds an immutable segment from a batch of documents. Commit
// is atomic: files are written to a staging directory, then the commit
// lock is taken and the staging directory is renamed into place and
// added to the shard's committed-segment list.
type Writer struct {
	shardRoot string
	docs      []schema.Document
	bodies    BodyStore
}

// NewWriter returns a Writer that will commit into shardRoot/segments.
// bodies may be nil, in which case Commit builds the segment but stores
// no retrievable body text for it (useful for tests that only exercise
// recall-stage scoring).
func NewWriter(shardRoot string, bodies BodyStore) *Writer {
	return &Writer{shardRoot: shardRoot, bodies: bodies}
}

// Add stages a document for the next Commit.
func (w *Writer) Add(doc schema.Document) { w.docs = append(w.docs, doc) }

// termAccum accumulates per-term statistics while scanning documents.
type termAccum struct {
	docs      *roaring.Bitmap
	termFreq  map[uint32]uint32
	positions map[uint32][]uint32
}

// Commit writes the staged documents as one new immutable segment and
// registers it in the shard's commit metadata, guarded by a flock so
// concurrent writers cannot corrupt the committed-segment list.
func (w *Writer) Commit() (string, error) {
	segID := uuid.NewString()
	stageDir := filepath.Join(w.shardRoot, "segments", segID+".staging")
	finalDir := filepath.Join(w.shardRoot, "segments", segID)

	if err := os.MkdirAll(filepath.Join(stageDir, "columns"), 0o755); err != nil {
		return "", err
	}

	terms := make(map[schema.FieldID]map[string]*termAccum)
	fieldNormID := make(map[schema.FieldID]map[uint32]byte)
	docFreq := make(map[schema.FieldID]map[string]uint32)
	numDocsField := make(map[schema.FieldID]uint32)
	sumFieldNorm := make(map[schema.FieldID]float64)

	colBuilder := column.NewBuilder(len(w.docs))

	for localDoc, doc := range w.docs {
		d := uint32(localDoc)
		w.indexFieldVariants(d, doc, terms, fieldNormID, docFreq, numDocsField, sumFieldNorm)
		w.writeDocColumns(colBuilder, d, doc)
	}

	avgFieldNorm := make(map[schema.FieldID]float64)
	for f, sum := range sumFieldNorm {
		if n := numDocsField[f]; n > 0 {
			avgFieldNorm[f] = sum / float64(n)
		}
	}

	postings, fstBytes, err := buildFST(terms)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(filepath.Join(stageDir, "terms.fst"), fstBytes, 0o644); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(stageDir, "postings.bin"), encodePostings(postings), 0o644); err != nil {
		return "", err
	}
	if err := writeColumnFiles(stageDir, colBuilder); err != nil {
		return "", err
	}

	meta := &metaFile{
		ID:           segID,
		NumDocs:      uint32(len(w.docs)),
		AvgFieldNorm: avgFieldNorm,
		FieldNormID:  fieldNormID,
		DocFreq:      docFreq,
		NumDocsField: numDocsField,
	}
	if err := writeMeta(stageDir, meta); err != nil {
		return "", err
	}

	lockPath := filepath.Join(w.shardRoot, ".commit-lock")
	if err := os.MkdirAll(w.shardRoot, 0o755); err != nil {
		return "", err
	}
	fl := flock.New(lockPath)
	if err := fl.Lock(); err != nil {
		return "", fmt.Errorf("segment writer: acquire commit lock: %w", err)
	}
	defer fl.Unlock()

	if err := os.Rename(stageDir, finalDir); err != nil {
		return "", err
	}

	cs, err := ReadCommitted(w.shardRoot)
	if err != nil {
		return "", err
	}
	// The new segment's ordinal is its position in the committed list,
	// which OpenShard reconstructs by opening SegmentIDs in order; this
	// assumes segments are never reordered or dropped from that list
	// without also rewriting their bodies under the new ordinal.
	segmentOrd := uint32(len(cs.SegmentIDs))
	if err := w.writeBodies(segmentOrd); err != nil {
		return "", err
	}

	cs.SegmentIDs = append(cs.SegmentIDs, segID)
	if err := WriteCommitted(w.shardRoot, cs); err != nil {
		return "", err
	}

	return segID, nil
}

// writeBodies persists each staged document's retrievable text into the
// shard's body store, keyed by (segmentOrd, local DocID) so Retrieve can
// find it from a WebsitePointer. A nil body store (tests that only
// exercise scoring) makes this a no-op.
func (w *Writer) writeBodies(segmentOrd uint32) error {
	if w.bodies == nil {
		return nil
	}
	ctx := context.Background()
	for localDoc, doc := range w.docs {
		body := doc.Fields[schema.FieldCleanBody]
		sb := StoredBody{
			URL:       doc.URL,
			Title:     doc.Fields[schema.FieldTitle],
			Snippet:   snippetOf(body),
			Body:      body,
			Site:      doc.Site,
			Domain:    doc.Domain,
			SchemaOrg: doc.SchemaOrgJSON,
		}
		raw, err := EncodeBody(sb)
		if err != nil {
			return fmt.Errorf("segment writer: encode body for doc %d: %w", localDoc, err)
		}
		key := bodyStoreKey(segmentOrd, schema.DocID(localDoc))
		if err := w.bodies.Set(ctx, key, raw); err != nil {
			return fmt.Errorf("segment writer: store body for doc %d: %w", localDoc, err)
		}
	}
	return nil
}

func (w *Writer) indexFieldVariants(
	d uint32, doc schema.Document,
	terms map[schema.FieldID]map[string]*termAccum,
	fieldNormID map[schema.FieldID]map[uint32]byte,
	docFreq map[schema.FieldID]map[string]uint32,
	numDocsField map[schema.FieldID]uint32,
	sumFieldNorm map[schema.FieldID]float64,
) {
	for f := 0; f < schema.NumTextFields; f++ {
		field := schema.FieldID(f)
		text := doc.Fields[f]
		if text == "" {
			continue
		}
		tokens := analysis.Tokenize(text)
		indexTokens(terms, fieldNormID, docFreq, numDocsField, sumFieldNorm, field, d, tokens)

		sib, ok := ngramSiblings[field]
		if !ok {
			continue
		}
		bigrams := analysis.NGrams(tokens, 2)
		indexTokens(terms, fieldNormID, docFreq, numDocsField, sumFieldNorm, sib.Bigram, d, bigrams)
		trigrams := analysis.NGrams(tokens, 3)
		indexTokens(terms, fieldNormID, docFreq, numDocsField, sumFieldNorm, sib.Trigram, d, trigrams)
		stemmed := analysis.Stem(tokens)
		indexTokens(terms, fieldNormID, docFreq, numDocsField, sumFieldNorm, sib.Stemmed, d, stemmed)
	}
}

func indexTokens(
	terms map[schema.FieldID]map[string]*termAccum,
	fieldNormID map[schema.FieldID]map[uint32]byte,
	docFreq map[schema.FieldID]map[string]uint32,
	numDocsField map[schema.FieldID]uint32,
	sumFieldNorm map[schema.FieldID]float64,
	field schema.FieldID, doc uint32, tokens []analysis.Token,
) {
	if len(tokens) == 0 {
		return
	}
	if terms[field] == nil {
		terms[field] = make(map[string]*termAccum)
		fieldNormID[field] = make(map[uint32]byte)
		docFreq[field] = make(map[string]uint32)
	}

	seen := make(map[string]bool)
	for _, t := range tokens {
		acc := terms[field][t.Term]
		if acc == nil {
			acc = &termAccum{docs: roaring.New(), termFreq: make(map[uint32]uint32), positions: make(map[uint32][]uint32)}
			terms[field][t.Term] = acc
		}
		acc.docs.Add(doc)
		acc.termFreq[doc]++
		acc.positions[doc] = append(acc.positions[doc], uint32(t.Position))
		if !seen[t.Term] {
			seen[t.Term] = true
			docFreq[field][t.Term]++
		}
	}
	numDocsField[field]++
	sumFieldNorm[field] += float64(len(tokens))
	fieldNormID[field][doc] = fieldNormToID(uint32(len(tokens)))
}

func (w *Writer) writeDocColumns(b *column.Builder, d uint32, doc schema.Document) {
	b.SetU64(column.FieldHostCentralityRank, d, doc.HostCentralityRank)
	b.SetU64(column.FieldPageCentralityRank, d, doc.PageCentralityRank)
	b.SetU64(column.FieldFetchTimeMs, d, doc.FetchTimeMs)
	b.SetU64(column.FieldUpdateTimestamp, d, uint64(doc.LastUpdated.Unix()))
	b.SetU64(column.FieldHostNodeID, d, doc.HostNodeID)
	b.SetU64(column.FieldSimhash, d, doc.Simhash)
	b.SetU64(column.FieldNumTokensTitle, d, uint64(doc.NumTokens[schema.FieldTitle]))
	b.SetU64(column.FieldNumTokensBody, d, uint64(doc.NumTokens[schema.FieldCleanBody]))
	b.SetU64(column.FieldIsHomepage, d, boolToU64(doc.IsHomepage))
	b.SetU64(column.FieldLikelyHasAds, d, boolToU64(doc.LikelyHasAds))
	b.SetU64(column.FieldLikelyHasPaywall, d, boolToU64(doc.LikelyHasPaywall))

	b.SetF64(column.FieldHostCentrality, d, doc.HostCentrality)
	b.SetF64(column.FieldPageCentrality, d, doc.PageCentrality)
	b.SetF64(column.FieldTrackerScore, d, doc.TrackerScore)
	b.SetF64(column.FieldLinkDensity, d, doc.LinkDensity)
	b.SetF64(column.FieldPrecomputedScore, d, doc.PrecomputedScore)

	b.SetBytes(column.FieldTitleEmbedding, d, doc.TitleEmbedding)
	b.SetBytes(column.FieldKeywordEmbedding, d, doc.KeywordEmbedding)
	b.SetBytes(column.FieldSchemaOrgJSON, d, doc.SchemaOrgJSON)
}

func boolToU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func writeColumnFiles(dir string, b *column.Builder) error {
	for _, f := range b.Fields() {
		switch f.DataType() {
		case column.TypeU64:
			if err := os.WriteFile(columnPath(dir, f, "u64"), b.SerializeU64(f), 0o644); err != nil {
				return err
			}
		case column.TypeF64:
			if err := os.WriteFile(columnPath(dir, f, "f64"), b.SerializeF64(f), 0o644); err != nil {
				return err
			}
		case column.TypeBytes:
			offsets, data := b.SerializeBytes(f)
			if err := os.WriteFile(columnPath(dir, f, "bytes.offsets"), offsets, 0o644); err != nil {
				return err
			}
			if err := os.WriteFile(columnPath(dir, f, "bytes.data"), data, 0o644); err != nil {
				return err
			}
		}
	}
	return nil
}

// buildFST inserts every (field, term) key into a vellum FST in sorted
// order, associating each with the index of its postingEntry in the
// returned slice.
func buildFST(terms map[schema.FieldID]map[string]*termAccum) ([]postingEntry, []byte, error) {
	type kv struct {
		key   []byte
		entry postingEntry
	}
	var all []kv
	for field, byTerm := range terms {
		for term, acc := range byTerm {
			all = append(all, kv{
				key:   termKey(field, []byte(term)),
				entry: postingEntry{docs: acc.docs, termFreq: acc.termFreq, positions: acc.positions},
			})
		}
	}
	sort.Slice(all, func(i, j int) bool { return bytes.Compare(all[i].key, all[j].key) < 0 })

	var buf bytes.Buffer
	builder, err := vellum.New(&buf, nil)
	if err != nil {
		return nil, nil, err
	}

	postings := make([]postingEntry, len(all))
	for i, e := range all {
		if err := builder.Insert(e.key, uint64(i)); err != nil {
			return nil, nil, err
		}
		postings[i] = e.entry
	}
	if err := builder.Close(); err != nil {
		return nil, nil, err
	}
	return postings, buf.Bytes(), nil
}
