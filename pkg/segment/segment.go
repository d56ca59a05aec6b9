// Package segment implements an immutable, memory-mapped inverted-index
// segment: an FST term dictionary over a sorted term-byte-string space,
// posting lists with positions backed by roaring bitmaps, a column
// store for fast fields, and the BM25 scorer.
package segment

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	roaring "github.com/RoaringBitmap/roaring/v2"
	"github.com/blevesearch/vellum"
	"github.com/gofrs/flock"

	"github.com/fathom-search/fathom/pkg/column"
	"github.com/fathom-search/fathom/pkg/docset"
	"github.com/fathom-search/fathom/pkg/schema"
)

// termKey concatenates a FieldID with the term bytes; the FST keyspace
// is the union of every field's term space so a single dictionary
// serves all text fields.
func termKey(field schema.FieldID, term []byte) []byte {
	key := make([]byte, 1+len(term))
	key[0] = byte(field)
	copy(key[1:], term)
	return key
}

// postingEntry is what a term dictionary lookup resolves to: the
// document-id bitmap, per-document term frequency, and per-document
// term positions. Fieldnorm ids live per field on the Segment, not here.
type postingEntry struct {
	docs      *roaring.Bitmap
	termFreq  map[uint32]uint32
	positions map[uint32][]uint32 // Writer records positions for every field; nil disables PhraseQuery
}

// Segment is an opened, immutable inverted-index segment.
type Segment struct {
	dir string

	fst      *vellum.FST
	postings []postingEntry // indexed by the FST's associated output value

	columns *column.Reader
	numDocs uint32

	fieldNormTable [256]float64
	avgFieldNorm   map[schema.FieldID]float64
	fieldNormID    map[schema.FieldID]map[uint32]byte
	docFreq        map[schema.FieldID]map[string]uint32
	numDocsField   map[schema.FieldID]uint32
}

// CommitMetadataFile lists the committed segment ids for a shard root.
const CommitMetadataFile = "committed_segments.json"

// Open reads the term dictionary, postings and metadata of the segment
// at dir into memory and memory-maps its column files. Corrupt or
// missing files surface as an error, not a panic.
func Open(dir string) (*Segment, error) {
	lockPath := filepath.Join(dir, ".lock")
	fl := flock.New(lockPath)
	locked, err := fl.TryRLock()
	if err != nil {
		return nil, fmt.Errorf("segment: acquiring read lock: %w", err)
	}
	if locked {
		defer fl.Unlock()
	}

	fstBytes, err := os.ReadFile(filepath.Join(dir, "terms.fst"))
	if err != nil {
		return nil, fmt.Errorf("segment: open term dictionary: %w", err)
	}
	fst, err := vellum.Load(fstBytes)
	if err != nil {
		return nil, fmt.Errorf("segment: corrupt term dictionary: %w", err)
	}

	postingsBytes, err := os.ReadFile(filepath.Join(dir, "postings.bin"))
	if err != nil {
		return nil, fmt.Errorf("segment: open postings: %w", err)
	}
	postings, err := decodePostings(postingsBytes)
	if err != nil {
		return nil, fmt.Errorf("segment: corrupt postings: %w", err)
	}

	meta, err := readMeta(dir)
	if err != nil {
		return nil, fmt.Errorf("segment: corrupt metadata: %w", err)
	}

	seg := &Segment{
		dir:          dir,
		fst:          fst,
		postings:     postings,
		numDocs:      meta.NumDocs,
		avgFieldNorm: meta.AvgFieldNorm,
		fieldNormID:  meta.FieldNormID,
		docFreq:      meta.DocFreq,
		numDocsField: meta.NumDocsField,
	}
	seg.fieldNormTable = buildFieldNormTable()

	cols, err := openColumns(dir, meta.NumDocs)
	if err != nil {
		return nil, fmt.Errorf("segment: corrupt column store: %w", err)
	}
	seg.columns = cols

	return seg, nil
}

// NumDocs is the number of live documents in this segment.
func (s *Segment) NumDocs() uint32 { return s.numDocs }

// Columns exposes the segment's fast-field reader.
func (s *Segment) Columns() *column.Reader { return s.columns }

// lookup resolves a (field, term) pair to its posting entry, or ok=false
// if the term is absent (an absent term is not an error — it is the
// empty posting list).
func (s *Segment) lookup(field schema.FieldID, term []byte) (postingEntry, bool) {
	v, exists, err := s.fst.Get(termKey(field, term))
	if err != nil || !exists {
		return postingEntry{}, false
	}
	if int(v) >= len(s.postings) {
		return postingEntry{}, false
	}
	return s.postings[v], true
}

// TermQuery returns a DocSet over the given field/term's posting list,
// scored by BM25.
func (s *Segment) TermQuery(field schema.FieldID, term []byte) docset.DocSet {
	entry, ok := s.lookup(field, term)
	if !ok {
		return emptyDocSet{}
	}
	n := s.numDocsField[field]
	df := s.docFreq[field][string(term)]
	idf := BM25IDF(n, df)
	avg := s.avgFieldNorm[field]
	norms := s.fieldNormID[field]
	table := s.fieldNormTable

	score := func(doc uint32) float64 {
		tf := entry.termFreq[doc]
		if tf == 0 {
			return 0
		}
		id := norms[doc]
		rawFieldNorm := table[id]
		normFactor := fieldNormFactor(rawFieldNorm, avg)
		return idf * bm25TermScore(tf, normFactor)
	}

	return docset.NewPostingDocSet(entry.docs, score)
}

// TermIDF returns term's BM25 idf within field, 0 if the term never
// occurs in the field anywhere in this segment. Unlike TermQuery this
// carries no per-document state, it exists for the IdfSum* signals,
// which sum idf over a query's matched terms independent of any one
// document's term frequency.
func (s *Segment) TermIDF(field schema.FieldID, term []byte) float64 {
	if _, ok := s.lookup(field, term); !ok {
		return 0
	}
	return BM25IDF(s.numDocsField[field], s.docFreq[field][string(term)])
}

// PhraseQuery requires every term to carry positions and checks that
// consecutive query terms occur at consecutive positions (slop=0),
// which is the default; slop>0 widens the allowed gap between
// consecutive term positions.
func (s *Segment) PhraseQuery(field schema.FieldID, terms [][]byte, slop int) docset.DocSet {
	entries := make([]postingEntry, 0, len(terms))
	for _, t := range terms {
		e, ok := s.lookup(field, t)
		if !ok {
			return emptyDocSet{}
		}
		if e.positions == nil {
			return emptyDocSet{}
		}
		entries = append(entries, e)
	}
	sets := make([]docset.DocSet, len(entries))
	for i, e := range entries {
		sets[i] = docset.NewPostingDocSet(e.docs, nil)
	}
	inter := docset.NewIntersection(sets)
	p := &phraseDocSet{inner: inter, entries: entries, slop: slop}
	p.advanceToMatch(inter.Doc())
	return p
}

type phraseDocSet struct {
	inner   *docset.Intersection
	entries []postingEntry
	slop    int
	doc     uint32
}

func (p *phraseDocSet) matches(doc uint32) bool {
	first := p.entries[0].positions[doc]
	for _, pos0 := range first {
		ok := true
		for i := 1; i < len(p.entries); i++ {
			if !hasPositionNear(p.entries[i].positions[doc], pos0+uint32(i), p.slop) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func hasPositionNear(positions []uint32, target uint32, slop int) bool {
	for _, p := range positions {
		diff := int(p) - int(target)
		if diff < 0 {
			diff = -diff
		}
		if diff <= slop {
			return true
		}
	}
	return false
}

func (p *phraseDocSet) advanceToMatch(d uint32) uint32 {
	for d != docset.Terminated {
		if p.matches(d) {
			p.doc = d
			return d
		}
		d = p.inner.Advance()
	}
	p.doc = docset.Terminated
	return docset.Terminated
}

func (p *phraseDocSet) Doc() uint32 { return p.doc }
func (p *phraseDocSet) SizeHint() uint32   { return p.inner.SizeHint() }
func (p *phraseDocSet) Advance() uint32    { return p.advanceToMatch(p.inner.Advance()) }
func (p *phraseDocSet) Seek(t uint32) uint32 { return p.advanceToMatch(p.inner.Seek(t)) }

type emptyDocSet struct{}

func (emptyDocSet) Doc() uint32        { return docset.Terminated }
func (emptyDocSet) Advance() uint32    { return docset.Terminated }
func (emptyDocSet) Seek(uint32) uint32 { return docset.Terminated }
func (emptyDocSet) SizeHint() uint32   { return 0 }

func decodePostings(b []byte) ([]postingEntry, error) {
	return decodePostingsV1(b)
}

func encodePostings(entries []postingEntry) []byte {
	return encodePostingsV1(entries)
}

var _ = binary.LittleEndian
