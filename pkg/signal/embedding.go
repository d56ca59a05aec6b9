package signal

import (
	"encoding/binary"
	"math"

	"github.com/coder/hnsw"
)

// CosineEmbeddingSimilarity implements EmbeddingSimilarity via a direct
// cosine comparison, used when a document's embedding is decoded
// on-the-fly rather than looked up through an index. Document
// embeddings are stored as little-endian float32 vectors.
type CosineEmbeddingSimilarity struct{}

func (CosineEmbeddingSimilarity) Similarity(query []float32, docBytes []byte) float64 {
	doc := decodeF32Vector(docBytes)
	if len(doc) == 0 || len(query) == 0 {
		return 0
	}
	n := len(query)
	if len(doc) < n {
		n = len(doc)
	}
	var dot, qn, dn float64
	for i := 0; i < n; i++ {
		q, d := float64(query[i]), float64(doc[i])
		dot += q * d
		qn += q * q
		dn += d * d
	}
	if qn == 0 || dn == 0 {
		return 0
	}
	return dot / (math.Sqrt(qn) * math.Sqrt(dn))
}

// EncodeF32Vector serializes a float32 vector as little-endian bytes, the
// encoding schema.Document.TitleEmbedding/KeywordEmbedding and
// column.FieldTitleEmbedding/FieldKeywordEmbedding expect.
func EncodeF32Vector(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:i*4+4], math.Float32bits(f))
	}
	return out
}

func decodeF32Vector(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(b[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// EmbeddingIndex wraps a coder/hnsw graph for approximate nearest
// neighbor lookups over title/keyword embeddings. Nothing in this module
// constructs one: ranking compares embeddings per document through
// CosineEmbeddingSimilarity.
type EmbeddingIndex struct {
	graph *hnsw.Graph[uint32]
}

// NewEmbeddingIndex constructs an empty index using cosine distance.
func NewEmbeddingIndex() *EmbeddingIndex {
	g := hnsw.NewGraph[uint32]()
	g.Distance = hnsw.CosineDistance
	return &EmbeddingIndex{graph: g}
}

// Add inserts a document's embedding keyed by DocID.
func (e *EmbeddingIndex) Add(doc uint32, vec []float32) {
	e.graph.Add(hnsw.MakeNode(doc, vec))
}

// Search returns the k nearest document ids to query.
func (e *EmbeddingIndex) Search(query []float32, k int) []uint32 {
	nodes := e.graph.Search(query, k)
	out := make([]uint32, len(nodes))
	for i, n := range nodes {
		out[i] = n.Key
	}
	return out
}
