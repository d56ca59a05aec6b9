// Package column implements the per-segment fast-field (column) store:
// random-access arrays of primitive values keyed by DocID, loaded via
// memory mapping. This supplies every non-textual signal at scoring
// time.
package column

import (
	"encoding/binary"
	"fmt"

	mmap "github.com/blevesearch/mmap-go"
)

// DataType tags the primitive representation of one column.
type DataType int

const (
	TypeU64 DataType = iota
	TypeF64
	TypeBytes
)

// Field is the closed set of fast fields a segment may carry, one
// reader per field enum value per segment.
type Field int

const (
	FieldHostCentrality Field = iota
	FieldPageCentrality
	FieldHostCentralityRank
	FieldPageCentralityRank
	FieldIsHomepage
	FieldFetchTimeMs
	FieldUpdateTimestamp
	FieldTrackerScore
	FieldRegion
	FieldNumTokensTitle
	FieldNumTokensBody
	FieldSimhash
	FieldLikelyHasAds
	FieldLikelyHasPaywall
	FieldLinkDensity
	FieldTitleEmbedding
	FieldKeywordEmbedding
	FieldHostNodeID
	FieldPrecomputedScore
	FieldSchemaOrgJSON
	fieldCount
)

// NumFields is the size of the closed Field set.
const NumFields = int(fieldCount)

func (f Field) DataType() DataType {
	switch f {
	case FieldTitleEmbedding, FieldKeywordEmbedding, FieldSchemaOrgJSON:
		return TypeBytes
	case FieldTrackerScore, FieldLinkDensity, FieldPrecomputedScore:
		return TypeF64
	default:
		return TypeU64
	}
}

// FieldValue is the tagged union returned by a Reader lookup: exactly
// one of U64, F64, or bytes is populated, per typ.
type FieldValue struct {
	typ   DataType
	u64   uint64
	f64   float64
	bytes []byte
}

func U64Value(v uint64) FieldValue   { return FieldValue{typ: TypeU64, u64: v} }
func F64Value(v float64) FieldValue  { return FieldValue{typ: TypeF64, f64: v} }
func BytesValue(v []byte) FieldValue { return FieldValue{typ: TypeBytes, bytes: v} }

func (v FieldValue) AsU64() (uint64, bool) {
	if v.typ != TypeU64 {
		return 0, false
	}
	return v.u64, true
}

func (v FieldValue) AsF64() (float64, bool) {
	if v.typ != TypeF64 {
		return 0, false
	}
	return v.f64, true
}

func (v FieldValue) AsBytes() ([]byte, bool) {
	if v.typ != TypeBytes {
		return nil, false
	}
	return v.bytes, true
}

// u64Column is a fixed-width, mmap-backed array of little-endian u64s,
// one slot per DocID.
type u64Column struct {
	mmap mmap.MMap
}

func (c *u64Column) get(doc uint32) uint64 {
	off := int(doc) * 8
	if off+8 > len(c.mmap) {
		return 0
	}
	return binary.LittleEndian.Uint64(c.mmap[off : off+8])
}

func (c *u64Column) len() int { return len(c.mmap) / 8 }

// f64Column reinterprets the same backing layout as IEEE-754 doubles.
type f64Column struct {
	mmap mmap.MMap
}

func (c *f64Column) get(doc uint32) float64 {
	off := int(doc) * 8
	if off+8 > len(c.mmap) {
		return 0
	}
	bits := binary.LittleEndian.Uint64(c.mmap[off : off+8])
	return f64FromBits(bits)
}

// bytesColumn is a variable-length column: an offsets array (u64 per
// doc, exclusive end offset) followed by a concatenated data blob.
type bytesColumn struct {
	offsets mmap.MMap
	data    mmap.MMap
}

func (c *bytesColumn) get(doc uint32) []byte {
	n := len(c.offsets) / 8
	if int(doc) >= n {
		return nil
	}
	end := binary.LittleEndian.Uint64(c.offsets[int(doc)*8 : int(doc)*8+8])
	var start uint64
	if doc > 0 {
		start = binary.LittleEndian.Uint64(c.offsets[int(doc-1)*8 : int(doc-1)*8+8])
	}
	if end > uint64(len(c.data)) || start > end {
		return nil
	}
	return c.data[start:end]
}

// Reader is the per-segment fast-field reader: one concrete column
// implementation per populated Field, built once when the segment is
// opened.
type Reader struct {
	u64Cols   map[Field]*u64Column
	f64Cols   map[Field]*f64Column
	byteCols  map[Field]*bytesColumn
	numDocs   uint32
}

// NewReader assembles a Reader from already-mmap'd column regions; used
// by pkg/segment.Open.
func NewReader(numDocs uint32) *Reader {
	return &Reader{
		u64Cols:  make(map[Field]*u64Column),
		f64Cols:  make(map[Field]*f64Column),
		byteCols: make(map[Field]*bytesColumn),
		numDocs:  numDocs,
	}
}

func (r *Reader) AddU64Column(f Field, m mmap.MMap) { r.u64Cols[f] = &u64Column{mmap: m} }
func (r *Reader) AddF64Column(f Field, m mmap.MMap) { r.f64Cols[f] = &f64Column{mmap: m} }
func (r *Reader) AddBytesColumn(f Field, offsets, data mmap.MMap) {
	r.byteCols[f] = &bytesColumn{offsets: offsets, data: data}
}

// U64 reads a u64 fast field for doc, or ok=false if the field is absent
// or doc is out of range.
func (r *Reader) U64(f Field, doc uint32) (uint64, bool) {
	c, ok := r.u64Cols[f]
	if !ok {
		return 0, false
	}
	if int(doc) >= c.len() {
		return 0, false
	}
	return c.get(doc), true
}

// F64 reads an f64 fast field for doc.
func (r *Reader) F64(f Field, doc uint32) (float64, bool) {
	c, ok := r.f64Cols[f]
	if !ok {
		return 0, false
	}
	return c.get(doc), true
}

// Bytes reads a variable-length fast field for doc.
func (r *Reader) Bytes(f Field, doc uint32) ([]byte, bool) {
	c, ok := r.byteCols[f]
	if !ok {
		return nil, false
	}
	v := c.get(doc)
	return v, v != nil
}

// Value dispatches on f's DataType to the typed accessor and wraps the
// result.
func (r *Reader) Value(f Field, doc uint32) (FieldValue, error) {
	switch f.DataType() {
	case TypeU64:
		v, ok := r.U64(f, doc)
		if !ok {
			return FieldValue{}, fmt.Errorf("column: no u64 value for field %d doc %d", f, doc)
		}
		return U64Value(v), nil
	case TypeF64:
		v, ok := r.F64(f, doc)
		if !ok {
			return FieldValue{}, fmt.Errorf("column: no f64 value for field %d doc %d", f, doc)
		}
		return F64Value(v), nil
	case TypeBytes:
		v, ok := r.Bytes(f, doc)
		if !ok {
			return FieldValue{}, fmt.Errorf("column: no bytes value for field %d doc %d", f, doc)
		}
		return BytesValue(v), nil
	default:
		return FieldValue{}, fmt.Errorf("column: unknown data type for field %d", f)
	}
}

// NumDocs is the number of documents this segment's columns cover.
func (r *Reader) NumDocs() uint32 { return r.numDocs }
