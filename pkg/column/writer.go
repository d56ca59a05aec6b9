package column

import (
	"encoding/binary"
	"math"
)

func f64FromBits(bits uint64) float64 { return math.Float64frombits(bits) }
func f64ToBits(v float64) uint64      { return math.Float64bits(v) }

// Builder accumulates column values in memory during segment writing,
// then serializes each populated field to its on-disk layout (a flat
// u64/f64 array, or an offsets+data pair for variable-length bytes).
type Builder struct {
	u64   map[Field][]uint64
	f64   map[Field][]float64
	bytes map[Field][][]byte
}

// NewBuilder returns an empty column builder. numDocs is not used: each
// column grows to the highest doc id set on it.
func NewBuilder(numDocs int) *Builder {
	return &Builder{
		u64:   make(map[Field][]uint64),
		f64:   make(map[Field][]float64),
		bytes: make(map[Field][][]byte),
	}
}

func (b *Builder) SetU64(f Field, doc uint32, v uint64) {
	col := b.u64[f]
	col = growU64(col, int(doc)+1)
	col[doc] = v
	b.u64[f] = col
}

func (b *Builder) SetF64(f Field, doc uint32, v float64) {
	col := b.f64[f]
	col = growF64(col, int(doc)+1)
	col[doc] = v
	b.f64[f] = col
}

func (b *Builder) SetBytes(f Field, doc uint32, v []byte) {
	col := b.bytes[f]
	for len(col) <= int(doc) {
		col = append(col, nil)
	}
	col[doc] = v
	b.bytes[f] = col
}

func growU64(s []uint64, n int) []uint64 {
	for len(s) < n {
		s = append(s, 0)
	}
	return s
}

func growF64(s []float64, n int) []float64 {
	for len(s) < n {
		s = append(s, 0)
	}
	return s
}

// SerializeU64 encodes a u64 column as little-endian bytes, one 8-byte
// slot per document.
func (b *Builder) SerializeU64(f Field) []byte {
	col := b.u64[f]
	out := make([]byte, len(col)*8)
	for i, v := range col {
		binary.LittleEndian.PutUint64(out[i*8:i*8+8], v)
	}
	return out
}

// SerializeF64 encodes an f64 column using the same flat layout as u64,
// reinterpreting bits.
func (b *Builder) SerializeF64(f Field) []byte {
	col := b.f64[f]
	out := make([]byte, len(col)*8)
	for i, v := range col {
		binary.LittleEndian.PutUint64(out[i*8:i*8+8], f64ToBits(v))
	}
	return out
}

// SerializeBytes encodes a variable-length column as (offsets, data).
func (b *Builder) SerializeBytes(f Field) (offsets, data []byte) {
	col := b.bytes[f]
	offsets = make([]byte, len(col)*8)
	var buf []byte
	var cum uint64
	for i, v := range col {
		buf = append(buf, v...)
		cum += uint64(len(v))
		binary.LittleEndian.PutUint64(offsets[i*8:i*8+8], cum)
	}
	return offsets, buf
}

// Fields reports every field this builder has at least one value for.
func (b *Builder) Fields() []Field {
	var out []Field
	for f := range b.u64 {
		out = append(out, f)
	}
	for f := range b.f64 {
		out = append(out, f)
	}
	for f := range b.bytes {
		out = append(out, f)
	}
	return out
}
