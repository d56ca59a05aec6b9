package dht

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/axiomhq/hyperloglog"
	"github.com/bits-and-blooms/bloom/v3"
)

// MonoidKind names one of the closed set of DHT value types this
// package defines; a table declares one kind at CreateTable time and
// every value written to it must merge under that monoid.
type MonoidKind string

const (
	MonoidU64Add         MonoidKind = "u64_add"
	MonoidU64Min         MonoidKind = "u64_min"
	MonoidF64Add         MonoidKind = "f64_add"
	MonoidF32Add         MonoidKind = "f32_add"
	MonoidKahanSumAdd    MonoidKind = "kahan_sum_add"
	MonoidHyperLogLog    MonoidKind = "hyperloglog_merge"
	MonoidBloomFilter    MonoidKind = "bloom_filter_merge"
	// MonoidBoolOr backs the AMPC coordinator's per-round meta table:
	// any worker observing a change sets it true, and true dominates
	// under OR.
	MonoidBoolOr MonoidKind = "bool_or"
)

// Merge combines incoming into existing under kind's monoid and returns
// the new encoded value. existing is nil on first insert (the monoid's
// identity element). Merge must be associative and commutative: AMPC
// rounds rely on this for its eventual-convergence argument.
func Merge(kind MonoidKind, existing, incoming []byte) ([]byte, error) {
	switch kind {
	case MonoidU64Add:
		return mergeU64(existing, incoming, func(_ bool, a, b uint64) uint64 { return a + b }), nil
	case MonoidU64Min:
		return mergeU64(existing, incoming, minU64), nil
	case MonoidF64Add:
		return mergeF64(existing, incoming, func(a, b float64) float64 { return a + b }), nil
	case MonoidF32Add:
		return mergeF32(existing, incoming, func(a, b float32) float32 { return a + b }), nil
	case MonoidKahanSumAdd:
		return mergeKahan(existing, incoming), nil
	case MonoidHyperLogLog:
		return mergeHyperLogLog(existing, incoming)
	case MonoidBloomFilter:
		return mergeBloomFilter(existing, incoming)
	case MonoidBoolOr:
		return mergeBoolOr(existing, incoming), nil
	default:
		return nil, fmt.Errorf("dht: unknown monoid kind %q", kind)
	}
}

func mergeU64(existing, incoming []byte, combine func(aOk bool, a, b uint64) uint64) []byte {
	var a uint64
	aOk := len(existing) == 8
	if aOk {
		a = binary.LittleEndian.Uint64(existing)
	}
	b := binary.LittleEndian.Uint64(incoming)
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, combine(aOk, a, b))
	return out
}

// minU64 treats a absent (aOk false) as the min monoid's identity, not
// as a stored zero: a real zero must still win against any positive b.
func minU64(aOk bool, a, b uint64) uint64 {
	if !aOk {
		return b
	}
	if b < a {
		return b
	}
	return a
}

func mergeF64(existing, incoming []byte, combine func(a, b float64) float64) []byte {
	var a float64
	if len(existing) == 8 {
		a = math.Float64frombits(binary.LittleEndian.Uint64(existing))
	}
	b := math.Float64frombits(binary.LittleEndian.Uint64(incoming))
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, math.Float64bits(combine(a, b)))
	return out
}

func mergeF32(existing, incoming []byte, combine func(a, b float32) float32) []byte {
	var a float32
	if len(existing) == 4 {
		a = math.Float32frombits(binary.LittleEndian.Uint32(existing))
	}
	b := math.Float32frombits(binary.LittleEndian.Uint32(incoming))
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, math.Float32bits(combine(a, b)))
	return out
}

// mergeKahan combines (sum, compensation) pairs, each encoded as two
// little-endian float64s, by summing the two components independently,
// which is itself a commutative monoid. The merge computes no correction
// term of its own, and KahanSumValue writes a zero compensation, so the
// total that KahanSumResult reads out equals the plain float64 sum.
func mergeKahan(existing, incoming []byte) []byte {
	var aSum, aComp, bSum, bComp float64
	if len(existing) == 16 {
		aSum = math.Float64frombits(binary.LittleEndian.Uint64(existing[0:8]))
		aComp = math.Float64frombits(binary.LittleEndian.Uint64(existing[8:16]))
	}
	bSum = math.Float64frombits(binary.LittleEndian.Uint64(incoming[0:8]))
	bComp = math.Float64frombits(binary.LittleEndian.Uint64(incoming[8:16]))

	out := make([]byte, 16)
	binary.LittleEndian.PutUint64(out[0:8], math.Float64bits(aSum+bSum))
	binary.LittleEndian.PutUint64(out[8:16], math.Float64bits(aComp+bComp))
	return out
}

// KahanSumValue encodes a single Kahan-compensated addend, ready to
// merge under MonoidKahanSumAdd.
func KahanSumValue(x float64) []byte {
	out := make([]byte, 16)
	binary.LittleEndian.PutUint64(out[0:8], math.Float64bits(x))
	return out
}

// KahanSumResult decodes a merged Kahan-sum value into its corrected
// total.
func KahanSumResult(value []byte) float64 {
	if len(value) != 16 {
		return 0
	}
	sum := math.Float64frombits(binary.LittleEndian.Uint64(value[0:8]))
	comp := math.Float64frombits(binary.LittleEndian.Uint64(value[8:16]))
	return sum + comp
}

func mergeBoolOr(existing, incoming []byte) []byte {
	a := len(existing) == 1 && existing[0] != 0
	b := len(incoming) == 1 && incoming[0] != 0
	if a || b {
		return []byte{1}
	}
	return []byte{0}
}

func mergeHyperLogLog(existing, incoming []byte) ([]byte, error) {
	sk := hyperloglog.New14()
	if len(existing) > 0 {
		if err := sk.UnmarshalBinary(existing); err != nil {
			return nil, fmt.Errorf("dht: decode existing hyperloglog: %w", err)
		}
	}
	other := hyperloglog.New14()
	if err := other.UnmarshalBinary(incoming); err != nil {
		return nil, fmt.Errorf("dht: decode incoming hyperloglog: %w", err)
	}
	if err := sk.Merge(other); err != nil {
		return nil, fmt.Errorf("dht: merge hyperloglog: %w", err)
	}
	return sk.MarshalBinary()
}

func mergeBloomFilter(existing, incoming []byte) ([]byte, error) {
	other := &bloom.BloomFilter{}
	if _, err := other.ReadFrom(bytes.NewReader(incoming)); err != nil {
		return nil, fmt.Errorf("dht: decode incoming bloom filter: %w", err)
	}
	if len(existing) == 0 {
		var buf bytes.Buffer
		if _, err := other.WriteTo(&buf); err != nil {
			return nil, fmt.Errorf("dht: encode bloom filter: %w", err)
		}
		return buf.Bytes(), nil
	}

	current := &bloom.BloomFilter{}
	if _, err := current.ReadFrom(bytes.NewReader(existing)); err != nil {
		return nil, fmt.Errorf("dht: decode existing bloom filter: %w", err)
	}
	if err := current.Merge(other); err != nil {
		return nil, fmt.Errorf("dht: merge bloom filter: %w", err)
	}
	var buf bytes.Buffer
	if _, err := current.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("dht: encode merged bloom filter: %w", err)
	}
	return buf.Bytes(), nil
}
