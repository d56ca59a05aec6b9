// Package simhash implements the 64-bit locality-sensitive fingerprint
// used for near-duplicate suppression, plus the
// hamming-distance-K bucket table the ranking pipeline uses to drop
// near-duplicate pages efficiently.
package simhash

import (
	"math/bits"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint computes a 64-bit simhash over a bag of features
// (typically shingled n-grams of the document body): each feature is
// hashed to 64 bits via xxhash, then every bit position's signed vote
// is accumulated across features; the final fingerprint has bit i set
// iff the accumulated vote for bit i is positive.
func Fingerprint(features []string) uint64 {
	var votes [64]int
	for _, f := range features {
		h := xxhash.Sum64String(f)
		for i := 0; i < 64; i++ {
			if h&(1<<uint(i)) != 0 {
				votes[i]++
			} else {
				votes[i]--
			}
		}
	}
	var out uint64
	for i := 0; i < 64; i++ {
		if votes[i] > 0 {
			out |= 1 << uint(i)
		}
	}
	return out
}

// HammingDistance returns the number of differing bits between a and b.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// NearDupThreshold is K in "hamming distance <= K counts as duplicate".
const NearDupThreshold = 3

// NumBlocks and BlockBits partition the 64-bit fingerprint into 4
// 16-bit blocks; a candidate within NearDupThreshold of a retained
// fingerprint must share at least one block exactly (pigeonhole:
// K=3 differing bits cannot touch all 4 blocks), which is what the
// bucket table below exploits to avoid a full O(n) scan per check.
const (
	NumBlocks = 4
	BlockBits = 16
)

func block(fp uint64, i int) uint16 {
	return uint16(fp >> uint(i*BlockBits))
}

// Table retains a set of fingerprints and answers "is fp a near-dup of
// anything retained so far" in roughly O(bucket size) rather than
// O(n), via per-block 16-bit-prefix buckets.
type Table struct {
	buckets [NumBlocks]map[uint16][]uint64
}

// NewTable returns an empty near-duplicate table.
func NewTable() *Table {
	t := &Table{}
	for i := range t.buckets {
		t.buckets[i] = make(map[uint16][]uint64)
	}
	return t
}

// IsDuplicate reports whether fp is within NearDupThreshold hamming
// distance of any fingerprint already in the table.
func (t *Table) IsDuplicate(fp uint64) bool {
	seen := make(map[uint64]bool)
	for i := 0; i < NumBlocks; i++ {
		b := block(fp, i)
		for _, cand := range t.buckets[i][b] {
			if seen[cand] {
				continue
			}
			seen[cand] = true
			if HammingDistance(fp, cand) <= NearDupThreshold {
				return true
			}
		}
	}
	return false
}

// Add retains fp in every block bucket.
func (t *Table) Add(fp uint64) {
	for i := 0; i < NumBlocks; i++ {
		b := block(fp, i)
		t.buckets[i][b] = append(t.buckets[i][b], fp)
	}
}

// CheckAndAdd is IsDuplicate followed by Add-if-not-duplicate, the
// common pipeline usage.
func (t *Table) CheckAndAdd(fp uint64) (isDup bool) {
	if t.IsDuplicate(fp) {
		return true
	}
	t.Add(fp)
	return false
}
