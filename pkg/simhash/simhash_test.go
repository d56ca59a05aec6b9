package simhash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHammingDistance(t *testing.T) {
	require.Equal(t, 0, HammingDistance(0b1010, 0b1010))
	require.Equal(t, 1, HammingDistance(0b1010, 0b1011))
	require.Equal(t, 4, HammingDistance(0b1111, 0b0000))
}

func TestNearDupTable(t *testing.T) {
	table := NewTable()
	base := uint64(0x0000_0000_0000_0000)
	require.False(t, table.CheckAndAdd(base))

	closeFp := base ^ 0b111 // hamming distance 3
	require.True(t, table.IsDuplicate(closeFp))

	farFp := uint64(0x7F) // 7 bits differ in a 7-bit prefix
	require.False(t, table.IsDuplicate(farFp))
}

func TestFingerprintDeterministic(t *testing.T) {
	features := []string{"the quick", "quick brown", "brown fox"}
	a := Fingerprint(features)
	b := Fingerprint(features)
	require.Equal(t, a, b)
}

func TestFingerprintDifferentTextsDiffer(t *testing.T) {
	a := Fingerprint([]string{"the quick brown fox"})
	b := Fingerprint([]string{"a totally different sentence entirely"})
	require.NotEqual(t, a, b)
}
