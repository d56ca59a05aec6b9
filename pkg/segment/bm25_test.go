package segment

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBM25Monotonicity(t *testing.T) {
	idf := BM25IDF(100, 10)
	normFactor := fieldNormFactor(50, 50)

	var prev float64
	for tf := uint32(1); tf <= 20; tf++ {
		score := idf * bm25TermScore(tf, normFactor)
		require.GreaterOrEqual(t, score, prev)
		prev = score
	}
}

func TestBM25IDFDecreasesWithDocFreq(t *testing.T) {
	rare := BM25IDF(1000, 1)
	common := BM25IDF(1000, 900)
	require.Greater(t, rare, common)
}

func TestFieldNormRoundTripApprox(t *testing.T) {
	for _, n := range []uint32{0, 1, 5, 15, 16, 32, 64, 128, 1000} {
		id := fieldNormToID(n)
		decoded := fieldNormFromID(id)
		if n < 16 {
			require.Equal(t, float64(n), decoded)
		} else {
			require.InEpsilon(t, float64(n)+1, decoded+1, 0.3)
		}
	}
}
