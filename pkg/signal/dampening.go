package signal

import "github.com/fathom-search/fathom/pkg/schema"

// NgramLevel identifies which tokenized variant of a field a match came
// from, ordered from least to most specific.
type NgramLevel int

const (
	NgramMono NgramLevel = iota
	NgramBi
	NgramTri
)

// DampenedScore applies the n-gram dampening rule: the highest n-gram
// level that matched scores at full strength; each lower
// level's contribution is multiplied by NgramDampening raised to the
// number of higher-level hits already counted, so repeated partial
// overlaps don't out-score a single exact phrase match.
//
// hitsAtHigherLevels is the number of matches already counted at levels
// above the one being scored (e.g. trigram hits when scoring a bigram
// match).
func DampenedScore(raw float64, hitsAtHigherLevels int) float64 {
	if hitsAtHigherLevels <= 0 {
		return raw
	}
	factor := 1.0
	for i := 0; i < hitsAtHigherLevels; i++ {
		factor *= schema.NgramDampening
	}
	return raw * factor
}

// FieldTermScores accumulates per-level BM25F contributions for one
// field across a query's terms, then reduces them to a single dampened
// score via Reduce.
type FieldTermScores struct {
	Mono []float64
	Bi   []float64
	Tri  []float64
}

// Reduce combines the three n-gram levels into one score: trigram hits
// count at full strength, bigram hits are dampened by the number of
// trigram hits already counted, and monogram hits are dampened by the
// combined trigram+bigram hit count.
func (s FieldTermScores) Reduce() float64 {
	var total float64
	for _, v := range s.Tri {
		total += v
	}
	triHits := len(s.Tri)
	for _, v := range s.Bi {
		total += DampenedScore(v, triHits)
	}
	biTriHits := triHits + len(s.Bi)
	for _, v := range s.Mono {
		total += DampenedScore(v, biTriHits)
	}
	return total
}
