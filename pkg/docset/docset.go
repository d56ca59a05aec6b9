// Package docset implements posting-list iterators over sorted document
// ids: the DocSet interface and the boolean composition algorithms
// (Intersection, Union, ShortCircuit) that the inverted index segment
// uses to answer term/phrase/boolean queries.
package docset

import "math"

// Terminated is the sentinel DocID returned by Doc() once a DocSet is
// exhausted.
const Terminated uint32 = math.MaxUint32

// DocSet is an iterator over matching document ids in ascending order.
// Implementations must be monotonic: Doc() never decreases across calls
// to Advance/Seek.
type DocSet interface {
	// Doc returns the current document id, or Terminated if exhausted.
	Doc() uint32
	// Advance moves to the next matching document id and returns it.
	Advance() uint32
	// Seek moves forward to the first matching document id >= target and
	// returns it. target must be >= the current Doc().
	Seek(target uint32) uint32
	// SizeHint is an estimate (exact for simple postings) of the number
	// of remaining matches; used to order Intersection's children.
	SizeHint() uint32
}

// Scorer is implemented by a DocSet that can also produce a score for
// its current document.
type Scorer interface {
	DocSet
	Score() float64
}
