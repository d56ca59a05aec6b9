package docset

import "sort"

// Intersection composes N DocSets into their AND. Construction sorts
// children by ascending SizeHint once; the rarest (first) child drives
// iteration and every other child is re-converged to it via a seek
// loop: advancing the rarest child minimizes the number of Seek calls
// against the more common children.
type Intersection struct {
	docsets []DocSet
	doc     uint32
}

// NewIntersection builds an Intersection over at least one DocSet and
// positions it at the first matching document (or Terminated if none
// intersect).
func NewIntersection(docsets []DocSet) *Intersection {
	cp := make([]DocSet, len(docsets))
	copy(cp, docsets)
	sort.Slice(cp, func(i, j int) bool { return cp[i].SizeHint() < cp[j].SizeHint() })

	it := &Intersection{docsets: cp}
	it.doc = it.goToFirstDoc()
	return it
}

// goToFirstDoc seeks every child forward from whatever it is currently
// positioned at until all children agree on the same document id, or
// one terminates.
func (it *Intersection) goToFirstDoc() uint32 {
	if len(it.docsets) == 0 {
		return Terminated
	}
	candidate := it.docsets[0].Doc()
	for {
		restarted := false
		for i := 1; i < len(it.docsets); i++ {
			d := it.docsets[i].Seek(candidate)
			if d == Terminated {
				return Terminated
			}
			if d != candidate {
				candidate = d
				// restart convergence from docset 0 against the new candidate
				d0 := it.docsets[0].Seek(candidate)
				if d0 == Terminated {
					return Terminated
				}
				candidate = d0
				restarted = true
				break
			}
		}
		if !restarted {
			return candidate
		}
	}
}

func (it *Intersection) Doc() uint32 { return it.doc }

func (it *Intersection) SizeHint() uint32 {
	if len(it.docsets) == 0 {
		return 0
	}
	return it.docsets[0].SizeHint()
}

// Advance advances the rarest docset, then re-converges the rest.
func (it *Intersection) Advance() uint32 {
	if len(it.docsets) == 0 || it.doc == Terminated {
		it.doc = Terminated
		return Terminated
	}
	candidate := it.docsets[0].Advance()
	if candidate == Terminated {
		it.doc = Terminated
		return Terminated
	}
	it.doc = it.converge(candidate)
	return it.doc
}

// Seek moves the rarest docset to target (or beyond) and re-converges.
func (it *Intersection) Seek(target uint32) uint32 {
	if len(it.docsets) == 0 {
		it.doc = Terminated
		return Terminated
	}
	candidate := it.docsets[0].Seek(target)
	if candidate == Terminated {
		it.doc = Terminated
		return Terminated
	}
	it.doc = it.converge(candidate)
	return it.doc
}

// converge re-seeks every non-rarest child against candidate, restarting
// from the rarest child whenever a mismatch moves the candidate forward.
func (it *Intersection) converge(candidate uint32) uint32 {
	for {
		restarted := false
		for i := 1; i < len(it.docsets); i++ {
			d := it.docsets[i].Seek(candidate)
			if d == Terminated {
				return Terminated
			}
			if d != candidate {
				d0 := it.docsets[0].Seek(d)
				if d0 == Terminated {
					return Terminated
				}
				candidate = d0
				restarted = true
				break
			}
		}
		if !restarted {
			return candidate
		}
	}
}

// Score sums every child's score for the current document, for children
// that implement Scorer.
func (it *Intersection) Score() float64 {
	var sum float64
	for _, d := range it.docsets {
		if s, ok := d.(Scorer); ok {
			sum += s.Score()
		}
	}
	return sum
}
