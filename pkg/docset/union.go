package docset

// Union composes N DocSets into their OR, emitting each distinct
// document id in ascending order. Scores of children matching the same
// document are summed, matching tantivy's disjunction scoring used for
// per-field term disjunction.
type Union struct {
	docsets []DocSet
	doc     uint32
}

// NewUnion builds a Union positioned at the smallest current Doc() among
// its children.
func NewUnion(docsets []DocSet) *Union {
	cp := make([]DocSet, len(docsets))
	copy(cp, docsets)
	u := &Union{docsets: cp}
	u.doc = u.minDoc()
	return u
}

func (u *Union) minDoc() uint32 {
	min := Terminated
	for _, d := range u.docsets {
		if cur := d.Doc(); cur < min {
			min = cur
		}
	}
	return min
}

func (u *Union) Doc() uint32 { return u.doc }

func (u *Union) SizeHint() uint32 {
	var total uint64
	for _, d := range u.docsets {
		total += uint64(d.SizeHint())
	}
	if total > uint64(Terminated) {
		return Terminated - 1
	}
	return uint32(total)
}

// Advance moves every child currently at u.doc forward, then returns the
// new minimum.
func (u *Union) Advance() uint32 {
	if u.doc == Terminated {
		return Terminated
	}
	for _, d := range u.docsets {
		if d.Doc() == u.doc {
			d.Advance()
		}
	}
	u.doc = u.minDoc()
	return u.doc
}

// Seek moves every child to at least target, then returns the minimum.
func (u *Union) Seek(target uint32) uint32 {
	for _, d := range u.docsets {
		if d.Doc() < target {
			d.Seek(target)
		}
	}
	u.doc = u.minDoc()
	return u.doc
}

// Score sums the score of every child currently positioned at u.doc.
func (u *Union) Score() float64 {
	var sum float64
	for _, d := range u.docsets {
		if d.Doc() != u.doc {
			continue
		}
		if s, ok := d.(Scorer); ok {
			sum += s.Score()
		}
	}
	return sum
}
