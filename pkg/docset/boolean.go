package docset

// Occur discriminates a boolean clause's role.
type Occur int

const (
	Must Occur = iota
	Should
	MustNot
)

// Clause pairs a DocSet with its Occur role.
type Clause struct {
	Occur  Occur
	DocSet DocSet
}

// Boolean composes Must/Should/MustNot clauses: all Musts are
// intersected; when there are no Musts, the Shoulds are unioned; and
// MustNots exclude matches. When any Must exists, Should clauses are
// ignored: they neither filter nor contribute to the score.
type Boolean struct {
	core    DocSet
	exclude []DocSet
	doc     uint32
}

// NewBoolean builds the composed DocSet.1's `boolean`
// operation.
func NewBoolean(clauses []Clause) *Boolean {
	var musts, shoulds, mustNots []DocSet
	for _, c := range clauses {
		switch c.Occur {
		case Must:
			musts = append(musts, c.DocSet)
		case Should:
			shoulds = append(shoulds, c.DocSet)
		case MustNot:
			mustNots = append(mustNots, c.DocSet)
		}
	}

	var core DocSet
	switch {
	case len(musts) > 0:
		core = NewIntersection(musts)
	case len(shoulds) > 0:
		core = NewUnion(shoulds)
	default:
		core = emptyDocSet{}
	}

	b := &Boolean{core: core, exclude: mustNots}
	b.doc = b.skipExcluded(core.Doc())
	return b
}

func (b *Boolean) skipExcluded(candidate uint32) uint32 {
	for candidate != Terminated {
		excluded := false
		for _, ex := range b.exclude {
			if ex.Seek(candidate) == candidate {
				excluded = true
				break
			}
		}
		if !excluded {
			return candidate
		}
		candidate = b.core.Advance()
	}
	return Terminated
}

func (b *Boolean) Doc() uint32      { return b.doc }
func (b *Boolean) SizeHint() uint32 { return b.core.SizeHint() }

func (b *Boolean) Advance() uint32 {
	b.doc = b.skipExcluded(b.core.Advance())
	return b.doc
}

func (b *Boolean) Seek(target uint32) uint32 {
	b.doc = b.skipExcluded(b.core.Seek(target))
	return b.doc
}

func (b *Boolean) Score() float64 {
	if s, ok := b.core.(Scorer); ok {
		return s.Score()
	}
	return 0
}

type emptyDocSet struct{}

func (emptyDocSet) Doc() uint32        { return Terminated }
func (emptyDocSet) Advance() uint32    { return Terminated }
func (emptyDocSet) Seek(uint32) uint32 { return Terminated }
func (emptyDocSet) SizeHint() uint32   { return 0 }
