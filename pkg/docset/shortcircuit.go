package docset

// ShortCircuit wraps a DocSet and terminates once MaxDocs hits have
// been emitted, bounding worst-case cost on very common terms (the
// optic-level max_docs_considered knob.1).
type ShortCircuit struct {
	sub     DocSet
	max     uint64
	emitted uint64
	done    bool
}

// NewShortCircuit wraps sub so that it yields at most maxDocs hits.
func NewShortCircuit(sub DocSet, maxDocs uint64) *ShortCircuit {
	sc := &ShortCircuit{sub: sub, max: maxDocs}
	if sub.Doc() != Terminated {
		sc.emitted = 1
	}
	if sc.max == 0 {
		sc.done = true
	}
	return sc
}

func (s *ShortCircuit) Doc() uint32 {
	if s.done {
		return Terminated
	}
	return s.sub.Doc()
}

func (s *ShortCircuit) Advance() uint32 {
	if s.done {
		return Terminated
	}
	d := s.sub.Advance()
	if d == Terminated {
		s.done = true
		return Terminated
	}
	s.emitted++
	if s.emitted > s.max {
		s.done = true
		return Terminated
	}
	return d
}

func (s *ShortCircuit) Seek(target uint32) uint32 {
	if s.done {
		return Terminated
	}
	d := s.sub.Seek(target)
	if d == Terminated {
		s.done = true
		return Terminated
	}
	s.emitted++
	if s.emitted > s.max {
		s.done = true
		return Terminated
	}
	return d
}

func (s *ShortCircuit) SizeHint() uint32 {
	hint := uint64(s.sub.SizeHint())
	if hint > s.max {
		return uint32(s.max)
	}
	return uint32(hint)
}
