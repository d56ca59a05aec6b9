package docset

import roaring "github.com/RoaringBitmap/roaring/v2"

// PostingDocSet adapts a roaring.Bitmap's iterator to the DocSet
// interface; this is the concrete representation a term's posting list
// is stored as.
type PostingDocSet struct {
	it    roaring.IntPeekable
	bm    *roaring.Bitmap
	cur   uint32
	score func(doc uint32) float64
}

// NewPostingDocSet positions itself at the bitmap's first element.
func NewPostingDocSet(bm *roaring.Bitmap, score func(doc uint32) float64) *PostingDocSet {
	p := &PostingDocSet{bm: bm, it: bm.Iterator(), score: score}
	if p.it.HasNext() {
		p.cur = p.it.Next()
	} else {
		p.cur = Terminated
	}
	return p
}

func (p *PostingDocSet) Doc() uint32 { return p.cur }

func (p *PostingDocSet) SizeHint() uint32 {
	card := p.bm.GetCardinality()
	if card > uint64(Terminated) {
		return Terminated - 1
	}
	return uint32(card)
}

func (p *PostingDocSet) Advance() uint32 {
	if p.it.HasNext() {
		p.cur = p.it.Next()
	} else {
		p.cur = Terminated
	}
	return p.cur
}

func (p *PostingDocSet) Seek(target uint32) uint32 {
	if p.cur == Terminated || p.cur >= target {
		return p.cur
	}
	p.it.AdvanceIfNeeded(target)
	if p.it.HasNext() {
		p.cur = p.it.Next()
	} else {
		p.cur = Terminated
	}
	return p.cur
}

func (p *PostingDocSet) Score() float64 {
	if p.score == nil || p.cur == Terminated {
		return 0
	}
	return p.score(p.cur)
}
