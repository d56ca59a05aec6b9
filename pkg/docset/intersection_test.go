package docset

import (
	"testing"

	roaring "github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/require"
)

func bitmapDocSet(ids ...uint32) *PostingDocSet {
	bm := roaring.New()
	bm.AddMany(ids)
	return NewPostingDocSet(bm, nil)
}

func drain(t *testing.T, ds DocSet) []uint32 {
	t.Helper()
	var out []uint32
	for d := ds.Doc(); d != Terminated; d = ds.Advance() {
		out = append(out, d)
	}
	return out
}

func TestIntersectionCorrectness(t *testing.T) {
	a := bitmapDocSet(1, 2, 3, 5, 8, 13)
	b := bitmapDocSet(2, 3, 4, 8, 9)

	it := NewIntersection([]DocSet{a, b})
	require.Equal(t, []uint32{2, 3, 8}, drain(t, it))
}

func TestIntersectionEmptyWhenDisjoint(t *testing.T) {
	a := bitmapDocSet(1, 2, 3)
	b := bitmapDocSet(4, 5, 6)
	it := NewIntersection([]DocSet{a, b})
	require.Equal(t, Terminated, it.Doc())
}

func TestIntersectionThreeWay(t *testing.T) {
	a := bitmapDocSet(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	b := bitmapDocSet(2, 4, 6, 8, 10)
	c := bitmapDocSet(4, 8)
	it := NewIntersection([]DocSet{a, b, c})
	require.Equal(t, []uint32{4, 8}, drain(t, it))
}

func TestIntersectionSeek(t *testing.T) {
	a := bitmapDocSet(1, 5, 10, 15, 20)
	b := bitmapDocSet(1, 2, 5, 10, 20, 25)
	it := NewIntersection([]DocSet{a, b})
	require.Equal(t, uint32(1), it.Doc())
	require.Equal(t, uint32(10), it.Seek(6))
	require.Equal(t, uint32(20), it.Seek(16))
	require.Equal(t, Terminated, it.Seek(21))
}

func TestShortCircuitIsPrefix(t *testing.T) {
	full := bitmapDocSet(1, 2, 3, 4, 5, 6, 7)
	got := drain(t, NewShortCircuit(bitmapDocSet(1, 2, 3, 4, 5, 6, 7), 3))
	require.LessOrEqual(t, len(got), 3)

	var want []uint32
	for d := full.Doc(); d != Terminated && len(want) < len(got); d = full.Advance() {
		want = append(want, d)
	}
	require.Equal(t, want, got)
}

func TestUnionMerges(t *testing.T) {
	a := bitmapDocSet(1, 3, 5)
	b := bitmapDocSet(2, 3, 6)
	u := NewUnion([]DocSet{a, b})
	require.Equal(t, []uint32{1, 2, 3, 5, 6}, drain(t, u))
}

func TestBooleanMustNot(t *testing.T) {
	must := bitmapDocSet(1, 2, 3, 4, 5)
	not := bitmapDocSet(2, 4)
	b := NewBoolean([]Clause{{Occur: Must, DocSet: must}, {Occur: MustNot, DocSet: not}})
	require.Equal(t, []uint32{1, 3, 5}, drain(t, b))
}
