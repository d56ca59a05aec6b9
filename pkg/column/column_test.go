package column

import (
	"testing"

	mmap "github.com/blevesearch/mmap-go"
	"github.com/stretchr/testify/require"
)

func TestU64ColumnRoundTrip(t *testing.T) {
	b := NewBuilder(4)
	b.SetU64(FieldHostCentrality, 0, 10)
	b.SetU64(FieldHostCentrality, 2, 30)

	r := NewReader(4)
	r.AddU64Column(FieldHostCentrality, mmap.MMap(b.SerializeU64(FieldHostCentrality)))

	v, ok := r.U64(FieldHostCentrality, 0)
	require.True(t, ok)
	require.Equal(t, uint64(10), v)

	v, ok = r.U64(FieldHostCentrality, 2)
	require.True(t, ok)
	require.Equal(t, uint64(30), v)

	v, ok = r.U64(FieldHostCentrality, 1)
	require.True(t, ok)
	require.Equal(t, uint64(0), v)
}

func TestF64ColumnRoundTrip(t *testing.T) {
	b := NewBuilder(2)
	b.SetF64(FieldTrackerScore, 0, 0.5)
	b.SetF64(FieldTrackerScore, 1, -1.25)

	r := NewReader(2)
	r.AddF64Column(FieldTrackerScore, mmap.MMap(b.SerializeF64(FieldTrackerScore)))

	v, ok := r.F64(FieldTrackerScore, 1)
	require.True(t, ok)
	require.InDelta(t, -1.25, v, 1e-9)
}

func TestBytesColumnRoundTrip(t *testing.T) {
	b := NewBuilder(3)
	b.SetBytes(FieldTitleEmbedding, 0, []byte("abc"))
	b.SetBytes(FieldTitleEmbedding, 2, []byte("hello"))

	offsets, data := b.SerializeBytes(FieldTitleEmbedding)
	r := NewReader(3)
	r.AddBytesColumn(FieldTitleEmbedding, mmap.MMap(offsets), mmap.MMap(data))

	v, ok := r.Bytes(FieldTitleEmbedding, 0)
	require.True(t, ok)
	require.Equal(t, []byte("abc"), v)

	v, ok = r.Bytes(FieldTitleEmbedding, 2)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), v)
}
