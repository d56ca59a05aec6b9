package dht

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/axiomhq/hyperloglog"
	"github.com/bits-and-blooms/bloom/v3"
	"github.com/stretchr/testify/require"

	"github.com/fathom-search/fathom/pkg/distributed"
	"github.com/fathom-search/fathom/pkg/rpc"
)

func TestShardForKeyIsStableAndBounded(t *testing.T) {
	for _, n := range []uint64{1, 4, 16} {
		s1 := ShardForKey("example.com", n)
		s2 := ShardForKey("example.com", n)
		require.Equal(t, s1, s2)
		require.Less(t, s1, n)
	}
}

func TestShardForKeyDistributesAcrossShards(t *testing.T) {
	seen := make(map[uint64]bool)
	for i := 0; i < 1000; i++ {
		key := time.Duration(i).String()
		seen[ShardForKey(key, 8)] = true
	}
	require.Greater(t, len(seen), 1)
}

func u64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func TestMergeU64AddIsCommutativeAndAssociative(t *testing.T) {
	a, b, c := u64Bytes(3), u64Bytes(5), u64Bytes(7)

	ab, err := Merge(MonoidU64Add, a, b)
	require.NoError(t, err)
	ba, err := Merge(MonoidU64Add, b, a)
	require.NoError(t, err)
	require.Equal(t, ab, ba)

	abThenC, err := Merge(MonoidU64Add, ab, c)
	require.NoError(t, err)
	bc, err := Merge(MonoidU64Add, b, c)
	require.NoError(t, err)
	aThenBC, err := Merge(MonoidU64Add, a, bc)
	require.NoError(t, err)
	require.Equal(t, abThenC, aThenBC)

	require.Equal(t, uint64(15), binary.LittleEndian.Uint64(abThenC))
}

func TestMergeU64MinTakesSmaller(t *testing.T) {
	out, err := Merge(MonoidU64Min, u64Bytes(9), u64Bytes(2))
	require.NoError(t, err)
	require.Equal(t, uint64(2), binary.LittleEndian.Uint64(out))
}

func TestKahanSumRoundTrips(t *testing.T) {
	acc := KahanSumValue(1.5)
	acc, err := Merge(MonoidKahanSumAdd, nil, acc)
	require.NoError(t, err)
	more, err := Merge(MonoidKahanSumAdd, acc, KahanSumValue(2.25))
	require.NoError(t, err)
	require.InDelta(t, 3.75, KahanSumResult(more), 1e-9)
}

func TestMergeHyperLogLogCombinesCardinality(t *testing.T) {
	skA := hyperloglog.New14()
	skA.Insert([]byte("a"))
	skA.Insert([]byte("b"))
	encA, err := skA.MarshalBinary()
	require.NoError(t, err)

	skB := hyperloglog.New14()
	skB.Insert([]byte("c"))
	encB, err := skB.MarshalBinary()
	require.NoError(t, err)

	merged, err := Merge(MonoidHyperLogLog, encA, encB)
	require.NoError(t, err)

	out := hyperloglog.New14()
	require.NoError(t, out.UnmarshalBinary(merged))
	require.InDelta(t, 3, float64(out.Estimate()), 1)
}

func TestMergeBloomFilterUnionsMembership(t *testing.T) {
	fA := bloom.NewWithEstimates(100, 0.01)
	fA.Add([]byte("x"))
	var bufA bytes.Buffer
	_, err := fA.WriteTo(&bufA)
	require.NoError(t, err)

	fB := bloom.NewWithEstimates(100, 0.01)
	fB.Add([]byte("y"))
	var bufB bytes.Buffer
	_, err = fB.WriteTo(&bufB)
	require.NoError(t, err)

	merged, err := Merge(MonoidBloomFilter, bufA.Bytes(), bufB.Bytes())
	require.NoError(t, err)

	out := &bloom.BloomFilter{}
	_, err = out.ReadFrom(bytes.NewReader(merged))
	require.NoError(t, err)
	require.True(t, out.Test([]byte("x")))
	require.True(t, out.Test([]byte("y")))
}

func TestNodeUpsertActionsReflectState(t *testing.T) {
	n := NewNode()
	require.NoError(t, n.CreateTable("counts", MonoidU64Add))

	action, err := n.Upsert("counts", "k", u64Bytes(1))
	require.NoError(t, err)
	require.Equal(t, UpsertInserted, action)

	action, err = n.Upsert("counts", "k", u64Bytes(2))
	require.NoError(t, err)
	require.Equal(t, UpsertMerged, action)

	value, present, err := n.Get("counts", "k")
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, uint64(3), binary.LittleEndian.Uint64(value))
}

func TestCreateTableRejectsMonoidMismatch(t *testing.T) {
	n := NewNode()
	require.NoError(t, n.CreateTable("t", MonoidU64Add))
	require.Error(t, n.CreateTable("t", MonoidU64Min))
}

func TestClientServerUpsertRoundTrip(t *testing.T) {
	node := NewNode()
	require.NoError(t, node.CreateTable("sums", MonoidF64Add))

	srv := rpc.NewServer("127.0.0.1:0", Handler{Node: node})
	go srv.ListenAndServe(context.Background())
	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, time.Millisecond)

	client := NewClient(1)
	client.SetShard(0, distributed.NewReplicatedClient(context.Background(), 0, []string{srv.Addr().String()}))

	f64 := func(v float64) []byte {
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
		return b
	}

	action, err := client.Upsert(context.Background(), "sums", "host-a", f64(1.5))
	require.NoError(t, err)
	require.Equal(t, rpc.UpsertInserted, action)

	action, err = client.Upsert(context.Background(), "sums", "host-a", f64(2.5))
	require.NoError(t, err)
	require.Equal(t, rpc.UpsertMerged, action)

	value, present, err := client.Get(context.Background(), "sums", "host-a")
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, 4.0, math.Float64frombits(binary.LittleEndian.Uint64(value)))
}
