package signal

import (
	"context"
	"math"
	"testing"

	mmap "github.com/blevesearch/mmap-go"
	"github.com/stretchr/testify/require"

	"github.com/fathom-search/fathom/pkg/column"
	"github.com/fathom-search/fathom/pkg/schema"
)

type fakeCentrality struct{ scores map[uint64]float64 }

func (f fakeCentrality) Get(ctx context.Context, id uint64) float64 { return f.scores[id] }

func u64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

func f64Bytes(f float64) []byte {
	return u64Bytes(math.Float64bits(f))
}

func TestComputerComputeBasicSignals(t *testing.T) {
	r := column.NewReader(2)
	r.AddU64Column(column.FieldIsHomepage, mmap.MMap(u64Bytes(1)))
	r.AddF64Column(column.FieldHostCentrality, mmap.MMap(f64Bytes(0.5)))
	r.AddU64Column(column.FieldHostNodeID, mmap.MMap(u64Bytes(7)))

	c := &Computer{
		Columns:    r,
		Centrality: fakeCentrality{scores: map[uint64]float64{7: 0.25}},
	}

	v := c.Compute(context.Background(), 0, QueryContext{LikedHosts: map[string]bool{"x.com": true}}, nil)
	require.Equal(t, 1.0, v[schema.SignalIsHomepage])
	require.InDelta(t, 0.5, v[schema.SignalHostCentrality], 1e-9)
	require.InDelta(t, 0.25, v[schema.SignalQueryCentrality], 1e-9)
}

func TestComputerNoLikedHostsSkipsQueryCentrality(t *testing.T) {
	r := column.NewReader(1)
	r.AddU64Column(column.FieldHostNodeID, mmap.MMap(u64Bytes(7)))
	c := &Computer{Columns: r, Centrality: fakeCentrality{scores: map[uint64]float64{7: 0.9}}}
	v := c.Compute(context.Background(), 0, QueryContext{}, nil)
	require.Equal(t, 0.0, v[schema.SignalQueryCentrality])
}

func TestScoreSumsCoefficients(t *testing.T) {
	var v schema.SignalVector
	v[schema.SignalHostCentrality] = 1.0
	v[schema.SignalHasAds] = 1.0
	coeffs := schema.NewCoefficientTable()
	boost := 42.0
	total := Score(v, coeffs, &boost)
	require.InDelta(t, schema.SignalHostCentrality.DefaultCoefficient()+schema.SignalHasAds.DefaultCoefficient()+42.0, total, 1e-9)
}

func TestDampenedScoreReducesLowerLevels(t *testing.T) {
	s := FieldTermScores{
		Tri:  []float64{2.0},
		Bi:   []float64{3.0},
		Mono: []float64{4.0},
	}
	got := s.Reduce()
	want := 2.0 + 3.0*0.4 + 4.0*0.4*0.4
	require.InDelta(t, want, got, 1e-9)
}

func TestLexicalOverlapCrossEncoder(t *testing.T) {
	enc := LexicalOverlapCrossEncoder{}
	score := enc.Score(context.Background(), "golang search engine", "A search Engine written in Go")
	require.InDelta(t, 2.0/3.0, score, 1e-9)
}
