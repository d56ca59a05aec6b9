package ampc_test

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fathom-search/fathom/pkg/ampc"
	"github.com/fathom-search/fathom/pkg/dht"
	"github.com/fathom-search/fathom/pkg/distributed"
	"github.com/fathom-search/fathom/pkg/rpc"
)

type fakeWorker struct{}

func (fakeWorker) NumNodes() uint64                       { return 1 }
func (fakeWorker) BatchID2Node(ids []uint64) []string     { return nil }
func (fakeWorker) GetNodeSketch(id uint64) ([]byte, bool) { return nil, false }

func TestRegistryLookup(t *testing.T) {
	registry := ampc.NewRegistry()
	called := false
	registry.Register("noop", func(ctx context.Context, w ampc.Worker, c *dht.Client) (dht.UpsertAction, error) {
		called = true
		return dht.UpsertNoChange, nil
	})

	mapper, ok := registry.Lookup("noop")
	require.True(t, ok)
	_, err := mapper(context.Background(), fakeWorker{}, nil)
	require.NoError(t, err)
	require.True(t, called)

	_, ok = registry.Lookup("missing")
	require.False(t, ok)
}

// startDHTNode spins up a real rpc.Server fronting a fresh single-shard
// dht.Node and returns a dht.Client wired to it.
func startDHTNode(t *testing.T) (*dht.Client, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	node := dht.NewNode()
	srv := rpc.NewServer("127.0.0.1:0", dht.Handler{Node: node})
	go srv.ListenAndServe(ctx)
	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, time.Millisecond)

	rc := distributed.NewReplicatedClient(ctx, 0, []string{srv.Addr().String()})
	require.Eventually(t, func() bool { return rc.Len() == 1 }, time.Second, time.Millisecond)

	client := dht.NewClient(1)
	client.SetShard(0, rc)

	return client, cancel
}

func TestWorkerServerRunsMapperAndClearsJob(t *testing.T) {
	client, cancel := startDHTNode(t)
	defer cancel()

	registry := ampc.NewRegistry()
	registry.Register("mark", func(ctx context.Context, w ampc.Worker, c *dht.Client) (dht.UpsertAction, error) {
		return c.Upsert(ctx, "flags", "done", []byte{1})
	})
	registry.Register("slow", func(ctx context.Context, w ampc.Worker, c *dht.Client) (dht.UpsertAction, error) {
		time.Sleep(100 * time.Millisecond)
		return dht.UpsertNoChange, nil
	})
	require.NoError(t, client.CreateTable(context.Background(), "flags", 1, dht.MonoidBoolOr))

	worker := ampc.NewWorkerServer(fakeWorker{}, client, registry)

	require.NoError(t, worker.ScheduleJob("job-0", 0, "slow"))
	err := worker.ScheduleJob("job-0", 0, "slow")
	require.Error(t, err, "a second schedule while the first is running must be rejected")
	require.Eventually(t, func() bool {
		_, _, running, _, _ := worker.CurrentJob()
		return !running
	}, time.Second, time.Millisecond)

	require.NoError(t, worker.ScheduleJob("job-1", 0, "mark"))

	require.Eventually(t, func() bool {
		_, _, running, _, _ := worker.CurrentJob()
		return !running
	}, time.Second, time.Millisecond)

	_, _, running, action, jobErr := worker.CurrentJob()
	require.False(t, running)
	require.NoError(t, jobErr)
	require.Equal(t, dht.UpsertInserted, action)

	value, present, err := client.Get(context.Background(), "flags", "done")
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, []byte{1}, value)

	changed, present, err := client.Get(context.Background(), ampc.MetaTable, ampc.RoundHadChangesKey)
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, []byte{1}, changed)
}

func TestWorkerServerRejectsUnknownMapper(t *testing.T) {
	client, cancel := startDHTNode(t)
	defer cancel()

	worker := ampc.NewWorkerServer(fakeWorker{}, client, ampc.NewRegistry())
	err := worker.ScheduleJob("job-1", 0, "does-not-exist")
	require.ErrorIs(t, err, ampc.ErrUnknownMapper)
}

func u64Bytes(n uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, n)
	return buf
}

// counterMapper increments "counters"/"n" once per round until it
// reaches threshold, then reports no further change, giving the
// coordinator a deterministic number of rounds to converge over.
func counterMapper(threshold uint64) ampc.Mapper {
	return func(ctx context.Context, w ampc.Worker, client *dht.Client) (dht.UpsertAction, error) {
		value, present, err := client.Get(ctx, "counters", "n")
		if err != nil {
			return dht.UpsertNoChange, err
		}
		var count uint64
		if present {
			count = binary.LittleEndian.Uint64(value)
		}
		if count >= threshold {
			return dht.UpsertNoChange, nil
		}
		return client.Upsert(ctx, "counters", "n", u64Bytes(1))
	}
}

func TestCoordinatorConvergesAfterExpectedRounds(t *testing.T) {
	dhtClient, cancelDHT := startDHTNode(t)
	defer cancelDHT()

	require.NoError(t, dhtClient.CreateTable(context.Background(), "counters", 1, dht.MonoidU64Add))

	registry := ampc.NewRegistry()
	registry.Register("counter", counterMapper(1))
	worker := ampc.NewWorkerServer(fakeWorker{}, dhtClient, registry)

	ctx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()
	workerSrv := rpc.NewServer("127.0.0.1:0", ampc.Handler{Worker: worker})
	go workerSrv.ListenAndServe(ctx)
	require.Eventually(t, func() bool { return workerSrv.Addr() != nil }, time.Second, time.Millisecond)

	coordinator := ampc.NewCoordinator(ctx, map[uint64][]string{0: {workerSrv.Addr().String()}}, dhtClient)
	defer coordinator.Close()

	rounds, err := coordinator.RunJob(ctx, "counter")
	require.NoError(t, err)
	// Round 0 upserts n=1 (a change), round 1 observes n already at
	// threshold and reports no change, so the coordinator stops there.
	require.Equal(t, 2, rounds)

	value, present, err := dhtClient.Get(context.Background(), "counters", "n")
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, uint64(1), binary.LittleEndian.Uint64(value))
}

func TestAssignShardsIsDeterministicAndRebalancesMinimally(t *testing.T) {
	workers := []string{"w1:9000", "w2:9000", "w3:9000", "w4:9000"}
	first := ampc.AssignShards(8, workers, 2)
	second := ampc.AssignShards(8, workers, 2)
	require.Equal(t, first, second, "rendezvous assignment must be deterministic for a fixed worker set")

	for shard, addrs := range first {
		require.Len(t, addrs, 2, "shard %d", shard)
	}

	withoutW2 := ampc.AssignShards(8, []string{"w1:9000", "w3:9000", "w4:9000"}, 2)
	changed := 0
	for shard, addrs := range first {
		stillHasW2 := false
		for _, a := range addrs {
			if a == "w2:9000" {
				stillHasW2 = true
			}
		}
		if stillHasW2 {
			changedAddrs := withoutW2[shard]
			require.NotEqual(t, addrs, changedAddrs)
			changed++
		}
	}
	require.Greater(t, changed, 0, "removing a worker should have displaced at least one shard's assignment")
}
