package ampc

import (
	"context"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	rendezvous "github.com/dgryski/go-rendezvous"
	"github.com/google/uuid"

	fatherrors "github.com/fathom-search/fathom/internal/errors"
	"github.com/fathom-search/fathom/pkg/dht"
	"github.com/fathom-search/fathom/pkg/distributed"
	"github.com/fathom-search/fathom/pkg/rpc"
	"github.com/fathom-search/fathom/pkg/schema"
)

// pollInterval is how often the coordinator checks a worker's
// CurrentJob while a round is in flight.
const pollInterval = 20 * time.Millisecond

// AssignShards maps each of numShards AMPC shards onto replicationFactor
// worker addresses drawn from workerAddrs, via rendezvous (highest random
// weight) hashing keyed on the shard id. Rendezvous hashing means adding
// or removing a worker only reshuffles the shards that hashed nearest
// it, instead of every shard's assignment — unlike mod-N sharding, which
// is what DHT key placement uses (pkg/dht.ShardForKey) and must stay
// fixed forever; a worker pool is expected to grow and shrink, so its
// assignment should not be.
func AssignShards(numShards uint64, workerAddrs []string, replicationFactor int) map[uint64][]string {
	assignment := make(map[uint64][]string, numShards)
	for shard := uint64(0); shard < numShards; shard++ {
		candidates := append([]string(nil), workerAddrs...)
		r := rendezvous.New(candidates, hashWorkerAddr)
		key := fmt.Sprintf("shard-%d", shard)

		var picked []string
		for i := 0; i < replicationFactor && len(candidates) > 0; i++ {
			winner := r.Lookup(key)
			picked = append(picked, winner)
			r.Remove(winner)
			for j, c := range candidates {
				if c == winner {
					candidates = append(candidates[:j], candidates[j+1:]...)
					break
				}
			}
		}
		assignment[shard] = picked
	}
	return assignment
}

func hashWorkerAddr(s string) uint64 {
	return xxhash.Sum64String(s)
}

// Coordinator drives AMPC jobs to convergence across a fixed set of
// worker shards: each round it runs a named mapper on
// every shard, polls until every shard finishes, then checks the
// cluster-wide meta table to decide whether another round is needed.
// Each shard's worker is guarded by its own internal/errors.CircuitBreaker
// so a worker stuck failing round after round stops being retried every
// round and is instead treated the way the distributed searcher treats
// an unreachable shard: it contributes nothing until it recovers, rather
// than failing the whole job.
type Coordinator struct {
	shards   map[uint64]*distributed.ReplicatedClient
	breakers map[uint64]*fatherrors.CircuitBreaker
	meta     *dht.Client
}

// NewCoordinator dials every worker address AssignShards names and
// returns a Coordinator ready to run jobs. metaClient is a DHT client
// reaching the same workers' DHT-serving side, used to read and reset
// the round's convergence flag.
func NewCoordinator(ctx context.Context, shardWorkers map[uint64][]string, metaClient *dht.Client) *Coordinator {
	c := &Coordinator{
		shards:   make(map[uint64]*distributed.ReplicatedClient, len(shardWorkers)),
		breakers: make(map[uint64]*fatherrors.CircuitBreaker, len(shardWorkers)),
		meta:     metaClient,
	}
	for shard, addrs := range shardWorkers {
		c.shards[shard] = distributed.NewReplicatedClient(ctx, schema.ShardID(shard), addrs)
		c.breakers[shard] = fatherrors.NewCircuitBreaker(fmt.Sprintf("ampc-shard-%d", shard))
	}
	return c
}

// RunJob drives mapperName to convergence: it runs consecutive rounds,
// each a RunJob+poll-CurrentJob pass over every shard followed by a
// check of the shared round_had_changes flag, stopping the first round
// that flag comes back false.
func (c *Coordinator) RunJob(ctx context.Context, mapperName string) (rounds int, err error) {
	jobID := uuid.NewString()

	if err := c.meta.CreateTable(ctx, MetaTable, 1, dht.MonoidBoolOr); err != nil {
		return 0, fmt.Errorf("ampc: create meta table: %w", err)
	}

	for round := uint64(0); ; round++ {
		if err := c.meta.Set(ctx, MetaTable, RoundHadChangesKey, []byte{0}); err != nil {
			return rounds, fmt.Errorf("ampc: reset convergence flag for round %d: %w", round, err)
		}

		if err := c.runRound(ctx, jobID, round, mapperName); err != nil {
			return rounds, fmt.Errorf("ampc: round %d: %w", round, err)
		}
		rounds++

		changed, _, err := c.meta.Get(ctx, MetaTable, RoundHadChangesKey)
		if err != nil {
			return rounds, fmt.Errorf("ampc: read convergence flag for round %d: %w", round, err)
		}
		if len(changed) != 1 || changed[0] == 0 {
			return rounds, nil
		}
	}
}

// runRound broadcasts RunJob to every shard whose circuit is closed,
// waits for each to finish its round, and records the outcome against
// that shard's breaker. A shard with an open circuit is skipped this
// round rather than retried.
func (c *Coordinator) runRound(ctx context.Context, jobID string, round uint64, mapperName string) error {
	attempted := 0
	for shard, rc := range c.shards {
		breaker := c.breakers[shard]
		if !breaker.Allow() {
			continue
		}
		attempted++
		if err := breaker.Execute(func() error {
			return c.runShardRound(ctx, rc, jobID, round, mapperName)
		}); err != nil {
			continue
		}
	}
	if attempted == 0 {
		return fmt.Errorf("no shard accepted round %d (all circuits open)", round)
	}
	return nil
}

// runShardRound schedules one round on a single shard's worker and
// blocks until that worker reports it finished.
func (c *Coordinator) runShardRound(ctx context.Context, rc *distributed.ReplicatedClient, jobID string, round uint64, mapperName string) error {
	req := rpc.RunJobRequest{JobID: jobID, Round: round, Mapper: mapperName}
	var resp rpc.RunJobResponse
	if err := rc.Call(ctx, rpc.MethodRunJob, req, &resp); err != nil {
		return err
	}
	if !resp.Accepted {
		return fmt.Errorf("worker rejected round %d", round)
	}
	return c.waitForShardDone(ctx, rc, jobID)
}

func (c *Coordinator) waitForShardDone(ctx context.Context, rc *distributed.ReplicatedClient, jobID string) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		var resp rpc.CurrentJobResponse
		if err := rc.Call(ctx, rpc.MethodCurrentJob, rpc.CurrentJobRequest{JobID: jobID}, &resp); err != nil {
			return err
		}
		if !resp.HasMore {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close releases every shard's worker connections.
func (c *Coordinator) Close() {
	for _, rc := range c.shards {
		rc.Close()
	}
}
