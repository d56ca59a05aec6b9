// Package distributed implements the two-phase distributed searcher: a
// sharded, replicated rpc.Client pool, selectors over that pool, and the
// phase1-scatter/phase2-gather search algorithm. The errgroup fan-out with
// per-branch error capture generalizes a two-branch hybrid-search pattern
// to N remote shards.
package distributed

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	fatherrors "github.com/fathom-search/fathom/internal/errors"
	"github.com/fathom-search/fathom/pkg/rpc"
	"github.com/fathom-search/fathom/pkg/schema"
)

// ReplicatedClient holds one live rpc.Client per replica host for a
// single shard, each guarded by its own circuit breaker and rate
// limiter so one bad replica cannot starve the others.
type ReplicatedClient struct {
	shard schema.ShardID

	mu       sync.RWMutex
	replicas []*replica
}

type replica struct {
	addr    string
	client  *rpc.Client
	breaker *gobreaker.CircuitBreaker[any]
	limiter *rate.Limiter
}

// replicaRateLimit bounds outbound RPC rate per replica connection,
//.
const replicaRateLimit = 200 // requests/sec

// NewReplicatedClient dials every address in addrs for shard. A dial
// failure for one address is skipped, not fatal, so a shard with some
// unreachable replicas is still usable.
func NewReplicatedClient(ctx context.Context, shard schema.ShardID, addrs []string) *ReplicatedClient {
	rc := &ReplicatedClient{shard: shard}
	for _, addr := range addrs {
		client, err := rpc.Dial(ctx, addr)
		if err != nil {
			continue
		}
		settings := gobreaker.Settings{
			Name:        fmt.Sprintf("shard-%d-%s", shard, addr),
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}
		rc.replicas = append(rc.replicas, &replica{
			addr:    addr,
			client:  client,
			breaker: gobreaker.NewCircuitBreaker[any](settings),
			limiter: rate.NewLimiter(rate.Limit(replicaRateLimit), replicaRateLimit),
		})
	}
	return rc
}

// AddReplica registers an already-dialed connection, used by tests and
// by dynamic replica discovery (a new member joining the shard's pool).
func (rc *ReplicatedClient) AddReplica(addr string, client *rpc.Client) {
	settings := gobreaker.Settings{
		Name:    fmt.Sprintf("shard-%d-%s", rc.shard, addr),
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.replicas = append(rc.replicas, &replica{
		addr:    addr,
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
		limiter: rate.NewLimiter(rate.Limit(replicaRateLimit), replicaRateLimit),
	})
}

// Len returns the number of replicas currently registered.
func (rc *ReplicatedClient) Len() int {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return len(rc.replicas)
}

// randomReplica picks a live replica uniformly at random, matching
// 's RandomReplicaSelector.
func (rc *ReplicatedClient) randomReplica() (*replica, error) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	if len(rc.replicas) == 0 {
		return nil, fmt.Errorf("distributed: shard %d has no replicas", rc.shard)
	}
	return rc.replicas[rand.Intn(len(rc.replicas))], nil
}

// Call invokes method on a randomly chosen live replica, retrying
// against other replicas per fatherrors.ReplicaBackoff().with_limit(200ms).take(5)).
// If every attempt fails the returned error wraps the last failure;
// callers treat any non-nil error here as "this shard contributed
// nothing".
func (rc *ReplicatedClient) Call(ctx context.Context, method rpc.Method, body, out any) error {
	cfg := fatherrors.ReplicaBackoff()
	return fatherrors.Retry(ctx, cfg, func() error {
		r, err := rc.randomReplica()
		if err != nil {
			return err
		}
		if !r.limiter.Allow() {
			return fmt.Errorf("distributed: replica %s rate-limited", r.addr)
		}
		_, err = r.breaker.Execute(func() (any, error) {
			return nil, r.client.Call(ctx, method, body, out)
		})
		return err
	})
}

// Close closes every replica connection.
func (rc *ReplicatedClient) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for _, r := range rc.replicas {
		_ = r.client.Close()
	}
}
