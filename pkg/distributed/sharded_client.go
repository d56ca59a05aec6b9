package distributed

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fathom-search/fathom/pkg/rpc"
	"github.com/fathom-search/fathom/pkg/schema"
)

// ShardedClient keeps one ReplicatedClient per shard, maintaining a pool
// of replicated clients keyed by ShardID.
type ShardedClient struct {
	mu     sync.RWMutex
	shards map[schema.ShardID]*ReplicatedClient
}

// NewShardedClient returns an empty client; shards are added as they
// are discovered via cluster membership.
func NewShardedClient() *ShardedClient {
	return &ShardedClient{shards: make(map[schema.ShardID]*ReplicatedClient)}
}

// SetShard replaces (or installs) the ReplicatedClient for one shard.
func (s *ShardedClient) SetShard(id schema.ShardID, rc *ReplicatedClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shards[id] = rc
}

// ShardIDs returns every shard this client currently knows about.
func (s *ShardedClient) ShardIDs() []schema.ShardID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]schema.ShardID, 0, len(s.shards))
	for id := range s.shards {
		ids = append(ids, id)
	}
	return ids
}

func (s *ShardedClient) shard(id schema.ShardID) (*ReplicatedClient, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rc, ok := s.shards[id]
	return rc, ok
}

// shardResult pairs a shard id with its call outcome, so callers can
// tell which shards contributed to a merged response.
type shardResult[T any] struct {
	Shard schema.ShardID
	Value T
	Err   error
}

// fanOut calls method against every shard selector picks, concurrently,
// with ctx's deadline bounding the whole scatter. One branch's failure
// does not cancel the others, it just contributes a zero value.
func fanOut[TReq, TResp any](ctx context.Context, s *ShardedClient, selector Selector, method rpc.Method, newReq func(schema.ShardID) TReq) []shardResult[TResp] {
	targets := selector.Select(s.ShardIDs())

	results := make([]shardResult[TResp], len(targets))
	var grp errgroup.Group
	for i, id := range targets {
		i, id := i, id
		grp.Go(func() error {
			rc, ok := s.shard(id)
			if !ok {
				results[i] = shardResult[TResp]{Shard: id, Err: &unknownShardError{shard: id}}
				return nil
			}
			var resp TResp
			err := rc.Call(ctx, method, newReq(id), &resp)
			results[i] = shardResult[TResp]{Shard: id, Value: resp, Err: err}
			return nil
		})
	}
	_ = grp.Wait()
	return results
}

type unknownShardError struct{ shard schema.ShardID }

func (e *unknownShardError) Error() string {
	return "distributed: no replicated client configured for shard"
}
