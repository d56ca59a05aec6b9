package distributed

import "github.com/fathom-search/fathom/pkg/schema"

// Selector narrows a ShardedClient's full shard set down to the shards
// one call should target.
type Selector interface {
	Select(allShards []schema.ShardID) []schema.ShardID
}

// AllShardsSelector fans a call out to every known shard; used for
// phase 1.
type AllShardsSelector struct{}

func (AllShardsSelector) Select(allShards []schema.ShardID) []schema.ShardID {
	return allShards
}

// SpecificShardSelector targets exactly one shard, if it is known.
// Searcher's phase 2 does not use it: it looks each pointer's
// originating shard up in the ShardedClient directly.
type SpecificShardSelector struct {
	Shard schema.ShardID
}

func (s SpecificShardSelector) Select(allShards []schema.ShardID) []schema.ShardID {
	for _, id := range allShards {
		if id == s.Shard {
			return []schema.ShardID{id}
		}
	}
	return nil
}
