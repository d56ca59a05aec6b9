// Package dht implements the sharded, monoid-upsert key-value store
// AMPC mappers read and write. A table is a named,
// typed-value KV space partitioned across a fixed number of shards by
// ShardForKey; each shard is served by one or more replica nodes.
package dht

import (
	"crypto/md5"
	"encoding/binary"
)

// ShardForKey implements the cluster's pinned sharding function:
// md5(key), first 8 bytes as little-endian u64, mod numShards. This
// must never change — an existing on-disk row's shard assignment would
// silently become unreachable.
func ShardForKey(key string, numShards uint64) uint64 {
	sum := md5.Sum([]byte(key))
	v := binary.LittleEndian.Uint64(sum[:8])
	return v % numShards
}
