package dht

import (
	"context"
	"fmt"
	"sync"

	"github.com/fathom-search/fathom/pkg/distributed"
	"github.com/fathom-search/fathom/pkg/rpc"
)

// Client is the DHT-facing RPC client AMPC mappers use: "per ShardId, a
// set of RemoteClients (replicas); a random replica is picked per RPC"
//. Reuses pkg/distributed.ReplicatedClient for the
// per-shard replica pool/breaker/backoff rather than re-implementing it,
// since the shape — N replicas, random pick, retry-then-skip — is
// identical to the distributed searcher's.
type Client struct {
	numShards uint64

	mu     sync.RWMutex
	shards map[uint64]*distributed.ReplicatedClient
}

// NewClient returns a client sharding keys over numShards.
func NewClient(numShards uint64) *Client {
	return &Client{numShards: numShards, shards: make(map[uint64]*distributed.ReplicatedClient)}
}

// SetShard installs the replica pool for one DHT shard index.
func (c *Client) SetShard(shard uint64, rc *distributed.ReplicatedClient) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shards[shard] = rc
}

func (c *Client) shardFor(key string) (*distributed.ReplicatedClient, error) {
	idx := ShardForKey(key, c.numShards)
	c.mu.RLock()
	rc, ok := c.shards[idx]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("dht: no replicated client for shard %d", idx)
	}
	return rc, nil
}

func (c *Client) allShards() []*distributed.ReplicatedClient {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*distributed.ReplicatedClient, 0, len(c.shards))
	for _, rc := range c.shards {
		out = append(out, rc)
	}
	return out
}

// Get reads one row.
func (c *Client) Get(ctx context.Context, table, key string) ([]byte, bool, error) {
	rc, err := c.shardFor(key)
	if err != nil {
		return nil, false, err
	}
	var resp rpc.DHTGetResponse
	req := rpc.DHTGetRequest{DHTKey: rpc.DHTKey{Table: table, Key: key}}
	if err := rc.Call(ctx, rpc.MethodDHTGet, req, &resp); err != nil {
		return nil, false, err
	}
	return resp.Value, resp.Present, nil
}

// Set overwrites one row.
func (c *Client) Set(ctx context.Context, table, key string, value []byte) error {
	rc, err := c.shardFor(key)
	if err != nil {
		return err
	}
	req := rpc.DHTSetRequest{DHTKey: rpc.DHTKey{Table: table, Key: key}, Value: value}
	return rc.Call(ctx, rpc.MethodDHTSet, req, nil)
}

// Upsert merges value into one row under the table's monoid.
func (c *Client) Upsert(ctx context.Context, table, key string, value []byte) (rpc.UpsertAction, error) {
	rc, err := c.shardFor(key)
	if err != nil {
		return rpc.UpsertNoChange, err
	}
	var resp rpc.DHTUpsertResponse
	req := rpc.DHTUpsertRequest{DHTKey: rpc.DHTKey{Table: table, Key: key}, Value: value}
	if err := rc.Call(ctx, rpc.MethodDHTUpsert, req, &resp); err != nil {
		return rpc.UpsertNoChange, err
	}
	return resp.Action, nil
}

// CreateTable declares a table on every shard.
func (c *Client) CreateTable(ctx context.Context, table string, numShard uint64, monoid MonoidKind) error {
	req := rpc.DHTCreateTableRequest{Table: table, NumShard: numShard, Monoid: string(monoid)}
	for _, rc := range c.allShards() {
		if err := rc.Call(ctx, rpc.MethodDHTCreateTable, req, nil); err != nil {
			return err
		}
	}
	return nil
}

// DropTable removes a table from every shard.
func (c *Client) DropTable(ctx context.Context, table string) error {
	req := rpc.DHTDropTableRequest{Table: table}
	for _, rc := range c.allShards() {
		if err := rc.Call(ctx, rpc.MethodDHTDropTable, req, nil); err != nil {
			return err
		}
	}
	return nil
}

// AllTables lists tables as seen from an arbitrary shard; table
// declarations are applied uniformly to every shard by CreateTable, so
// any one shard's view is representative.
func (c *Client) AllTables(ctx context.Context) ([]string, error) {
	shards := c.allShards()
	if len(shards) == 0 {
		return nil, fmt.Errorf("dht: client has no shards configured")
	}
	var resp rpc.DHTAllTablesResponse
	if err := shards[0].Call(ctx, rpc.MethodDHTAllTables, struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.Tables, nil
}
