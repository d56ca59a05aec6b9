package ampc

import (
	"context"
	"encoding/binary"

	"github.com/fathom-search/fathom/pkg/dht"
)

// id2node is the narrow read interface GraphWorker needs from
// internal/store.KV, kept local so this package does not import
// internal/store directly.
type id2node interface {
	Get(ctx context.Context, key []byte) ([]byte, bool, error)
}

// GraphWorker is a Worker backed by one shard's id2node store and an
// optional sketch store. It
// implements the three-method surface every registered Mapper sees; the
// mapper's own algorithm (harmonic centrality, shortest-path sketching,
// host similarity) is supplied by the job binary via Registry.Register,
// not by this type.
type GraphWorker struct {
	id2node  id2node
	sketches id2node
	numNodes uint64
}

// NewGraphWorker returns a worker over the given id2node table; sketches
// may be nil for jobs that never call GetNodeSketch (e.g. a first
// harmonic-centrality pass that has not yet produced any).
func NewGraphWorker(id2node id2node, sketches id2node, numNodes uint64) *GraphWorker {
	return &GraphWorker{id2node: id2node, sketches: sketches, numNodes: numNodes}
}

func nodeIDKey(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}

// NumNodes reports the shard's node count, fixed at worker construction
// from the offline webgraph build.
func (w *GraphWorker) NumNodes() uint64 { return w.numNodes }

// BatchID2Node resolves node ids to their host strings, "" for any id
// absent from the table (a node that does not belong to this shard).
func (w *GraphWorker) BatchID2Node(ids []uint64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		v, ok, err := w.id2node.Get(context.Background(), nodeIDKey(id))
		if err != nil || !ok {
			continue
		}
		out[i] = string(v)
	}
	return out
}

// GetNodeSketch returns a node's stored HyperLogLog sketch bytes, used
// by approximate-harmonic-centrality mappers that merge sketches along
// the webgraph's edges.
func (w *GraphWorker) GetNodeSketch(id uint64) ([]byte, bool) {
	if w.sketches == nil {
		return nil, false
	}
	v, ok, err := w.sketches.Get(context.Background(), nodeIDKey(id))
	if err != nil {
		return nil, false
	}
	return v, ok
}

// ShardNodeCountTable is where NodeCountMapper publishes its result, one
// row per shard keyed by the shard's own address.
const ShardNodeCountTable = "_ampc_shard_node_count"

// NodeCountMapper is a minimal, always-registered example mapper: it
// upserts this shard's NumNodes into ShardNodeCountTable under the
// shard's own worker key, proving the round protocol end to end without
// needing any real graph-analysis algorithm wired in. Job-specific
// mappers (harmonic centrality, shortest path, host similarity) are
// registered by the job's own binary alongside this one.
func NodeCountMapper(shardKey string) Mapper {
	return func(ctx context.Context, worker Worker, client *dht.Client) (dht.UpsertAction, error) {
		if err := client.CreateTable(ctx, ShardNodeCountTable, 1, dht.MonoidU64Add); err != nil {
			return dht.UpsertNoChange, err
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], worker.NumNodes())
		action, err := client.Upsert(ctx, ShardNodeCountTable, shardKey, buf[:])
		return dht.UpsertAction(action), err
	}
}
