// Package ampc implements the bulk-synchronous Analytics Multi-Pass
// Coordinator: a coordinator drives rounds of
// registered Mapper closures across a set of Workers, each of which
// owns a read-only shard of the graph and a DHT client, converging
// when a round performs no further upserts.
package ampc

import (
	"context"

	"github.com/fathom-search/fathom/pkg/dht"
)

// Worker owns a read-only shard of the graph data an AMPC job analyzes
// and answers the closed set of round-protocol messages.
// Concrete implementations back harmonic-centrality, shortest-path
// HyperLogLog sketching, and host-similarity jobs.
type Worker interface {
	NumNodes() uint64
	BatchID2Node(ids []uint64) []string
	GetNodeSketch(id uint64) ([]byte, bool)
}

// Mapper runs one round of a job: read from the DHT, iterate the
// worker's local shard, upsert results back to the DHT. It returns the
// most significant UpsertAction any of its upserts produced — the
// coordinator's convergence signal.
type Mapper func(ctx context.Context, worker Worker, client *dht.Client) (dht.UpsertAction, error)

// Registry maps a job's compiled-in mapper name to its Mapper closure.
// A job's parameters travel over the wire as plain data;
// the mapper code itself must already be compiled into the worker
// binary, looked up by name, matching "a job has an associated Worker,
// Mapper, and DhtTables type" declared at compile time.
type Registry struct {
	mappers map[string]Mapper
}

// NewRegistry returns an empty mapper registry.
func NewRegistry() *Registry {
	return &Registry{mappers: make(map[string]Mapper)}
}

// Register adds a mapper under name.
func (r *Registry) Register(name string, m Mapper) {
	r.mappers[name] = m
}

// Lookup returns the mapper registered under name.
func (r *Registry) Lookup(name string) (Mapper, bool) {
	m, ok := r.mappers[name]
	return m, ok
}
