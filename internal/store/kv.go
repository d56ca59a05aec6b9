// Package store provides the persisted key-value layers named in
// "Persisted state layout": the id2node mapping and the
// per-metric centrality stores. Both are offline-built and read-only at
// serving time.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	_ "modernc.org/sqlite"
)

// KV is a simple persisted key-value store backed by SQLite, used for
// id2node and each centrality metric directory. Reads are
// the hot path at serving time; writes happen only during offline
// index/AMPC builds.
type KV struct {
	db *sql.DB
}

// OpenKV opens (creating if absent) a KV store at path.
func OpenKV(path string) (*KV, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open kv %s: %w", path, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (key BLOB PRIMARY KEY, value BLOB NOT NULL)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init kv schema: %w", err)
	}
	return &KV{db: db}, nil
}

// Get looks up a value by key.
func (k *KV) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	row := k.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key)
	var v []byte
	if err := row.Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return v, true, nil
}

// Set upserts a value by key.
func (k *KV) Set(ctx context.Context, key, value []byte) error {
	_, err := k.db.ExecContext(ctx, `INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Close releases the underlying database handle.
func (k *KV) Close() error { return k.db.Close() }

// CentralityStore is a read-only view over a single centrality metric's
// KV directory, keyed by host node id,
// centrality/{harmonic,approx_harmonic,inbound_similarity} layout.
type CentralityStore struct {
	kv *KV
}

// OpenCentralityStore opens the centrality KV at dir/file.
func OpenCentralityStore(path string) (*CentralityStore, error) {
	kv, err := OpenKV(path)
	if err != nil {
		return nil, err
	}
	return &CentralityStore{kv: kv}, nil
}

// Get returns the centrality score for a host node id, or 0 if absent
// (an absent node contributes no centrality boost, matching the
// treatment of a missing term as an empty posting list elsewhere in
// this module).
func (c *CentralityStore) Get(ctx context.Context, hostNodeID uint64) float64 {
	v, ok, err := c.kv.Get(ctx, nodeKey(hostNodeID))
	if err != nil || !ok || len(v) != 8 {
		return 0
	}
	return bytesToFloat64(v)
}

// Set stores a centrality score for a host node id (offline build only).
func (c *CentralityStore) Set(ctx context.Context, hostNodeID uint64, score float64) error {
	return c.kv.Set(ctx, nodeKey(hostNodeID), float64ToBytes(score))
}

func (c *CentralityStore) Close() error { return c.kv.Close() }

func nodeKey(id uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(id >> (8 * i))
	}
	return b
}

func float64ToBytes(f float64) []byte {
	bits := math.Float64bits(f)
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(bits >> (8 * i))
	}
	return b
}

func bytesToFloat64(b []byte) float64 {
	var bits uint64
	for i := 0; i < 8; i++ {
		bits |= uint64(b[i]) << (8 * i)
	}
	return math.Float64frombits(bits)
}
