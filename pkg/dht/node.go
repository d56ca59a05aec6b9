package dht

import (
	"fmt"
	"sort"
	"sync"
)

// Node is one shard replica's local table set: create_table, drop_table,
// all_tables, and per-table get/set/upsert.
type Node struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

// NewNode returns an empty node.
func NewNode() *Node {
	return &Node{tables: make(map[string]*Table)}
}

// CreateTable declares a new table with the given monoid kind. Creating
// an already-existing table with the same monoid is a no-op; a
// conflicting monoid is an error, since mixed-monoid rows in one table
// would silently misbehave on merge.
func (n *Node) CreateTable(name string, monoid MonoidKind) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if existing, ok := n.tables[name]; ok {
		if existing.monoid != monoid {
			return fmt.Errorf("dht: table %q already exists with monoid %q, cannot redeclare as %q", name, existing.monoid, monoid)
		}
		return nil
	}
	n.tables[name] = newTable(monoid)
	return nil
}

// DropTable removes a table entirely.
func (n *Node) DropTable(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.tables, name)
}

// AllTables lists every table name, sorted.
func (n *Node) AllTables() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0, len(n.tables))
	for name := range n.tables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Table returns the named table, if it exists.
func (n *Node) Table(name string) (*Table, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	t, ok := n.tables[name]
	return t, ok
}

// Get reads one row from table.
func (n *Node) Get(table, key string) ([]byte, bool, error) {
	t, ok := n.Table(table)
	if !ok {
		return nil, false, fmt.Errorf("dht: unknown table %q", table)
	}
	v, present := t.Get(key)
	return v, present, nil
}

// Set overwrites one row in table.
func (n *Node) Set(table, key string, value []byte) error {
	t, ok := n.Table(table)
	if !ok {
		return fmt.Errorf("dht: unknown table %q", table)
	}
	t.Set(key, value)
	return nil
}

// Upsert merges value into one row of table.
func (n *Node) Upsert(table, key string, value []byte) (UpsertAction, error) {
	t, ok := n.Table(table)
	if !ok {
		return UpsertNoChange, fmt.Errorf("dht: unknown table %q", table)
	}
	return t.Upsert(key, value)
}
