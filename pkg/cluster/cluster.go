// Package cluster implements cluster membership:
// nodes gossip their Service info, and callers can list or wait for
// members matching a predicate. Grounded algorithmically on
// original_source/core/src/distributed/cluster.rs's Cluster::join,
// reimplemented over a hand-rolled UDP push-gossip transport since no
// pack example carries a gossip/SWIM membership library.
package cluster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fathom-search/fathom/pkg/schema"
)

// Cluster is a joined node's view of the cluster: its own identity plus
// a continuously updated, diff-triggered snapshot of alive members.
type Cluster struct {
	self     schema.Member
	gossiper *gossiper

	mu          sync.RWMutex
	aliveNodes  map[string]schema.Member
	watchers    []chan struct{}
}

// Join starts gossiping on gossipAddr and returns once the local
// membership table is initialized. The self node's id is suffixed with
// a random uuid so repeated joins by logically-the-same service never
// collide.
func Join(ctx context.Context, selfNode schema.Member, gossipAddr string, seedAddrs []string) (*Cluster, error) {
	transport, err := listenUDP(gossipAddr)
	if err != nil {
		return nil, err
	}

	self := selfNode
	self.ID = fmt.Sprintf("%s_%s", selfNode.ID, uuid.NewString())

	c := &Cluster{
		self:       self,
		aliveNodes: make(map[string]schema.Member),
	}
	c.gossiper = newGossiper(transport, self.ID, transport.localAddr(), self.Service, seedAddrs)
	c.gossiper.onChange = c.rebuildSnapshot
	c.rebuildSnapshot()
	go c.gossiper.run()

	go func() {
		<-ctx.Done()
		c.gossiper.stop()
	}()

	return c, nil
}

// rebuildSnapshot replaces aliveNodes wholesale from the gossiper's
// current table whenever the membership id set changes, and wakes any
// AwaitMember watchers.
func (c *Cluster) rebuildSnapshot() {
	members := c.gossiper.snapshot()
	next := make(map[string]schema.Member, len(members))
	for _, m := range members {
		next[m.ID] = schema.Member{ID: m.ID, Service: m.Service}
	}

	c.mu.Lock()
	c.aliveNodes = next
	watchers := c.watchers
	c.watchers = nil
	c.mu.Unlock()

	for _, w := range watchers {
		close(w)
	}
}

// Members returns a snapshot of every currently alive node, including
// self.
func (c *Cluster) Members() []schema.Member {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]schema.Member, 0, len(c.aliveNodes))
	for _, m := range c.aliveNodes {
		out = append(out, m)
	}
	return out
}

// SelfNode returns this node's own (uuid-suffixed) identity.
func (c *Cluster) SelfNode() schema.Member { return c.self }

// SetService updates this node's advertised service, refreshes the local
// Members snapshot, and triggers an immediate gossip round rather than
// waiting for the next scheduled interval. Peers store the new service in
// their gossip tables on receipt; their Members snapshots are rebuilt
// only when their member-id set changes.
func (c *Cluster) SetService(service schema.Service) {
	c.self.Service = service
	c.gossiper.setService(service)
	c.rebuildSnapshot()
}

// AwaitMember blocks until a member matching predicate is observed, the
// context is canceled, or timeout elapses.
func (c *Cluster) AwaitMember(ctx context.Context, timeout time.Duration, predicate func(schema.Member) bool) (schema.Member, error) {
	deadline := time.Now().Add(timeout)
	for {
		for _, m := range c.Members() {
			if predicate(m) {
				return m, nil
			}
		}
		if time.Now().After(deadline) {
			return schema.Member{}, fmt.Errorf("cluster: no member matched predicate within %s", timeout)
		}

		ch := make(chan struct{})
		c.mu.Lock()
		c.watchers = append(c.watchers, ch)
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return schema.Member{}, ctx.Err()
		case <-ch:
		case <-time.After(gossipInterval):
		}
	}
}

// Leave stops gossiping and closes the underlying socket.
func (c *Cluster) Leave() {
	c.gossiper.stop()
}
