package cluster

import (
	"math/rand"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/fathom-search/fathom/pkg/schema"
)

// gossipInterval is the fixed push-gossip tick period.
const gossipInterval = 1 * time.Second

// memberTTL is how long a member may go unheard-from before this node
// stops considering it alive; chitchat relies on a phi-accrual failure
// detector, this is the push-gossip equivalent of that bound.
const memberTTL = 10 * gossipInterval

// fanout is how many peers each gossip round pushes the full table to.
const fanout = 3

// wireMember is one row of the gossiped membership table.
type wireMember struct {
	ID          string         `cbor:"id"`
	Addr        string         `cbor:"addr"`
	Service     schema.Service `cbor:"service"`
	Incarnation uint64         `cbor:"incarnation"`
}

// gossipMessage is the payload exchanged between nodes each round: the
// sender's full view of the cluster.
type gossipMessage struct {
	Members []wireMember `cbor:"members"`
}

type tableEntry struct {
	member   wireMember
	lastSeen time.Time
	addr     string
}

// gossiper maintains one node's view of cluster membership via periodic
// anti-entropy push gossip: it diffs the member-id set on every update
// and rebuilds a full snapshot on change.
type gossiper struct {
	transport *udpTransport
	selfID    string
	selfAddr  string

	mu          sync.Mutex
	table       map[string]*tableEntry
	incarnation uint64
	service     schema.Service

	seeds []string

	onChange func()

	stopCh chan struct{}
}

func newGossiper(transport *udpTransport, selfID, selfAddr string, service schema.Service, seeds []string) *gossiper {
	g := &gossiper{
		transport: transport,
		selfID:    selfID,
		selfAddr:  selfAddr,
		service:   service,
		table:     make(map[string]*tableEntry),
		seeds:     seeds,
		stopCh:    make(chan struct{}),
	}
	g.table[selfID] = &tableEntry{
		member:   wireMember{ID: selfID, Addr: selfAddr, Service: service, Incarnation: 0},
		lastSeen: time.Now(),
		addr:     selfAddr,
	}
	return g
}

func (g *gossiper) run() {
	go g.recvLoop()
	g.gossipRound()
	ticker := time.NewTicker(gossipInterval)
	defer ticker.Stop()
	for {
		select {
		case <-g.stopCh:
			return
		case <-ticker.C:
			g.gossipRound()
			g.reapStale()
		}
	}
}

func (g *gossiper) stop() {
	close(g.stopCh)
	g.transport.close()
}

func (g *gossiper) setService(service schema.Service) {
	g.mu.Lock()
	g.incarnation++
	g.service = service
	g.table[g.selfID] = &tableEntry{
		member:   wireMember{ID: g.selfID, Addr: g.selfAddr, Service: service, Incarnation: g.incarnation},
		lastSeen: time.Now(),
		addr:     g.selfAddr,
	}
	g.mu.Unlock()
	g.gossipRound()
}

func (g *gossiper) snapshot() []wireMember {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]wireMember, 0, len(g.table))
	for _, e := range g.table {
		out = append(out, e.member)
	}
	return out
}

func (g *gossiper) peerAddrs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var addrs []string
	for id, e := range g.table {
		if id == g.selfID {
			continue
		}
		addrs = append(addrs, e.addr)
	}
	for _, s := range g.seeds {
		addrs = append(addrs, s)
	}
	return addrs
}

func (g *gossiper) gossipRound() {
	peers := g.peerAddrs()
	if len(peers) == 0 {
		return
	}
	rand.Shuffle(len(peers), func(i, j int) { peers[i], peers[j] = peers[j], peers[i] })
	if len(peers) > fanout {
		peers = peers[:fanout]
	}
	msg := gossipMessage{Members: g.snapshot()}
	payload, err := cbor.Marshal(msg)
	if err != nil {
		return
	}
	for _, addr := range peers {
		if addr == g.selfAddr {
			continue
		}
		_ = g.transport.send(addr, payload)
	}
}

func (g *gossiper) recvLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, err := g.transport.recv(buf)
		if err != nil {
			return
		}
		var msg gossipMessage
		if err := cbor.Unmarshal(buf[:n], &msg); err != nil {
			continue
		}
		g.merge(msg.Members)
	}
}

// merge applies a received full-state snapshot, keeping the
// higher-incarnation entry per id, then notifies onChange if the
// resulting member-id set differs from what we had.
func (g *gossiper) merge(members []wireMember) {
	g.mu.Lock()
	before := make(map[string]bool, len(g.table))
	for id := range g.table {
		before[id] = true
	}
	changed := false
	now := time.Now()
	for _, m := range members {
		if m.ID == g.selfID {
			continue
		}
		existing, ok := g.table[m.ID]
		if !ok || m.Incarnation >= existing.member.Incarnation {
			g.table[m.ID] = &tableEntry{member: m, lastSeen: now, addr: m.Addr}
			if !ok {
				changed = true
			}
		} else {
			existing.lastSeen = now
		}
	}
	g.mu.Unlock()
	if changed && g.onChange != nil {
		g.onChange()
	}
}

func (g *gossiper) reapStale() {
	g.mu.Lock()
	cutoff := time.Now().Add(-memberTTL)
	changed := false
	for id, e := range g.table {
		if id == g.selfID {
			continue
		}
		if e.lastSeen.Before(cutoff) {
			delete(g.table, id)
			changed = true
		}
	}
	g.mu.Unlock()
	if changed && g.onChange != nil {
		g.onChange()
	}
}
