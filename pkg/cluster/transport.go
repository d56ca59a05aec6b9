package cluster

import (
	"fmt"
	"net"
)

// udpTransport is the datagram substrate the gossiper runs over: a
// small hand-rolled push-gossip protocol over raw UDP with periodic
// full-state exchange, incarnation-based merge, and snapshot rebuild on
// diff.
type udpTransport struct {
	conn *net.UDPConn
}

func listenUDP(addr string) (*udpTransport, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("cluster: resolve gossip addr %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("cluster: listen udp %s: %w", addr, err)
	}
	return &udpTransport{conn: conn}, nil
}

func (t *udpTransport) send(addr string, payload []byte) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	_, err = t.conn.WriteToUDP(payload, udpAddr)
	return err
}

// recv blocks for one datagram; callers loop until the transport is
// closed, at which point recv returns an error.
func (t *udpTransport) recv(buf []byte) (int, error) {
	n, _, err := t.conn.ReadFromUDP(buf)
	return n, err
}

func (t *udpTransport) close() error { return t.conn.Close() }

func (t *udpTransport) localAddr() string { return t.conn.LocalAddr().String() }
