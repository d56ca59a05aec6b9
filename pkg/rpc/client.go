package rpc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Client is a single persistent connection to one rpc.Server. Calls are
// serialized over the connection (one in flight at a time); callers
// needing concurrency should pool Clients, which is exactly what
// pkg/distributed's per-replica connection pool does.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader

	mu     sync.Mutex
	nextID atomic.Uint64
}

// Dial opens a connection to a rpc server at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", addr, err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Call sends a request built from method/body, waits for the matching
// response, and decodes it into out. The context deadline, if any,
// bounds the whole round trip.
func (c *Client) Call(ctx context.Context, method Method, body, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID.Add(1)
	req, err := NewRequest(id, method, body)
	if err != nil {
		return err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
	} else {
		_ = c.conn.SetDeadline(time.Time{})
	}

	payload, err := cbor.Marshal(req)
	if err != nil {
		return fmt.Errorf("rpc: encode request: %w", err)
	}
	if err := WriteFrame(c.conn, payload); err != nil {
		return err
	}

	respBody, err := ReadFrame(c.reader)
	if err != nil {
		return fmt.Errorf("rpc: read response: %w", err)
	}

	var resp Response
	if err := cbor.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("rpc: decode response: %w", err)
	}
	if resp.ID != id {
		return fmt.Errorf("rpc: response id %d does not match request id %d", resp.ID, id)
	}

	if out == nil {
		if resp.Err != nil {
			return resp.Err
		}
		return nil
	}
	return resp.DecodeBody(out)
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
