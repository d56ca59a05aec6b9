package rpc

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Handler dispatches one decoded Request to its implementation and
// returns the Response to write back. Implementations typically switch
// on req.Method.
type Handler interface {
	Handle(ctx context.Context, req Request) Response
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, req Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response { return f(ctx, req) }

// connDeadline bounds how long a single request may take to arrive and
// be answered before the connection is dropped.
const connDeadline = 30 * time.Second

// Server accepts TCP connections and serves length-prefixed,
// cbor-framed requests over each, one goroutine per connection, and
// shuts down by closing its listener.
type Server struct {
	addr    string
	handler Handler

	mu       sync.Mutex
	listener net.Listener
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a server that will listen on addr once started.
func NewServer(addr string, handler Handler) *Server {
	return &Server{addr: addr, handler: handler}
}

// ListenAndServe starts accepting connections and blocks until ctx is
// canceled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc: listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	defer listener.Close()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_ = listener.Close()
	}()

	slog.Info("rpc server listening", slog.String("addr", listener.Addr().String()))

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				break
			}
			slog.Error("rpc accept error", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}

	s.wg.Wait()
	return ctx.Err()
}

// Addr returns the listener's bound address; only valid after
// ListenAndServe has started accepting.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// handleConn serves every request a client sends on one connection
// until it disconnects or a frame fails to decode.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	for {
		if err := conn.SetDeadline(time.Now().Add(connDeadline)); err != nil {
			return
		}

		body, err := ReadFrame(reader)
		if err != nil {
			return
		}

		var req Request
		if err := cbor.Unmarshal(body, &req); err != nil {
			resp := NewErrorResponse(0, "ERR_PARSE", "malformed request frame")
			s.writeResponse(conn, resp)
			return
		}

		resp := s.handler.Handle(ctx, req)
		if !s.writeResponse(conn, resp) {
			return
		}
	}
}

func (s *Server) writeResponse(conn net.Conn, resp Response) bool {
	payload, err := cbor.Marshal(resp)
	if err != nil {
		return false
	}
	return WriteFrame(conn, payload) == nil
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	listener := s.listener
	s.mu.Unlock()
	if listener != nil {
		return listener.Close()
	}
	return nil
}
