// Package rpc implements a length-prefixed, cbor-framed wire protocol:
// each message is `(u64-le body length)(body)` where body is a
// tagged-union-encoded request/response, served over TCP with a
// goroutine per connection and a per-connection deadline.
package rpc

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame to defend against a corrupt or
// hostile length prefix; no legitimate message in this protocol
// approaches it.
const MaxFrameSize = 256 << 20 // 256 MiB

// WriteFrame writes payload prefixed with its little-endian u64 length.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("rpc: write frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("rpc: write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint64(lenBuf[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("rpc: frame size %d exceeds max %d", n, MaxFrameSize)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("rpc: read frame body: %w", err)
	}
	return body, nil
}
