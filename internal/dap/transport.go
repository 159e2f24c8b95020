// Package dap implements the client side of the Debug Adapter Protocol (DAP).
//
// The package is layered:
//   - Transport: framed message reading/writing over TCP or stdio
//   - Channel: request/response correlation, the read loop, and dispatch of
//     events and adapter-initiated requests
//   - Client: typed, blocking request helpers on top of a Channel
//
// The protocol is described at: https://microsoft.github.io/debug-adapter-protocol/
package dap

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/go-dap"
)

// Transport handles framed communication with a debug adapter
type Transport struct {
	conn   io.ReadWriteCloser
	reader *bufio.Reader
	writer *bufio.Writer
	mu     sync.Mutex
	seq    int
}

// NewTransport wraps an already established duplex stream
func NewTransport(conn io.ReadWriteCloser) *Transport {
	return &Transport{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		seq:    1,
	}
}

// NewTCPTransport creates a transport connected to a TCP address
func NewTCPTransport(ctx context.Context, address string) (*Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DAP server at %s: %w", address, err)
	}
	return NewTransport(conn), nil
}

// NewStdioTransport creates a transport using a child process's stdio streams
func NewStdioTransport(stdin io.WriteCloser, stdout io.ReadCloser) *Transport {
	return NewTransport(&stdioRWC{
		reader: stdout,
		writer: stdin,
	})
}

type stdioRWC struct {
	reader io.ReadCloser
	writer io.WriteCloser
}

func (s *stdioRWC) Read(p []byte) (n int, err error) {
	return s.reader.Read(p)
}

func (s *stdioRWC) Write(p []byte) (n int, err error) {
	return s.writer.Write(p)
}

func (s *stdioRWC) Close() error {
	err1 := s.writer.Close()
	err2 := s.reader.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Send writes one DAP message. stamp runs under the write lock with the
// sequence number assigned to msg, so numbers reach the wire in order. If
// stamp fails nothing is written and its error is returned.
func (t *Transport) Send(msg dap.Message, stamp func(seq int) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	seq := t.seq
	if stamp != nil {
		if err := stamp(seq); err != nil {
			return err
		}
	}
	t.seq++

	if err := dap.WriteProtocolMessage(t.writer, msg); err != nil {
		return fmt.Errorf("failed to write DAP message: %w", err)
	}

	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush DAP message: %w", err)
	}

	return nil
}

// ReceiveRaw reads the content of the next frame without decoding it.
// Any error means the stream is unusable.
func (t *Transport) ReceiveRaw() ([]byte, error) {
	content, err := dap.ReadBaseMessage(t.reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read DAP message: %w", err)
	}
	return content, nil
}

// Close closes the underlying stream
func (t *Transport) Close() error {
	return t.conn.Close()
}
