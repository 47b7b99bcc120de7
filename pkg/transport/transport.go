package transport

import (
	"errors"
	"io"
	"net"
)

// Transport errors.
var (
	// ErrClosed indicates the transport has been closed.
	ErrClosed = errors.New("transport closed")
)

// Transport is a blocking byte stream.
//
// Read follows the io.Reader contract: it blocks until at least one byte is
// available and may return fewer bytes than requested. Write either transmits
// the whole buffer or returns an error; callers never deal with short writes.
type Transport interface {
	io.Reader

	// Write transmits all of p or fails.
	Write(p []byte) error
}

// NetConn adapts a net.Conn to the Transport interface.
//
// Deadlines configured on the underlying connection bound how long Read and
// Write may block.
type NetConn struct {
	conn net.Conn
}

// NewNetConn wraps an established net.Conn.
func NewNetConn(conn net.Conn) *NetConn {
	return &NetConn{conn: conn}
}

// Read reads from the underlying connection.
func (t *NetConn) Read(p []byte) (int, error) {
	return t.conn.Read(p)
}

// Write writes all of p to the underlying connection.
// net.Conn already guarantees an error on short writes, so the count is
// folded into the error contract.
func (t *NetConn) Write(p []byte) error {
	_, err := t.conn.Write(p)
	return err
}

// Close closes the underlying connection.
func (t *NetConn) Close() error {
	return t.conn.Close()
}

// Conn returns the wrapped net.Conn, e.g. for setting deadlines.
func (t *NetConn) Conn() net.Conn {
	return t.conn
}

// Compile-time interface satisfaction check.
var _ Transport = (*NetConn)(nil)
