package transport

import (
	"sync"
	"sync/atomic"
)

// PipeEnd is one side of an in-process duplex transport. It exists for tests
// that need a peer without a real socket, and it counts Read and Write calls
// so tests can assert that an operation performed no transport I/O.
type PipeEnd struct {
	peer *pipeHalf
	own  *pipeHalf

	readCalls  atomic.Int64
	writeCalls atomic.Int64
}

// pipeHalf is a byte queue in one direction.
type pipeHalf struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func newPipeHalf() *pipeHalf {
	h := &pipeHalf{}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Pipe creates two connected transport ends. Bytes written to one end are
// read from the other, in order.
func Pipe() (*PipeEnd, *PipeEnd) {
	ab := newPipeHalf()
	ba := newPipeHalf()
	a := &PipeEnd{peer: ab, own: ba}
	b := &PipeEnd{peer: ba, own: ab}
	return a, b
}

// Read blocks until at least one byte is available or the pipe is closed.
func (p *PipeEnd) Read(b []byte) (int, error) {
	p.readCalls.Add(1)

	h := p.own
	h.mu.Lock()
	defer h.mu.Unlock()

	for len(h.buf) == 0 {
		if h.closed {
			return 0, ErrClosed
		}
		h.cond.Wait()
	}

	n := copy(b, h.buf)
	h.buf = h.buf[n:]
	return n, nil
}

// Write appends all of b to the peer's read queue.
func (p *PipeEnd) Write(b []byte) error {
	p.writeCalls.Add(1)

	h := p.peer
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}

	h.buf = append(h.buf, b...)
	h.cond.Broadcast()
	return nil
}

// Close closes both directions. Pending and future reads on either end fail
// with ErrClosed once their queue drains.
func (p *PipeEnd) Close() error {
	for _, h := range []*pipeHalf{p.own, p.peer} {
		h.mu.Lock()
		h.closed = true
		h.cond.Broadcast()
		h.mu.Unlock()
	}
	return nil
}

// ReadCalls returns the number of Read invocations on this end.
func (p *PipeEnd) ReadCalls() int64 {
	return p.readCalls.Load()
}

// WriteCalls returns the number of Write invocations on this end.
func (p *PipeEnd) WriteCalls() int64 {
	return p.writeCalls.Load()
}

// Compile-time interface satisfaction check.
var _ Transport = (*PipeEnd)(nil)
