// Package transport defines the blocking byte-stream abstraction the TLS
// client runs on top of, plus two implementations: an adapter for net.Conn
// and an in-memory duplex pipe for tests.
//
// The contract is deliberately minimal:
//   - Read blocks until at least one byte is available, then returns it.
//   - Write transmits the entire buffer or fails; there is no partial write.
//
// Timeouts and cancellation belong to the transport, not to the TLS layer.
// A net.Conn with deadlines set is the usual way to bound a blocked call.
package transport
