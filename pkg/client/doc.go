// Package client implements a blocking TLS 1.3 client connection driver for
// environments where the caller owns every buffer.
//
// The driver performs no allocation per record: the caller supplies one
// fixed-size record buffer through a Context, the Connection borrows it for
// its whole lifetime, and Close hands it back. Every handshake message and
// every application-data record is staged in that one buffer.
//
//	cfg := &client.Config{ServerName: "example.com"}
//	ctx := client.NewContext(cfg, make([]byte, 4096))
//	conn := client.New(ctx, transport.NewNetConn(sock))
//	if err := conn.Open(); err != nil { ... }
//	conn.Write([]byte("hello"))
//	n, err := conn.Read(buf)
//	ctx, sock2, err := conn.Close()
//
// A Connection is single-use: one handshake, then data, then Close. It is
// not safe for concurrent use; all operations block the calling goroutine
// until transport I/O completes. Timeouts belong on the transport.
package client
